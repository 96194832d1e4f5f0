package main

import (
	"time"

	"github.com/gomlx/syncmem/backends"
	"github.com/gomlx/syncmem/pkg/core/dtypes"
	"github.com/gomlx/syncmem/pkg/core/syncdata"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// benchType lists the element types syncmem_bench can run with.
type benchType interface {
	float32 | float64 | int32 | int64
}

type benchResult struct {
	Backend     string
	DType       dtypes.DType
	Count       int
	Rounds      int
	Transfers   int
	BytesMoved  uint64
	Elapsed     time.Duration
	Mismatches  int
	Description string
}

// clobber is written to the host after moving the data to the device.
const clobber = -1

// benchmark runs rounds of: fill host, ToDevice, clobber host, ToHost, verify.
// bar can be nil.
func benchmark[T benchType](backend backends.Backend, count, rounds int, bar *progressbar.ProgressBar) (*benchResult, error) {
	data, err := syncdata.New[T](backend, count)
	if err != nil {
		return nil, err
	}
	defer func() { _ = data.Finalize() }()

	result := &benchResult{
		Backend:     backend.Name(),
		DType:       data.DType(),
		Count:       count,
		Rounds:      rounds,
		Description: backend.Description(),
	}
	start := time.Now()
	for round := range rounds {
		host, err := data.HostData()
		if err != nil {
			return nil, err
		}
		for ii := range host {
			host[ii] = T(ii + round)
		}
		if err = data.ToDevice(); err != nil {
			return nil, err
		}
		// host still points to the host allocation, but it is no longer authoritative.
		for ii := range host {
			host[ii] = clobber
		}
		if err = data.ToHost(); err != nil {
			return nil, err
		}
		host, err = data.HostData()
		if err != nil {
			return nil, err
		}
		for ii, v := range host {
			if v != T(ii+round) {
				if result.Mismatches == 0 {
					klog.Errorf("%s: round %d, element %d: got %v, wanted %v", backend.Name(), round, ii, v, T(ii+round))
				}
				result.Mismatches++
			}
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	result.Elapsed = time.Since(start)
	if bar != nil {
		_ = bar.Finish()
	}
	stats := data.Stats()
	result.Transfers = stats.Transfers()
	result.BytesMoved = uint64(stats.BytesTransferred())
	klog.V(1).Infof("%s: %s", backend.Name(), stats)
	return result, nil
}
