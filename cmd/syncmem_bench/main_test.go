package main

import (
	"testing"

	"github.com/gomlx/syncmem/backends"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

// setFlags sets the benchmark flags for the duration of the test.
func setFlags(t *testing.T, backendsFlag, dtype string, count, rounds int) {
	prevBackends, prevDType, prevCount, prevRounds, prevQuiet := *flagBackends, *flagDType, *flagCount, *flagRounds, *flagQuiet
	*flagBackends, *flagDType, *flagCount, *flagRounds, *flagQuiet = backendsFlag, dtype, count, rounds, true
	t.Cleanup(func() {
		*flagBackends, *flagDType, *flagCount, *flagRounds, *flagQuiet = prevBackends, prevDType, prevCount, prevRounds, prevQuiet
	})
}

func TestRun(t *testing.T) {
	setFlags(t, "all", "int32", 100, 3)
	require.Equal(t, 0, run())

	setFlags(t, "simplego", "float64", 0, 1)
	require.Equal(t, 0, run())
}

func TestRun_InvalidFlags(t *testing.T) {
	setFlags(t, "", "float8", 10, 1)
	require.Equal(t, 1, run())

	// Known dtype, but not one the benchmark runs with.
	setFlags(t, "", "bool", 10, 1)
	require.Equal(t, 1, run())

	setFlags(t, "", "float32", 10, 0)
	require.Equal(t, 1, run())

	setFlags(t, "cuda", "float32", 10, 1)
	require.Equal(t, 1, run())
}

func TestBackendConfigs(t *testing.T) {
	t.Setenv(backends.SYNCMEM_BACKEND, "simplego:limit=1MiB")
	require.Equal(t, []string{"simplego:limit=1MiB"}, backendConfigs(""))
	require.Equal(t, backends.List(), backendConfigs("all"))
	require.Equal(t, []string{"simplego", "mmap"}, backendConfigs(" simplego, ,mmap"))
}

func TestBenchmark(t *testing.T) {
	backend := backends.MustNew()
	defer backend.Finalize()
	result, err := benchmark[float32](backend, 10, 4, nil)
	require.NoError(t, err)
	require.Equal(t, 0, result.Mismatches)
	// FromHost and ToHost each round.
	require.Equal(t, 8, result.Transfers)
	require.Equal(t, uint64(8*10*4), result.BytesMoved)
}
