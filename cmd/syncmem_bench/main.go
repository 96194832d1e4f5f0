// syncmem_bench runs host/device round trips on SyncData buffers and reports the transfers and time taken.
//
// Each round fills the host with a known pattern, moves it to the device, clobbers the (no longer authoritative)
// host memory, brings the values back to the host and verifies them.
//
// Usage:
//
//	syncmem_bench -backend=simplego,mmap -count=1000000 -rounds=20 -dtype=float32
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/syncmem/backends"
	_ "github.com/gomlx/syncmem/backends/default"
	"github.com/gomlx/syncmem/pkg/core/dtypes"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagBackends = flag.String("backend", "",
		fmt.Sprintf("Comma-separated list of backend configurations to benchmark. Use \"all\" for every "+
			"registered backend. If empty, it uses $%s or the default backend.", backends.SYNCMEM_BACKEND))
	flagCount  = flag.Int("count", 1_000_000, "Number of elements in the buffer.")
	flagRounds = flag.Int("rounds", 10, "Number of host->device->host round trips.")
	flagDType  = flag.String("dtype", "float32", "Element type: one of float32, float64, int32 or int64.")
	flagQuiet  = flag.Bool("quiet", false, "Don't display the progress bar.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	os.Exit(run())
}

// run the benchmarks and return the exit code.
func run() int {
	if *flagCount < 0 || *flagRounds <= 0 {
		klog.Errorf("-count must be >= 0 and -rounds must be > 0. See 'syncmem_bench -help'.")
		return 1
	}
	dtype, err := dtypes.FromName(*flagDType)
	if err != nil {
		klog.Errorf("Invalid -dtype: %v. See 'syncmem_bench -help'.", err)
		return 1
	}
	if !*flagQuiet {
		term := termenv.NewOutput(os.Stdout)
		term.HideCursor()
		defer term.ShowCursor()
	}

	var results []*benchResult
	for _, config := range backendConfigs(*flagBackends) {
		backend, err := backends.NewWithConfig(config)
		if err != nil {
			klog.Errorf("Failed to create backend %q: %+v", config, err)
			return 1
		}
		result, err := runBenchmark(backend, dtype, *flagCount, *flagRounds, newProgressBar(backend))
		backend.Finalize()
		if err != nil {
			klog.Errorf("Benchmark on backend %q failed: %+v", config, err)
			return 1
		}
		results = append(results, result)
	}

	fmt.Println(resultsTable(results))
	exitCode := 0
	for _, result := range results {
		if result.Mismatches > 0 {
			klog.Errorf("Backend %q: %d values didn't survive the round trip", result.Backend, result.Mismatches)
			exitCode = 1
		}
	}
	return exitCode
}

// backendConfigs returns the list of backend configurations to benchmark.
func backendConfigs(flagValue string) []string {
	switch flagValue {
	case "":
		if config, found := os.LookupEnv(backends.SYNCMEM_BACKEND); found {
			return []string{config}
		}
		return []string{backends.DefaultConfig}
	case "all":
		return backends.List()
	}
	var configs []string
	for _, config := range strings.Split(flagValue, ",") {
		config = strings.TrimSpace(config)
		if config != "" {
			configs = append(configs, config)
		}
	}
	return configs
}

// runBenchmark dispatches to the generic benchmark for the element type.
func runBenchmark(backend backends.Backend, dtype dtypes.DType, count, rounds int, bar *progressbar.ProgressBar) (*benchResult, error) {
	switch dtype {
	case dtypes.Float32:
		return benchmark[float32](backend, count, rounds, bar)
	case dtypes.Float64:
		return benchmark[float64](backend, count, rounds, bar)
	case dtypes.Int32:
		return benchmark[int32](backend, count, rounds, bar)
	case dtypes.Int64:
		return benchmark[int64](backend, count, rounds, bar)
	}
	return nil, errors.Errorf("dtype %s not supported by syncmem_bench, use one of float32, float64, int32 or int64", dtype)
}

func newProgressBar(backend backends.Backend) *progressbar.ProgressBar {
	if *flagQuiet {
		return nil
	}
	return progressbar.NewOptions(*flagRounds,
		progressbar.OptionSetDescription(fmt.Sprintf("[bold]%s[reset]", backend.Name())),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rounds"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionClearOnFinish(),
	)
}
