// Package cases holds the built-in test cases. Each case is a function over
// an open suite that drives the admin-command reader and the I/O-load
// generator through framework steps and records verifications against the
// numbered requirements.
package cases

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvmetools/nvmetest/fio"
	"github.com/nvmetools/nvmetest/framework"
	"github.com/nvmetools/nvmetest/nvmecmd"
	"github.com/nvmetools/nvmetest/registry"
	"github.com/nvmetools/nvmetest/rqmts"
	"github.com/nvmetools/nvmetest/snapshot"
)

// Suite data keys shared between cases.
const (
	StartInfoKey = "start_info"
	EndInfoKey   = "end_info"
	CompareKey   = "compare"
)

const (
	// Background SMART sampling: Get Log Page 2 every 500 mS for roughly
	// fifteen minutes.
	smartSamples    = 1825
	smartIntervalMS = 500

	// Continuous admin-command run, no idle time between commands.
	adminSamples = 5000

	// Short performance bursts.
	burstRampSec    = 0.5
	burstRuntimeSec = 2
	burstBlockSize  = 4096
	burstIOSize     = 1024 * 1024 * 1024

	fioTargetFile = "nvmetest_fio_target.bin"
	fioTargetSize = 1024 * 1024 * 1024
)

// Config carries the device under test and the limits shared by the
// built-in cases.
type Config struct {
	Nvmecmd nvmecmd.Config
	Fio     fio.Config

	// Volume is a mount point on the device under test; the load
	// generator reads and writes a file there.
	Volume string

	WearPercentLimit  int64
	AvgLatencyLimitMS float64
	MaxLatencyLimitMS float64
	ReadBandwidthGB   float64
	WriteBandwidthGB  float64
}

func (cfg *Config) applyDefaults() {
	if cfg.WearPercentLimit == 0 {
		cfg.WearPercentLimit = 80
	}
	if cfg.AvgLatencyLimitMS == 0 {
		cfg.AvgLatencyLimitMS = 5
	}
	if cfg.MaxLatencyLimitMS == 0 {
		cfg.MaxLatencyLimitMS = 500
	}
	if cfg.ReadBandwidthGB == 0 {
		cfg.ReadBandwidthGB = 0.05
	}
	if cfg.WriteBandwidthGB == 0 {
		cfg.WriteBandwidthGB = 0.05
	}
}

// RegisterAll registers every built-in case with the registry.
func RegisterAll(r *registry.Registry, cfg Config) error {
	cfg.applyDefaults()
	all := []registry.Case{
		{
			ID:          "suite_start_info",
			Title:       "Suite Start Info",
			Description: "Read and verify drive information at the start of the suite.",
			Run:         suiteStartInfo(cfg),
		},
		{
			ID:          "admin_commands",
			Title:       "Admin Commands",
			Description: "Verify admin command reliability and latency under continuous running.",
			Run:         adminCommands(cfg),
		},
		{
			ID:          "background_smart",
			Title:       "Background SMART",
			Description: "Verify reading SMART attributes does not disturb normal I/O.",
			Run:         backgroundSmart(cfg),
		},
		{
			ID:          "short_burst_performance",
			Title:       "Short Burst Performance",
			Description: "Measure bandwidth of short bursts of random reads and writes.",
			Run:         shortBurstPerformance(cfg),
		},
		{
			ID:          "suite_end_info",
			Title:       "Suite End Info",
			Description: "Read drive information at the end of the suite and verify changes.",
			Run:         suiteEndInfo(cfg),
		},
	}
	for _, c := range all {
		if err := r.RegisterCase(c); err != nil {
			return err
		}
	}
	return nil
}

// suiteStartInfo reads the drive once, stores the snapshot for the end-of-run
// comparison, and verifies the drive is healthy enough to test.
func suiteStartInfo(cfg Config) registry.CaseFunc {
	return func(s *framework.Suite) error {
		return s.RunCase("Suite Start Info",
			"Read and verify drive information at the start of the suite.",
			func(c *framework.Case) error {
				var read *nvmecmd.Read
				err := c.Step("Read info",
					"Read drive information with the admin-command reader.",
					func(st *framework.Step) error {
						var err error
						read, err = nvmecmd.ReadInfo(st.Context(), cfg.Nvmecmd, st.Directory(), "read")
						if err != nil {
							return err
						}
						s.Data[StartInfoKey] = read.Info
						return rqmts.AdminCommandsPass(st, read)
					})
				if err != nil {
					return err
				}
				return c.Step("Verify info",
					"Verify the drive is healthy and not worn out.",
					func(st *framework.Step) error {
						return verifyHealth(st, read.Info, cfg)
					})
			})
	}
}

// adminCommands runs the reader continuously for a large command sample and
// verifies reliability and latency.
func adminCommands(cfg Config) registry.CaseFunc {
	return func(s *framework.Suite) error {
		return s.RunCase("Admin Commands",
			"Verify admin command reliability and latency under continuous running.",
			func(c *framework.Case) error {
				return c.Step("Run commands",
					fmt.Sprintf("Run admin commands %d times with no idle time between them.", adminSamples),
					func(st *framework.Step) error {
						sampler, err := nvmecmd.StartSampler(cfg.Nvmecmd, st.Directory(), adminSamples, 0)
						if err != nil {
							return err
						}
						result, err := sampler.Wait(st.Context())
						if err != nil {
							return err
						}
						return verifySamples(st, result, cfg)
					})
			})
	}
}

// backgroundSmart samples SMART attributes in the background while the load
// generator runs reads and writes, then verifies neither side suffered.
func backgroundSmart(cfg Config) registry.CaseFunc {
	return func(s *framework.Suite) error {
		return s.RunCase("Background SMART",
			"Verify reading SMART attributes does not disturb normal I/O.",
			func(c *framework.Case) error {
				var sampler *nvmecmd.Sampler
				defer func() {
					// A failed I/O step must not leave the reader running.
					if sampler != nil && sampler.Running() {
						sampler.Stop(c.Context())
					}
				}()

				interval := smartIntervalMS * time.Millisecond
				err := c.Step("Start sampling",
					fmt.Sprintf("Read SMART attributes every %d mS in the background.", smartIntervalMS),
					func(st *framework.Step) error {
						var err error
						sampler, err = nvmecmd.StartSampler(cfg.Nvmecmd, st.Directory(), smartSamples, interval)
						return err
					})
				if err != nil {
					return err
				}

				runtimeSec := smartSamples*smartIntervalMS/1000 + 20
				err = c.Step("IO load",
					"Run random reads and writes with data verification while sampling.",
					func(st *framework.Step) error {
						args := append(ioLoadArgs(cfg),
							fmt.Sprintf("--runtime=%d", runtimeSec),
							"--output=fio.json",
							"--output-format=json",
							"--name=fio",
						)
						runner, err := fio.Start(cfg.Fio, st.Directory(), "fio", args)
						if err != nil {
							return err
						}
						result, err := runner.Wait(st.Context(), time.Duration(runtimeSec+120)*time.Second)
						if err != nil {
							return err
						}
						if err := runner.SplitLatencyLog("latency_lat.1.log"); err != nil {
							st.Log().Warnw("failed to split latency log", "error", err)
						}
						if err := rqmts.NoIOErrors(st, result); err != nil {
							return err
						}
						return rqmts.NoDataCorruption(st, result)
					})
				if err != nil {
					return err
				}

				return c.Step("Stop sampling",
					"Stop the background reader and verify the sampled data.",
					func(st *framework.Step) error {
						result, err := sampler.Stop(st.Context())
						if err != nil {
							return err
						}
						return verifySamples(st, result, cfg)
					})
			})
	}
}

// shortBurstPerformance measures QD1 4 KiB random read and write bandwidth
// in short bursts.
func shortBurstPerformance(cfg Config) registry.CaseFunc {
	return func(s *framework.Suite) error {
		return s.RunCase("Short Burst Performance",
			"Measure bandwidth of short bursts of random reads and writes.",
			func(c *framework.Case) error {
				err := c.Step("Random reads",
					"Measure a short burst of QD1 random reads.",
					func(st *framework.Step) error {
						result, err := runBurst(st, cfg, "randread")
						if err != nil {
							return err
						}
						if err := rqmts.RandomReadBandwidth(st, result, cfg.ReadBandwidthGB); err != nil {
							return err
						}
						return rqmts.NoIOErrors(st, result)
					})
				if err != nil {
					return err
				}
				return c.Step("Random writes",
					"Measure a short burst of QD1 random writes.",
					func(st *framework.Step) error {
						result, err := runBurst(st, cfg, "randwrite")
						if err != nil {
							return err
						}
						if err := rqmts.RandomWriteBandwidth(st, result, cfg.WriteBandwidthGB); err != nil {
							return err
						}
						return rqmts.NoIOErrors(st, result)
					})
			})
	}
}

// suiteEndInfo re-reads the drive, verifies it is still healthy, and checks
// parameter movement against the snapshot taken at suite start.
func suiteEndInfo(cfg Config) registry.CaseFunc {
	return func(s *framework.Suite) error {
		return s.RunCase("Suite End Info",
			"Read drive information at the end of the suite and verify changes.",
			func(c *framework.Case) error {
				var read *nvmecmd.Read
				err := c.Step("Read info",
					"Read drive information with the admin-command reader.",
					func(st *framework.Step) error {
						var err error
						read, err = nvmecmd.ReadInfo(st.Context(), cfg.Nvmecmd, st.Directory(), "read")
						if err != nil {
							return err
						}
						s.Data[EndInfoKey] = read.Info
						return rqmts.AdminCommandsPass(st, read)
					})
				if err != nil {
					return err
				}

				err = c.Step("Verify info",
					"Verify the drive is still healthy.",
					func(st *framework.Step) error {
						return verifyHealth(st, read.Info, cfg)
					})
				if err != nil {
					return err
				}

				return c.Step("Verify changes",
					"Verify no unexpected parameter changes since the start of the suite.",
					func(st *framework.Step) error {
						start, ok := s.Data[StartInfoKey].(*snapshot.Snapshot)
						if !ok {
							return c.Skip("no start info to compare against")
						}
						compare, err := snapshot.Compare(start, read.Info)
						if err != nil {
							return err
						}
						s.Data[CompareKey] = compare
						if err := rqmts.NoStaticParameterChanges(st, compare); err != nil {
							return err
						}
						if err := rqmts.NoCounterDecrements(st, compare); err != nil {
							return err
						}
						return rqmts.AccuratePowerOnChange(st, compare)
					})
			})
	}
}

// verifyHealth records the standard drive-health verifications against one
// snapshot.
func verifyHealth(st *framework.Step, info *snapshot.Snapshot, cfg Config) error {
	if err := rqmts.NoCriticalWarnings(st, info); err != nil {
		return err
	}
	if err := rqmts.NoMediaErrors(st, info); err != nil {
		return err
	}
	if err := rqmts.NoCriticalTime(st, info); err != nil {
		return err
	}
	if err := rqmts.UsageWithinLimit(st, info, cfg.WearPercentLimit); err != nil {
		return err
	}
	return rqmts.NoPriorSelftestFailures(st, info)
}

// verifySamples records the standard verifications against a finished
// sampling run.
func verifySamples(st *framework.Step, result *nvmecmd.SampleResult, cfg Config) error {
	if err := rqmts.AdminCommandReliability(st, result); err != nil {
		return err
	}
	if err := rqmts.NoStaticParameterChanges(st, result.Compare); err != nil {
		return err
	}
	if err := rqmts.NoCounterDecrements(st, result.Compare); err != nil {
		return err
	}
	if err := rqmts.AdminCommandAvgLatency(st, result, cfg.AvgLatencyLimitMS); err != nil {
		return err
	}
	return rqmts.AdminCommandMaxLatency(st, result, cfg.MaxLatencyLimitMS)
}

// ioLoadArgs is the shared verifying random read/write workload.
func ioLoadArgs(cfg Config) []string {
	target := filepath.Join(cfg.Volume, fioTargetFile)
	return []string{
		"--direct=1",
		"--thread",
		"--numjobs=1",
		fmt.Sprintf("--filename=%s", target),
		fmt.Sprintf("--filesize=%d", fioTargetSize),
		fmt.Sprintf("--size=%d", fioTargetSize),
		"--rw=randrw",
		"--rwmixread=50",
		"--iodepth=2",
		fmt.Sprintf("--bs=%d", burstBlockSize),
		"--verify=crc32c",
		"--verify_dump=1",
		"--verify_state_save=0",
		"--verify_async=2",
		"--continue_on_error=verify",
		"--time_based",
		"--write_lat_log=latency",
		"--log_avg_ms=200",
	}
}

// runBurst runs one short fio burst against the target file.
func runBurst(st *framework.Step, cfg Config, rw string) (*fio.Result, error) {
	target := filepath.Join(cfg.Volume, fioTargetFile)
	args := []string{
		"--direct=1",
		"--thread",
		"--numjobs=1",
		fmt.Sprintf("--filename=%s", target),
		fmt.Sprintf("--filesize=%d", fioTargetSize),
		fmt.Sprintf("--rw=%s", rw),
		"--iodepth=1",
		fmt.Sprintf("--bs=%d", burstBlockSize),
		fmt.Sprintf("--size=%d", burstIOSize),
		fmt.Sprintf("--ramp_time=%g", burstRampSec),
		fmt.Sprintf("--runtime=%d", burstRuntimeSec),
		"--time_based",
		"--output=fio.json",
		"--output-format=json",
		"--name=fio",
	}
	runner, err := fio.Start(cfg.Fio, st.Directory(), "fio", args)
	if err != nil {
		return nil, err
	}
	return runner.Wait(st.Context(), 2*time.Minute)
}
