// Package rqmts defines the numbered requirements drives are verified
// against. Requirement ids are stable across releases so results can be
// compared between runs and firmware versions: 10-49 device information,
// 50-99 performance, 100-129 I/O integrity.
package rqmts

import (
	"fmt"

	"github.com/nvmetools/nvmetest/fio"
	"github.com/nvmetools/nvmetest/framework"
	"github.com/nvmetools/nvmetest/nvmecmd"
	"github.com/nvmetools/nvmetest/snapshot"
)

// minCommandSamples is the floor for calling admin-command behavior reliable.
const minCommandSamples = 10000

// AdminCommandsPass verifies every admin command in the read summary
// returned success.
func AdminCommandsPass(st *framework.Step, read *nvmecmd.Read) error {
	status := "Pass"
	for _, cmd := range read.Summary.CommandTimes {
		if cmd.ReturnCode != 0 {
			status = "Fail"
		}
	}
	return st.Verify(10, "Admin commands shall pass", status == "Pass", status)
}

// NoCriticalWarnings verifies the SMART critical warning field is clear.
func NoCriticalWarnings(st *framework.Step, info *snapshot.Snapshot) error {
	value := 1
	if v, ok := info.Get("Critical Warnings"); ok && v == "No" {
		value = 0
	}
	return st.Verify(11, "Critical warnings shall be 0", value == 0, value)
}

// NoPriorSelftestFailures verifies the self-test log carries no failures.
func NoPriorSelftestFailures(st *framework.Step, info *snapshot.Snapshot) error {
	value, err := intParam(info, "Number Of Failed Self-Tests")
	if err != nil {
		return err
	}
	return st.Verify(12, "Prior self-test failures shall be 0", value == 0, value)
}

// NoMediaErrors verifies the media and data integrity error counter is zero.
func NoMediaErrors(st *framework.Step, info *snapshot.Snapshot) error {
	value, err := intParam(info, "Media and Data Integrity Errors")
	if err != nil {
		return err
	}
	return st.Verify(13, "Media and integrity errors shall be 0", value == 0, value)
}

// NoCriticalTime verifies the drive has never run at critical temperature.
func NoCriticalTime(st *framework.Step, info *snapshot.Snapshot) error {
	value, err := intParam(info, "Critical Composite Temperature Time")
	if err != nil {
		return err
	}
	return st.Verify(14,
		"Time operating at or above the critical temperature shall be 0",
		value == 0, fmt.Sprintf("%d min", value))
}

// UsageWithinLimit verifies the wear indicator is below the limit percent.
func UsageWithinLimit(st *framework.Step, info *snapshot.Snapshot, limit int64) error {
	value, err := intParam(info, "Percentage Used")
	if err != nil {
		return err
	}
	return st.Verify(15,
		fmt.Sprintf("Percentage Used shall be less than %d%%", limit),
		value < limit, fmt.Sprintf("%d%%", value))
}

// AdminCommandReliability verifies a sampling run issued enough commands and
// none failed.
func AdminCommandReliability(st *framework.Step, samples *nvmecmd.SampleResult) error {
	return st.Verify(19,
		fmt.Sprintf("Greater than %d admin commands shall complete without error", minCommandSamples),
		samples.CommandFails == 0 && samples.TotalCommands > minCommandSamples,
		fmt.Sprintf("%d / %d", samples.CommandFails, samples.TotalCommands))
}

// NoStaticParameterChanges verifies no identity parameter changed between
// two snapshots.
func NoStaticParameterChanges(st *framework.Step, compare *snapshot.Result) error {
	value := len(compare.StaticMismatches)
	return st.Verify(20,
		"Static parameters, such as Model Number, shall not change",
		value == 0, value)
}

// NoCounterDecrements verifies no cumulative counter went backwards between
// two snapshots.
func NoCounterDecrements(st *framework.Step, compare *snapshot.Result) error {
	value := len(compare.CounterDecrements)
	return st.Verify(21,
		"SMART counters, such as Data Written, shall not decrement",
		value == 0, value)
}

// AdminCommandAvgLatency verifies average admin-command latency is under the
// limit in milliseconds.
func AdminCommandAvgLatency(st *framework.Step, samples *nvmecmd.SampleResult, limitMS float64) error {
	return st.Verify(22,
		fmt.Sprintf("Admin Command average latency shall be less than %g mS", limitMS),
		samples.AvgLatencyMS < limitMS, fmt.Sprintf("%0.1f mS", samples.AvgLatencyMS))
}

// AdminCommandMaxLatency verifies the slowest admin command stayed under the
// limit in milliseconds.
func AdminCommandMaxLatency(st *framework.Step, samples *nvmecmd.SampleResult, limitMS float64) error {
	return st.Verify(23,
		fmt.Sprintf("Admin Command maximum latency shall be less than %g mS", limitMS),
		samples.MaxLatencyMS < limitMS, fmt.Sprintf("%0.1f mS", samples.MaxLatencyMS))
}

// AccuratePowerOnChange cross-checks the drive's power-on-hours movement
// against the elapsed host clock time between the snapshots.
func AccuratePowerOnChange(st *framework.Step, compare *snapshot.Result) error {
	delta, ok := compare.Deltas["Power On Hours"]
	if !ok {
		return fmt.Errorf("comparison has no Power On Hours delta")
	}
	pohChange, err := snapshot.AsFloat(delta.Delta)
	if err != nil {
		return err
	}
	hostChange := compare.HostTime.Hours()
	value := pohChange - hostChange
	if value < 0 {
		value = -value
	}
	return st.Verify(24,
		"Power On Hour change shall be within 1 hour of host time change",
		value <= 1.0, fmt.Sprintf("%0.2f hrs", value))
}

// RandomReadBandwidth verifies short-burst random read bandwidth in GB/s.
func RandomReadBandwidth(st *framework.Step, result *fio.Result, limitGB float64) error {
	return st.Verify(52,
		fmt.Sprintf("Short burst, random reads, 4KiB, QD1 bandwidth shall be greater than %g GB/s", limitGB),
		result.ReadBandwidthGB > limitGB, fmt.Sprintf("%0.3f GB/s", result.ReadBandwidthGB))
}

// RandomWriteBandwidth verifies short-burst random write bandwidth in GB/s.
func RandomWriteBandwidth(st *framework.Step, result *fio.Result, limitGB float64) error {
	return st.Verify(53,
		fmt.Sprintf("Short burst, random writes, 4KiB, QD1 bandwidth shall be greater than %g GB/s", limitGB),
		result.WriteBandwidthGB > limitGB, fmt.Sprintf("%0.3f GB/s", result.WriteBandwidthGB))
}

// NoIOErrors verifies the load generator saw no I/O errors.
func NoIOErrors(st *framework.Step, result *fio.Result) error {
	return st.Verify(100, "No errors shall occur running IO",
		result.IOErrors == 0, result.IOErrors)
}

// NoDataCorruption verifies the load generator saw no corrupted data.
func NoDataCorruption(st *framework.Step, result *fio.Result) error {
	return st.Verify(101, "No data corruption shall occur running IO",
		result.CorruptionErrors == 0, result.CorruptionErrors)
}

func intParam(info *snapshot.Snapshot, name string) (int64, error) {
	value, ok := info.Get(name)
	if !ok {
		return 0, fmt.Errorf("snapshot has no %q parameter", name)
	}
	return snapshot.AsInt(value)
}
