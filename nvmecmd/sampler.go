package nvmecmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nvmetools/nvmetest/process"
	"github.com/nvmetools/nvmetest/snapshot"
)

// CSV files derived from a sampling run.
const (
	adminTimesFilename  = "admin_command_times.csv"
	sampleDeltaFilename = "sample_delta.csv"
)

// Sampler reads device parameters in the background at a fixed interval
// while the test body does something else, typically driving I/O load.
type Sampler struct {
	cfg      Config
	dir      string
	samples  int
	interval time.Duration
	h        *process.Handle
}

// SampleResult is the outcome of a finished sampling run: the first and last
// snapshots, their comparison, and admin-command latency figures.
type SampleResult struct {
	First   *snapshot.Snapshot
	Last    *snapshot.Snapshot
	Compare *snapshot.Result
	Summary *Summary

	TotalCommands int
	CommandFails  int
	ReadFails     int
	CompareFails  int
	AvgLatencyMS  float64
	MaxLatencyMS  float64
}

// StartSampler launches a background sampling run. The caller must end it
// with Stop or Wait before leaving the step that owns dir.
func StartSampler(cfg Config, dir string, samples int, interval time.Duration) (*Sampler, error) {
	if err := CheckPermissions(cfg.Binary); err != nil {
		return nil, err
	}
	h, err := start(cfg, dir, "read", samples, interval)
	if err != nil {
		return nil, err
	}
	cfg.Log.Infow("background sampling started", "device", cfg.Device, "samples", samples, "interval", interval)
	return &Sampler{cfg: cfg, dir: dir, samples: samples, interval: interval, h: h}, nil
}

// Running reports whether the sampling process is still alive.
func (s *Sampler) Running() bool { return s.h.Running() }

// Stop ends sampling gracefully and collects the results. The reader flushes
// its result files on SIGINT, so collection only proceeds once the process
// has exited.
func (s *Sampler) Stop(ctx context.Context) (*SampleResult, error) {
	s.h.Stop()
	return s.collect(ctx)
}

// Wait blocks until the sampling run finishes on its own, then collects the
// results.
func (s *Sampler) Wait(ctx context.Context) (*SampleResult, error) {
	read, err := wait(ctx, s.cfg, s.h, s.dir, s.samples, s.interval)
	if err != nil {
		return nil, err
	}
	return s.build(read.Info, read.Summary)
}

func (s *Sampler) collect(ctx context.Context) (*SampleResult, error) {
	code, err := s.h.Wait(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("sampler did not stop: %w", err)
	}
	switch code {
	case exitUsageError, exitException:
		return nil, errToolFailure(s.dir)
	case exitNoNvmeDrives, exitDriveNotFound:
		return nil, errNoDevice(s.cfg.Device)
	}

	first, err := loadInfo(filepath.Join(s.dir, FirstSampleFilename))
	if err != nil {
		return nil, err
	}
	summary, err := loadSummary(filepath.Join(s.dir, SummaryFilename))
	if err != nil {
		return nil, err
	}
	return s.build(first, summary)
}

func (s *Sampler) build(first *snapshot.Snapshot, summary *Summary) (*SampleResult, error) {
	last, err := loadInfo(filepath.Join(s.dir, InfoFilename))
	if err != nil {
		return nil, err
	}
	compare, err := snapshot.Compare(first, last)
	if err != nil {
		return nil, fmt.Errorf("failed to compare first and last samples: %w", err)
	}

	result := &SampleResult{
		First:   first,
		Last:    last,
		Compare: compare,
		Summary: summary,
	}
	for _, sample := range summary.ReadDetails.Samples {
		msg, _ := sample["message"].(string)
		if strings.Contains(msg, "failed read") {
			result.ReadFails++
		}
		if strings.Contains(msg, "failed compare") {
			result.CompareFails++
		}
	}

	if err := s.writeAdminTimes(summary, result); err != nil {
		return nil, err
	}
	if err := s.writeSampleDelta(compare); err != nil {
		return nil, err
	}
	s.cfg.Log.Infow("background sampling finished",
		"commands", result.TotalCommands,
		"command_fails", result.CommandFails,
		"avg_latency_ms", result.AvgLatencyMS,
		"max_latency_ms", result.MaxLatencyMS)
	return result, nil
}

// writeAdminTimes saves per-command execution times to
// admin_command_times.csv and fills in the latency figures.
func (s *Sampler) writeAdminTimes(summary *Summary, result *SampleResult) error {
	f, err := os.Create(filepath.Join(s.dir, adminTimesFilename))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", adminTimesFilename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Timestamp", "Command", "Time(mS)", "ReturnCode", "Bytes"}); err != nil {
		return err
	}

	var total float64
	for _, entry := range summary.CommandTimes {
		result.TotalCommands++
		if entry.ReturnCode != 0 {
			result.CommandFails++
		}
		total += entry.TimeMS
		if entry.TimeMS > result.MaxLatencyMS {
			result.MaxLatencyMS = entry.TimeMS
		}
		err := w.Write([]string{
			entry.Timestamp,
			entry.Command,
			strconv.FormatFloat(entry.TimeMS, 'f', 3, 64),
			strconv.Itoa(entry.ReturnCode),
			strconv.FormatInt(entry.Bytes, 10),
		})
		if err != nil {
			return err
		}
	}
	if result.TotalCommands > 0 {
		result.AvgLatencyMS = total / float64(result.TotalCommands)
	}
	w.Flush()
	return w.Error()
}

// writeSampleDelta saves the first-to-last counter movements to
// sample_delta.csv, one row per counter in name order.
func (s *Sampler) writeSampleDelta(compare *snapshot.Result) error {
	f, err := os.Create(filepath.Join(s.dir, sampleDeltaFilename))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", sampleDeltaFilename, err)
	}
	defer f.Close()

	names := make([]string, 0, len(compare.Deltas))
	for name := range compare.Deltas {
		names = append(names, name)
	}
	sort.Strings(names)

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Parameter", "Start", "End", "Delta"}); err != nil {
		return err
	}
	for _, name := range names {
		d := compare.Deltas[name]
		if err := w.Write([]string{d.Title, d.Start, d.End, d.Delta}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
