// Package nvmecmd wraps the external admin-command reader. The reader talks
// to the drive over NVMe admin commands and leaves JSON result files in its
// working directory: a parameter snapshot (nvme.info.json) and a run summary
// with per-command timing (read.summary.json). Known exit codes are mapped
// onto typed errors with stable codes.
package nvmecmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nvmetools/nvmetest/process"
	"github.com/nvmetools/nvmetest/snapshot"
)

// File names the reader produces or consumes.
const (
	InfoFilename        = "nvme.info.json"
	FirstSampleFilename = "nvme.info.sample-1.json"
	SummaryFilename     = "read.summary.json"
	TraceLogFilename    = "nvmecmd.trace.log"
)

// uniqueDescriptionParam carries the device number the info file was read
// from, e.g. "NVMe 0 : Samsung SSD 980".
const uniqueDescriptionParam = "Unique Description"

// Config locates the reader and names the device it drives.
type Config struct {
	// Binary is the path to the reader executable; command profiles
	// (<profile>.cmd.json) live next to it.
	Binary string
	Device int
	Log    *zap.SugaredLogger
}

// CommandTime is one admin command execution from the run summary.
type CommandTime struct {
	Timestamp  string  `json:"timestamp"`
	Command    string  `json:"admin command"`
	TimeMS     float64 `json:"time in ms"`
	ReturnCode int     `json:"return code"`
	Bytes      int64   `json:"bytes returned"`
}

// ReadDetails summarizes the reader's own per-sample checking.
type ReadDetails struct {
	CounterMismatches int              `json:"counter mismatches"`
	StaticMismatches  int              `json:"static mismatches"`
	Samples           []map[string]any `json:"sample"`
}

// Summary is the parsed read.summary.json.
type Summary struct {
	CommandTimes []CommandTime `json:"command times"`
	ReadDetails  ReadDetails   `json:"read details"`
}

// Read is the outcome of one reader invocation.
type Read struct {
	Info     *snapshot.Snapshot
	Summary  *Summary
	ExitCode int
	RunTime  time.Duration
}

// CheckPermissions verifies the reader binary exists and is executable.
// The reader needs elevated capabilities to issue admin commands; a missing
// execute bit is the common misconfiguration.
func CheckPermissions(binary string) error {
	fi, err := os.Stat(binary)
	if err != nil {
		return errPermission(binary)
	}
	if fi.Mode()&0o111 == 0 {
		return errPermission(binary)
	}
	return nil
}

// ReadInfo runs the reader once against the device and parses its result
// files out of dir. The profile selects the reader command file, normally
// "read".
func ReadInfo(ctx context.Context, cfg Config, dir, profile string) (*Read, error) {
	if err := CheckPermissions(cfg.Binary); err != nil {
		return nil, err
	}
	h, err := start(cfg, dir, profile, 1, 0)
	if err != nil {
		return nil, err
	}
	return wait(ctx, cfg, h, dir, 1, 0)
}

func start(cfg Config, dir, profile string, samples int, interval time.Duration) (*process.Handle, error) {
	cmdFile := filepath.Join(filepath.Dir(cfg.Binary), profile+".cmd.json")
	args := []string{
		cmdFile,
		"--dir", dir,
		"--nvme", strconv.Itoa(cfg.Device),
		"--samples", strconv.Itoa(samples),
		"--interval", strconv.FormatInt(interval.Milliseconds(), 10),
	}
	h, err := process.Start(cfg.Log, dir, cfg.Binary, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start reader: %w", err)
	}
	return h, nil
}

func wait(ctx context.Context, cfg Config, h *process.Handle, dir string, samples int, interval time.Duration) (*Read, error) {
	timeout := 60*time.Second + time.Duration(samples)*time.Second
	if interval > 0 {
		timeout = 60*time.Second + time.Duration(samples)*interval
	}

	code, err := h.Wait(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("reader did not finish: %w", err)
	}
	switch code {
	case exitUsageError, exitException:
		return nil, errToolFailure(dir)
	case exitNoNvmeDrives, exitDriveNotFound:
		return nil, errNoDevice(cfg.Device)
	}

	infoFile := InfoFilename
	if samples > 1 {
		infoFile = FirstSampleFilename
	}
	info, err := loadInfo(filepath.Join(dir, infoFile))
	if err != nil {
		return nil, err
	}
	if err := checkDevice(cfg.Device, info); err != nil {
		return nil, err
	}

	summary, err := loadSummary(filepath.Join(dir, SummaryFilename))
	if err != nil {
		return nil, err
	}

	return &Read{
		Info:     info,
		Summary:  summary,
		ExitCode: code,
		RunTime:  h.RunTime(),
	}, nil
}

func loadInfo(path string) (*snapshot.Snapshot, error) {
	info, err := snapshot.Load(path)
	if err != nil {
		return nil, errBadJSON(path, err)
	}
	return info, nil
}

func loadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errBadJSON(path, err)
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, errBadJSON(path, err)
	}
	return &summary, nil
}

// checkDevice confirms the info file was read from the requested device.
func checkDevice(device int, info *snapshot.Snapshot) error {
	value, ok := info.Get(uniqueDescriptionParam)
	if !ok {
		return nil
	}
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return nil
	}
	fileDevice, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil
	}
	if fileDevice != device {
		return errDeviceMismatch(device, fileDevice)
	}
	return nil
}
