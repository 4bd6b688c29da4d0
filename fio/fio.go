// Package fio wraps the external I/O-load generator. A Runner starts one fio
// invocation, waits for it (or stops it early), parses the JSON log into
// per-direction throughput and latency figures, and classifies error output
// into I/O errors versus data corruption.
package fio

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nvmetools/nvmetest/process"
)

// Stable error codes for load-generator failures.
const (
	CodeMissing = 60
	CodeBadJSON = 61
)

// DefaultBinary is where fio lives on the supported distributions.
const DefaultBinary = "/usr/bin/fio"

const (
	ioEngine = "libaio"
	kibToGB  = 1024.0 / 1e9
	nsInMS   = 1e6
)

// Error is a load-generator failure with a stable code.
type Error struct {
	Code int
	msg  string
	err  error
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.err }

func errMissing(binary string) *Error {
	return &Error{
		Code: CodeMissing,
		msg:  fmt.Sprintf("missing fio application %s, install fio and try again", binary),
	}
}

func errBadJSON(path string, err error) *Error {
	return &Error{
		Code: CodeBadJSON,
		msg:  fmt.Sprintf("failed parsing fio JSON file %s: %v", path, err),
		err:  err,
	}
}

// Config locates the load generator.
type Config struct {
	Binary string
	Log    *zap.SugaredLogger
}

type latNS struct {
	Mean float64 `json:"mean"`
	Max  float64 `json:"max"`
}

type jobSide struct {
	TotalIOs int64   `json:"total_ios"`
	BWKiB    float64 `json:"bw"`
	IOKBytes int64   `json:"io_kbytes"`
	Latency  latNS   `json:"lat_ns"`
}

type job struct {
	Read  jobSide `json:"read"`
	Write jobSide `json:"write"`
	Error int     `json:"error"`
}

type logFile struct {
	Jobs []job `json:"jobs"`
}

// Result is the parsed outcome of one fio run. Bandwidth is GB/s, data
// totals are GB, latencies are milliseconds.
type Result struct {
	ExitCode int

	ReadIOs           int64
	ReadBandwidthGB   float64
	DataReadGB        float64
	ReadMeanLatencyMS float64
	ReadMaxLatencyMS  float64

	WriteIOs           int64
	WriteBandwidthGB   float64
	DataWrittenGB      float64
	WriteMeanLatencyMS float64
	WriteMaxLatencyMS  float64

	IOErrors         int
	CorruptionErrors int
	VerifyFailures   int
}

// Runner is one started fio invocation.
type Runner struct {
	cfg     Config
	dir     string
	name    string
	h       *process.Handle
	stopped bool
}

// Start launches fio in dir with the given workload args. The caller's args
// must include the output options (--output=<name>.json --output-format=json);
// name is that output base name, normally "fio".
func Start(cfg Config, dir, name string, args []string) (*Runner, error) {
	if _, err := os.Stat(cfg.Binary); err != nil {
		return nil, errMissing(cfg.Binary)
	}
	full := append([]string{"--ioengine=" + ioEngine}, args...)
	h, err := process.Start(cfg.Log, dir, cfg.Binary, full...)
	if err != nil {
		return nil, fmt.Errorf("failed to start fio: %w", err)
	}
	cfg.Log.Infow("fio started", "directory", dir, "args", args)
	return &Runner{cfg: cfg, dir: dir, name: name, h: h}, nil
}

// Stop ends the run early but gracefully, letting fio flush its logs. The
// results are still collected by Wait.
func (r *Runner) Stop() {
	r.stopped = true
	r.h.Stop()
}

// Running reports whether fio is still generating load.
func (r *Runner) Running() bool { return r.h.Running() }

// Wait blocks until fio exits (at most timeout, stopping it on expiry), then
// parses the JSON log and classifies error output.
func (r *Runner) Wait(ctx context.Context, timeout time.Duration) (*Result, error) {
	code, err := r.h.Wait(ctx, timeout)
	if err == process.ErrTimeout {
		r.stopped = true
		code = r.h.ExitCode()
	} else if err != nil {
		return nil, err
	}

	// A run stopped with SIGINT exits 128; that is not a failure.
	if r.stopped && code == 128 {
		code = 0
	}

	result := &Result{ExitCode: code}

	logPath := filepath.Join(r.dir, r.name+".json")
	jobs, err := r.loadLog(logPath, result)
	if err != nil {
		return nil, err
	}
	if len(jobs.Jobs) > 0 {
		first := jobs.Jobs[0]
		result.ReadIOs = first.Read.TotalIOs
		result.ReadBandwidthGB = first.Read.BWKiB * kibToGB
		result.DataReadGB = float64(first.Read.IOKBytes) * kibToGB
		result.ReadMeanLatencyMS = first.Read.Latency.Mean / nsInMS
		result.ReadMaxLatencyMS = first.Read.Latency.Max / nsInMS

		result.WriteIOs = first.Write.TotalIOs
		result.WriteBandwidthGB = first.Write.BWKiB * kibToGB
		result.DataWrittenGB = float64(first.Write.IOKBytes) * kibToGB
		result.WriteMeanLatencyMS = first.Write.Latency.Mean / nsInMS
		result.WriteMaxLatencyMS = first.Write.Latency.Max / nsInMS
	}
	for _, j := range jobs.Jobs {
		result.IOErrors += j.Error
	}

	r.classifyErrors(r.h.Stderr(), result)
	if code != 0 {
		result.IOErrors++
	}

	r.cfg.Log.Infow("fio finished",
		"code", code,
		"read_ios", result.ReadIOs,
		"write_ios", result.WriteIOs,
		"io_errors", result.IOErrors,
		"corruption_errors", result.CorruptionErrors)
	return result, nil
}

// loadLog reads the fio JSON log. When fio hits errors it prepends plain
// error text above the JSON document; those lines are stripped into
// <name>.stderr.log and classified before the JSON is parsed.
func (r *Runner) loadLog(path string, result *Result) (*logFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errBadJSON(path, err)
	}

	lines := strings.Split(string(data), "\n")
	start := 0
	var errorLines []string
	for i, line := range lines {
		if line == "{" {
			start = i
			break
		}
		if strings.TrimSpace(line) == "" || strings.Contains(line, "fio: terminating on signal 2") {
			continue
		}
		errorLines = append(errorLines, line)
		if strings.Contains(line, "crc32c: verify failed") {
			result.VerifyFailures++
		}
	}
	if len(errorLines) > 0 {
		errPath := filepath.Join(r.dir, r.name+".stderr.log")
		if werr := os.WriteFile(errPath, []byte(strings.Join(errorLines, "\n")+"\n"), 0o644); werr != nil {
			r.cfg.Log.Errorw("failed to save fio error output", "error", werr)
		}
		r.classifyErrors(strings.Join(errorLines, "\n"), result)
	}

	var parsed logFile
	if err := json.Unmarshal([]byte(strings.Join(lines[start:], "\n")), &parsed); err != nil {
		return nil, errBadJSON(path, err)
	}
	return &parsed, nil
}

// classifyErrors buckets error lines into I/O errors and data corruption.
func (r *Runner) classifyErrors(text string, result *Result) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.Contains(line, "terminating on signal 2"):
			if !r.stopped {
				result.IOErrors++
			}
		case strings.Contains(line, "verify: bad magic header"):
			result.CorruptionErrors++
			result.IOErrors++
		default:
			result.IOErrors++
		}
	}
}

// SplitLatencyLog splits fio's combined latency log (rows of time, latency,
// direction, block size, offset) into <prefix>_read.csv and
// <prefix>_write.csv with a running latency sum, then removes the original.
func (r *Runner) SplitLatencyLog(logName string) error {
	path := filepath.Join(r.dir, logName)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open latency log: %w", err)
	}
	defer f.Close()

	prefix := strings.SplitN(logName, "_", 2)[0]
	var readRows, writeRows [][]string
	var readSum, writeSum int64

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("latency log %s is not valid CSV: %w", logName, err)
	}
	for _, row := range rows {
		if len(row) < 3 {
			continue
		}
		latency, err := strconv.ParseInt(strings.TrimSpace(row[1]), 10, 64)
		if err != nil {
			return fmt.Errorf("latency log %s has bad latency value %q", logName, row[1])
		}
		direction := strings.TrimSpace(row[2])
		if direction == "0" {
			readSum += latency
			readRows = append(readRows, []string{row[0], row[1], strconv.FormatInt(readSum, 10)})
		} else {
			writeSum += latency
			writeRows = append(writeRows, []string{row[0], row[1], strconv.FormatInt(writeSum, 10)})
		}
	}

	if err := writeCSV(filepath.Join(r.dir, prefix+"_read.csv"), readRows); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(r.dir, prefix+"_write.csv"), writeRows); err != nil {
		return err
	}
	return os.Remove(path)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
