package fio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fakeLog = `{
  "jobs": [
    {
      "error": 0,
      "read": {
        "total_ios": 1000,
        "bw": 500000,
        "io_kbytes": 2048000,
        "lat_ns": {"mean": 150000.0, "max": 2000000.0}
      },
      "write": {
        "total_ios": 500,
        "bw": 250000,
        "io_kbytes": 1024000,
        "lat_ns": {"mean": 300000.0, "max": 4000000.0}
      }
    }
  ]
}`

func fakeFio(t *testing.T, script string) Config {
	t.Helper()
	binary := filepath.Join(t.TempDir(), "fio")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"+script), 0o755))
	return Config{Binary: binary, Log: zap.NewNop().Sugar()}
}

func TestStart_MissingBinary(t *testing.T) {
	cfg := Config{Binary: "/nonexistent/fio", Log: zap.NewNop().Sugar()}
	_, err := Start(cfg, t.TempDir(), "fio", nil)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeMissing, e.Code)
	assert.Contains(t, e.Error(), "install fio")
}

func TestWait_ParsesMetrics(t *testing.T) {
	cfg := fakeFio(t, `cat > fio.json <<'EOF'
`+fakeLog+`
EOF
exit 0`)
	dir := t.TempDir()
	r, err := Start(cfg, dir, "fio", []string{"--rw=randrw"})
	require.NoError(t, err)

	result, err := r.Wait(context.Background(), 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, int64(1000), result.ReadIOs)
	assert.Equal(t, int64(500), result.WriteIOs)
	assert.InDelta(t, 0.512, result.ReadBandwidthGB, 0.001)
	assert.InDelta(t, 2.097, result.DataReadGB, 0.001)
	assert.InDelta(t, 0.15, result.ReadMeanLatencyMS, 0.0001)
	assert.InDelta(t, 4.0, result.WriteMaxLatencyMS, 0.0001)
	assert.Zero(t, result.IOErrors)
}

func TestWait_StripsErrorHeader(t *testing.T) {
	cfg := fakeFio(t, `cat > fio.json <<'EOF'
fio: io_u error on file /mnt/fio/fio_big_file.bin
crc32c: verify failed at file offset 4096
{
  "jobs": [{"error": 2, "read": {"total_ios": 10, "bw": 1, "io_kbytes": 1, "lat_ns": {"mean": 0, "max": 0}}, "write": {"total_ios": 0, "bw": 0, "io_kbytes": 0, "lat_ns": {"mean": 0, "max": 0}}}]
}
EOF
exit 0`)
	dir := t.TempDir()
	r, err := Start(cfg, dir, "fio", nil)
	require.NoError(t, err)

	result, err := r.Wait(context.Background(), 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 1, result.VerifyFailures)
	// Two header lines plus the per-job error count.
	assert.Equal(t, 4, result.IOErrors)
	assert.FileExists(t, filepath.Join(dir, "fio.stderr.log"))
}

func TestWait_BadJSON(t *testing.T) {
	cfg := fakeFio(t, `echo "{invalid" > fio.json; exit 0`)
	r, err := Start(cfg, t.TempDir(), "fio", nil)
	require.NoError(t, err)

	_, err = r.Wait(context.Background(), 5*time.Second)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeBadJSON, e.Code)
}

func TestWait_MissingLogIsBadJSON(t *testing.T) {
	cfg := fakeFio(t, "exit 1")
	r, err := Start(cfg, t.TempDir(), "fio", nil)
	require.NoError(t, err)

	_, err = r.Wait(context.Background(), 5*time.Second)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeBadJSON, e.Code)
}

func TestStop_Exit128IsClean(t *testing.T) {
	cfg := fakeFio(t, `flush() {
cat > fio.json <<'EOF'
`+fakeLog+`
EOF
exit 128
}
trap flush INT
while true; do sleep 0.1; done`)
	dir := t.TempDir()
	r, err := Start(cfg, dir, "fio", nil)
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	r.Stop()
	result, err := r.Wait(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Zero(t, result.IOErrors)
}

func TestClassifyErrors(t *testing.T) {
	r := &Runner{cfg: Config{Log: zap.NewNop().Sugar()}}
	result := &Result{}
	r.classifyErrors("fio: io_u error\nverify: bad magic header 0x0\n\nfio: terminating on signal 2\n", result)

	// io_u error + bad magic + terminating (not stopped).
	assert.Equal(t, 3, result.IOErrors)
	assert.Equal(t, 1, result.CorruptionErrors)

	stopped := &Runner{cfg: Config{Log: zap.NewNop().Sugar()}, stopped: true}
	result = &Result{}
	stopped.classifyErrors("fio: terminating on signal 2\n", result)
	assert.Zero(t, result.IOErrors, "signal 2 after our own stop is not an error")
}

func TestSplitLatencyLog(t *testing.T) {
	dir := t.TempDir()
	log := "1, 100, 0, 4096, 0\n2, 200, 1, 4096, 0\n3, 50, 0, 4096, 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw_lat.1.log"), []byte(log), 0o644))

	r := &Runner{cfg: Config{Log: zap.NewNop().Sugar()}, dir: dir}
	require.NoError(t, r.SplitLatencyLog("raw_lat.1.log"))

	readData, err := os.ReadFile(filepath.Join(dir, "raw_read.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(readData), "100")
	assert.Contains(t, string(readData), "150", "running sum of read latencies")

	writeData, err := os.ReadFile(filepath.Join(dir, "raw_write.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(writeData), "200")

	assert.NoFileExists(t, filepath.Join(dir, "raw_lat.1.log"))
}
