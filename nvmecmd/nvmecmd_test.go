package nvmecmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fakeInfo = `{"nvme":{"parameters":{
  "Unique Description":{"value":"NVMe 0 : Fake Drive","compare type":"exact"},
  "Model Number":{"value":"Fake Drive","compare type":"exact"},
  "Power On Hours":{"value":"100","compare type":"counter"},
  "Host Timestamp Decoded":{"value":"2023-04-01 10:00:00.000000","compare type":"none"}
}}}`

const fakeSummary = `{
  "command times":[
    {"timestamp":"t0","admin command":"Identify Controller","time in ms":1.5,"return code":0,"bytes returned":4096},
    {"timestamp":"t1","admin command":"Get Log Page","time in ms":0.5,"return code":0,"bytes returned":512}
  ],
  "read details":{"counter mismatches":0,"static mismatches":0,"sample":[{"message":"passed"}]}
}`

// fakeReader writes a shell script standing in for the reader binary. The
// script runs with the output directory as its working directory.
func fakeReader(t *testing.T, script string) Config {
	t.Helper()
	dir := t.TempDir()
	binary := filepath.Join(dir, "nvmecmd")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"+script), 0o755))
	return Config{Binary: binary, Device: 0, Log: zap.NewNop().Sugar()}
}

func errorCode(t *testing.T, err error) int {
	t.Helper()
	var e *Error
	require.ErrorAs(t, err, &e)
	return e.Code
}

func TestReadInfo_Success(t *testing.T) {
	cfg := fakeReader(t, `
cat > nvme.info.json <<'EOF'
`+fakeInfo+`
EOF
cat > read.summary.json <<'EOF'
`+fakeSummary+`
EOF
exit 0`)

	read, err := ReadInfo(context.Background(), cfg, t.TempDir(), "read")
	require.NoError(t, err)

	assert.Equal(t, 0, read.ExitCode)
	model, ok := read.Info.Get("Model Number")
	assert.True(t, ok)
	assert.Equal(t, "Fake Drive", model)
	require.Len(t, read.Summary.CommandTimes, 2)
	assert.Equal(t, "Identify Controller", read.Summary.CommandTimes[0].Command)
	assert.Equal(t, 1.5, read.Summary.CommandTimes[0].TimeMS)
}

func TestReadInfo_NoDevice(t *testing.T) {
	cfg := fakeReader(t, "exit 19")
	_, err := ReadInfo(context.Background(), cfg, t.TempDir(), "read")
	assert.Equal(t, CodeNoDevice, errorCode(t, err))
}

func TestReadInfo_ToolFailure(t *testing.T) {
	cfg := fakeReader(t, "exit 17")
	_, err := ReadInfo(context.Background(), cfg, t.TempDir(), "read")
	assert.Equal(t, CodeToolFailure, errorCode(t, err))
}

func TestReadInfo_BadJSON(t *testing.T) {
	cfg := fakeReader(t, `echo "{broken" > nvme.info.json; exit 0`)
	_, err := ReadInfo(context.Background(), cfg, t.TempDir(), "read")
	assert.Equal(t, CodeBadJSON, errorCode(t, err))
}

func TestReadInfo_DeviceMismatch(t *testing.T) {
	cfg := fakeReader(t, `
cat > nvme.info.json <<'EOF'
{"nvme":{"parameters":{
  "Unique Description":{"value":"NVMe 3 : Fake Drive","compare type":"exact"},
  "Host Timestamp Decoded":{"value":"2023-04-01 10:00:00.000000","compare type":"none"}
}}}
EOF
exit 0`)
	_, err := ReadInfo(context.Background(), cfg, t.TempDir(), "read")
	assert.Equal(t, CodeDeviceMismatch, errorCode(t, err))
}

func TestCheckPermissions(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing binary", func(t *testing.T) {
		err := CheckPermissions(filepath.Join(dir, "nope"))
		assert.Equal(t, CodePermission, errorCode(t, err))
	})

	t.Run("not executable", func(t *testing.T) {
		binary := filepath.Join(dir, "nvmecmd")
		require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o644))
		err := CheckPermissions(binary)
		assert.Equal(t, CodePermission, errorCode(t, err))
		var e *Error
		require.True(t, errors.As(err, &e))
		assert.Contains(t, e.Error(), "setcap", "permission error must carry remediation")
	})

	t.Run("executable", func(t *testing.T) {
		binary := filepath.Join(dir, "nvmecmd-ok")
		require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755))
		assert.NoError(t, CheckPermissions(binary))
	})
}

func TestSampler_StopCollectsResults(t *testing.T) {
	firstSample := `{"nvme":{"parameters":{
  "Power On Hours":{"value":"100","compare type":"counter"},
  "Host Timestamp Decoded":{"value":"2023-04-01 10:00:00.000000","compare type":"none"}
}}}`
	lastSample := `{"nvme":{"parameters":{
  "Power On Hours":{"value":"101","compare type":"counter"},
  "Host Timestamp Decoded":{"value":"2023-04-01 10:01:00.000000","compare type":"none"}
}}}`
	summary := `{
  "command times":[
    {"timestamp":"t0","admin command":"Get Log Page","time in ms":2.0,"return code":0,"bytes returned":512},
    {"timestamp":"t1","admin command":"Get Log Page","time in ms":4.0,"return code":1,"bytes returned":512}
  ],
  "read details":{"counter mismatches":0,"static mismatches":0,
    "sample":[{"message":"passed"},{"message":"sample failed compare"}]}
}`

	cfg := fakeReader(t, `
flush() {
cat > nvme.info.sample-1.json <<'EOF'
`+firstSample+`
EOF
cat > nvme.info.json <<'EOF'
`+lastSample+`
EOF
cat > read.summary.json <<'EOF'
`+summary+`
EOF
exit 0
}
trap flush INT
while true; do sleep 0.1; done`)

	dir := t.TempDir()
	sampler, err := StartSampler(cfg, dir, 100, 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, sampler.Running())
	time.Sleep(200 * time.Millisecond)

	result, err := sampler.Stop(context.Background())
	require.NoError(t, err)
	assert.False(t, sampler.Running())

	assert.Equal(t, 2, result.TotalCommands)
	assert.Equal(t, 1, result.CommandFails)
	assert.Equal(t, 1, result.CompareFails)
	assert.Equal(t, 0, result.ReadFails)
	assert.Equal(t, 3.0, result.AvgLatencyMS)
	assert.Equal(t, 4.0, result.MaxLatencyMS)

	assert.Equal(t, "1", result.Compare.Deltas["Power On Hours"].Delta)
	assert.Equal(t, time.Minute, result.Compare.HostTime)

	assert.FileExists(t, filepath.Join(dir, "admin_command_times.csv"))
	assert.FileExists(t, filepath.Join(dir, "sample_delta.csv"))

	times, err := os.ReadFile(filepath.Join(dir, "admin_command_times.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(times), "Get Log Page")
}
