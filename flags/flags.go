package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "NVMETEST"

func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Device = &cli.IntFlag{
		Name:    "nvme",
		Value:   0,
		EnvVars: prefixEnvVar("NVME"),
		Usage:   "NVMe device number to test (eg. 0 for /dev/nvme0)",
	}
	Volume = &cli.StringFlag{
		Name:     "volume",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVar("VOLUME"),
		Usage:    "Mount point of a filesystem on the device under test (eg. '/mnt/drive')",
	}
	Suite = &cli.StringFlag{
		Name:    "suite",
		Value:   "health",
		EnvVars: prefixEnvVar("SUITE"),
		Usage:   "Suite to run (eg. 'health', 'quick', 'performance')",
	}
	SuiteFile = &cli.StringFlag{
		Name:    "suite-file",
		Value:   "",
		EnvVars: prefixEnvVar("SUITE_FILE"),
		Usage:   "Path to a YAML file with additional suite definitions",
	}
	RunID = &cli.StringFlag{
		Name:    "run-id",
		Value:   "",
		EnvVars: prefixEnvVar("RUN_ID"),
		Usage:   "Unique id for this run; generated when omitted",
	}
	OutputDir = &cli.StringFlag{
		Name:    "dir",
		Value:   "results",
		EnvVars: prefixEnvVar("DIR"),
		Usage:   "Directory to store suite results in",
	}
	NvmecmdBinary = &cli.StringFlag{
		Name:    "nvmecmd",
		Value:   "/usr/local/bin/nvmecmd/nvmecmd",
		EnvVars: prefixEnvVar("NVMECMD"),
		Usage:   "Path to the nvmecmd reader binary",
	}
	FioBinary = &cli.StringFlag{
		Name:    "fio",
		Value:   "/usr/bin/fio",
		EnvVars: prefixEnvVar("FIO"),
		Usage:   "Path to the fio binary",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
		Usage:   "Console log level (debug, info, warn, error)",
	}
	Monitor = &cli.BoolFlag{
		Name:    "monitor",
		Value:   false,
		EnvVars: prefixEnvVar("MONITOR"),
		Usage:   "Serve /healthz and /metrics while the suite runs",
	}
)

var requiredFlags = []cli.Flag{
	Volume,
}

var optionalFlags = []cli.Flag{
	Device,
	Suite,
	SuiteFile,
	RunID,
	OutputDir,
	NvmecmdBinary,
	FioBinary,
	LogLevel,
	Monitor,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
