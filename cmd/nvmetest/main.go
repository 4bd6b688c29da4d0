package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	nvmetest "github.com/nvmetools/nvmetest"
	"github.com/nvmetools/nvmetest/exitcodes"
	"github.com/nvmetools/nvmetest/flags"
	"github.com/nvmetools/nvmetest/logging"
	"github.com/nvmetools/nvmetest/service"
)

var (
	Version   = "v1.0.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "nvmetest"
	app.Usage = "NVMe SSD validation suite runner"
	app.Description = "nvmetest runs test suites against NVMe drives"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if nvmetest.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else {
				// Test failures and unspecified errors exit 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Telemetry export is optional; a missing collector must not block runs.
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
	} else {
		defer otelShutdown()
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		// The ExitErrHandler already mapped the exit code; anything that
		// reaches here failed before the handler ran.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(ctx *cli.Context) error {
	log := logging.New(logging.ParseLevel(ctx.String(flags.LogLevel.Name)))

	cfg, err := nvmetest.NewConfig(ctx, log)
	if err != nil {
		return nvmetest.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	if cfg.Monitor {
		svc := service.New(log)
		svc.Start(ctx.Context)
		defer svc.Shutdown()
	}

	tester, err := nvmetest.New(cfg, Version)
	if err != nil {
		return nvmetest.NewRuntimeError(fmt.Errorf("failed to create tester: %w", err))
	}

	return tester.Run(ctx.Context)
}
