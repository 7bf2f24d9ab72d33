// Command radioclkd decodes DCF77, MSF and WWVB long-wave time signals
// received on a serial port's modem-status lines (or, alternatively, on
// directly-wired GPIO lines) and publishes the decoded time to ntpd's
// shared-memory reference clock.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"radioclkd/pkg/app"
	"radioclkd/pkg/app/config"

	"github.com/urfave/cli/v2"
	"github.com/womat/debug"
)

const defaultConfigFile = "/opt/womat/config/" + app.MODULE + ".yaml"

func main() {
	debug.SetDebug(os.Stderr, debug.Standard)
	cfg := config.NewConfig()

	cliApp := &cli.App{
		Name:    app.MODULE,
		Usage:   "decode DCF77/MSF/WWVB time signals and publish them to ntpd's shared-memory reference clock",
		Version: app.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Value:       defaultConfigFile,
				Usage:       "config file",
				Destination: &cfg.Flag.ConfigFile,
			},
			&cli.StringFlag{
				Name:        "debug",
				Usage:       "enable debug information (standard|trace|debug)",
				Destination: &cfg.Flag.LogLevel,
			},
			&cli.BoolFlag{
				Name:        "poll",
				Usage:       "poll modem-status lines every 5ms instead of waiting on TIOCMIWAIT",
				Destination: &cfg.Flag.Poll,
			},
			&cli.BoolFlag{
				Name:        "test",
				Usage:       "run against an in-memory fake serial port instead of opening a real device",
				Destination: &cfg.Flag.Test,
			},
		},
		Action: func(*cli.Context) error {
			return run(cfg)
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		debug.FatalLog.Print(err)
		os.Exit(1)
	}
}

// run loads the config, wires up and starts the application, and blocks
// until a termination signal arrives or the supervisor loop exits on its
// own.
func run(cfg *config.Config) error {
	if err := cfg.LoadConfig(); err != nil {
		return err
	}

	debug.SetDebug(cfg.Log.File, cfg.Log.Flag)
	defer func() {
		debug.InfoLog.Printf("closing debug file %s", cfg.Log.FileString)
		_ = cfg.Log.File.Close()
	}()

	debug.InfoLog.Printf("starting %s", app.Version())
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		debug.InfoLog.Printf("closing %s", app.Version())
		_ = a.Close()
	}()

	if err := a.Run(); err != nil {
		return err
	}

	// Capture exit signals to ensure resources are released on exit; this
	// is the instance-lock/daemonizer's responsibility in the full system
	// (spec.md §6.2, §6.4), out of this core's scope.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		debug.InfoLog.Printf("got %s signal, shutting down", sig)
	case <-a.Shutdown():
		debug.ErrorLog.Print("supervisor loop exited unexpectedly")
	}

	return nil
}
