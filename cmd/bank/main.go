package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/n0ct4/secure-bank-final/internal/journal"
	"github.com/n0ct4/secure-bank-final/internal/lock"
	"github.com/n0ct4/secure-bank-final/internal/monitor"
	"github.com/n0ct4/secure-bank-final/internal/obs"
	"github.com/n0ct4/secure-bank-final/internal/ops"
	"github.com/n0ct4/secure-bank-final/internal/seed"
	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

const (
	defaultConfigPath = "config.txt"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	root := newRootCommand(os.Stdin, os.Stdout)
	if err := root.ExecuteContext(context.Background()); err != nil {
		logs.Errorf("bank: %+v", err)
		os.Exit(1)
	}
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:           "bank",
		Short:         "Concurrent account engine with deferred persistence and anomaly monitoring",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.AddCommand(newServeCommand(stdin, stdout))
	rc.AddCommand(newMonitorCommand(stdout))
	rc.AddCommand(newSeedCommand())
	return rc
}

func newServeCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	var (
		configPath  string
		withMonitor bool
		pyroscopeAt string
	)
	cc := &cobra.Command{
		Use:   "serve",
		Short: "Load accounts and run the interactive session dispatcher",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := ops.Load(configPath)
			if err != nil {
				return err
			}
			if pyroscopeAt != "" {
				profiler, err := startProfiler(pyroscopeAt)
				if err != nil {
					return err
				}
				defer func() {
					_ = profiler.Stop()
				}()
			}
			return serve(c.Context(), cfg, withMonitor, stdin, stdout)
		},
	}

	flags := cc.Flags()
	flags.StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the KEY=VALUE config file")
	flags.BoolVar(&withMonitor, "monitor", false, "run the anomaly monitor in-process")
	flags.StringVar(&pyroscopeAt, "pyroscope", "", "pyroscope server address, empty disables profiling")
	return cc
}

func serve(ctx context.Context, cfg ops.Config, withMonitor bool, stdin io.Reader, stdout io.Writer) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	if withMonitor {
		if err := a.startMonitor(ctx, stdout); err != nil {
			_ = a.shutdown(ctx)
			return err
		}
	}
	logs.Infof("bank ready: %d accounts, %d session slots, buffer %d", a.table.Len(), cfg.MaxSessions, cfg.BufferSize)

	con := newConsole(a.sup, a.table, stdout)
	done := make(chan error, 1)
	go func() {
		done <- con.run(ctx, stdin)
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-sys.Shutdown():
		logs.Info("shutdown signal received")
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := a.shutdown(sctx); err != nil {
		return err
	}
	return runErr
}

func newMonitorCommand(stdout io.Writer) *cobra.Command {
	var configPath string
	cc := &cobra.Command{
		Use:   "monitor",
		Short: "Watch the transaction log and print anomaly alerts",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := ops.Load(configPath)
			if err != nil {
				return err
			}
			return runMonitor(c.Context(), cfg, stdout)
		},
	}
	cc.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the KEY=VALUE config file")
	return cc
}

func runMonitor(ctx context.Context, cfg ops.Config, stdout io.Writer) error {
	metrics := obs.NewMetrics()
	locks := lock.NewManager(metrics)
	defer locks.Close()

	j, err := journal.New(cfg.Journal(), locks, metrics)
	if err != nil {
		return err
	}
	m, err := monitor.New(cfg.Monitor(), j, stdout, metrics)
	if err != nil {
		return err
	}
	defer m.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			cancel()
		case <-ctx.Done():
		}
	}()
	return m.Run(ctx)
}

func newSeedCommand() *cobra.Command {
	var (
		path  string
		force bool
	)
	cc := &cobra.Command{
		Use:   "seed",
		Short: "Write the default accounts to an account file",
		RunE: func(c *cobra.Command, args []string) error {
			accounts := seed.Defaults()
			if err := seed.Write(path, accounts, force); err != nil {
				return err
			}
			logs.Infof("wrote %d accounts to %s", len(accounts), path)
			return nil
		},
	}
	flags := cc.Flags()
	flags.StringVarP(&path, "file", "f", "cuentas.dat", "account file to create")
	flags.BoolVar(&force, "force", false, "overwrite an existing account file")
	return cc
}

func startProfiler(addr string) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: "secure-bank",
		ServerAddress:   addr,
		Tags: map[string]string{
			"env": "local",
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileBlockCount,
		},
	})
}
