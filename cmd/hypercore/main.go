package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/hypercore/internal/common"
	"github.com/loykin/hypercore/internal/module"
	"github.com/loykin/hypercore/internal/observability"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds what the root command prepares for its subcommands.
type app struct {
	v      *viper.Viper
	cfg    *ConfigDoc
	logger *common.Logger
}

// runner is one subcommand's reconciliation step.
type runner func(ctx context.Context, rt *module.Runtime) (*module.Result, error)

// run executes fn and prints its result. The metrics file is written even when
// fn fails.
func (a *app) run(cmd *cobra.Command, fn runner) error {
	rt, err := a.cfg.Runtime(a.logger)
	if err != nil {
		return err
	}

	res, runErr := fn(cmd.Context(), rt)
	if path := a.cfg.MetricsFile; path != "" {
		if err := observability.WriteTextfile(path); err != nil {
			a.logger.WithComponent("main").Warn("failed to write metrics file", "path", path, "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	return writeResult(cmd.OutOrStdout(), res, a.cfg.Output)
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	a := &app{v: v}

	root := &cobra.Command{
		Use:           "hypercore",
		Short:         "Reconcile HyperCore cluster state through its REST API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.v)
			if err != nil {
				return err
			}
			logger, err := cfg.SetupLogging()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
	}

	setDefaults(v)
	bindEnv(v)

	pf := root.PersistentFlags()
	pf.String("config", "", "path to a YAML config file")
	pf.String("host", "", "cluster URL including http:// or https:// (env SC_HOST)")
	pf.String("username", "", "cluster username (env SC_USERNAME)")
	pf.String("password", "", "cluster password (env SC_PASSWORD)")
	pf.Bool("insecure", false, "skip TLS certificate verification")
	pf.String("timeout", "", "per-request timeout, a duration or seconds (env SC_TIMEOUT)")
	pf.Bool("check", false, "report what would change without changing it")
	pf.StringP("output", "o", "", "result format: json or yaml")
	pf.String("metrics-file", "", "write Prometheus metrics in textfile format to this path")
	pf.String("poll-interval", "", "delay between task status polls")
	pf.String("poll-timeout", "", "maximum time to wait for a task, 0 for no limit")
	pf.String("log-level", "", "error, warn, info or debug")
	pf.String("log-format", "", "text, json or color")

	for key, flag := range map[string]string{
		"config":                    "config",
		"cluster_instance.host":     "host",
		"cluster_instance.username": "username",
		"cluster_instance.password": "password",
		"cluster_instance.insecure": "insecure",
		"cluster_instance.timeout":  "timeout",
		"check":                     "check",
		"output":                    "output",
		"metrics_file":              "metrics-file",
		"polling.interval":          "poll-interval",
		"polling.timeout":           "poll-timeout",
		"logging.level":             "log-level",
		"logging.format":            "log-format",
	} {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		newDNSConfigCmd(a),
		newNodeAffinityCmd(a),
		newVirtualDiskCmd(a),
		newVirtualDiskInfoCmd(a),
		newTaskWaitCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		stop()
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
