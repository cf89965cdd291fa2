package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"static-server/internal/filesystem"
	"static-server/internal/logging"
	"static-server/internal/memory"
	"static-server/internal/metrics"
	"static-server/internal/server"
	"static-server/internal/startup"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(startup.NewViper()).Execute(); err != nil {
		startup.LogFatal("%v", err)
	}
}

// newRootCmd builds the command tree. Flags are bound onto v so they take
// precedence over the config file and the environment.
func newRootCmd(v *viper.Viper) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "static-server",
		Short:         "Serve a directory of static files",
		Long:          `static-server serves a public directory through a fixed middleware pipeline: access logging, body decoding, compression, minification and cookie sessions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, v, configFile)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default: ./static-server.yaml or /etc/static-server/static-server.yaml)")
	flags.StringP("port", "p", "5000", "port for the static file listener")
	flags.String("public-dir", "./public", "directory to serve")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	_ = v.BindPFlag("port", flags.Lookup("port"))
	_ = v.BindPFlag("public_dir", flags.Lookup("public-dir"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			info := startup.GetBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "static-server %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
		},
	}
}

func run(ctx context.Context, v *viper.Viper, configFile string) error {
	started := time.Now()

	config, err := startup.LoadConfig(v, configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	memory.Configure(os.Getenv)

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	filesystem.SetObserver(metrics.NewFilesystemObserver())

	srv, err := server.New(config, server.Options{})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	logging.Debug("Pipeline: %s", srv.Pipeline())
	return srv.Run(ctx, started)
}
