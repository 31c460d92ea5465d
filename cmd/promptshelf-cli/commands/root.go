package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"promptshelf/internal/components/telemetry"
	"promptshelf/internal/config"
	libtelemetry "promptshelf/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
	dumpHttp   *string
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "", "Path to the config file, defaults to the nearest "+config.DefaultName+".")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
	dumpHttp = rootCmd.PersistentFlags().String("dump-http", "", "Write every http exchange to this directory.")
}

var rootCmd = &cobra.Command{
	Use:   "promptshelf-cli",
	Short: "promptshelf-cli fetches the prompt answers of a reader and the books attached to them.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		libtelemetry.InitSlog(*verbose)

		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}

		otel, err := libtelemetry.SetupFromEnv(cmd.Context(), "promptshelf-cli")
		if err != nil {
			slog.Warn("failed to setup telemetry", "err", err)
		}

		cmd.SetContext(withGlobals(cmd.Context(), &globals{
			cfg:  cfg,
			tel:  telemetry.SlogAPI{},
			otel: otel,
		}))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		err := getGlobals(cmd.Context()).otel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("failed to shutdown telemetry", "err", err)
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
