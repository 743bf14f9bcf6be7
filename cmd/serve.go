package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/serve"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <output-folder>",
		Short: "Preview a cloned site locally",
		Long: `Serves the given output folder over HTTP for offline browsing,
with /healthz and /metrics endpoints alongside the static tree.`,
		Args: cobra.ExactArgs(1),
		RunE: runServeCommand,
	}
	cmd.Flags().String("bind", "", "bind address (default from serve.bind_ip)")
	cmd.Flags().Int("port", 0, "listen port (default from serve.port)")
	return cmd
}

func runServeCommand(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	folder := args[0]
	if _, err := os.Stat(folder); err != nil {
		return fmt.Errorf("output folder: %w", err)
	}

	bind, _ := cmd.Flags().GetString("bind")
	if bind == "" {
		bind = viper.GetString("serve.bind_ip")
	}
	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = viper.GetInt("serve.port")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := serve.New(folder, serve.RuntimeRegistry(), logger)
	return srv.Run(ctx, fmt.Sprintf("%s:%d", bind, port))
}
