// Package cmd defines the CLI commands for the cw2dt executable.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/config"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cw2dt",
		Short: "Clone websites into self-contained offline mirrors",
		Long: `cw2dt mirrors a website into a local folder: a wget2-driven static
transfer, an optional headless-browser prerender pass for client-rendered
routes and API responses, content checksums, and incremental diffs between
runs. Every run writes a clone_manifest.json and an ordered event stream.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cw2dt.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newCloneCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

// initConfig seeds viper defaults and reads the optional config file.
// Every key is also reachable through CW2DT_* environment variables.
func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".cw2dt")
	}
	v.SetEnvPrefix("CW2DT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		}
	}
}

func newLogger() (*zap.Logger, error) {
	return logging.New(verbose)
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
