package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/checksum"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/clone"
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/internal/manifest"
)

func newVerifyCmd() *cobra.Command {
	var deep bool

	cmd := &cobra.Command{
		Use:   "verify <output-folder>",
		Short: "Re-check recorded checksums of a cloned site",
		Long: `Reads clone_manifest.json in the given folder and recomputes the
recorded SHA-256 checksums. Fast mode skips files missing from disk; deep
mode treats missing or mismatched files as failures.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync()
			return runVerify(cmd, args[0], deep, logger)
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "fail on missing files as well as mismatches")
	return cmd
}

func runVerify(cmd *cobra.Command, folder string, deep bool, logger *zap.Logger) error {
	m, err := manifest.Read(manifest.Path(folder))
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if len(m.ChecksumsSHA256) == 0 {
		return fmt.Errorf("manifest in %s has no recorded checksums", folder)
	}

	v, elapsed, err := checksum.Verify(cmd.Context(), folder, m.ChecksumsSHA256, deep)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	logger.Info("verification finished",
		zap.String("status", v.Status),
		zap.Int("ok", v.OK),
		zap.Int("missing", v.Missing),
		zap.Int("mismatched", v.Mismatched),
		zap.Duration("elapsed", elapsed))
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d ok, %d missing, %d mismatched (%d total)\n",
		v.Status, v.OK, v.Missing, v.Mismatched, v.Total)

	if v.Status == checksum.StatusFailed {
		os.Exit(clone.ExitVerifyFailed)
	}
	return nil
}
