package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xupit3r/vsmserve/internal/config"
	"github.com/xupit3r/vsmserve/internal/logging"
)

var (
	cfgFile string
	verbose bool

	cfg *config.Config
	log *logrus.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vsmserve",
	Short: "Serve a small language model over HTTP",
	Long: `vsmserve downloads a GGUF model from the Hugging Face hub, loads it on the
best available device and answers POST /generate with the prompt followed by
its sampled continuation.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vsmserve/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// initConfig loads configuration and installs the process logger.
func initConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		c.Logging.Level = "debug"
	}

	if err := logging.Init(logging.Options{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Console:    c.Logging.Console,
	}); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}

	cfg = c
	log = logging.Get()
	log.WithField("config", fmt.Sprintf("%+v", cfg.Redacted())).Debug("Configuration loaded")
	return nil
}
