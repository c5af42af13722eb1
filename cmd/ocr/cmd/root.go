package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/ocrnlp/internal/config"
	"github.com/MeKo-Tech/ocrnlp/internal/version"
)

const (
	// configKeyAnnotation ties a flag to the configuration key it overrides.
	configKeyAnnotation = "ocrnlp_config_key"
	// logStdoutAnnotation marks commands whose logs go to stdout; all others
	// log to stderr so their stdout stays machine readable.
	logStdoutAnnotation = "ocrnlp_log_stdout"
)

// app carries the state shared by one command tree.
type app struct {
	v       *viper.Viper
	cfgFile string
	config  *config.Config
	logger  *slog.Logger
}

// Execute runs the command line.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the ocrnlp command tree on a fresh viper instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "ocrnlp",
		Short: "Extract text blocks from images and PDFs",
		Long: `ocrnlp turns an uploaded image or PDF into a flat list of recognized text
blocks, each with its text, bounding polygon, confidence and page number.

It runs as an HTTP service, as an MCP tool server or as a one-shot CLI.

Examples:
  ocrnlp serve --port 8000
  ocrnlp extract scan.png invoice.pdf --format yaml
  ocrnlp mcp
  ocrnlp config show`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $XDG_CONFIG_HOME/ocrnlp, /etc/ocrnlp)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	bindFlag(rootCmd.PersistentFlags(), "verbose", "verbose")
	bindFlag(rootCmd.PersistentFlags(), "log-level", "log_level")

	rootCmd.AddCommand(
		newServeCommand(a),
		newExtractCommand(a),
		newMCPCommand(a),
		newConfigCommand(a),
	)
	return rootCmd
}

// bindFlag records which configuration key a flag overrides. The binding
// itself happens for the executing command only, in app.init.
func bindFlag(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// init binds the running command's flags, loads configuration and sets up
// logging.
func (a *app) init(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys, ok := f.Annotations[configKeyAnnotation]; ok && bindErr == nil {
			bindErr = a.v.BindPFlag(keys[0], f)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	loader := config.NewLoaderWithViper(a.v)
	var err error
	if skipValidation(cmd) {
		a.config, err = loader.LoadWithFileWithoutValidation(a.cfgFile)
	} else {
		a.config, err = loader.LoadWithFile(a.cfgFile)
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	var out io.Writer = cmd.ErrOrStderr()
	if _, ok := cmd.Annotations[logStdoutAnnotation]; ok {
		out = cmd.OutOrStdout()
	}
	a.logger = newLogger(out, a.config)
	slog.SetDefault(a.logger)

	if used := loader.GetConfigFileUsed(); used != "" {
		a.logger.Debug("Loaded configuration", "file", used)
	}
	return nil
}

// skipValidation reports whether cmd only inspects or writes configuration,
// which must work even when the current configuration is invalid.
func skipValidation(cmd *cobra.Command) bool {
	return cmd.Parent() != nil && cmd.Parent().Name() == "config"
}

func newLogger(out io.Writer, cfg *config.Config) *slog.Logger {
	var level slog.Level
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}
