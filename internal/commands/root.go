// Package commands implements the categorizer command line.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/dvloznov/finance-categorizer/internal/app"
	"github.com/dvloznov/finance-categorizer/internal/config"
	"github.com/dvloznov/finance-categorizer/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// runtime carries the persistent flags and the app options shared by every
// subcommand.
type runtime struct {
	configPath string
	logLevel   string
	appOpts    []app.Option
}

// NewRootCommand creates the root CLI command with all subcommands registered.
// opts are passed to app.New for every command that needs the stores.
func NewRootCommand(opts ...app.Option) *cobra.Command {
	rt := &runtime{appOpts: opts}

	rootCmd := &cobra.Command{
		Use:   "categorizer",
		Short: "Categorize uploaded transaction files with a generative model",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&rt.configPath, "config", "", "config file (default categorizer.yaml)")
	rootCmd.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "log level, overrides log.level")

	rootCmd.AddCommand(newRunCommand(rt))
	rootCmd.AddCommand(newPendingCommand(rt))
	rootCmd.AddCommand(newSummaryCommand(rt))
	rootCmd.AddCommand(newTaxonomyCommand(rt))

	return rootCmd
}

// withApp loads the configuration, opens the app for the duration of fn and
// closes it afterwards. Logs go to the command's stderr so stdout stays
// parseable.
func (rt *runtime) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	if rt.logLevel != "" {
		cfg.Log.Level = rt.logLevel
	}

	log := newLogger(cmd.ErrOrStderr(), cfg.Log.Level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg, rt.appOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to close stores")
		}
	}()

	return fn(ctx, a)
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return logger.NewWithWriter(zerolog.ConsoleWriter{Out: w, NoColor: true}).Level(logger.ParseLevel(level))
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
