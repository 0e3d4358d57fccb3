// Package main provides pcrctl, the operator CLI for the PCR tracker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/irfndi/pcr-tracker-go/internal/app"
	"github.com/irfndi/pcr-tracker-go/internal/config"
	"github.com/irfndi/pcr-tracker-go/internal/extractor"
	"github.com/irfndi/pcr-tracker-go/internal/logging"
	"github.com/irfndi/pcr-tracker-go/internal/services"
	"github.com/irfndi/pcr-tracker-go/internal/source"
)

// Version information (set at build time)
var version = "dev"

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	url      string
	logLevel string
	timeout  time.Duration
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "pcrctl",
		Short: "Operate the put-call-ratio tracker",
		Long: `pcrctl runs single update cycles against the configured store,
clears the data region, writes the header row and shows what the
extractor makes of a page.

Configuration is read from configs/config.yaml, ./config.yaml and the
environment, exactly as the server does.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.url, "url", "", "override source.url")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log_level")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 2*time.Minute, "overall command timeout")

	root.AddCommand(
		newUpdateCmd(flags),
		newResetCmd(flags),
		newHeaderCmd(flags),
		newExtractCmd(flags),
		newNotifyTestCmd(flags),
	)
	return root
}

// withApp loads configuration, builds the pipeline and runs fn with it.
func withApp(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.url != "" {
		cfg.Source.URL = flags.url
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}

	opts := logging.Options{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		Format:      "text",
		Output:      cmd.ErrOrStderr(),
	}
	logger := logging.New(opts)
	defer func() { _ = logger.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger.WithComponent("pcrctl"), logging.NewServiceLogger(opts), app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newUpdateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Run one update cycle now",
		Long:  "Run one manual update cycle. The operating window is ignored; the minute bucket guard is not.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				res := a.Controller.RunManual(ctx)
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				switch res.Outcome {
				case services.OutcomeWritten, services.OutcomeSkipped:
					return nil
				default:
					return fmt.Errorf("update %s: %s", res.Outcome, res.Error)
				}
			})
		},
	}
}

func newResetCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear every data row",
		Long:  "Clear the data region of the log. The header row is kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("refusing to clear the data region without --yes")
			}
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				res, err := a.Controller.Reset(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().Bool("yes", false, "confirm clearing the data region")
	return cmd
}

func newHeaderCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "header",
		Short: "Write the column titles to the header row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app.App) error {
				row, err := a.Controller.WriteHeader(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Header written to row %d\n", row)
				return nil
			})
		},
	}
}

func newExtractCmd(flags *rootFlags) *cobra.Command {
	var (
		html     bool
		priceMin int64
		priceMax int64
	)
	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Show the fields extracted from a page",
		Long: `Print the extracted record and how each field was resolved.

With a file argument the page is read from disk ("-" reads stdin); pass
--html when the file is raw HTML rather than page text. Without a file
the live page is fetched from --url or the default source.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ext, err := extractor.New(extractor.Config{Band: extractor.Band{Min: priceMin, Max: priceMax}})
			if err != nil {
				return err
			}

			var text string
			if len(args) == 1 {
				text, err = readPage(cmd, args[0], html)
			} else {
				ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
				defer cancel()
				text, err = source.NewClient(source.Config{URL: flags.url}).Fetch(ctx)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ext.ExtractReport(text))
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "treat the input as HTML and strip markup first")
	cmd.Flags().Int64Var(&priceMin, "price-min", extractor.DefaultBand.Min, "lower bound of the plausible price band")
	cmd.Flags().Int64Var(&priceMax, "price-max", extractor.DefaultBand.Max, "upper bound of the plausible price band")
	return cmd
}

func readPage(cmd *cobra.Command, path string, html bool) (string, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to open page: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if html || strings.HasSuffix(strings.ToLower(path), ".html") {
		return source.PageText(r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	return string(data), nil
}

func newNotifyTestCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test",
		Short: "Send a test message to the configured Telegram chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.Telegram.BotToken == "" {
				return fmt.Errorf("TELEGRAM_BOT_TOKEN is not configured")
			}
			if cfg.Telegram.ChatID == 0 {
				return fmt.Errorf("TELEGRAM_CHAT_ID is not configured")
			}
			if !cfg.Reconciler.NotifyChange {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: reconciler.notify_trend_change is off, the server will not send alerts")
			}

			notifier, err := services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Source.Symbol, nil)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()
			if err := notifier.SendTest(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Test message sent to chat %d\n", cfg.Telegram.ChatID)
			return nil
		},
	}
}
