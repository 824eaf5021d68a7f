package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-vitibrasil/config"
	"github.com/aluiziolira/go-scrape-vitibrasil/models"
	"github.com/aluiziolira/go-scrape-vitibrasil/pipeline"
	"github.com/aluiziolira/go-scrape-vitibrasil/scraper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	envErr := config.FromEnv(cfg)

	cmd := &cobra.Command{
		Use:           "vitibrasil",
		Short:         "Download Embrapa Vitibrasil statistics into per-category tables",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, level := newLogger(cfg.Verbose)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())

			if envErr != nil {
				slog.Error("invalid environment", slog.Any("error", envErr))
				return envErr
			}
			cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
			if err := cfg.Validate(); err != nil {
				slog.Error("invalid configuration", slog.Any("error", err))
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Vitibrasil index.php endpoint")
	flags.IntVar(&cfg.YearFrom, "from", cfg.YearFrom, "First year to collect")
	flags.IntVar(&cfg.YearTo, "to", cfg.YearTo, "Last year to collect (inclusive)")
	flags.StringSliceVar(&cfg.Categories, "category", cfg.Categories, "Categories to collect (production, processing, commercialization, import, export); default all")
	flags.IntVar(&cfg.Parallelism, "parallel", cfg.Parallelism, "Concurrent requests per category (1 runs strictly sequentially)")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum retry attempts per query")
	flags.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	flags.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	flags.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for the generated tables")
	flags.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, xlsx, or dual")
	flags.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header")
	flags.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose logging")

	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("from", cfg.YearFrom),
		slog.Int("to", cfg.YearTo),
		slog.Int("workers", cfg.Parallelism),
		slog.String("output_dir", cfg.OutputDir),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return err
	}

	factory, err := pipeline.NewWriterFactory(cfg.OutputFormat)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return err
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	startTime := time.Now()
	results, runErr := s.Run(ctx, factory)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(results, time.Since(startTime), cfg.OutputDir)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			slog.Warn("scrape interrupted; categories written so far are kept")
		} else {
			slog.Error("scraping failed", slog.Any("error", runErr))
		}
		return runErr
	}
	return nil
}

func printSummary(results []*models.CategoryResult, duration time.Duration, outputDir string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Scrape complete")
	t.AppendHeader(table.Row{"Category", "Queries", "Failed", "Rows", "Rejected", "Years", "Output", "Errors"})

	totalRows := 0
	for _, r := range results {
		totalRows += r.RowCount
		years := "-"
		if r.Years > 0 {
			years = fmt.Sprintf("%s-%s (%d)", r.FirstYear, r.LastYear, r.Years)
		}
		output := "(none)"
		if len(r.OutputFiles) > 0 {
			output = strings.Join(r.OutputFiles, ", ")
		}
		t.AppendRow(table.Row{r.Category, r.QueryCount, r.ErrorCount, r.RowCount, r.RejectedCount, years, output, formatErrors(r.ErrorsByType)})
	}

	t.AppendFooter(table.Row{"Total", "", "", totalRows, "", "", outputDir, duration.Round(time.Millisecond)})
	t.Render()
}

func formatErrors(byType map[string]int) string {
	if len(byType) == 0 {
		return ""
	}
	keys := make([]string, 0, len(byType))
	for k := range byType {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, byType[k]))
	}
	return strings.Join(parts, " ")
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
