package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-vitibrasil/config"
	"github.com/aluiziolira/go-scrape-vitibrasil/models"
	"github.com/aluiziolira/go-scrape-vitibrasil/parser"
	"github.com/aluiziolira/go-scrape-vitibrasil/pipeline"
)

// Scraper walks every configured category and writes one table per category.
type Scraper struct {
	cfg     *config.Config
	fetcher *Fetcher
	Metrics *Metrics
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics)
	if err != nil {
		return nil, err
	}
	return &Scraper{
		cfg:     cfg,
		fetcher: fetcher,
		Metrics: metrics,
	}, nil
}

// Run collects the configured categories one after another. A category
// whose queries all fail produces no file and does not stop the run; only a
// write failure or cancellation ends it early.
func (s *Scraper) Run(ctx context.Context, factory pipeline.WriterFactory) ([]*models.CategoryResult, error) {
	categories, err := models.LookupCategories(s.cfg.Categories)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	results := make([]*models.CategoryResult, 0, len(categories))
	for _, category := range categories {
		p := pipeline.NewPipeline(category, s.cfg.OutputDir, factory)
		result, err := s.CollectCategory(ctx, category, p)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

type queryOutcome struct {
	rows []models.Row
	err  error
}

// CollectCategory runs every query of category on a bounded worker pool,
// feeds the rows to p in (sub-filter, year) order and closes p.
func (s *Scraper) CollectCategory(ctx context.Context, category models.Category, p *pipeline.Pipeline) (*models.CategoryResult, error) {
	result := &models.CategoryResult{
		Category:     category.Name,
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}

	queries := category.Queries(s.cfg.YearFrom, s.cfg.YearTo)
	result.QueryCount = len(queries)
	outcomes := make([]queryOutcome, len(queries))

	slog.Info("collecting category",
		slog.String("category", category.Name),
		slog.Int("queries", len(queries)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for i, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = queryOutcome{err: err}
				return nil
			}
			rows, err := s.query(gctx, q)
			outcomes[i] = queryOutcome{rows: rows, err: err}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		result.EndTime = time.Now()
		slog.Warn("category interrupted, nothing written",
			slog.String("category", category.Name),
		)
		return result, err
	}

	withTable, missingTable := 0, 0
	for _, outcome := range outcomes {
		if outcome.err != nil {
			label := errorTypeLabel(outcome.err)
			result.ErrorCount++
			result.ErrorsByType[label]++
			if errors.Is(outcome.err, parser.ErrTableNotFound) {
				missingTable++
			}
			continue
		}
		withTable++
		if err := p.Process(outcome.rows...); err != nil {
			result.EndTime = time.Now()
			return result, fmt.Errorf("process %s rows: %w", category.Name, err)
		}
	}

	if withTable == 0 && missingTable > 0 {
		slog.Error("page layout changed: no page carried the data table",
			slog.String("category", category.Name),
			slog.String("selector", parser.TableSelector),
			slog.Int("pages", missingTable),
		)
	}

	if err := p.Close(); err != nil {
		result.EndTime = time.Now()
		return result, fmt.Errorf("write %s: %w", category.Name, err)
	}

	table := p.Table()
	result.RowCount = len(table.Rows)
	if validation, ok := p.GetMetrics()["validation_errors"].(map[string]int); ok {
		for _, n := range validation {
			result.RejectedCount += n
		}
	}
	result.OutputFiles = p.Files()
	if summary := p.Summary(); summary != nil {
		result.Years = summary.Years
		result.FirstYear = summary.FirstYear
		result.LastYear = summary.LastYear
	}
	result.EndTime = time.Now()

	slog.Info("category complete",
		slog.String("category", category.Name),
		slog.Int("rows", result.RowCount),
		slog.Int("rejected", result.RejectedCount),
		slog.Int("failed_queries", result.ErrorCount),
		slog.Any("files", result.OutputFiles),
		slog.Duration("duration", result.Duration()),
	)
	return result, nil
}

func (s *Scraper) query(ctx context.Context, q models.Query) ([]models.Row, error) {
	slog.Info("querying",
		slog.String("category", q.Category),
		slog.Int("year", q.Year),
		slog.String("subfilter", q.SubFilter),
	)

	page, err := s.fetcher.Fetch(ctx, q)
	if err != nil {
		s.recordFailure(q, err)
		return nil, err
	}

	rows, err := parser.ExtractRows(page, q.Year, q.Tag)
	if err != nil {
		s.recordFailure(q, err)
		return nil, err
	}

	s.Metrics.IncRequest(q.Category, "ok")
	s.Metrics.AddRows(q.Category, len(rows))
	return rows, nil
}

func (s *Scraper) recordFailure(q models.Query, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	label := errorTypeLabel(err)
	s.Metrics.IncRequest(q.Category, label)
	s.Metrics.IncError(label)

	msg := "query failed"
	if errors.Is(err, parser.ErrTableNotFound) {
		msg = "table not found"
	}
	slog.Error(msg,
		slog.String("category", q.Category),
		slog.Int("year", q.Year),
		slog.String("subfilter", q.SubFilter),
		slog.String("error_type", label),
		slog.Any("error", err),
	)
}
