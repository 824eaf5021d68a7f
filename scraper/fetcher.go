package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-vitibrasil/config"
	"github.com/aluiziolira/go-scrape-vitibrasil/models"
)

// Fetcher issues one GET per query against the category endpoint.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	retry     retryPolicy
	metrics   *Metrics
}

// NewFetcher builds a synchronous collector configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.Parallelism,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	f := &Fetcher{
		cfg:       cfg,
		collector: collector,
		retry:     retryPolicy{base: cfg.RetryBackoff, max: cfg.RetryBackoffMax},
		metrics:   metrics,
	}
	f.configureHandlers()
	return f, nil
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", string(r.Body))
		f.observe(r.Ctx)
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put("status", r.StatusCode)
		f.observe(r.Ctx)
	})
}

func (f *Fetcher) observe(ctx *colly.Context) {
	if start, ok := ctx.GetAny("start").(time.Time); ok {
		f.metrics.ObserveDuration(time.Since(start))
	}
}

// QueryURL builds the page URL for q on top of base.
func QueryURL(base string, q models.Query) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	values := u.Query()
	values.Set("opcao", q.Option)
	values.Set("ano", strconv.Itoa(q.Year))
	if q.SubFilter != "" {
		values.Set("subopcao", q.SubFilter)
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// Fetch returns the page body for q. Only HTTP 200 counts as success;
// retryable failures are attempted again up to MaxRetries times.
func (f *Fetcher) Fetch(ctx context.Context, q models.Query) (string, error) {
	target, err := QueryURL(f.cfg.BaseURL, q)
	if err != nil {
		return "", err
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		body, err := f.fetchOnce(target)
		if err == nil {
			return body, nil
		}

		if attempt >= f.cfg.MaxRetries || !retryable(err) {
			return "", err
		}

		f.metrics.IncRetries()
		delay := f.retry.backoff(attempt + 1)
		slog.Debug("retrying query",
			slog.String("url", target),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return "", err
		}
	}
}

func (f *Fetcher) fetchOnce(target string) (string, error) {
	reqCtx := colly.NewContext()
	err := f.collector.Request(http.MethodGet, target, nil, reqCtx, nil)
	status, _ := reqCtx.GetAny("status").(int)
	if err != nil {
		return "", classifyError(err, status)
	}
	if status == 0 {
		return "", errNoResponse
	}
	if status != http.StatusOK {
		return "", classifyError(nil, status)
	}
	body, _ := reqCtx.GetAny("body").(string)
	return body, nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 && statusCode != http.StatusOK {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrServer{Status: statusCode, Err: wrapped}
		default:
			return ErrUnexpectedStatus{Status: statusCode}
		}
	}

	return err
}
