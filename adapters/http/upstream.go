package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/schemaql/adapters/metrics"
	"github.com/artpar/schemaql/domain/extract"
	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/domain/value"
	"github.com/artpar/schemaql/ports"
)

// UpstreamClient calls REST sources and extracts rows from their JSON
// responses.
type UpstreamClient struct {
	client      *http.Client
	maxBodySize int64
	logger      zerolog.Logger
	metrics     *metrics.Collector
}

// UpstreamConfig contains configuration for the upstream client.
type UpstreamConfig struct {
	ConnectTimeout  time.Duration // default 5s
	ReadTimeout     time.Duration // default 30s
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	MaxBodySize     int64 // default 50MB
	Logger          zerolog.Logger
	Metrics         *metrics.Collector
}

// NewUpstreamClient creates a new upstream HTTP client.
func NewUpstreamClient(cfg UpstreamConfig) *UpstreamClient {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = 50 << 20
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
	}

	return &UpstreamClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		maxBodySize: cfg.MaxBodySize,
		logger:      cfg.Logger.With().Str("service", "upstream").Logger(),
		metrics:     cfg.Metrics,
	}
}

// Execute calls rawURL with every argument appended as a query parameter
// and extracts one row per record of the JSON response. Transport failures
// and non-2xx statuses are returned as upstream errors; field path
// failures are logged and leave the field null.
func (u *UpstreamClient) Execute(ctx context.Context, rawURL, method string, args query.Arguments, extractionPath string, fields []*schema.Field) ([]value.Row, error) {
	target, err := BuildURL(rawURL, args)
	if err != nil {
		u.countError("url")
		return nil, query.Wrap(query.CodeUpstream, err, "build url")
	}

	body, err := u.fetch(ctx, method, target)
	if err != nil {
		return nil, err
	}

	rows, pathErrs, err := extract.Rows(body, extractionPath, fields)
	if err != nil {
		u.countError("extract")
		return nil, query.Wrap(query.CodeUpstream, err, "process response from %s", target)
	}
	for _, pe := range pathErrs {
		u.logger.Warn().
			Str("url", target).
			Str("field", pe.Field).
			Str("path", pe.Path).
			Err(pe.Err).
			Msg("field path did not resolve")
	}

	u.logger.Debug().
		Str("url", target).
		Int("rows", len(rows)).
		Msg("api call extracted")
	return rows, nil
}

func (u *UpstreamClient) fetch(ctx context.Context, method, target string) ([]byte, error) {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		m = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, m, target, nil)
	if err != nil {
		u.countError("request")
		return nil, query.Wrap(query.CodeUpstream, err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		u.countError(classify(err))
		return nil, query.Wrap(query.CodeUpstream, err, "execute request %s %s", m, target)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBodySize))
	if err != nil {
		u.countError("read")
		return nil, query.Wrap(query.CodeUpstream, err, "read response")
	}

	u.logger.Debug().
		Str("method", m).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		u.countError("status")
		return nil, query.Errorf(query.CodeUpstream, "%s %s returned status %d", m, target, resp.StatusCode)
	}
	return body, nil
}

func (u *UpstreamClient) countError(kind string) {
	if u.metrics != nil {
		u.metrics.UpstreamErrors.WithLabelValues(kind).Inc()
	}
}

func classify(err error) string {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "transport"
}

// BuildURL appends every argument, in name order, as a query parameter to
// rawURL, keeping any parameters already present.
func BuildURL(rawURL string, args query.Arguments) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if len(args) == 0 {
		return u.String(), nil
	}

	q := u.Query()
	for _, k := range args.Keys() {
		q.Add(k, args[k].String())
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Ensure interface compliance.
var _ ports.APIExecutor = (*UpstreamClient)(nil)
