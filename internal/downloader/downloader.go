// Package downloader fetches raw filter-list content over HTTP, with
// ETag-aware conditional requests and retry, built on the module's shared
// resilience retry policy and its HTTP-client setup conventions.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/vitaliisemenov/adblock-compiler/internal/core/resilience"
	"github.com/vitaliisemenov/adblock-compiler/internal/model"
	"github.com/vitaliisemenov/adblock-compiler/pkg/metrics"
)

// Config configures the Downloader.
type Config struct {
	Timeout    time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	UserAgent  string        `mapstructure:"user_agent"`
}

// DefaultConfig returns the documented defaults: 30s timeout, up to
// 2 retries.
func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		UserAgent:  "adblock-compiler/1.0",
	}
}

// FetchResult is one successful (or 304-not-modified) download outcome.
type FetchResult struct {
	Content    []byte
	ContentHash string
	ETag       string
	NotModified bool
	RuleCount  int
	FetchedAt  time.Time
}

// Downloader performs conditional HTTP fetches of source content.
type Downloader struct {
	client  *http.Client
	config  Config
	logger  *slog.Logger
	metrics *metrics.PipelineMetrics
}

// New constructs a Downloader. metrics may be nil to disable instrumentation.
func New(cfg Config, logger *slog.Logger, m *metrics.PipelineMetrics) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: logger,
		metrics: m,
	}
}

// IsRemote reports whether location is fetched over HTTP(S) rather than
// read from the local filesystem.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Fetch retrieves sourceURL, sending If-None-Match when prevETag is
// non-empty. Transient failures (timeouts, connection resets, 5xx) are
// retried per Config.MaxRetries with exponential backoff; 4xx responses
// are treated as permanent and not retried. When
// sourceURL is a local filesystem path rather than an http(s) URL, it is
// read directly with no retry and no ETag semantics (conditional requests
// don't apply to local files).
func (d *Downloader) Fetch(ctx context.Context, sourceName, sourceURL, prevETag string) (*FetchResult, error) {
	if !IsRemote(sourceURL) {
		return d.fetchLocal(sourceName, sourceURL)
	}

	policy := &resilience.RetryPolicy{
		MaxRetries:    d.config.MaxRetries,
		BaseDelay:     200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		Jitter:        true,
		Logger:        d.logger,
		OperationName: "source_download",
		ErrorChecker:  &downloadErrorChecker{},
	}

	var result *FetchResult
	start := time.Now()

	err := resilience.WithRetry(ctx, policy, func() error {
		res, fetchErr := d.doFetch(ctx, sourceURL, prevETag)
		if fetchErr != nil {
			return fetchErr
		}
		result = res
		return nil
	})

	d.recordOutcome(sourceName, start, err)

	if err != nil {
		var netErr *model.NetworkError
		if ne, ok := err.(*model.NetworkError); ok {
			netErr = ne
		} else {
			netErr = model.NewNetworkError(err.Error(), 0, true, err)
		}
		return nil, netErr
	}
	return result, nil
}

func (d *Downloader) fetchLocal(sourceName, path string) (*FetchResult, error) {
	start := time.Now()
	body, err := os.ReadFile(path)
	if err != nil {
		d.recordOutcome(sourceName, start, err)
		return nil, model.NewStorageError("downloader.fetchLocal", err, false)
	}
	d.recordOutcome(sourceName, start, nil)
	return &FetchResult{
		Content:     body,
		ContentHash: ContentHash(body),
		RuleCount:   CountRules(body),
		FetchedAt:   time.Now(),
	}, nil
}

func (d *Downloader) recordOutcome(sourceName string, start time.Time, err error) {
	if d.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	d.metrics.DownloadsTotal.WithLabelValues(sourceName, outcome).Inc()
	d.metrics.DownloadDuration.WithLabelValues(sourceName).Observe(time.Since(start).Seconds())
}

func (d *Downloader) doFetch(ctx context.Context, sourceURL, prevETag string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, model.NewNetworkError("failed to build request", 0, false, err)
	}
	req.Header.Set("User-Agent", d.config.UserAgent)
	if prevETag != "" {
		req.Header.Set("If-None-Match", prevETag)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, model.NewNetworkError("request failed", 0, true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{NotModified: true, ETag: prevETag, FetchedAt: time.Now()}, nil
	}

	if resp.StatusCode >= 400 {
		retryable := resp.StatusCode >= 500
		return nil, model.NewNetworkError(
			fmt.Sprintf("unexpected status %d", resp.StatusCode),
			resp.StatusCode, retryable, nil,
		)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewNetworkError("failed to read response body", resp.StatusCode, true, err)
	}

	return &FetchResult{
		Content:     body,
		ContentHash: ContentHash(body),
		ETag:        resp.Header.Get("ETag"),
		RuleCount:   CountRules(body),
		FetchedAt:   time.Now(),
	}, nil
}

// ContentHash returns a short, stable content-address for raw source
// bytes (sha256 of content, hex-encoded).
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// CountRules counts non-blank, non-comment lines, used only for health and
// diagnostics purposes — the data path itself preserves comments until the
// RemoveComments transformation runs.
func CountRules(content []byte) int {
	count := 0
	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		count++
	}
	return count
}

// downloadErrorChecker treats model.NetworkError's own Retryable()
// classification as authoritative.
type downloadErrorChecker struct{}

func (c *downloadErrorChecker) IsRetryable(err error) bool {
	if netErr, ok := err.(*model.NetworkError); ok {
		return netErr.Retryable()
	}
	return true
}
