// Package verify wraps the external company registry lookup used to verify
// a CNPJ before it is committed to the conversation.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/brconnect/leadintake/internal/models"
)

// DefaultBaseURL is the public registry endpoint queried by default.
const DefaultBaseURL = "https://brasilapi.com.br/api/cnpj/v1"

// DefaultTimeout bounds a single lookup request.
const DefaultTimeout = 10 * time.Second

// taxIDLength is the digit count of a CNPJ.
const taxIDLength = 14

// ErrUnavailable marks a transport-level lookup failure (timeout, DNS,
// connection reset). The submitted value may still be correct; callers show
// a "try again" notice instead of a rejection.
var ErrUnavailable = errors.New("cnpj lookup unavailable")

// Opts holds configuration options for the lookup client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Option defines a configuration option for the lookup client.
type Option func(*Opts)

// WithBaseURL overrides the registry endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient injects a custom HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client performs registry lookups. It never retries; a retry, if any, is a
// user-initiated resubmission.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a lookup client with the given options.
func NewClient(opts ...Option) *Client {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	slog.Debug("verify.NewClient: lookup client created", "baseURL", cfg.BaseURL)
	return &Client{httpClient: cfg.HTTPClient, baseURL: strings.TrimRight(cfg.BaseURL, "/")}
}

// Verify checks a tax id against the registry. Inputs that do not normalize
// to exactly 14 digits are rejected without a network call. A definitive
// negative from the registry yields Valid=false with a nil error; transport
// failures return an error wrapping ErrUnavailable.
func (c *Client) Verify(ctx context.Context, taxID string) (*models.VerificationResult, error) {
	digits := normalize(taxID)
	if len(digits) != taxIDLength {
		slog.Debug("verify.Verify: tax id has wrong digit count, skipping lookup", "digits", len(digits))
		return &models.VerificationResult{Valid: false}, nil
	}

	url := c.baseURL + "/" + digits
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("verify.Verify: lookup transport failure", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Debug("verify.Verify: registry rejected tax id", "status", resp.StatusCode)
		io.Copy(io.Discard, resp.Body)
		return &models.VerificationResult{Valid: false}, nil
	}

	var enrichment map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&enrichment); err != nil {
		slog.Warn("verify.Verify: registry body not parseable", "error", err)
		return &models.VerificationResult{Valid: false}, nil
	}

	slog.Debug("verify.Verify: tax id verified", "fields", len(enrichment))
	return &models.VerificationResult{Valid: true, Enrichment: enrichment}, nil
}

func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
