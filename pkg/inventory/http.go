package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/offerforge/offerforge/pkg/journey"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/stepgraph"
	"github.com/offerforge/offerforge/pkg/version"
)

const tracerName = "offerforge.inventory"

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Headers           map[string]string
}

// HTTPProvider searches a REST inventory backend:
//
//	GET {base}/{collection}?city=&country=&direction=&nights=
//
// The response is either a JSON array of candidates or an object with a
// "data" array. Outbound calls are throttled and carry the trace context.
type HTTPProvider struct {
	base    *url.URL
	client  *http.Client
	limiter *rate.Limiter
	headers map[string]string
	log     logger.Logger
}

// NewHTTPProvider builds an HTTPProvider. client may be nil.
func NewHTTPProvider(cfg HTTPConfig, client *http.Client, log logger.Logger) (*HTTPProvider, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid inventory base url %q", cfg.BaseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logger.Global()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPProvider{
		base:    base,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		headers: cfg.Headers,
		log:     log.With("component", "inventory.http"),
	}, nil
}

// Search implements Provider.
func (p *HTTPProvider) Search(ctx context.Context, step stepgraph.StepID, criteria Criteria) ([]journey.Candidate, error) {
	res, err := ResourceFor(step)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(criteria.Destination.City) == "" {
		return nil, ErrNoDestination
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "inventory.search",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("offerforge.step", string(step)),
			attribute.String("offerforge.collection", res.Collection),
			attribute.String("offerforge.city", criteria.Destination.City),
		),
	)
	defer span.End()

	if err := p.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter")
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(res, criteria), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("inventory search for %s: %w", step, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read inventory response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstream := &UpstreamError{Step: step, StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
		span.RecordError(upstream)
		span.SetStatus(codes.Error, "upstream status")
		return nil, upstream
	}

	items, err := decodeCandidates(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return nil, fmt.Errorf("decode inventory response for %s: %w", step, err)
	}

	p.log.DebugContext(ctx, "inventory search completed",
		logger.KeyStep, string(step),
		"results", len(items),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return items, nil
}

func (p *HTTPProvider) endpoint(res Resource, c Criteria) string {
	u := *p.base
	u.Path = u.Path + "/" + res.Collection

	q := url.Values{}
	q.Set("city", c.Destination.City)
	if c.Destination.Country != "" {
		q.Set("country", c.Destination.Country)
	}
	if res.Direction != "" {
		q.Set("direction", res.Direction)
	}
	if c.Nights > 0 {
		q.Set("nights", strconv.Itoa(c.Nights))
	}
	if c.ProductType != "" {
		q.Set("product_type", string(c.ProductType))
	}
	for slot, ref := range c.Context {
		q.Set("ctx."+slot, ref)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func decodeCandidates(body []byte) ([]journey.Candidate, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []journey.Candidate{}, nil
	}

	var items []journey.Candidate
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
	} else {
		var envelope struct {
			Data []journey.Candidate `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		items = envelope.Data
	}
	if items == nil {
		items = []journey.Candidate{}
	}
	return items, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
