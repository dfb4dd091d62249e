package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"gallery/internal/observability"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const errorBodyPreview = 512

// Config is the dispatcher's injected configuration.
type Config struct {
	// APIKey is sent as x-rapidapi-key to structured-API providers.
	APIKey string
	// Timeout bounds one Generate call end to end; zero means no deadline
	// beyond the caller's context.
	Timeout time.Duration
	// MaxAssetBytes caps the image payload; zero means 20 MiB.
	MaxAssetBytes int64
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithCatalog replaces the built-in provider catalog.
func WithCatalog(descs []Descriptor) Option {
	return func(d *Dispatcher) { d.catalog = append([]Descriptor(nil), descs...) }
}

// WithLogger sets the logger used for failed calls.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithProviderFilter hides providers for which enabled returns false; they
// behave exactly like unknown identifiers.
func WithProviderFilter(enabled func(id string) bool) Option {
	return func(d *Dispatcher) { d.enabled = enabled }
}

// Dispatcher routes generation requests to providers. It holds no mutable
// state and is safe for concurrent use.
type Dispatcher struct {
	cfg     Config
	client  *http.Client
	catalog []Descriptor
	logger  *slog.Logger
	enabled func(id string) bool
}

// NewDispatcher builds a dispatcher over the built-in catalog.
func NewDispatcher(cfg Config, opts ...Option) *Dispatcher {
	if cfg.MaxAssetBytes <= 0 {
		cfg.MaxAssetBytes = 20 << 20
	}
	d := &Dispatcher{
		cfg:     cfg,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		catalog: catalog,
		logger:  observability.Log,
		enabled: func(string) bool { return true },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Providers lists the providers this dispatcher will accept, in catalog order.
func (d *Dispatcher) Providers() []Descriptor {
	out := make([]Descriptor, 0, len(d.catalog))
	for _, desc := range d.catalog {
		if d.enabled(desc.ID) {
			out = append(out, desc)
		}
	}
	return out
}

// Generate produces one image. Unknown models and blank prompts fail before
// any network traffic. Failures are never retried.
func (d *Dispatcher) Generate(ctx context.Context, req Request) (*Asset, error) {
	desc, ok := lookupIn(d.catalog, req.Model)
	if !ok || !d.enabled(desc.ID) {
		return nil, failure(KindUnsupportedModel, req.Model, "unknown model %q", req.Model)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, failure(KindInvalidRequest, desc.ID, "prompt is required")
	}

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "generation.Generate",
		attribute.String("generation.provider", desc.ID),
		attribute.String("generation.shape", desc.Shape.String()),
	)

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	var (
		asset *Asset
		err   error
	)
	switch desc.Shape {
	case ShapeDirectURL:
		asset, err = d.generateDirect(ctx, desc, req)
	case ShapeBinary:
		asset, err = d.generateBinary(ctx, desc, req)
	case ShapeJSONURL:
		asset, err = d.generateJSONURL(ctx, desc, req)
	default:
		err = failure(KindUnsupportedModel, desc.ID, "provider has no request shape")
	}

	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		d.logger.WarnContext(ctx, "image generation failed",
			slog.String("provider", desc.ID),
			slog.String("kind", outcome),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
	} else {
		span.Annotate(attribute.Int("generation.bytes", len(asset.Data)))
	}
	span.Finish(err)
	observability.ObserveGeneration(desc.ID, outcome, start)
	return asset, err
}

// DirectURL renders the GET address for a ShapeDirectURL provider.
func DirectURL(cfg *DirectConfig, req Request) string {
	var b strings.Builder
	b.WriteString(cfg.BaseURL)
	b.WriteString(url.PathEscape(req.Prompt))
	b.WriteString("?model=")
	b.WriteString(url.QueryEscape(cfg.Model))
	if w := orDefault(req.Width, cfg.Width); w > 0 {
		b.WriteString("&width=" + strconv.Itoa(w))
	}
	if h := orDefault(req.Height, cfg.Height); h > 0 {
		b.WriteString("&height=" + strconv.Itoa(h))
	}
	for _, flag := range []struct {
		name string
		on   bool
	}{
		{"enhance", cfg.Enhance},
		{"nologo", cfg.NoLogo},
		{"private", cfg.Private},
		{"safe", cfg.Safe},
		{"transparent", cfg.Transparent},
	} {
		if flag.on {
			b.WriteString("&" + flag.name + "=true")
		}
	}
	return b.String()
}

func (d *Dispatcher) generateDirect(ctx context.Context, desc Descriptor, req Request) (*Asset, error) {
	if desc.Direct == nil {
		return nil, failure(KindUnsupportedModel, desc.ID, "provider has no direct config")
	}
	return d.fetchAsset(ctx, desc.ID, DirectURL(desc.Direct, req))
}

func (d *Dispatcher) generateBinary(ctx context.Context, desc Descriptor, req Request) (*Asset, error) {
	resp, err := d.post(ctx, desc, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return d.readImage(desc.ID, resp)
}

func (d *Dispatcher) generateJSONURL(ctx context.Context, desc Descriptor, req Request) (*Asset, error) {
	resp, err := d.post(ctx, desc, req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxAssetBytes))
	_ = resp.Body.Close()
	if err != nil {
		return nil, &Error{Kind: KindUpstream, ProviderID: desc.ID, Message: "read response", Err: err}
	}

	assetURL, ok := ExtractAssetURL(body)
	if !ok {
		return nil, failure(KindMissingAssetURL, desc.ID, "no url, image or output field in response")
	}
	if u, err := url.Parse(assetURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, failure(KindMissingAssetURL, desc.ID, "asset url %q is not an http(s) address", assetURL)
	}
	return d.fetchAsset(ctx, desc.ID, assetURL)
}

// ExtractAssetURL picks the image address out of a structured-API JSON answer:
// the first non-empty string among url, image and output, then the
// OpenAI-style data[0].url.
func ExtractAssetURL(body []byte) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", false
	}
	for _, key := range []string{"url", "image", "output"} {
		var s string
		if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	var data []struct {
		URL string `json:"url"`
	}
	if raw, ok := fields["data"]; ok && json.Unmarshal(raw, &data) == nil && len(data) > 0 && strings.TrimSpace(data[0].URL) != "" {
		return strings.TrimSpace(data[0].URL), true
	}
	return "", false
}

func (d *Dispatcher) post(ctx context.Context, desc Descriptor, req Request) (*http.Response, error) {
	if desc.API == nil || desc.API.Body == nil {
		return nil, failure(KindUnsupportedModel, desc.ID, "provider has no api config")
	}

	body, contentType, err := encodeBody(desc.API.Encoding, desc.API.Body(req))
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, ProviderID: desc.ID, Message: "encode body", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, desc.API.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindUpstream, ProviderID: desc.ID, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("x-rapidapi-key", d.cfg.APIKey)
	httpReq.Header.Set("x-rapidapi-host", desc.API.Host)

	return d.do(desc.ID, httpReq)
}

func encodeBody(enc Encoding, fields map[string]any) ([]byte, string, error) {
	switch enc {
	case EncodingMultipart:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := w.WriteField(k, fmt.Sprint(fields[k])); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	default:
		b, err := json.Marshal(fields)
		return b, "application/json", err
	}
}

func (d *Dispatcher) fetchAsset(ctx context.Context, providerID, assetURL string) (*Asset, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, ProviderID: providerID, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Accept", "image/*")

	resp, err := d.do(providerID, httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return d.readImage(providerID, resp)
}

// do sends req and turns transport failures and non-2xx answers into upstream errors.
func (d *Dispatcher) do(providerID string, req *http.Request) (*http.Response, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUpstream, ProviderID: providerID, Message: req.Method + " " + req.URL.Host, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyPreview))
		_ = resp.Body.Close()
		return nil, &Error{
			Kind:       KindUpstream,
			ProviderID: providerID,
			Status:     resp.StatusCode,
			Message:    fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(preview))),
		}
	}
	return resp, nil
}

// readImage validates the declared media type and reads at most MaxAssetBytes.
func (d *Dispatcher) readImage(providerID string, resp *http.Response) (*Asset, error) {
	declared := resp.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, failure(KindInvalidAssetType, providerID, "declared content type %q is not an image", declared)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxAssetBytes+1))
	if err != nil {
		return nil, &Error{Kind: KindUpstream, ProviderID: providerID, Message: "read image", Err: err}
	}
	if int64(len(data)) > d.cfg.MaxAssetBytes {
		return nil, failure(KindUpstream, providerID, "image exceeds %d bytes", d.cfg.MaxAssetBytes)
	}
	if len(data) == 0 {
		return nil, failure(KindUpstream, providerID, "empty image body")
	}
	return &Asset{Data: data, MediaType: mediaType, ProviderID: providerID}, nil
}

// IsRetryable reports whether a failed Generate could succeed if the caller
// tries again unchanged.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindUpstream, KindMissingAssetURL, KindInvalidAssetType:
		return true
	}
	return false
}
