package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	vperrors "github.com/wxxb789/vprism-core/internal/errors"
	"github.com/wxxb789/vprism-core/internal/model"
)

// RequestBuilder turns a Query into the wire request for a concrete
// upstream. Concrete adapters (yfinance/akshare/vprism_native HTTP
// clients) are out of scope for this module; this is the seam they plug
// into.
type RequestBuilder interface {
	BuildRequest(ctx context.Context, q model.Query) (*http.Request, error)
}

// ResponseParser turns a successful HTTP response into a model.Response.
type ResponseParser interface {
	ParseResponse(resp *http.Response, q model.Query) (model.Response, error)
}

// HTTPProvider is the net/http base every concrete HTTP-backed provider
// embeds: it owns auth header application, concurrency/rate-limit gating
// via Base, and the 401/403/429/5xx retry-with-backoff loop from spec §3's
// backoff_factor/max_retries config, grounded on the teacher's
// coingecko.go/okx.go status-code handling and data/rl.Handle429Response
// exponential backoff.
type HTTPProvider struct {
	*Base

	client  *http.Client
	auth    Auth
	builder RequestBuilder
	parser  ResponseParser
}

// NewHTTPProvider constructs an HTTPProvider. client defaults to
// http.DefaultClient if nil.
func NewHTTPProvider(name string, cap Capability, auth Auth, limits RateLimitConfig, concurrentRequests int, client *http.Client, builder RequestBuilder, parser ResponseParser) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{
		Base:    NewBase(name, cap, auth, limits, concurrentRequests),
		client:  client,
		auth:    auth,
		builder: builder,
		parser:  parser,
	}
}

// GetData executes one logical request with retry-with-backoff on 429 and
// 5xx responses, up to limits.MaxRetries attempts. 401/403 responses fail
// immediately as non-retryable authentication errors.
func (p *HTTPProvider) GetData(ctx context.Context, q model.Query) (model.Response, error) {
	if err := p.Acquire(ctx); err != nil {
		return model.Response{}, err
	}
	defer p.Release()

	maxRetries := p.limits.maxRetries()
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := p.WaitRateLimit(ctx); err != nil {
			return model.Response{}, err
		}
		if err := p.CheckRateLimit(time.Now()); err != nil {
			return model.Response{}, err
		}

		resp, err := p.doRequest(ctx, q)
		if err == nil {
			return resp, nil
		}

		de, ok := vperrors.As(err)
		if ok && !de.Retryable {
			return model.Response{}, err
		}

		lastErr = err
		if attempt == maxRetries {
			break
		}

		delay := p.limits.RetryDelay(attempt)
		log.Warn().Str("provider", p.Name()).Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("retrying after transient provider error")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.Response{}, ctx.Err()
		}
	}
	return model.Response{}, lastErr
}

func (p *HTTPProvider) doRequest(ctx context.Context, q model.Query) (model.Response, error) {
	req, err := p.builder.BuildRequest(ctx, q)
	if err != nil {
		return model.Response{}, vperrors.New(vperrors.CodeValidation, "provider", err.Error(), false, map[string]any{"provider": p.Name()})
	}
	p.auth.ApplyHeaders(req.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		return model.Response{}, vperrors.New(vperrors.CodeNetwork, "provider", err.Error(), true, map[string]any{"provider": p.Name()})
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.Response{}, vperrors.New(vperrors.CodeAuthentication, "provider", fmt.Sprintf("%s: HTTP %d", p.Name(), resp.StatusCode), false, map[string]any{"provider": p.Name(), "status": resp.StatusCode})
	case http.StatusTooManyRequests:
		return model.Response{}, vperrors.New(vperrors.CodeRateLimit, "provider", fmt.Sprintf("%s: HTTP 429", p.Name()), true, map[string]any{"provider": p.Name()})
	}
	if resp.StatusCode >= 500 {
		return model.Response{}, vperrors.New(vperrors.CodeProvider, "provider", fmt.Sprintf("%s: HTTP %d", p.Name(), resp.StatusCode), true, map[string]any{"provider": p.Name(), "status": resp.StatusCode})
	}
	if resp.StatusCode != http.StatusOK {
		return model.Response{}, vperrors.New(vperrors.CodeProvider, "provider", fmt.Sprintf("%s: HTTP %d", p.Name(), resp.StatusCode), false, map[string]any{"provider": p.Name(), "status": resp.StatusCode})
	}

	return p.parser.ParseResponse(resp, q)
}

func (p *HTTPProvider) StreamData(ctx context.Context, q model.Query) (<-chan model.DataPoint, error) {
	return nil, ErrStreamingNotSupported
}

func (p *HTTPProvider) HealthCheck(ctx context.Context) bool {
	return p.auth.authenticate(ctx)
}
