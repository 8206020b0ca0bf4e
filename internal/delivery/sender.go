package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"poshook/internal/constants"
	"poshook/pkg/circuitbreaker"
	apperrors "poshook/pkg/errors"
	"poshook/pkg/tracing"
)

// Request is one HTTP send of an attempt.
type Request struct {
	AttemptID      string
	AttemptNumber  int
	Body           []byte
	IdempotencyKey string
}

// Result of a single send. Err is nil on a 2xx response; otherwise it is
// a transient or permanent delivery error.
type Result struct {
	StatusCode int
	RetryAfter time.Duration
	Duration   time.Duration
	Err        error
}

type Sender interface {
	Send(ctx context.Context, req Request) Result
}

type SenderConfig struct {
	URL                  string
	Timeout              time.Duration
	BearerToken          string
	SigningSecret        string
	SignatureHeader      string
	MaxResponseBodyBytes int64
}

type SenderOption func(*HTTPSender)

// WithCircuitBreaker short-circuits sends while the endpoint keeps failing.
// Only transient failures count against the breaker.
func WithCircuitBreaker(cb *circuitbreaker.Wrapper) SenderOption {
	return func(s *HTTPSender) {
		s.breaker = cb
	}
}

func WithRateLimiter(l *rate.Limiter) SenderOption {
	return func(s *HTTPSender) {
		s.limiter = l
	}
}

func WithSenderClock(now func() time.Time) SenderOption {
	return func(s *HTTPSender) {
		s.now = now
	}
}

type HTTPSender struct {
	client  *http.Client
	cfg     SenderConfig
	breaker *circuitbreaker.Wrapper
	limiter *rate.Limiter
	now     func() time.Time
}

// NewHTTPSender wraps client. The client is expected not to follow
// redirects; a 3xx answer is treated as a rejection.
func NewHTTPSender(client *http.Client, cfg SenderConfig, opts ...SenderOption) *HTTPSender {
	if client == nil {
		client = NewHTTPClient(nil)
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = constants.DefaultSignatureHeader
	}
	if cfg.MaxResponseBodyBytes <= 0 {
		cfg.MaxResponseBodyBytes = constants.DefaultMaxResponseBodyBytes
	}

	s := &HTTPSender{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHTTPClient returns a client that does not follow redirects. The
// per-request timeout is applied through the request context instead.
func NewHTTPClient(transport http.RoundTripper) *http.Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *HTTPSender) Send(ctx context.Context, req Request) (res Result) {
	start := s.now()

	ctx, span := tracing.StartDeliverySpan(ctx, req.AttemptID, req.AttemptNumber)
	defer func() {
		tracing.EndDeliverySpan(span, res.StatusCode, res.Err)
	}()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Result{Err: classifyTransportError(err), Duration: s.now().Sub(start)}
		}
	}

	send := func() error {
		res = s.do(ctx, req)
		return res.Err
	}

	if s.breaker == nil {
		_ = send()
	} else if err := s.breaker.Execute(ctx, send); err != nil && res.Err == nil {
		res.Err = breakerError(err)
	}

	res.Duration = s.now().Sub(start)
	return res
}

func breakerError(err error) error {
	if circuitbreaker.IsOpenError(err) {
		return apperrors.ErrTransientDelivery.
			WithCause(err).
			WithMessage("circuit breaker is open").
			WithDetail(DetailReason, "circuit_open")
	}
	return classifyTransportError(err)
}

func (s *HTTPSender) do(ctx context.Context, req Request) Result {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Result{Err: apperrors.ErrPermanentDelivery.WithCause(err).WithMessage("invalid webhook request")}
	}

	httpReq.Header.Set("Content-Type", constants.ContentTypeJSON)
	httpReq.Header.Set(constants.IdempotencyKeyHeader, req.IdempotencyKey)
	httpReq.Header.Set(constants.AttemptHeader, strconv.Itoa(req.AttemptNumber))
	if s.cfg.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.cfg.BearerToken)
	}
	if s.cfg.SigningSecret != "" {
		httpReq.Header.Set(s.cfg.SignatureHeader, Sign(req.Body, s.cfg.SigningSecret))
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Result{Err: classifyTransportError(err)}
	}
	defer resp.Body.Close()

	// Read a bounded prefix so the connection can be reused; the rest is
	// discarded.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxResponseBodyBytes))
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, s.cfg.MaxResponseBodyBytes))

	res := Result{StatusCode: resp.StatusCode}
	res.Err = classifyResponse(resp.StatusCode, resp.Header, body, s.now())
	res.RetryAfter = retryAfterOf(res.Err)
	return res
}

// BreakerSuccess is the IsSuccessful hook for the endpoint circuit
// breaker: permanent rejections mean the endpoint is up.
func BreakerSuccess(err error) bool {
	return err == nil || !apperrors.IsRetryable(err)
}
