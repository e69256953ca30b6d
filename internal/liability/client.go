package liability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

const (
	DefaultMaxTries            = 5
	DefaultConsecutiveFailures = 5
	DefaultOpenTimeout         = 30 * time.Second
	DefaultRequestTimeout      = 5 * time.Second
)

var (
	// ErrUnavailable means the circuit is open and the remote validator was not called.
	ErrUnavailable = errors.New("liability: validator unavailable")

	ErrBadResponse = errors.New("liability: unexpected response")
)

// StatusError is a non-2xx answer from the remote validator.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("liability: validator returned %d: %s", e.Code, e.Body)
}

// Temporary reports whether retrying the same call may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

var _ interfaces.LiabilityChecker = (*Client)(nil)

// Client calls a remote liability validator over HTTP. Every attempt passes
// through a circuit breaker and failed attempts are retried with jittered
// exponential backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger

	maxTries        uint
	initialInterval time.Duration
	maxInterval     time.Duration

	consecutiveFailures uint32
	openTimeout         time.Duration
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithRetry sets how many attempts a check gets and the backoff between them.
func WithRetry(maxTries uint, initial, maxInterval time.Duration) ClientOption {
	return func(c *Client) {
		c.maxTries = maxTries
		c.initialInterval = initial
		c.maxInterval = maxInterval
	}
}

// WithBreaker sets how many consecutive failed attempts open the circuit and how long it stays open.
func WithBreaker(consecutiveFailures uint32, openTimeout time.Duration) ClientOption {
	return func(c *Client) {
		c.consecutiveFailures = consecutiveFailures
		c.openTimeout = openTimeout
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:             strings.TrimRight(baseURL, "/"),
		httpClient:          &http.Client{Timeout: DefaultRequestTimeout},
		logger:              zap.NewNop(),
		maxTries:            DefaultMaxTries,
		initialInterval:     100 * time.Millisecond,
		maxInterval:         2 * time.Second,
		consecutiveFailures: DefaultConsecutiveFailures,
		openTimeout:         DefaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "liability-validator",
		Timeout: c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.consecutiveFailures
		},
		// Client errors say nothing about the health of the validator.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Temporary()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

type liabilityResponse struct {
	Success bool                      `json:"success"`
	Message string                    `json:"message"`
	Data    *models.LiabilityDecision `json:"data"`
}

func (c *Client) CheckLiability(ctx context.Context, accountID string, amount decimal.Decimal) (models.LiabilityDecision, error) {
	if !amount.IsPositive() {
		return models.LiabilityDecision{}, ErrInvalidAmount
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval

	attempt := func() (models.LiabilityDecision, error) {
		res, err := c.breaker.Execute(func() (any, error) {
			return c.fetch(ctx, accountID, amount)
		})
		if err == nil {
			return res.(models.LiabilityDecision), nil
		}

		var se *StatusError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return models.LiabilityDecision{}, backoff.Permanent(fmt.Errorf("%w: %w", ErrUnavailable, err))
		case errors.As(err, &se) && !se.Temporary():
			return models.LiabilityDecision{}, backoff.Permanent(err)
		case errors.Is(err, ErrBadResponse):
			return models.LiabilityDecision{}, backoff.Permanent(err)
		}
		return models.LiabilityDecision{}, err
	}

	decision, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Info("retrying liability check",
				zap.String("account_id", accountID),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return models.LiabilityDecision{}, err
	}
	return decision, nil
}

func (c *Client) fetch(ctx context.Context, accountID string, amount decimal.Decimal) (models.LiabilityDecision, error) {
	q := url.Values{}
	q.Set("accountId", accountID)
	q.Set("amount", amount.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/liability?"+q.Encode(), nil)
	if err != nil {
		return models.LiabilityDecision{}, fmt.Errorf("%w: build request: %w", ErrBadResponse, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.LiabilityDecision{}, fmt.Errorf("liability: call validator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.LiabilityDecision{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload liabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.LiabilityDecision{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if !payload.Success || payload.Data == nil {
		return models.LiabilityDecision{}, fmt.Errorf("%w: %s", ErrBadResponse, payload.Message)
	}
	return *payload.Data, nil
}
