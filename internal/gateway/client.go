package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/domain"
	"gitlab.ozon.dev/pupkingeorgij/truckdispatch/internal/metrics"
)

const (
	DefaultTimeout = 20 * time.Second

	maxBodySize = 8 << 20
)

const (
	OpRegister    = "register"
	OpLogin       = "login"
	OpCreateOrder = "create_order"
	OpListOrders  = "list_orders"
	OpLogout      = "logout"
)

type Config struct {
	// BaseURL includes the /api prefix, e.g. http://127.0.0.1:8000/api.
	BaseURL string
	Timeout time.Duration
}

// Client talks to the dispatch API. Every method makes exactly one attempt.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "gateway")),
	}
}

type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (c *Client) Register(ctx context.Context, profile domain.Profile) (err error) {
	defer c.observe(OpRegister, time.Now(), &err)

	resp, err := c.do(ctx, OpRegister, http.MethodPost, "/register", nil, profile)
	if err != nil {
		return err
	}
	return classify(OpRegister, resp)
}

func (c *Client) Login(ctx context.Context, creds domain.Credentials) (sess domain.Session, err error) {
	defer c.observe(OpLogin, time.Now(), &err)

	resp, err := c.do(ctx, OpLogin, http.MethodPost, "/login", nil, creds)
	if err != nil {
		return domain.Session{}, err
	}
	// Every refused login is an authentication failure, including 422s for
	// malformed credentials.
	if err := classify(OpLogin, resp, http.StatusUnauthorized, http.StatusForbidden); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return domain.Session{}, &domain.AuthError{Status: verr.Status, Message: verr.Message}
		}
		return domain.Session{}, err
	}

	token, err := tokenFrom(resp.body)
	if err != nil {
		return domain.Session{}, &domain.NetworkError{Op: OpLogin, Err: err}
	}
	if token == "" {
		return domain.Session{}, &domain.AuthError{Status: resp.status, Message: "login response carried no token"}
	}
	return domain.Session{Token: token}, nil
}

func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest, sess domain.Session) (rec *domain.OrderRecord, err error) {
	defer c.observe(OpCreateOrder, time.Now(), &err)

	if sess.IsZero() {
		return nil, domain.ErrSessionMissing
	}

	resp, err := c.do(ctx, OpCreateOrder, http.MethodPost, "/orders", &sess, req)
	if err != nil {
		return nil, err
	}
	if err := classify(OpCreateOrder, resp, http.StatusUnauthorized); err != nil {
		return nil, err
	}

	rec, err = recordFrom(resp.body, req)
	if err != nil {
		return nil, &domain.NetworkError{Op: OpCreateOrder, Err: err}
	}
	return rec, nil
}

func (c *Client) ListOrders(ctx context.Context, sess domain.Session) (orders []domain.OrderRecord, err error) {
	defer c.observe(OpListOrders, time.Now(), &err)

	if sess.IsZero() {
		return nil, domain.ErrSessionMissing
	}

	resp, err := c.do(ctx, OpListOrders, http.MethodGet, "/orders", &sess, nil)
	if err != nil {
		return nil, err
	}
	if err := classify(OpListOrders, resp, http.StatusUnauthorized); err != nil {
		return nil, err
	}

	orders, err = recordsFrom(resp.body)
	if err != nil {
		return nil, &domain.NetworkError{Op: OpListOrders, Err: err}
	}
	return orders, nil
}

// Logout asks the server to revoke the token. Any non-2xx answer is a failure.
func (c *Client) Logout(ctx context.Context, sess domain.Session) (err error) {
	defer c.observe(OpLogout, time.Now(), &err)

	if sess.IsZero() {
		return domain.ErrSessionMissing
	}

	resp, err := c.do(ctx, OpLogout, http.MethodPost, "/logout", &sess, nil)
	if err != nil {
		return err
	}
	return classify(OpLogout, resp, http.StatusUnauthorized)
}

func (c *Client) do(ctx context.Context, op, method, path string, sess *domain.Session, payload interface{}) (*response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != nil {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	log := c.logger.With(
		zap.String("op", op),
		zap.String("request_id", requestID),
	)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		log.Warn("failed to read response body", zap.Int("status", resp.StatusCode), zap.Error(err))
		return nil, &domain.NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	log.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &response{status: resp.StatusCode, body: data}, nil
}

func (c *Client) observe(op string, start time.Time, errp *error) {
	metrics.ObserveGatewayCall(op, outcome(*errp), time.Since(start))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrSessionMissing):
		return "session_missing"
	case domain.IsAuth(err):
		return "auth"
	case domain.IsValidation(err):
		return "validation"
	case domain.IsNetwork(err):
		return "network"
	default:
		return "error"
	}
}

// classify maps a non-2xx response onto the error taxonomy. Statuses listed in
// authStatuses become AuthError, other 4xx are validation failures and
// everything else counts as the service being unreachable.
func classify(op string, resp *response, authStatuses ...int) error {
	if resp.ok() {
		return nil
	}

	msg := messageFrom(resp.body, resp.status)
	for _, s := range authStatuses {
		if resp.status == s {
			return &domain.AuthError{Status: resp.status, Message: msg}
		}
	}

	if resp.status >= 400 && resp.status < 500 {
		return &domain.ValidationError{
			Status:  resp.status,
			Message: msg,
			Fields:  fieldErrorsFrom(resp.body),
		}
	}
	return &domain.NetworkError{Op: op, Err: fmt.Errorf("unexpected status %d: %s", resp.status, msg)}
}
