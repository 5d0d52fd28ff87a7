package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
	"github.com/angelmondragon/fieldsync/pkg/logger"
	"github.com/angelmondragon/fieldsync/pkg/types"
)

const (
	defaultTimeout        = 30 * time.Second
	errorBodyReadLimit    = 4096
	pathLogin             = "/api/v1/auth/login"
	pathProducts          = "/api/v1/products"
	pathPaymentTables     = "/api/v1/payment-tables"
	pathOrderBatch        = "/api/v1/orders/batch"
	pathClientsForRepTmpl = "/api/v1/reps/%s/clients"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// HTTPClient implements Service over the JSON API served by cmd/api.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	logg       *logger.Logger
}

var _ Service = (*HTTPClient)(nil)

// Option configures optional client behavior.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *HTTPClient) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *HTTPClient) {
		if logg != nil {
			c.logg = logg
		}
	}
}

// NewHTTPClient builds a client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "remote base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid remote base url")
	}

	client := &HTTPClient{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logg:       logger.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *HTTPClient) Login(ctx context.Context, repCode, password string) (Session, error) {
	req := LoginRequest{RepCode: strings.TrimSpace(repCode), Password: password}
	if err := validate.Struct(req); err != nil {
		return Session{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "rep code and password are required")
	}

	var session Session
	if err := c.do(ctx, "login", http.MethodPost, pathLogin, "", req, &session); err != nil {
		return Session{}, err
	}
	if err := validate.Struct(session); err != nil {
		return Session{}, malformed("login", err)
	}
	return session, nil
}

func (c *HTTPClient) FetchClients(ctx context.Context, repID, credential string) ([]models.Client, error) {
	repID = strings.TrimSpace(repID)
	if repID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rep id is required")
	}
	var rows []models.Client
	if err := c.do(ctx, "fetch clients", http.MethodGet, fmt.Sprintf(pathClientsForRepTmpl, url.PathEscape(repID)), credential, nil, &rows); err != nil {
		return nil, err
	}
	if err := validateRows("fetch clients", rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) FetchProducts(ctx context.Context, credential string) ([]models.Product, error) {
	var rows []models.Product
	if err := c.do(ctx, "fetch products", http.MethodGet, pathProducts, credential, nil, &rows); err != nil {
		return nil, err
	}
	if err := validateRows("fetch products", rows); err != nil {
		return nil, err
	}
	for i, p := range rows {
		if err := p.Check(); err != nil {
			return nil, malformed("fetch products", fmt.Errorf("row %d: %w", i, err))
		}
	}
	return rows, nil
}

func (c *HTTPClient) FetchPaymentTables(ctx context.Context, credential string) ([]models.PaymentTable, error) {
	var rows []models.PaymentTable
	if err := c.do(ctx, "fetch payment tables", http.MethodGet, pathPaymentTables, credential, nil, &rows); err != nil {
		return nil, err
	}
	if err := validateRows("fetch payment tables", rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) TransmitOrders(ctx context.Context, orders []models.Order, credential string) (TransmitResponse, error) {
	req := TransmitRequest{Orders: orders}
	if err := validate.Struct(req); err != nil {
		return TransmitResponse{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "at least one order is required")
	}

	var resp TransmitResponse
	if err := c.do(ctx, "transmit orders", http.MethodPost, pathOrderBatch, credential, req, &resp); err != nil {
		return TransmitResponse{}, err
	}
	if err := validate.Struct(resp); err != nil {
		return TransmitResponse{}, malformed("transmit orders", err)
	}
	if !resp.Success {
		return resp, pkgerrors.New(pkgerrors.CodeRemoteRejected, "remote service reported batch failure")
	}
	return resp, nil
}

// do performs one JSON round trip and unwraps the success envelope into out.
func (c *HTTPClient) do(ctx context.Context, op, method, path, credential string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+op+" request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+op+" request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unreachable(err, "execute "+op+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"remote_op":   op,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		c.logg.Warn(logCtx, "remote request rejected")
		return statusError(op, resp.StatusCode, msg)
	}
	c.logg.Debug(logCtx, "remote request completed")

	envelope := types.SuccessEnvelope{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if IsCanceled(err) || ctx.Err() != nil {
			return unreachable(err, "read "+op+" response")
		}
		return malformed(op, err)
	}
	return nil
}

func validateRows[T any](op string, rows []T) error {
	for i := range rows {
		if err := validate.Struct(rows[i]); err != nil {
			return malformed(op, fmt.Errorf("row %d: %w", i, err))
		}
	}
	return nil
}

func malformed(op string, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeRemoteRejected, err, op+" returned a malformed payload")
}
