package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *HTTPClient {
	t.Helper()
	client, err := NewHTTPClient("http://remote.test/", WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)
	return client
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient("  ")
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFetchClientsRequest(t *testing.T) {
	id := uuid.New()
	var capturedURL, capturedAuth string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedAuth = req.Header.Get("Authorization")
		return jsonResponse(http.StatusOK, `{"data":[{"id":"`+id.String()+`","name":"Mercado","code":7,"active":true,"sales_rep_id":"rep-1","visit_days":["mon","thu"]}]}`), nil
	})

	rows, err := client.FetchClients(context.Background(), "rep-1", "tok")
	require.NoError(t, err)
	assert.Equal(t, "http://remote.test/api/v1/reps/rep-1/clients", capturedURL)
	assert.Equal(t, "Bearer tok", capturedAuth)
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)
	assert.True(t, rows[0].VisitDays.Contains(enums.WeekdayThu))
}

func TestFetchProductsRejectsMalformedRows(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"data":[{"id":"`+uuid.NewString()+`","code":1,"sale_price":"10"}]}`), nil
	})

	_, err := client.FetchProducts(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRemoteRejected))
}

func TestFetchProductsEnforcesCatalogueInvariants(t *testing.T) {
	fields := map[string]string{
		"ceiling above 100": `"sale_price":"10","max_discount_percent":"150"`,
		"negative ceiling":  `"sale_price":"10","max_discount_percent":"-5"`,
		"sub unit ratio 1":  `"sale_price":"10","sub_unit":"UN","sub_unit_ratio":1`,
		"sub unit no ratio": `"sale_price":"10","sub_unit":"UN"`,
		"negative price":    `"sale_price":"-1"`,
	}
	for name, extra := range fields {
		t.Run(name, func(t *testing.T) {
			body := `{"data":[{"id":"` + uuid.NewString() + `","code":1,"name":"Cafe","main_unit":"CX",` + extra + `}]}`
			client := newTestClient(t, func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, body), nil
			})

			_, err := client.FetchProducts(context.Background(), "tok")
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRemoteRejected))
		})
	}
}

func TestFetchPaymentTablesDecodesEnvelope(t *testing.T) {
	id := uuid.New()
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/api/v1/payment-tables", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"data":[{"id":"`+id.String()+`","name":"30/60","active":true}]}`), nil
	})

	rows, err := client.FetchPaymentTables(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "30/60", rows[0].Name)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		auth   bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":"UNAUTHORIZED","message":"token expired"}}`, true},
		{"forbidden", http.StatusForbidden, ``, true},
		{"bad request", http.StatusBadRequest, `{"error":{"code":"VALIDATION_FAILED","message":"bad"}}`, false},
		{"server error", http.StatusInternalServerError, `boom`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(*http.Request) (*http.Response, error) {
				return jsonResponse(tc.status, tc.body), nil
			})
			_, err := client.FetchProducts(context.Background(), "tok")
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRemoteRejected))
			assert.Equal(t, tc.auth, IsAuthFailure(err))

			details, ok := pkgerrors.As(err).Details().(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tc.status, details["status"])
		})
	}
}

func TestStatusErrorKeepsRemoteRequestID(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"error":{"code":"VALIDATION_FAILED","message":"bad","request_id":"req-42"}}`), nil
	})
	_, err := client.FetchProducts(context.Background(), "tok")
	require.Error(t, err)

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "req-42", details["request_id"])
	assert.Equal(t, "VALIDATION_FAILED", details["remote_code"])
}

func TestTransportErrorIsUnreachable(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: no route to host")
	})

	_, err := client.FetchProducts(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRemoteUnreachable))
	assert.False(t, IsAuthFailure(err))
}

func TestCanceledContextIsUnreachable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return nil, req.Context().Err()
	})

	_, err := client.FetchProducts(ctx, "tok")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRemoteUnreachable))
	assert.True(t, IsCanceled(err))
}

func TestTransmitOrders(t *testing.T) {
	order := models.Order{
		ID:         "ORD-1",
		SalesRepID: "rep-1",
		CustomerID: uuid.New(),
		Total:      decimal.NewFromInt(10),
		Status:     enums.OrderStatusPending,
		SyncStatus: enums.SyncStatusPendingSync,
		CreatedAt:  time.Now().UTC(),
	}

	var payload TransmitRequest
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/api/v1/orders/batch", req.URL.Path)
		require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
		return jsonResponse(http.StatusOK, `{"data":{"success":true,"results":[{"order_id":"ORD-1","status":"duplicate"}]}}`), nil
	})

	resp, err := client.TransmitOrders(context.Background(), []models.Order{order}, "tok")
	require.NoError(t, err)
	require.Len(t, payload.Orders, 1)
	assert.Equal(t, "ORD-1", payload.Orders[0].ID)

	res, ok := resp.ResultFor("ORD-1")
	require.True(t, ok)
	assert.Equal(t, ResultDuplicate, res.Status)
	assert.True(t, res.Status.Succeeded())
}

func TestTransmitOrdersBatchFailure(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"data":{"success":false}}`), nil
	})

	_, err := client.TransmitOrders(context.Background(), []models.Order{{ID: "ORD-1"}}, "tok")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRemoteRejected))
}

func TestTransmitOrdersRejectsUnknownResultStatus(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"data":{"success":true,"results":[{"order_id":"ORD-1","status":"maybe"}]}}`), nil
	})

	_, err := client.TransmitOrders(context.Background(), []models.Order{{ID: "ORD-1"}}, "tok")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeRemoteRejected))
}

func TestTransmitOrdersRequiresOrders(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	_, err := client.TransmitOrders(context.Background(), nil, "tok")
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		var body LoginRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "R01", body.RepCode)
		return jsonResponse(http.StatusOK, `{"data":{"token":"jwt","rep_id":"rep-1","rep_code":"R01","name":"Ana"}}`), nil
	})

	session, err := client.Login(context.Background(), " R01 ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt", session.Token)
	assert.Equal(t, "rep-1", session.RepID)
}

func TestHealthCheck(t *testing.T) {
	up := NewHealthCheck("http://remote.test", time.Second, &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/health/live", req.URL.Path)
		return jsonResponse(http.StatusOK, `{}`), nil
	})})
	assert.True(t, up.Online(context.Background()))

	down := NewHealthCheck("http://remote.test", time.Second, &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("offline")
	})})
	assert.False(t, down.Online(context.Background()))
	assert.True(t, bool(StaticConnectivity(true)))
	assert.False(t, StaticConnectivity(false).Online(context.Background()))
}
