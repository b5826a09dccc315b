package provisioning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(Config{BaseURL: srv.URL, APIKey: "k", Timeout: timeout}, zap.NewNop(), nil)
}

func TestCreateOrder_EnvelopeWithCamelCaseFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "1001", r.Header.Get("Idempotency-Key"))

		var body createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "eu-3gb-30d", body.SKU)
		assert.Equal(t, "1001", body.CustomerReference)

		_, _ = w.Write([]byte(`{"success":true,"obj":{"orderNo":"B2025","status":"GOT_RESOURCE","esimList":[{"iccid":"8988","esimTranNo":"TX9","ac":"LPA:1$smdp.example.com$ABC123","qrCodeUrl":"https://qr/1"}]}}`))
	}, time.Second)

	res, err := client.CreateOrder(context.Background(), "eu-3gb-30d", "1001")
	require.NoError(t, err)
	assert.Equal(t, "B2025", res.PartnerOrderID)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "LPA:1$smdp.example.com$ABC123", res.ActivationString)
	require.NotNil(t, res.Profile)
	assert.Equal(t, "TX9", res.Profile.TransactionRef)
	assert.Equal(t, "8988", res.Profile.ProfileID)
}

func TestCreateOrder_FlatSnakeCaseFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order_id":"ORD-7","status":"processing"}`))
	}, time.Second)

	res, err := client.CreateOrder(context.Background(), "sku", "1002")
	require.NoError(t, err)
	assert.Equal(t, "ORD-7", res.PartnerOrderID)
	assert.Equal(t, StatusProcessing, res.Status)
	assert.Empty(t, res.ActivationString)
	assert.Nil(t, res.Profile)
}

func TestGetOrderStatus_NormalizesProfiles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/ORD-7", r.URL.Path)
		_, _ = w.Write([]byte(`{"order_id":"ORD-7","status":"completed","profiles":[{"profile_id":"8944","transaction_ref":"TX1","activation_code":"1$smdp.example.com$ABC123","qr_code_url":"https://qr/2","expires_at":"2026-12-01T00:00:00Z","state":"installed"}]}`))
	}, time.Second)

	res, err := client.GetOrderStatus(context.Background(), "ORD-7")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	require.Len(t, res.Profiles, 1)
	p := res.Profiles[0]
	assert.Equal(t, "8944", p.ProfileID)
	assert.Equal(t, "TX1", p.TransactionRef)
	assert.Equal(t, "https://qr/2", p.QRCodeURL)
	assert.True(t, p.Installed)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, 2026, p.ExpiresAt.Year())
}

func TestPartnerErrorsAreClassified(t *testing.T) {
	t.Run("explicit rejection", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success":false,"errorCode":"200007","errorMsg":"insufficient balance"}`))
		}, time.Second)
		_, err := client.CreateOrder(context.Background(), "sku", "1")
		assert.ErrorIs(t, err, orderdomain.ErrPartnerRejected)
	})

	t.Run("client error status", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}, time.Second)
		_, err := client.GetOrderStatus(context.Background(), "X")
		assert.ErrorIs(t, err, orderdomain.ErrPartnerRejected)
	})

	t.Run("server error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, time.Second)
		_, err := client.GetOrderStatus(context.Background(), "X")
		assert.ErrorIs(t, err, orderdomain.ErrPartnerUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}, 50*time.Millisecond)
		_, err := client.GetOrderStatus(context.Background(), "X")
		assert.ErrorIs(t, err, orderdomain.ErrPartnerTimeout)
	})

	t.Run("not configured", func(t *testing.T) {
		client := NewHTTPClient(Config{}, zap.NewNop(), nil)
		_, err := client.GetOrderStatus(context.Background(), "X")
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.ErrorIs(t, err, orderdomain.ErrPartnerUnavailable)
	})
}

func TestTopUp_TargetsExistingProfile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders/topup", r.URL.Path)
		assert.Equal(t, "2002", r.Header.Get("Idempotency-Key"))

		var body topUpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TX9", body.EsimTranNo)
		assert.Equal(t, "eu-1gb-topup", body.SKU)
		assert.Equal(t, "2002", body.CustomerReference)

		_, _ = w.Write([]byte(`{"success":true,"obj":{"orderNo":"T-55","orderStatus":"SUCCESS"}}`))
	}, time.Second)

	res, err := client.TopUp(context.Background(), "TX9", "eu-1gb-topup", "2002")
	require.NoError(t, err)
	assert.Equal(t, "T-55", res.PartnerOrderID)
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestTopUp_RequiresProfileReference(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected partner call")
	}, time.Second)

	_, err := client.TopUp(context.Background(), " ", "eu-1gb-topup", "2002")
	require.ErrorIs(t, err, orderdomain.ErrInvalidOrder)
}
