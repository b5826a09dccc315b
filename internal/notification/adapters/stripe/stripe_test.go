package stripe

import (
	"context"
	"net/http"
	"testing"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/smallbiznis/simcore/internal/notification/domain"
	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const intentPayload = `{"id":"evt_1","type":"payment_intent.succeeded","created":1712000000,"data":{"object":{"id":"pi_1","amount":1000,"amount_received":1000,"currency":"usd","metadata":{"order_id":"1001"}}}}`

func signedHeaders(secret, ts string, payload []byte) http.Header {
	h := http.Header{}
	h.Set("Stripe-Signature", "t="+ts+",v1="+Sign(secret, ts, payload))
	return h
}

func TestVerify(t *testing.T) {
	a := New("whsec_test")
	payload := []byte(intentPayload)

	require.NoError(t, a.Verify(context.Background(), payload, signedHeaders("whsec_test", "1712000000", payload)))
	assert.ErrorIs(t, a.Verify(context.Background(), payload, signedHeaders("other", "1712000000", payload)), notificationdomain.ErrInvalidSignature)
	assert.ErrorIs(t, a.Verify(context.Background(), payload, http.Header{}), notificationdomain.ErrInvalidSignature)

	tampered := []byte(intentPayload + " ")
	assert.ErrorIs(t, a.Verify(context.Background(), tampered, signedHeaders("whsec_test", "1712000000", payload)), notificationdomain.ErrInvalidSignature)

	assert.ErrorIs(t, New("").Verify(context.Background(), payload, http.Header{}), notificationdomain.ErrNotConfigured)
}

func TestParsePaymentIntentSucceeded(t *testing.T) {
	n, err := New("s").Parse(context.Background(), []byte(intentPayload))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", n.NotificationID)
	require.NotNil(t, n.OrderID)
	assert.Equal(t, snowflake.ID(1001), *n.OrderID)
	require.NotNil(t, n.Event)
	assert.Equal(t, orderdomain.EventPaymentCaptured, n.Event.Type)
	assert.Equal(t, "pi_1", n.Event.Payment.Reference)
	assert.Equal(t, int64(1000), n.Event.Payment.Amount)
	assert.Equal(t, "USD", n.Event.Payment.Currency)
}

func TestParseRefundIsIgnored(t *testing.T) {
	n, err := New("s").Parse(context.Background(), []byte(`{"id":"evt_2","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`))
	require.NoError(t, err)
	assert.True(t, n.Ignored())
}

func TestParseRejectsMissingOrderID(t *testing.T) {
	_, err := New("s").Parse(context.Background(), []byte(`{"id":"evt_3","type":"charge.succeeded","data":{"object":{"id":"ch_1","amount":5,"currency":"usd","metadata":{}}}}`))
	assert.ErrorIs(t, err, notificationdomain.ErrInvalidPayload)

	_, err = New("s").Parse(context.Background(), []byte(`{`))
	assert.ErrorIs(t, err, notificationdomain.ErrInvalidPayload)
}
