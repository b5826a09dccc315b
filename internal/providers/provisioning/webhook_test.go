package provisioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhook_OrderStatusCamelCase(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"notifyId":"n-1","notifyType":"ORDER_STATUS","content":{"orderNo":"B2025","transactionId":"1001","orderStatus":"GOT_RESOURCE","esimList":[{"iccid":"8988","esimTranNo":"TX9","ac":"LPA:1$smdp.example.com$ABC123"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "n-1", ev.NotificationID)
	assert.Equal(t, WebhookOrderStatus, ev.Kind)
	assert.Equal(t, "B2025", ev.PartnerOrderID)
	assert.Equal(t, "1001", ev.CustomerReference)
	assert.Equal(t, StatusCompleted, ev.Status)

	profile, ok := ev.FirstComplete()
	require.True(t, ok)
	assert.Equal(t, "TX9", profile.TransactionRef)
}

func TestParseWebhook_InlineProfileSnakeCase(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"notification_id":"n-2","event_type":"profile.installed","data":{"order_id":"ORD-7","transaction_ref":"TX1","profile_id":"8988","state":"installed"}}`))
	require.NoError(t, err)
	assert.Equal(t, WebhookProfileInstalled, ev.Kind)
	assert.Equal(t, "ORD-7", ev.PartnerOrderID)
	require.Len(t, ev.Profiles, 1)
	assert.True(t, ev.Profiles[0].Installed)
	assert.Equal(t, "TX1", ev.Profiles[0].TransactionRef)

	_, ok := ev.FirstComplete()
	assert.False(t, ok)
}

func TestParseWebhook_RejectsMissingIdentity(t *testing.T) {
	_, err := ParseWebhook([]byte(`{"notifyType":"ORDER_STATUS","content":{"orderNo":"B1"}}`))
	assert.ErrorIs(t, err, ErrInvalidWebhook)

	_, err = ParseWebhook([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidWebhook)
}
