package provisioning

import (
	"testing"

	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActivationString(t *testing.T) {
	parsed, err := ParseActivationString("1$smdp.example.com$ABC123")
	require.NoError(t, err)
	assert.Equal(t, "1", parsed.Version)
	assert.Equal(t, "smdp.example.com", parsed.SMDPAddress)
	assert.Equal(t, "ABC123", parsed.MatchingID)
	assert.Equal(t, "1$smdp.example.com$ABC123", parsed.String())

	parsed, err = ParseActivationString("LPA:1$rsp.partner.io$K2-XYZ")
	require.NoError(t, err)
	assert.Equal(t, "rsp.partner.io", parsed.SMDPAddress)
}

func TestParseActivationString_Incomplete(t *testing.T) {
	for _, raw := range []string{"", "1$smdp.example.com", "1$$ABC", "1$smdp.example.com$ "} {
		_, err := ParseActivationString(raw)
		assert.ErrorIs(t, err, orderdomain.ErrIncompleteActivation, raw)
	}
}

func TestOrderStatusResult_FirstComplete(t *testing.T) {
	result := OrderStatusResult{
		Status: StatusCompleted,
		Profiles: []Profile{
			{TransactionRef: "T1", ActivationString: "1$smdp.example.com"},
			{TransactionRef: "T2", ProfileID: "8988", ActivationString: "1$smdp.example.com$ABC123", QRCodeURL: "https://qr"},
		},
	}
	profile, details, ok := result.FirstComplete()
	require.True(t, ok)
	assert.Equal(t, "T2", profile.TransactionRef)
	assert.Equal(t, "8988", details.ICCID)
	assert.Equal(t, "ABC123", details.ActivationCode)
	assert.Equal(t, "https://qr", details.InstallURL)

	_, _, ok = OrderStatusResult{Profiles: []Profile{{ActivationString: "1$smdp.example.com"}}}.FirstComplete()
	assert.False(t, ok)
}
