package provisioning

import (
	"fmt"
	"strings"

	orderdomain "github.com/smallbiznis/simcore/internal/order/domain"
)

// ActivationString is a parsed LPA activation code of the form
// version$smdp$matching_id.
type ActivationString struct {
	Version     string
	SMDPAddress string
	MatchingID  string
}

// ParseActivationString splits raw into its parts. An optional "LPA:" prefix
// is accepted. Missing parts yield ErrIncompleteActivation.
func ParseActivationString(raw string) (ActivationString, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 4 && strings.EqualFold(raw[:4], "LPA:") {
		raw = raw[4:]
	}
	parts := strings.Split(raw, "$")
	if len(parts) < 3 {
		return ActivationString{}, fmt.Errorf("activation string has %d parts: %w", len(parts), orderdomain.ErrIncompleteActivation)
	}

	parsed := ActivationString{
		Version:     strings.TrimSpace(parts[0]),
		SMDPAddress: strings.TrimSpace(parts[1]),
		MatchingID:  strings.TrimSpace(parts[2]),
	}
	if parsed.SMDPAddress == "" || parsed.MatchingID == "" {
		return ActivationString{}, orderdomain.ErrIncompleteActivation
	}
	return parsed, nil
}

func (a ActivationString) String() string {
	return a.Version + "$" + a.SMDPAddress + "$" + a.MatchingID
}
