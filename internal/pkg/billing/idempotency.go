package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeriveEventKey builds the deduplication key for a webhook delivery:
// eventType_providerEventID_<first 8 hex chars of sha256(payload)>.
func DeriveEventKey(eventType, providerEventID string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return eventType + "_" + providerEventID + "_" + hex.EncodeToString(sum[:])[:8]
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserIDFromEmail derives the entitlement holder id from the payer email. The
// same address always maps to the same id; the raw email is never the key.
func UserIDFromEmail(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}
