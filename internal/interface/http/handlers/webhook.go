package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT WEBHOOK
// ══════════════════════════════════════════════════════════════════════════════

// SignatureHeader carries the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Signature"

// PaymentEvent is the payment provider's notification. Only the transaction
// id is used; its status is reloaded from the store.
type PaymentEvent struct {
	EventID       string `json:"event_id"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status,omitempty"`
}

// SignatureVerifier checks webhook signatures.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier creates a verifier. An empty secret rejects everything.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Sign returns the signature for body. Used by tests and local tooling.
func (v *SignatureVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body. A "sha256=" prefix is accepted.
func (v *SignatureVerifier) Verify(body []byte, signature string) bool {
	if len(v.secret) == 0 || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// ReadPaymentEvent reads the body, verifies its signature and decodes it.
func (v *SignatureVerifier) ReadPaymentEvent(r *http.Request) (*PaymentEvent, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read webhook body: %w", err)
	}

	if !v.Verify(body, r.Header.Get(SignatureHeader)) {
		return nil, shared.NewDomainError("webhook", "Verify", shared.ErrUnauthorized, "invalid webhook signature")
	}

	var event PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, shared.InvalidArgument("webhook", "Decode", "invalid JSON payload: %v", err)
	}
	if event.TransactionID == "" {
		return nil, shared.InvalidArgument("webhook", "Decode", "transaction_id is required")
	}
	return &event, nil
}
