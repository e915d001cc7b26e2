package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// MockProofValue is the proof value emitted by the mock signer. It marks a
// credential as development-only and verifiable by structure alone.
const MockProofValue = "mock-signature-for-development-only"

// CredentialSigner signs and verifies credential payloads. The bridge's
// correctness does not depend on real signatures; this capability interface
// lets a real signer replace the mock without touching correlator or
// translator logic.
type CredentialSigner interface {
	// Sign returns a proof value for the payload.
	Sign(payload []byte) (string, error)
	// Verify reports whether the proof value matches the payload.
	Verify(payload []byte, proofValue string) bool
	// Type is the proof type string recorded on credentials (e.g. Ed25519Signature2020).
	Type() string
}

// MockSigner emits the fixed development proof value.
type MockSigner struct{}

func (MockSigner) Sign(_ []byte) (string, error) { return MockProofValue, nil }

func (MockSigner) Verify(_ []byte, proofValue string) bool { return proofValue == MockProofValue }

func (MockSigner) Type() string { return "MockSignature2023" }

// HMACSigner produces deterministic HMAC-SHA256 proofs keyed by a shared
// secret. A step up from MockSigner for multi-process development setups;
// still not a real credential signature suite.
type HMACSigner struct {
	key []byte
}

// NewHMACSigner returns an HMACSigner using the given secret.
func NewHMACSigner(secret []byte) *HMACSigner {
	return &HMACSigner{key: secret}
}

func (s *HMACSigner) Sign(payload []byte) (string, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (s *HMACSigner) Verify(payload []byte, proofValue string) bool {
	want, err := s.Sign(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(proofValue))
}

func (s *HMACSigner) Type() string { return "HmacSignature2023" }
