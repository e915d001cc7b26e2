package security

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func testKeyPEMs(t *testing.T) (privPEM, pubPEM string) {
	t.Helper()
	key, err := GenerateEphemeralKey()
	if err != nil {
		t.Fatalf("GenerateEphemeralKey: %v", err)
	}
	privDER, err := x509.MarshalECPrivateKey(key.(*ecdsa.PrivateKey))
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER}))
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privPEM, pubPEM
}

func TestParseKeys_InlinePEM(t *testing.T) {
	privPEM, pubPEM := testKeyPEMs(t)

	signer, err := ParsePrivateKey(privPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if KeyAlg(signer.Public()) != "ES256" || KeyAlg(pub) != "ES256" {
		t.Error("expected ES256 for ECDSA P-256 keys")
	}
}

func TestParsePrivateKey_FromFile(t *testing.T) {
	privPEM, _ := testKeyPEMs(t)
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, []byte(privPEM), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ParsePrivateKey(path); err != nil {
		t.Fatalf("ParsePrivateKey from file: %v", err)
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	if _, err := ParsePrivateKey(""); err == nil {
		t.Error("ParsePrivateKey should reject empty input")
	}
	if _, err := ParsePrivateKey("not pem"); err == nil {
		t.Error("ParsePrivateKey should reject non-PEM input")
	}
	if _, err := ParsePublicKey("-----BEGIN GARBAGE-----\nQUJD\n-----END GARBAGE-----"); err == nil {
		t.Error("ParsePublicKey should reject unknown block type")
	}
}

func TestKeyAlg_Unknown(t *testing.T) {
	if alg := KeyAlg(struct{}{}); alg != "" {
		t.Errorf("KeyAlg(unknown) = %q, want empty", alg)
	}
}
