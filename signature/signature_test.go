package signature

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedinode/fedinode/store"
	"github.com/fedinode/fedinode/types"
)

type staticResolver struct {
	pem string
	err error
}

func (r staticResolver) ResolvePublicKeyPem(ctx context.Context, keyID string) (string, error) {
	return r.pem, r.err
}

func generateKeyPair(t *testing.T) (string, string) {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privKey),
	})

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	return string(privPEM), string(pubPEM)
}

func TestParseSignatureHeader(t *testing.T) {
	header := `keyId="https://example.com/users/alice#main-key",algorithm="rsa-sha256",headers="(request-target) host date",signature="c2ln",unknown="x"`
	fields := ParseSignatureHeader(header)

	assert.Equal(t, "https://example.com/users/alice#main-key", fields["keyId"])
	assert.Equal(t, "rsa-sha256", fields["algorithm"])
	assert.Equal(t, "(request-target) host date", fields["headers"])
	assert.Equal(t, "c2ln", fields["signature"])
	assert.Equal(t, "x", fields["unknown"])
}

func TestVerifyMissingHeader(t *testing.T) {
	v := NewVerifier(staticResolver{}, types.NodeConfig{})
	req := httptest.NewRequest(http.MethodPost, "https://example.com/users/alice/inbox", nil)

	result := v.Verify(context.Background(), req)
	assert.Equal(t, Invalid, result.Status)
	assert.Contains(t, result.Reason, "missing Signature header")
}

func TestVerifyMissingKeyID(t *testing.T) {
	v := NewVerifier(staticResolver{}, types.NodeConfig{})
	req := httptest.NewRequest(http.MethodPost, "https://example.com/users/alice/inbox", nil)
	req.Header.Set("Signature", `algorithm="rsa-sha256",signature="c2ln"`)

	result := v.Verify(context.Background(), req)
	assert.Equal(t, Invalid, result.Status)
	assert.Contains(t, result.Reason, "missing keyId")
}

func TestVerifyPlaceholderSignature(t *testing.T) {
	v := NewVerifier(staticResolver{}, types.NodeConfig{})
	req := httptest.NewRequest(http.MethodPost, "https://example.com/users/alice/inbox", nil)
	req.Header.Set("Signature", PlaceholderHeader("https://dev.example/users/x#main-key"))

	result := v.Verify(context.Background(), req)
	assert.Equal(t, NotImplemented, result.Status)
	assert.Equal(t, "https://dev.example/users/x#main-key", result.KeyID)
}

func TestSignWithoutKeyRequiresInsecureFlag(t *testing.T) {
	signer := NewSigner(store.NewStore(nil), types.NodeConfig{ServerURL: "https://example.com"})
	req := httptest.NewRequest(http.MethodGet, "https://remote.example/users/bob", nil)

	err := signer.SignRequest(context.Background(), req, nil, types.Actor{Username: "alice"})
	require.Error(t, err)
	assert.Empty(t, req.Header.Get("Signature"))
}

func TestSignPlaceholderWhenAllowed(t *testing.T) {
	config := types.NodeConfig{ServerURL: "https://example.com", AllowInsecureSignatures: true}
	signer := NewSigner(store.NewStore(nil), config)
	req := httptest.NewRequest(http.MethodGet, "https://remote.example/users/bob", nil)

	err := signer.SignRequest(context.Background(), req, nil, types.Actor{Username: "alice"})
	require.NoError(t, err)

	header := req.Header.Get("Signature")
	require.NotEmpty(t, header)
	fields := ParseSignatureHeader(header)
	assert.Equal(t, "https://example.com/users/alice#main-key", fields["keyId"])
	assert.True(t, strings.Contains(header, "signature="))
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	privPEM, pubPEM := generateKeyPair(t)
	config := types.NodeConfig{ServerURL: "https://example.com"}
	signer := NewSigner(store.NewStore(nil), config)

	actor := types.Actor{
		ID:            "https://example.com/users/alice",
		Username:      "alice",
		PrivateKeyPem: privPEM,
	}

	body := []byte(`{"type":"Follow"}`)
	req := httptest.NewRequest(http.MethodPost, "https://remote.example/inbox", strings.NewReader(string(body)))
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", "remote.example")

	require.NoError(t, signer.SignRequest(context.Background(), req, body, actor))

	fields := ParseSignatureHeader(req.Header.Get("Signature"))
	assert.Equal(t, "https://example.com/users/alice#main-key", fields["keyId"])
	assert.Contains(t, fields["headers"], "digest")

	v := NewVerifier(staticResolver{pem: pubPEM}, config)
	result := v.Verify(context.Background(), req)
	assert.Equal(t, Valid, result.Status, result.Reason)
}

func TestVerifyRejectsTamperedRequest(t *testing.T) {
	privPEM, pubPEM := generateKeyPair(t)
	config := types.NodeConfig{ServerURL: "https://example.com"}
	signer := NewSigner(store.NewStore(nil), config)

	actor := types.Actor{
		ID:            "https://example.com/users/alice",
		Username:      "alice",
		PrivateKeyPem: privPEM,
	}

	req := httptest.NewRequest(http.MethodGet, "https://remote.example/users/bob", nil)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", "remote.example")
	require.NoError(t, signer.SignRequest(context.Background(), req, nil, actor))

	// shifting the date invalidates the signature
	req.Header.Set("Date", time.Now().UTC().Add(time.Hour).Format(http.TimeFormat))

	v := NewVerifier(staticResolver{pem: pubPEM}, config)
	result := v.Verify(context.Background(), req)
	assert.Equal(t, Invalid, result.Status)
}

func TestVerifyKeyResolutionFailure(t *testing.T) {
	v := NewVerifier(staticResolver{err: assert.AnError}, types.NodeConfig{})
	req := httptest.NewRequest(http.MethodPost, "https://example.com/users/alice/inbox", nil)
	req.Header.Set("Signature", `keyId="https://remote.example/users/bob#main-key",algorithm="rsa-sha256",signature="c2ln"`)

	result := v.Verify(context.Background(), req)
	assert.Equal(t, Invalid, result.Status)
	assert.Contains(t, result.Reason, "key resolution failed")
}
