// Package signature implements the HTTP Signatures surface: signing
// outbound requests with a local actor's RSA key and verifying inbound
// Signature headers against remotely resolved public keys.
package signature

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/totegamma/httpsig"
	"go.opentelemetry.io/otel"

	"github.com/fedinode/fedinode/store"
	"github.com/fedinode/fedinode/types"
)

var tracer = otel.Tracer("signature")

// placeholderSignature is the base64 payload emitted when no private key is
// configured. Dev-mode only; startup refuses it without an explicit flag.
var placeholderSignature = base64.StdEncoding.EncodeToString([]byte("signature-placeholder"))

// Signer produces Signature headers for outbound requests.
type Signer struct {
	store  *store.Store
	config types.NodeConfig
}

func NewSigner(store *store.Store, config types.NodeConfig) *Signer {
	return &Signer{store: store, config: config}
}

// SignRequest signs req in place on behalf of actor. GET requests sign
// (request-target) date host; requests with a body additionally cover the
// digest. When the actor has no private key the placeholder header is
// emitted and a warning logged, which is only permitted when
// AllowInsecureSignatures is set.
func (s *Signer) SignRequest(ctx context.Context, req *http.Request, body []byte, actor types.Actor) error {
	ctx, span := tracer.Start(ctx, "SignRequest")
	defer span.End()

	keyID := s.config.KeyID(actor.Username)

	if !actor.Local() {
		if !s.config.AllowInsecureSignatures {
			return errors.New("no private key configured for " + actor.Username)
		}
		slog.Warn("signing with placeholder signature, requests will not verify",
			slog.String("actor", actor.ID))
		req.Header.Set("Signature", PlaceholderHeader(keyID))
		return nil
	}

	priv, err := s.store.LoadPrivateKey(ctx, actor)
	if err != nil {
		return err
	}

	prefs := []httpsig.Algorithm{httpsig.RSA_SHA256}
	digestAlgorithm := httpsig.DigestSha256
	headersToSign := []string{httpsig.RequestTarget, "date", "host"}
	if body != nil {
		headersToSign = []string{httpsig.RequestTarget, "date", "digest", "host"}
	}
	signer, _, err := httpsig.NewSigner(prefs, digestAlgorithm, headersToSign, httpsig.Signature, 0)
	if err != nil {
		return err
	}
	return signer.SignRequest(priv, keyID, req, body)
}

// PlaceholderHeader returns a well-formed Signature header carrying the
// placeholder payload.
func PlaceholderHeader(keyID string) string {
	return `keyId="` + keyID + `",algorithm="rsa-sha256",headers="(request-target) host date",signature="` + placeholderSignature + `"`
}

// ---------------------------------------------------------------------

// Status is the outcome of a verification.
type Status int

const (
	Valid Status = iota
	Invalid
	NotImplemented
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "not implemented"
	}
}

// Verification carries the verify outcome and, for Invalid, the reason.
type Verification struct {
	Status Status
	KeyID  string
	Reason string
}

// KeyResolver fetches the public key PEM a keyId points to, normally by
// dereferencing the actor document.
type KeyResolver interface {
	ResolvePublicKeyPem(ctx context.Context, keyID string) (string, error)
}

// Verifier checks inbound Signature headers.
type Verifier struct {
	resolver KeyResolver
	config   types.NodeConfig
}

func NewVerifier(resolver KeyResolver, config types.NodeConfig) *Verifier {
	return &Verifier{resolver: resolver, config: config}
}

// ParseSignatureHeader splits a Signature header into its key="value"
// fields. Fields are comma-separated at the top level; values are
// optionally quoted; unknown fields are kept for the caller to ignore.
func ParseSignatureHeader(header string) map[string]string {
	fields := map[string]string{}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"`)
		fields[strings.TrimSpace(key)] = value
	}
	return fields
}

// Verify parses the request's Signature header, resolves the public key the
// keyId points to, and checks the signature over the listed headers.
func (v *Verifier) Verify(ctx context.Context, r *http.Request) Verification {
	ctx, span := tracer.Start(ctx, "VerifySignature")
	defer span.End()

	header := r.Header.Get("Signature")
	if header == "" {
		return Verification{Status: Invalid, Reason: "missing Signature header"}
	}

	fields := ParseSignatureHeader(header)
	keyID := fields["keyId"]
	sig := fields["signature"]
	if keyID == "" {
		return Verification{Status: Invalid, Reason: "missing keyId"}
	}
	if sig == "" {
		return Verification{Status: Invalid, KeyID: keyID, Reason: "missing signature"}
	}

	if sig == placeholderSignature {
		// A peer running keyless dev mode. Cannot be checked.
		return Verification{Status: NotImplemented, KeyID: keyID, Reason: "placeholder signature"}
	}

	if algo, ok := fields["algorithm"]; ok && algo != "rsa-sha256" && algo != "hs2019" {
		return Verification{Status: NotImplemented, KeyID: keyID, Reason: "unsupported algorithm " + algo}
	}

	pemStr, err := v.resolver.ResolvePublicKeyPem(ctx, keyID)
	if err != nil {
		span.RecordError(err)
		return Verification{Status: Invalid, KeyID: keyID, Reason: "key resolution failed: " + err.Error()}
	}

	pub, err := parsePublicKeyPem(pemStr)
	if err != nil {
		return Verification{Status: Invalid, KeyID: keyID, Reason: err.Error()}
	}

	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return Verification{Status: Invalid, KeyID: keyID, Reason: err.Error()}
	}

	if err := verifier.Verify(pub, httpsig.RSA_SHA256); err != nil {
		return Verification{Status: Invalid, KeyID: keyID, Reason: err.Error()}
	}

	return Verification{Status: Valid, KeyID: keyID}
}

func parsePublicKeyPem(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("failed to parse PEM block containing the public key")
	}

	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaPub, ok := pub.(*rsa.PublicKey); ok {
			return rsaPub, nil
		}
		return nil, errors.New("public key is not RSA")
	}

	// Some peers publish PKCS#1 keys.
	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, errors.New("failed to parse DER encoded public key: " + err.Error())
	}
	return pub, nil
}
