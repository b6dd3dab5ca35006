// Package signing reproduces the byte-exact payload that clients sign for deal
// actions and verifies RSASSA-PKCS1-v1_5 / SHA-256 signatures over it.
//
// Private keys never reach the server: clients generate their key pair
// locally and register only the public half (see package keys).
package signing

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/pliu/easyrent/internal/models"
)

// MinKeyBits is the smallest accepted RSA modulus.
const MinKeyBits = 2048

var (
	ErrNotPEM       = errors.New("public key is not in PEM format")
	ErrNotRSA       = errors.New("public key is not an RSA key")
	ErrKeyTooSmall  = fmt.Errorf("public key modulus is smaller than %d bits", MinKeyBits)
	ErrNoSignature  = errors.New("signature is empty")
	ErrBadSignature = errors.New("signature does not match payload")
)

// Payload is the signed subset of a deal. Terms and Timestamp only take part
// in creation signatures.
type Payload struct {
	PropertyID models.ID
	OwnerID    models.ID
	RenterID   models.ID
	Terms      string
	Timestamp  string
}

// Canonicalize serializes p with lexicographically sorted keys, no
// insignificant whitespace and no HTML escaping, which matches
// JSON.stringify(obj, Object.keys(obj).sort()) on the client. An empty
// renterId serializes as null.
func Canonicalize(p Payload, creation bool) ([]byte, error) {
	obj := map[string]any{
		"propertyId": p.PropertyID.String(),
		"ownerId":    p.OwnerID.String(),
		"renterId":   nil,
	}
	if !p.RenterID.Empty() {
		obj["renterId"] = p.RenterID.String()
	}
	if creation {
		obj["terms"] = p.Terms
		obj["timestamp"] = p.Timestamp
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json writes map keys in sorted order.
	if err := enc.Encode(obj); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Signature is a base64 signature as sent by clients. It unmarshals from a
// bare string or from {"signatureBase64": "..."}.
type Signature string

func (s *Signature) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			SignatureBase64 string `json:"signatureBase64"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*s = Signature(obj.SignatureBase64)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("signature must be a string or {signatureBase64}: %w", err)
	}
	*s = Signature(str)
	return nil
}

// NormalizeSignature maps the URL-safe alphabet onto standard base64, strips
// whitespace and restores padding.
func NormalizeSignature(sig string) string {
	sig = strings.Map(func(r rune) rune {
		switch r {
		case '-':
			return '+'
		case '_':
			return '/'
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, sig)
	sig = strings.TrimRight(sig, "=")
	if rem := len(sig) % 4; rem != 0 {
		sig += strings.Repeat("=", 4-rem)
	}
	return sig
}

// DecodeSignature normalizes and base64-decodes sig.
func DecodeSignature(sig Signature) ([]byte, error) {
	if strings.TrimSpace(string(sig)) == "" {
		return nil, ErrNoSignature
	}
	raw, err := base64.StdEncoding.DecodeString(NormalizeSignature(string(sig)))
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	return raw, nil
}

// Verify checks sig over canonical with pub. It returns false on any decode
// failure or a nil key.
func Verify(pub *rsa.PublicKey, canonical []byte, sig Signature) bool {
	return VerifyErr(pub, canonical, sig) == nil
}

// VerifyErr is Verify with the failure cause, for logging.
func VerifyErr(pub *rsa.PublicKey, canonical []byte, sig Signature) error {
	if pub == nil {
		return ErrNotRSA
	}
	raw, err := DecodeSignature(sig)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(canonical)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], raw); err != nil {
		return ErrBadSignature
	}
	return nil
}

// ParsePublicKeyPEM accepts SPKI ("PUBLIC KEY") and PKCS#1
// ("RSA PUBLIC KEY") blocks holding an RSA key of at least MinKeyBits.
func ParsePublicKeyPEM(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemText)))
	if block == nil {
		return nil, ErrNotPEM
	}

	var pub *rsa.PublicKey
	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, ErrNotRSA
		}
		pub = rsaKey
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		pub = key
	default:
		return nil, fmt.Errorf("%w: unexpected block %q", ErrNotPEM, block.Type)
	}

	if pub.N.BitLen() < MinKeyBits {
		return nil, ErrKeyTooSmall
	}
	return pub, nil
}
