package signing

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T, bits int) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, bits)
	require.NoError(t, err)
	return key
}

func sign(t *testing.T, key *rsa.PrivateKey, data []byte) string {
	t.Helper()
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

func spkiPEM(t *testing.T, pub any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestCanonicalizeSignPayload(t *testing.T) {
	got, err := Canonicalize(Payload{PropertyID: "p1", OwnerID: "o1", RenterID: "r1", Terms: "ignored"}, false)
	require.NoError(t, err)
	assert.Equal(t, `{"ownerId":"o1","propertyId":"p1","renterId":"r1"}`, string(got))
}

func TestCanonicalizeCreationPayload(t *testing.T) {
	p := Payload{PropertyID: "p1", OwnerID: "o1", RenterID: "r1", Terms: "No pets & <loud> music", Timestamp: "1718000000000"}
	got, err := Canonicalize(p, true)
	require.NoError(t, err)
	assert.Equal(t,
		`{"ownerId":"o1","propertyId":"p1","renterId":"r1","terms":"No pets & <loud> music","timestamp":"1718000000000"}`,
		string(got))
}

func TestCanonicalizeEmptyRenterIsNull(t *testing.T) {
	got, err := Canonicalize(Payload{PropertyID: "p1", OwnerID: "o1"}, false)
	require.NoError(t, err)
	assert.Equal(t, `{"ownerId":"o1","propertyId":"p1","renterId":null}`, string(got))
}

func TestCanonicalizeIsStable(t *testing.T) {
	p := Payload{PropertyID: "p1", OwnerID: "o1", RenterID: "r1", Terms: "12 months", Timestamp: "t"}
	first, err := Canonicalize(p, true)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := Canonicalize(p, true)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestVerify(t *testing.T) {
	key := newKey(t, 2048)
	payload, err := Canonicalize(Payload{PropertyID: "p1", OwnerID: "o1", RenterID: "r1"}, false)
	require.NoError(t, err)
	sig := sign(t, key, payload)

	t.Run("valid", func(t *testing.T) {
		assert.True(t, Verify(&key.PublicKey, payload, Signature(sig)))
	})

	t.Run("valid repeatedly", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.True(t, Verify(&key.PublicKey, payload, Signature(sig)))
		}
	})

	t.Run("url safe without padding", func(t *testing.T) {
		raw, _ := base64.StdEncoding.DecodeString(sig)
		urlSafe := base64.RawURLEncoding.EncodeToString(raw)
		assert.True(t, Verify(&key.PublicKey, payload, Signature(urlSafe)))
	})

	t.Run("tampered property", func(t *testing.T) {
		other, err := Canonicalize(Payload{PropertyID: "p2", OwnerID: "o1", RenterID: "r1"}, false)
		require.NoError(t, err)
		assert.False(t, Verify(&key.PublicKey, other, Signature(sig)))
	})

	t.Run("wrong key", func(t *testing.T) {
		assert.False(t, Verify(&newKey(t, 2048).PublicKey, payload, Signature(sig)))
	})

	t.Run("garbage", func(t *testing.T) {
		assert.False(t, Verify(&key.PublicKey, payload, Signature("!!!not base64!!!")))
		assert.False(t, Verify(&key.PublicKey, payload, ""))
		assert.ErrorIs(t, VerifyErr(&key.PublicKey, payload, ""), ErrNoSignature)
	})

	t.Run("nil key", func(t *testing.T) {
		assert.False(t, Verify(nil, payload, Signature(sig)))
	})
}

func TestNormalizeSignature(t *testing.T) {
	assert.Equal(t, "ab+/cd==", NormalizeSignature("ab-_cd"))
	assert.Equal(t, "abcd", NormalizeSignature("abcd"))
	assert.Equal(t, "abc=", NormalizeSignature(" abc\n"))
}

func TestSignatureUnmarshal(t *testing.T) {
	var req struct {
		Signature Signature `json:"signature"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"signature":"QUJD"}`), &req))
	assert.Equal(t, Signature("QUJD"), req.Signature)

	require.NoError(t, json.Unmarshal([]byte(`{"signature":{"signatureBase64":"REVG"}}`), &req))
	assert.Equal(t, Signature("REVG"), req.Signature)

	assert.Error(t, json.Unmarshal([]byte(`{"signature":12}`), &req))
}

func TestParsePublicKeyPEM(t *testing.T) {
	key := newKey(t, 2048)

	t.Run("spki", func(t *testing.T) {
		pub, err := ParsePublicKeyPEM("\n  " + spkiPEM(t, &key.PublicKey) + "  \n")
		require.NoError(t, err)
		assert.Equal(t, key.PublicKey.N, pub.N)
	})

	t.Run("pkcs1", func(t *testing.T) {
		block := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)})
		pub, err := ParsePublicKeyPEM(string(block))
		require.NoError(t, err)
		assert.Equal(t, key.PublicKey.E, pub.E)
	})

	t.Run("too small", func(t *testing.T) {
		_, err := ParsePublicKeyPEM(spkiPEM(t, &newKey(t, 1024).PublicKey))
		assert.ErrorIs(t, err, ErrKeyTooSmall)
	})

	t.Run("not rsa", func(t *testing.T) {
		ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		_, err = ParsePublicKeyPEM(spkiPEM(t, &ec.PublicKey))
		assert.ErrorIs(t, err, ErrNotRSA)
	})

	t.Run("not pem", func(t *testing.T) {
		_, err := ParsePublicKeyPEM("ssh-rsa AAAA")
		assert.ErrorIs(t, err, ErrNotPEM)
		_, err = ParsePublicKeyPEM(strings.Replace(spkiPEM(t, &key.PublicKey), "PUBLIC KEY", "CERTIFICATE", -1))
		assert.ErrorIs(t, err, ErrNotPEM)
	})
}
