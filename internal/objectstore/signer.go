package objectstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	ErrSignatureExpired = errors.New("signed url expired")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Signer issues and verifies time-limited, write-only upload URLs. The
// signature pins the operation to one bucket, key and content type, which
// is the whole capability the handle grants.
type Signer struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

func NewSigner(secret, baseURL string) *Signer {
	return &Signer{
		secret:  []byte(secret),
		baseURL: baseURL,
		now:     time.Now,
	}
}

func (s *Signer) SignedUploadURL(bucket, key, contentType string, ttl time.Duration) string {
	expires := s.now().Add(ttl).Unix()
	sig := s.sign(bucket, key, contentType, expires)

	q := url.Values{}
	q.Set("key", key)
	q.Set("expires", fmt.Sprintf("%d", expires))
	q.Set("signature", sig)

	return fmt.Sprintf("%s/import/upload?%s", s.baseURL, q.Encode())
}

func (s *Signer) Verify(bucket, key, contentType string, expires int64, signature string) error {
	if s.now().Unix() > expires {
		return ErrSignatureExpired
	}

	expected := s.sign(bucket, key, contentType, expires)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrInvalidSignature
	}

	return nil
}

func (s *Signer) sign(bucket, key, contentType string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "PUT\n%s\n%s\n%s\n%d", bucket, key, contentType, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
