package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidToken marks a malformed or forged download token.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrExpiredToken marks a genuine token past its expiry.
	ErrExpiredToken = errors.New("download token expired")
)

// DownloadToken is the signed claim behind a grade sheet link.
type DownloadToken struct {
	ExportID     string    `json:"id"`
	AssignmentID int64     `json:"aid"`
	Path         string    `json:"p"`
	ExpiresAt    time.Time `json:"exp"`
}

// SignedURLSigner seals download tokens as base64url(payload).base64url(hmac-sha256).
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer. A non-positive ttl defaults to one day.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign stamps the token's expiry from the signer's ttl and returns the sealed string.
func (s *SignedURLSigner) Sign(token DownloadToken) (string, DownloadToken, error) {
	if token.ExportID == "" || token.Path == "" {
		return "", token, fmt.Errorf("export id and path required")
	}
	if len(s.secret) == 0 {
		return "", token, fmt.Errorf("signing secret missing")
	}
	token.ExpiresAt = s.now().Add(s.ttl).UTC().Truncate(time.Second)
	payload, err := json.Marshal(token)
	if err != nil {
		return "", token, fmt.Errorf("encode download token: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + s.mac(encoded), token, nil
}

// Verify checks the signature first and the expiry second.
func (s *SignedURLSigner) Verify(raw string) (DownloadToken, error) {
	var token DownloadToken
	encoded, signature, ok := strings.Cut(raw, ".")
	if !ok || encoded == "" || signature == "" {
		return token, ErrInvalidToken
	}
	if !hmac.Equal([]byte(s.mac(encoded)), []byte(signature)) {
		return token, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return token, ErrInvalidToken
	}
	if err := json.Unmarshal(payload, &token); err != nil {
		return token, ErrInvalidToken
	}
	if s.now().After(token.ExpiresAt) {
		return token, ErrExpiredToken
	}
	return token, nil
}

func (s *SignedURLSigner) mac(encoded string) string {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
