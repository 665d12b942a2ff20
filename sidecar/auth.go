package sidecar

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

const tokenBytes = 32

// GenerateToken returns a random 64-character hex token suitable for a
// sidecar started with token auth.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// BearerToken implements credentials.PerRPCCredentials. It attaches the token
// as an "authorization: Bearer <token>" header on every RPC.
type BearerToken struct {
	token      string
	requireTLS bool
}

// NewBearerToken returns per-RPC credentials for token. With requireTLS set,
// gRPC refuses to send the token over an insecure connection.
func NewBearerToken(token string, requireTLS bool) *BearerToken {
	return &BearerToken{token: token, requireTLS: requireTLS}
}

func (t *BearerToken) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	return map[string]string{
		"authorization": "Bearer " + t.token,
	}, nil
}

func (t *BearerToken) RequireTransportSecurity() bool {
	return t.requireTLS
}
