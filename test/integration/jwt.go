package integration

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const signingKeyID = "reportd-signing-1"

// SessionClaims are the identity claims a report session is opened with.
// SubjectID becomes the report owner and TenantID scopes every session and
// stored report.
type SessionClaims struct {
	SubjectID string
	TenantID  string
	Email     string
	Roles     []string
}

// reportClaims is the signed token body, shaped the way the identity
// provider issues it.
type reportClaims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// tokenIssuer signs tokens for the harness and publishes its public key on a
// JWKS endpoint the server fetches at startup.
type tokenIssuer struct {
	key      *rsa.PrivateKey
	jwks     *httptest.Server
	issuer   string
	audience string
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	set := map[string]any{
		"keys": []map[string]any{{
			"kid": signingKeyID,
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)

	return &tokenIssuer{
		key:      key,
		jwks:     srv,
		issuer:   "https://identity.reportd.test",
		audience: "reportd",
	}
}

// GenerateToken signs a token valid for the next hour.
func (ti *tokenIssuer) GenerateToken(claims SessionClaims) string {
	return ti.sign(claims, time.Now(), time.Hour)
}

// GenerateExpiredToken signs a token whose hour of validity ended an hour
// ago.
func (ti *tokenIssuer) GenerateExpiredToken(claims SessionClaims) string {
	return ti.sign(claims, time.Now().Add(-2*time.Hour), time.Hour)
}

func (ti *tokenIssuer) sign(c SessionClaims, issuedAt time.Time, ttl time.Duration) string {
	body := reportClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ti.issuer,
			Subject:   c.SubjectID,
			Audience:  jwt.ClaimStrings{ti.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		TenantID: c.TenantID,
		Email:    c.Email,
		Roles:    c.Roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, body)
	token.Header["kid"] = signingKeyID

	signed, err := token.SignedString(ti.key)
	if err != nil {
		panic("sign report token: " + err.Error())
	}
	return signed
}

// JWKSURL returns the URL of the key set endpoint.
func (ti *tokenIssuer) JWKSURL() string {
	return ti.jwks.URL
}

// Issuer returns the iss claim the server must expect.
func (ti *tokenIssuer) Issuer() string {
	return ti.issuer
}

// Audience returns the aud claim the server must expect.
func (ti *tokenIssuer) Audience() string {
	return ti.audience
}
