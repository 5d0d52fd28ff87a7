package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/fieldsync/pkg/config"
)

var testJWT = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "fieldsync",
	ExpirationMinutes: 30,
}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	token, err := MintAccessToken(testJWT, now, AccessTokenPayload{RepID: "rep-7", RepCode: "R07", Name: "Ana"})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(testJWT, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.RepID != "rep-7" || claims.RepCode != "R07" {
		t.Fatalf("unexpected rep claims %+v", claims)
	}
	if claims.Issuer != testJWT.Issuer {
		t.Fatalf("expected issuer %q, got %q", testJWT.Issuer, claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be generated")
	}

	other := testJWT
	other.Secret = "different"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
}

func TestMintRequiresRepID(t *testing.T) {
	if _, err := MintAccessToken(testJWT, time.Now(), AccessTokenPayload{}); err == nil {
		t.Fatal("expected error without rep id")
	}
}

func TestCheckExpiry(t *testing.T) {
	issued := time.Now().Add(-time.Hour)
	token, err := MintAccessToken(testJWT, issued, AccessTokenPayload{RepID: "rep-7"})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if err := CheckExpiry(token, issued.Add(10*time.Minute)); err != nil {
		t.Fatalf("expected valid session, got %v", err)
	}
	if err := CheckExpiry(token, time.Now()); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if err := CheckExpiry("garbage", time.Now()); err == nil || errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
