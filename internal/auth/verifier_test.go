package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"quiz-lobby-service/internal/domain"
)

func newVerifier(t *testing.T, now time.Time) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "quiz-lobby",
		Audience: "players",
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v
}

func TestJWTVerifierRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	v := newVerifier(t, now)

	token, err := v.Issue("player-1", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != "player-1" {
		t.Fatalf("expected player-1, got %q", id)
	}
}

func TestJWTVerifierRejects(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	v := newVerifier(t, now)

	expired, _ := newVerifier(t, now.Add(-2*time.Hour)).Issue("p", time.Hour)
	other, _ := NewJWTVerifier(JWTConfig{Secret: []byte("other"), Issuer: "quiz-lobby", Audience: "players", Now: func() time.Time { return now }})
	forged, _ := other.Issue("p", time.Hour)
	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "p",
		Issuer:    "someone-else",
		Audience:  jwt.ClaimStrings{"players"},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	noSubject, _ := v.Issue("", time.Hour)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"expired":      expired,
		"forged":       forged,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
	}
	for name, token := range cases {
		if _, err := v.Verify(context.Background(), token); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized, got %v", name, err)
		}
	}
}

func TestDevVerifier(t *testing.T) {
	if id, err := (DevVerifier{}).Verify(context.Background(), " alice "); err != nil || id != "alice" {
		t.Fatalf("expected alice, got %q %v", id, err)
	}
	if _, err := (DevVerifier{}).Verify(context.Background(), ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
