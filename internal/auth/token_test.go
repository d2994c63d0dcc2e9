package auth

import (
	"errors"
	"testing"
	"time"
)

func testIdentity() TokenIdentity {
	return TokenIdentity{
		UserID:         "user-1",
		Email:          "alice@lab.test",
		Role:           RoleLabManager,
		OrganizationID: "org-1",
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	codec := testCodec()
	lastLogin := time.Now().UTC().Truncate(time.Second)

	token, err := codec.IssueAccess(testIdentity(), []string{"manage:orders", "view:reports"}, &lastLogin)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	claims, err := codec.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess error: %v", err)
	}

	if claims.Subject != "user-1" || claims.Email != "alice@lab.test" {
		t.Fatalf("unexpected identity claims: %+v", claims)
	}
	if claims.Role != RoleLabManager || claims.OrganizationID != "org-1" {
		t.Fatalf("unexpected role/org claims: %+v", claims)
	}
	if claims.Issuer != "labora-clinical-lab" || len(claims.Audience) != 1 || claims.Audience[0] != "labora-users" {
		t.Fatalf("issuer/audience not embedded: %+v", claims.RegisteredClaims)
	}
	if len(claims.Permissions) != 2 {
		t.Fatalf("permissions not carried: %v", claims.Permissions)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatalf("timestamps missing")
	}
	if lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time); lifetime != 15*time.Minute {
		t.Fatalf("unexpected lifetime: %v", lifetime)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	codec := testCodec()

	token, err := codec.IssueRefresh(testIdentity(), "session-1", "device-9")
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}

	claims, err := codec.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("VerifyRefresh error: %v", err)
	}
	if claims.SessionID != "session-1" || claims.DeviceID != "device-9" {
		t.Fatalf("session binding lost: %+v", claims)
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	codec := testCodec()

	access, err := codec.IssueAccess(testIdentity(), nil, nil)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}
	refresh, err := codec.IssueRefresh(testIdentity(), "session-1", "")
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}

	if _, err := codec.VerifyRefresh(access); err == nil {
		t.Fatalf("access token must not verify as refresh")
	}
	if _, err := codec.VerifyAccess(refresh); err == nil {
		t.Fatalf("refresh token must not verify as access")
	}
}

func TestTokenTypeCheckedEvenWithSharedSecret(t *testing.T) {
	// With one shared secret the signature alone cannot tell the kinds
	// apart; the type claim must.
	codec := NewCodec(TokenConfig{
		AccessSecret:  "shared-secret",
		RefreshSecret: "shared-secret",
		Issuer:        "labora-clinical-lab",
		Audience:      "labora-users",
	})

	refresh, err := codec.IssueRefresh(testIdentity(), "session-1", "")
	if err != nil {
		t.Fatalf("IssueRefresh error: %v", err)
	}

	if _, err := codec.VerifyAccess(refresh); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	codec := NewCodec(TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessExpiry:  time.Millisecond,
		Issuer:        "labora-clinical-lab",
		Audience:      "labora-users",
	})

	token, err := codec.IssueAccess(testIdentity(), nil, nil)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := codec.VerifyAccess(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsTamperedAndForeignTokens(t *testing.T) {
	codec := testCodec()
	other := NewCodec(TokenConfig{
		AccessSecret:  "other-secret",
		RefreshSecret: "other-refresh",
		Issuer:        "labora-clinical-lab",
		Audience:      "labora-users",
	})

	if _, err := codec.VerifyAccess("not.a.token"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}

	foreign, err := other.IssueAccess(testIdentity(), nil, nil)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}
	if _, err := codec.VerifyAccess(foreign); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for foreign signature, got %v", err)
	}

	wrongIssuer := NewCodec(TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "someone-else",
		Audience:      "labora-users",
	})
	bad, err := wrongIssuer.IssueAccess(testIdentity(), nil, nil)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}
	if _, err := codec.VerifyAccess(bad); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for wrong issuer, got %v", err)
	}
}

func TestPeekDoesNotVerify(t *testing.T) {
	codec := testCodec()

	token, err := codec.IssueAccess(testIdentity(), nil, nil)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	claims, err := Peek(token)
	if err != nil {
		t.Fatalf("Peek error: %v", err)
	}
	if claims.Subject != "user-1" || claims.ExpiresAt == nil {
		t.Fatalf("unexpected peeked claims: %+v", claims)
	}

	if _, err := Peek("garbage"); err == nil {
		t.Fatalf("Peek must fail on undecodable input")
	}
}

func TestRemainingSeconds(t *testing.T) {
	codec := testCodec()

	token, err := codec.IssueAccess(testIdentity(), nil, nil)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}

	if remaining := RemainingSeconds(token); remaining <= 890 || remaining > 900 {
		t.Fatalf("unexpected remaining seconds: %d", remaining)
	}
	if remaining := RemainingSeconds("garbage"); remaining != 0 {
		t.Fatalf("garbage token must report 0, got %d", remaining)
	}

	expiredCodec := NewCodec(TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessExpiry:  time.Millisecond,
		Issuer:        "labora-clinical-lab",
		Audience:      "labora-users",
	})
	expired, err := expiredCodec.IssueAccess(testIdentity(), nil, nil)
	if err != nil {
		t.Fatalf("IssueAccess error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if remaining := RemainingSeconds(expired); remaining != 0 {
		t.Fatalf("expired token must report 0, got %d", remaining)
	}
}

func TestParseExpiry(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"2h", 2 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"900", 900 * time.Second},
		{"45", 45 * time.Second},
		{"", fallbackExpiry},
		{"abc", fallbackExpiry},
		{"10x", fallbackExpiry},
		{"-5m", fallbackExpiry},
		{"m", fallbackExpiry},
	}

	for _, tc := range cases {
		if got := ParseExpiry(tc.in); got != tc.want {
			t.Errorf("ParseExpiry(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
