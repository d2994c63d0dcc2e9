package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	defaultAccessExpiry  = 15 * time.Minute
	defaultRefreshExpiry = 7 * 24 * time.Hour
	fallbackExpiry       = 900 * time.Second
)

// Verification failures. The access guard collapses all three into a single
// undifferentiated invalid-token response.
var (
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrWrongTokenType = errors.New("wrong token type")
)

// TokenConfig carries the signing material and binding for both token kinds.
// The two secrets are independent so that compromise of one does not forge
// the other kind.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
	Audience      string
}

// Claims is the shared payload of both token kinds.
type Claims struct {
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organizationId"`
	TokenType      string `json:"type"`
	jwt.RegisteredClaims
}

// AccessClaims extends Claims with the derived permission set and a last-login
// echo for the client.
type AccessClaims struct {
	Claims
	Permissions []string   `json:"permissions,omitempty"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
}

// RefreshClaims extends Claims with the session the token belongs to. The
// device id is advisory only.
type RefreshClaims struct {
	Claims
	SessionID string `json:"sessionId"`
	DeviceID  string `json:"deviceId,omitempty"`
}

// TokenIdentity is the account state stamped into every token.
type TokenIdentity struct {
	UserID         string
	Email          string
	Role           Role
	OrganizationID string
}

type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
	audience      string
}

func NewCodec(cfg TokenConfig) *Codec {
	if cfg.AccessExpiry <= 0 {
		cfg.AccessExpiry = defaultAccessExpiry
	}
	if cfg.RefreshExpiry <= 0 {
		cfg.RefreshExpiry = defaultRefreshExpiry
	}
	return &Codec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
	}
}

// AccessExpirySeconds reports the configured access token lifetime.
func (c *Codec) AccessExpirySeconds() int64 {
	return int64(c.accessExpiry.Seconds())
}

func (c *Codec) registered(expiry time.Duration, subject string, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    c.issuer,
		Audience:  jwt.ClaimStrings{c.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
	}
}

// IssueAccess signs a short-lived access token for the identity.
func (c *Codec) IssueAccess(id TokenIdentity, permissions []string, lastLogin *time.Time) (string, error) {
	claims := AccessClaims{
		Claims: Claims{
			Email:            id.Email,
			Role:             id.Role,
			OrganizationID:   id.OrganizationID,
			TokenType:        tokenTypeAccess,
			RegisteredClaims: c.registered(c.accessExpiry, id.UserID, time.Now().UTC()),
		},
		Permissions: permissions,
		LastLogin:   lastLogin,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
}

// IssueRefresh signs a long-lived refresh token bound to a session.
func (c *Codec) IssueRefresh(id TokenIdentity, sessionID, deviceID string) (string, error) {
	claims := RefreshClaims{
		Claims: Claims{
			Email:            id.Email,
			Role:             id.Role,
			OrganizationID:   id.OrganizationID,
			TokenType:        tokenTypeRefresh,
			RegisteredClaims: c.registered(c.refreshExpiry, id.UserID, time.Now().UTC()),
		},
		SessionID: sessionID,
		DeviceID:  deviceID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
}

func (c *Codec) verify(token string, secret []byte, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenMalformed
	}
	if !parsed.Valid {
		return ErrTokenMalformed
	}
	return nil
}

// VerifyAccess validates signature, issuer, audience, expiry and kind. A
// refresh token presented here fails with ErrWrongTokenType even if validly
// signed under the access secret.
func (c *Codec) VerifyAccess(token string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := c.verify(token, c.accessSecret, &claims); err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return &claims, nil
}

// VerifyRefresh is the refresh-kind counterpart of VerifyAccess.
func (c *Codec) VerifyRefresh(token string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.verify(token, c.refreshSecret, &claims); err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, ErrWrongTokenType
	}
	return &claims, nil
}

// Peek decodes claims without verifying the signature. It exists to read the
// expiry for display purposes and must never feed an authorization decision.
func Peek(token string) (*Claims, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, ErrTokenMalformed
	}
	return &claims, nil
}

// RemainingSeconds returns the seconds until the token expires, or 0 on any
// decode error, missing expiry, or an already-expired token.
func RemainingSeconds(token string) int64 {
	claims, err := Peek(token)
	if err != nil || claims.ExpiresAt == nil {
		return 0
	}
	remaining := int64(time.Until(claims.ExpiresAt.Time).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ParseExpiry reads the `<integer><unit>` expiry grammar with units m, h, d.
// An unrecognized suffix falls back to raw integer seconds; total parse
// failure falls back to 900 seconds.
func ParseExpiry(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallbackExpiry
	}

	unit := value[len(value)-1]
	switch unit {
	case 'm', 'h', 'd':
		n, err := strconv.Atoi(value[:len(value)-1])
		if err != nil || n <= 0 {
			return fallbackExpiry
		}
		switch unit {
		case 'm':
			return time.Duration(n) * time.Minute
		case 'h':
			return time.Duration(n) * time.Hour
		default:
			return time.Duration(n) * 24 * time.Hour
		}
	default:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fallbackExpiry
		}
		return time.Duration(n) * time.Second
	}
}
