package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
)

// RoutePolicy declares what a route demands from the caller. The zero value
// requires a valid access token and nothing else. Roles use membership
// semantics; Permissions require every listed permission.
type RoutePolicy struct {
	Public      bool
	Roles       []Role
	Permissions []string
}

type contextKey string

const (
	principalContextKey contextKey = "auth.principal"
	tokenContextKey     contextKey = "auth.token"
)

// PrincipalFromContext returns the authenticated principal attached by the
// access guard.
func PrincipalFromContext(ctx context.Context) (*AuthUser, bool) {
	user, ok := ctx.Value(principalContextKey).(*AuthUser)
	return user, ok
}

// TokenFromContext returns the raw bearer token for the request.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok
}

// Guard is the per-request gate in front of every non-public route.
type Guard struct {
	service *Service
}

func NewGuard(service *Service) *Guard {
	return &Guard{service: service}
}

// Secure wraps a handler with the authentication and authorization chain:
// bearer extraction, access-token verification, revocation check, principal
// reload, then role and tenant checks per the policy.
func (g *Guard) Secure(policy RoutePolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if policy.Public {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			writeFailure(w, http.StatusUnauthorized, ErrMissingToken.Error())
			return
		}

		// Expired, malformed and wrong-kind failures are deliberately
		// indistinguishable to the caller.
		claims, err := g.service.codec.VerifyAccess(token)
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, ErrInvalidToken.Error())
			return
		}

		revoked, err := g.service.IsTokenRevoked(r.Context(), token)
		if err != nil {
			sentry.CaptureException(err)
			writeFailure(w, http.StatusInternalServerError, "authentication failed")
			return
		}
		if revoked {
			writeFailure(w, http.StatusUnauthorized, ErrRevokedToken.Error())
			return
		}

		principal, err := g.service.PrincipalByID(r.Context(), claims.Subject)
		if err != nil {
			sentry.CaptureException(err)
			writeFailure(w, http.StatusInternalServerError, "authentication failed")
			return
		}
		if principal == nil {
			writeFailure(w, http.StatusUnauthorized, ErrInvalidToken.Error())
			return
		}

		if !roleAllowed(principal, policy) {
			writeFailure(w, http.StatusForbidden, ErrForbidden.Error())
			return
		}

		if !tenantAllowed(principal, r) {
			writeFailure(w, http.StatusForbidden, "access denied: different organization")
			return
		}

		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		ctx = context.WithValue(ctx, tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// roleAllowed applies the role-membership and all-permissions checks. A policy
// that declares neither allows every authenticated principal.
func roleAllowed(principal *AuthUser, policy RoutePolicy) bool {
	if len(policy.Roles) > 0 {
		member := false
		for _, role := range policy.Roles {
			if principal.Role == role {
				member = true
				break
			}
		}
		if !member {
			return false
		}
	}

	for _, required := range policy.Permissions {
		found := false
		for _, have := range principal.Permissions {
			if have == required {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// tenantAllowed enforces organization isolation. Super admins bypass the
// check. A request naming no organization is allowed; the data layer filters
// by tenant downstream.
func tenantAllowed(principal *AuthUser, r *http.Request) bool {
	if principal.Role == RoleSuperAdmin {
		return true
	}

	orgID := requestOrganizationID(r)
	if orgID == "" {
		return true
	}

	return orgID == principal.OrganizationID
}

// requestOrganizationID looks for an organization id in the path, then the
// body, then the query, in that priority order.
func requestOrganizationID(r *http.Request) string {
	if id := r.PathValue("organizationId"); id != "" {
		return id
	}

	if id := bodyOrganizationID(r); id != "" {
		return id
	}

	return strings.TrimSpace(r.URL.Query().Get("organizationId"))
}

func bodyOrganizationID(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return ""
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodyBytes))
	// The handler still needs the body.
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	var probe struct {
		OrganizationID string `json:"organizationId"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}

	return strings.TrimSpace(probe.OrganizationID)
}
