package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	OrganizationID string `json:"organizationId"`
	DeviceID       string `json:"deviceId"`
}

type registerRequest struct {
	FullName        string `json:"fullName"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Role            Role   `json:"role"`
	OrganizationID  string `json:"organizationId"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(body.Email)
	if body.Email == "" || body.Password == "" {
		writeFailure(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.service.Login(r.Context(), LoginInput{
		Email:          body.Email,
		Password:       body.Password,
		OrganizationID: strings.TrimSpace(body.OrganizationID),
		DeviceID:       strings.TrimSpace(body.DeviceID),
	})
	if err != nil {
		var locked ErrAccountLocked
		if errors.As(err, &locked) {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(locked.RetryAfter().Seconds()), 10))
		}
		writeServiceError(w, err, "login failed")
		return
	}

	writeSuccess(w, http.StatusOK, "Login successful", result)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(body.Email)
	body.Username = strings.TrimSpace(body.Username)
	if body.Email == "" || body.Username == "" || body.FullName == "" || body.OrganizationID == "" {
		writeFailure(w, http.StatusBadRequest, "fullName, username, email and organizationId are required")
		return
	}

	user, err := h.service.Register(r.Context(), RegisterInput{
		FullName:        strings.TrimSpace(body.FullName),
		Username:        body.Username,
		Email:           body.Email,
		Password:        body.Password,
		ConfirmPassword: body.ConfirmPassword,
		Role:            body.Role,
		OrganizationID:  strings.TrimSpace(body.OrganizationID),
	})
	if err != nil {
		writeServiceError(w, err, "registration failed")
		return
	}

	writeSuccess(w, http.StatusCreated, "User registered successfully", user)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.RefreshToken = strings.TrimSpace(body.RefreshToken)
	if body.RefreshToken == "" {
		writeFailure(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	result, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeServiceError(w, err, "token refresh failed")
		return
	}

	writeSuccess(w, http.StatusOK, "Token refreshed successfully", result)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, ErrMissingToken.Error())
		return
	}

	var body changePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	err := h.service.ChangePassword(r.Context(), principal.ID, ChangePasswordInput{
		CurrentPassword: body.CurrentPassword,
		NewPassword:     body.NewPassword,
		ConfirmPassword: body.ConfirmPassword,
	})
	if err != nil {
		writeServiceError(w, err, "password change failed")
		return
	}

	writeSuccess(w, http.StatusOK, "Password changed successfully", nil)
}

// Logout always reports success, whatever the token's state.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(&body); err == nil {
		_ = h.service.Logout(r.Context(), strings.TrimSpace(body.RefreshToken))
	}

	writeSuccess(w, http.StatusOK, "Logout successful", nil)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, ErrMissingToken.Error())
		return
	}

	writeSuccess(w, http.StatusOK, "Profile retrieved successfully", principal)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, ErrMissingToken.Error())
		return
	}
	token, _ := TokenFromContext(r.Context())

	writeSuccess(w, http.StatusOK, "Token is valid", map[string]any{
		"valid":     true,
		"user":      principal,
		"expiresIn": RemainingSeconds(token),
	})
}

// ListUsers serves an organization's accounts. Role and tenant requirements
// are declared on the route policy, not here.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("organizationId")
	if orgID == "" {
		writeFailure(w, http.StatusBadRequest, "organizationId is required")
		return
	}

	users, err := h.service.UsersByOrganization(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, err, "failed to list users")
		return
	}

	writeSuccess(w, http.StatusOK, "Users retrieved successfully", users)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "Authentication service is healthy", map[string]any{
		"service": "Authentication",
		"status":  "operational",
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

// writeServiceError maps the auth error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is an internal failure: captured, never echoed.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var locked ErrAccountLocked
	switch {
	case errors.As(err, &locked):
		writeFailure(w, http.StatusUnauthorized, locked.Error())
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrRevokedToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrWrongTokenType):
		writeFailure(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrForbidden):
		writeFailure(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrUsernameTaken):
		writeFailure(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrOrganizationNotFound):
		writeFailure(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrPasswordMismatch),
		errors.Is(err, ErrSamePassword):
		writeFailure(w, http.StatusBadRequest, err.Error())
	default:
		sentry.CaptureException(err)
		writeFailure(w, http.StatusInternalServerError, fallback)
	}
}

type envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, envelope{Success: false, Message: message})
}
