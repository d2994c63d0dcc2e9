package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"labora-backend/internal/observability"
)

type Service struct {
	store     AccountStore
	tenants   TenantStore
	codec     *Codec
	blacklist TokenBlacklist
	lockout   LockoutPolicy
	logger    *observability.Logger
}

func NewService(store AccountStore, tenants TenantStore, codec *Codec, blacklist TokenBlacklist, logger *observability.Logger) *Service {
	if blacklist == nil {
		blacklist = NoopBlacklist{}
	}
	return &Service{
		store:     store,
		tenants:   tenants,
		codec:     codec,
		blacklist: blacklist,
		logger:    logger,
	}
}

type LoginInput struct {
	Email          string
	Password       string
	OrganizationID string
	DeviceID       string
}

type RegisterInput struct {
	FullName        string
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	Role            Role
	OrganizationID  string
}

type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// Login runs the credential check. Absent accounts, tenant mismatches and
// wrong passwords all fail with the same generic error to keep accounts
// non-enumerable.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	account, err := s.store.FindByEmail(ctx, email, true)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if account == nil {
		return nil, ErrInvalidCredentials
	}

	if in.OrganizationID != "" && account.OrganizationID != in.OrganizationID {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	hadLock := account.LockedUntil != nil
	status := s.lockout.Status(account, now)
	if status.IsLocked {
		return nil, ErrAccountLocked{UnlockIn: status.UnlockIn}
	}
	if hadLock && account.LockedUntil == nil {
		// Status observed a lapsed lock and reset the counters.
		if err := s.store.Save(ctx, account); err != nil {
			return nil, fmt.Errorf("persist lock reset: %w", err)
		}
	}

	if !VerifyPassword(in.Password, account.PasswordHash) {
		s.lockout.RecordFailure(account, now)
		if err := s.store.Save(ctx, account); err != nil {
			return nil, fmt.Errorf("persist failed attempt: %w", err)
		}
		return nil, ErrInvalidCredentials
	}

	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	if account.FailedLoginAttempts > 0 || account.LockedUntil != nil {
		s.lockout.Reset(account)
		if err := s.store.Save(ctx, account); err != nil {
			return nil, fmt.Errorf("persist attempt reset: %w", err)
		}
	}

	identity := TokenIdentity{
		UserID:         account.ID,
		Email:          account.Email,
		Role:           account.Role,
		OrganizationID: account.OrganizationID,
	}
	permissions := PermissionsForRole(account.Role)
	lastLogin := now

	accessToken, err := s.codec.IssueAccess(identity, permissions, &lastLogin)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	sessionID := uuid.NewString()
	refreshToken, err := s.codec.IssueRefresh(identity, sessionID, in.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	account.LastLoginAt = &lastLogin
	if err := s.store.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("persist last login: %w", err)
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    s.codec.AccessExpirySeconds(),
		User:         sanitize(account, ""),
	}, nil
}

// Register creates an account. Local validation fast-fails before any store
// access; uniqueness conflicts are reported distinctly.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthUser, error) {
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if !IsStrongPassword(in.Password) {
		return nil, ErrWeakPassword
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.ToLower(strings.TrimSpace(in.Username))

	existing, err := s.store.FindByEmail(ctx, email, false)
	if err != nil {
		return nil, fmt.Errorf("check email uniqueness: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	existing, err = s.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username uniqueness: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	org, err := s.tenants.FindOrganizationByID(ctx, in.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("lookup organization: %w", err)
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate account id: %w", err)
	}

	account := &Account{
		ID:             id.String(),
		Username:       username,
		Email:          email,
		PasswordHash:   hash,
		FullName:       in.FullName,
		Role:           in.Role,
		OrganizationID: in.OrganizationID,
		IsActive:       true,
	}
	if err := s.store.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	user := sanitize(account, org.Name)
	return &user, nil
}

// Refresh mints a new access token from a valid refresh token. The refresh
// token itself is not rotated; it stays valid until its own expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	revoked, err := s.blacklist.IsRevoked(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevokedToken
	}

	account, err := s.store.FindByID(ctx, claims.Subject, false)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if account == nil || !account.IsActive {
		return nil, ErrInvalidToken
	}

	accessToken, err := s.codec.IssueAccess(TokenIdentity{
		UserID:         account.ID,
		Email:          account.Email,
		Role:           account.Role,
		OrganizationID: account.OrganizationID,
	}, PermissionsForRole(account.Role), account.LastLoginAt)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &RefreshResult{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   s.codec.AccessExpirySeconds(),
	}, nil
}

// ChangePassword swaps the stored hash after the current password is
// re-verified. The new password must differ from the current one, checked
// through the hash rather than a plaintext compare.
func (s *Service) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if in.NewPassword != in.ConfirmPassword {
		return ErrPasswordMismatch
	}

	account, err := s.store.FindByID(ctx, userID, true)
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	if account == nil {
		return ErrInvalidToken
	}

	if !VerifyPassword(in.CurrentPassword, account.PasswordHash) {
		return ErrInvalidCredentials
	}
	if !IsStrongPassword(in.NewPassword) {
		return ErrWeakPassword
	}
	if VerifyPassword(in.NewPassword, account.PasswordHash) {
		return ErrSamePassword
	}

	hash, err := HashPassword(in.NewPassword)
	if err != nil {
		return err
	}

	account.PasswordHash = hash
	if err := s.store.Save(ctx, account); err != nil {
		return fmt.Errorf("persist password change: %w", err)
	}
	return nil
}

// Logout revokes the refresh token for its remaining lifetime. It never fails
// visibly: an invalid token or a blacklist error still reports success so the
// caller learns nothing about token state and double-logout stays harmless.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if _, err := s.codec.VerifyRefresh(refreshToken); err != nil {
		if s.logger != nil {
			s.logger.Info("logout_invalid_token", nil)
		}
		return nil
	}

	ttl := time.Duration(RemainingSeconds(refreshToken)) * time.Second
	if err := s.blacklist.Revoke(ctx, refreshToken, ttl); err != nil {
		if s.logger != nil {
			s.logger.Error("logout_revoke_failed", map[string]any{"error": err.Error()})
		}
	}
	return nil
}

// PrincipalByID reloads the sanitized principal for an authenticated subject.
// Returns nil for absent or inactive accounts.
func (s *Service) PrincipalByID(ctx context.Context, id string) (*AuthUser, error) {
	account, err := s.store.FindByID(ctx, id, false)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if account == nil || !account.IsActive {
		return nil, nil
	}
	user := sanitize(account, "")
	return &user, nil
}

// UsersByOrganization lists a tenant's accounts as sanitized views.
func (s *Service) UsersByOrganization(ctx context.Context, orgID string) ([]AuthUser, error) {
	accounts, err := s.store.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	users := make([]AuthUser, 0, len(accounts))
	for i := range accounts {
		users = append(users, sanitize(&accounts[i], ""))
	}
	return users, nil
}

// IsTokenRevoked exposes the blacklist to the access guard.
func (s *Service) IsTokenRevoked(ctx context.Context, token string) (bool, error) {
	return s.blacklist.IsRevoked(ctx, token)
}
