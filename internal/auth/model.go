package auth

import "time"

// Role is the coarse privilege bundle assigned to an account. Permissions
// are derived from it through PermissionsForRole.
type Role string

const (
	RoleSuperAdmin        Role = "SUPER_ADMIN"
	RoleOrganizationAdmin Role = "ORGANIZATION_ADMIN"
	RoleLabManager        Role = "LAB_MANAGER"
	RoleSeniorTechnician  Role = "SENIOR_TECHNICIAN"
	RoleTechnician        Role = "TECHNICIAN"
	RoleStaff             Role = "STAFF"
)

var rolePermissions = map[Role][]string{
	RoleSuperAdmin: {
		"manage:organizations",
		"manage:users",
		"manage:tests",
		"manage:orders",
		"manage:results",
		"view:reports",
		"manage:system",
	},
	RoleOrganizationAdmin: {
		"manage:users",
		"manage:tests",
		"manage:orders",
		"manage:results",
		"view:reports",
		"manage:organization",
	},
	RoleLabManager: {
		"manage:users",
		"manage:tests",
		"manage:orders",
		"manage:results",
		"view:reports",
	},
	RoleSeniorTechnician: {
		"manage:tests",
		"manage:orders",
		"manage:results",
		"view:reports",
	},
	RoleTechnician: {
		"manage:orders",
		"manage:results",
		"view:reports",
	},
	RoleStaff: {
		"view:orders",
		"view:reports",
	},
}

// PermissionsForRole returns the static permission set for a role. Unknown
// roles map to an empty set rather than an error.
func PermissionsForRole(role Role) []string {
	perms, ok := rolePermissions[role]
	if !ok {
		return []string{}
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// Account is the durable login identity. The password hash is populated only
// when the store is asked for the password projection; it never leaves the
// auth package.
type Account struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	FullName            string
	Role                Role
	OrganizationID      string
	IsActive            bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Organization struct {
	ID        string
	Name      string
	Code      string
	IsActive  bool
	CreatedAt time.Time
}

// AuthUser is the sanitized, request-scoped view of an account. It carries no
// password material by construction.
type AuthUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Username         string     `json:"username"`
	Name             string     `json:"name"`
	Role             Role       `json:"role"`
	OrganizationID   string     `json:"organizationId"`
	OrganizationName string     `json:"organizationName,omitempty"`
	IsActive         bool       `json:"isActive"`
	Permissions      []string   `json:"permissions"`
	LastLogin        *time.Time `json:"lastLogin,omitempty"`
}

// LoginResult is the payload returned by a successful login.
type LoginResult struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	TokenType    string   `json:"tokenType"`
	ExpiresIn    int64    `json:"expiresIn"`
	User         AuthUser `json:"user"`
}

// RefreshResult carries the freshly minted access token. The refresh token is
// deliberately not rotated; clients keep the one issued at login.
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

func sanitize(account *Account, orgName string) AuthUser {
	return AuthUser{
		ID:               account.ID,
		Email:            account.Email,
		Username:         account.Username,
		Name:             account.FullName,
		Role:             account.Role,
		OrganizationID:   account.OrganizationID,
		OrganizationName: orgName,
		IsActive:         account.IsActive,
		Permissions:      PermissionsForRole(account.Role),
		LastLogin:        account.LastLoginAt,
	}
}
