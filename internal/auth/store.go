package auth

import "context"

// AccountStore owns the durable account record. Lookups return (nil, nil) for
// missing rows. The withPassword projection is requested only on the login and
// change-password paths.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string, withPassword bool) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByID(ctx context.Context, id string, withPassword bool) (*Account, error)
	ListByOrganization(ctx context.Context, orgID string) ([]Account, error)
	Create(ctx context.Context, account *Account) error
	Save(ctx context.Context, account *Account) error
}

// TenantStore resolves organizations. Used only to validate existence at
// registration time.
type TenantStore interface {
	FindOrganizationByID(ctx context.Context, id string) (*Organization, error)
}
