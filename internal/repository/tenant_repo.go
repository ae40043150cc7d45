// internal/repository/tenant_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mpesa-gateway/internal/domain"
)

// TenantRepository resolves per-vendor Daraja credentials. Tenant 0 is the
// merchant's own configuration supplied at startup; any other id is a
// marketplace vendor row.
//
// Expected schema:
//
//	tenants(id bigint pk, env text, app_key text, app_secret text,
//	        head_office text, short_code text, identifier_type int,
//	        passkey text, initiator text, initiator_password text,
//	        account_reference text, signature text, completion_status text)
type TenantRepository struct {
	db       *pgxpool.Pool
	defaults domain.TenantConfig
}

func NewTenantRepository(db *pgxpool.Pool, defaults domain.TenantConfig) *TenantRepository {
	return &TenantRepository{db: db, defaults: defaults}
}

func (r *TenantRepository) Resolve(ctx context.Context, tenantID int64) (domain.TenantConfig, error) {
	if tenantID == domain.DefaultTenantID {
		return r.defaults, nil
	}

	query := `
		SELECT env, app_key, app_secret, head_office, short_code,
		       identifier_type, passkey, initiator, initiator_password,
		       COALESCE(account_reference, ''), COALESCE(signature, ''),
		       COALESCE(completion_status, '')
		FROM tenants WHERE id = $1`

	var (
		cfg            domain.TenantConfig
		env            string
		identifierType int
		completion     string
	)
	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&env,
		&cfg.AppKey,
		&cfg.AppSecret,
		&cfg.HeadOffice,
		&cfg.ShortCode,
		&identifierType,
		&cfg.Passkey,
		&cfg.Initiator,
		&cfg.InitiatorPassword,
		&cfg.AccountReference,
		&cfg.Signature,
		&completion,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TenantConfig{}, fmt.Errorf("%w: tenant %d", domain.ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return domain.TenantConfig{}, err
	}

	cfg.Env = domain.Environment(env)
	cfg.IdentifierType = domain.IdentifierType(identifierType)
	cfg.CompletionStatus = domain.OrderStatus(completion)

	// Vendors inherit the merchant's callback origin and certificate; only
	// the Daraja credentials vary per vendor.
	cfg.CallbackBaseURL = r.defaults.CallbackBaseURL
	cfg.CertPath = r.defaults.CertPath
	if cfg.Signature == "" {
		cfg.Signature = r.defaults.Signature
	}
	return cfg, nil
}

// StaticTenantResolver serves a fixed configuration for every tenant id.
// Used by single-merchant deployments and tests.
type StaticTenantResolver struct {
	Config domain.TenantConfig
}

func (s StaticTenantResolver) Resolve(ctx context.Context, tenantID int64) (domain.TenantConfig, error) {
	return s.Config, nil
}
