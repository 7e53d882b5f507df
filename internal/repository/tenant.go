package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/burrow-ai/burrow/internal/domain"
)

type TenantRepository struct {
	pool *pgxpool.Pool
}

func NewTenantRepository(pool *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{pool: pool}
}

func (r *TenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tenants (tenant_id, name, created_at) VALUES ($1, $2, $3)`,
		tenant.TenantID, tenant.Name, tenant.CreatedAt,
	)
	return err
}

func (r *TenantRepository) GetByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id, name, created_at FROM tenants WHERE tenant_id = $1`,
		tenantID,
	).Scan(&tenant.TenantID, &tenant.Name, &tenant.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *TenantRepository) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.pool.QueryRow(ctx,
		`SELECT tenant_id, name, created_at FROM tenants WHERE name = $1`,
		name,
	).Scan(&tenant.TenantID, &tenant.Name, &tenant.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *TenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tenant_id, name, created_at FROM tenants ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		var tenant domain.Tenant
		if err := rows.Scan(&tenant.TenantID, &tenant.Name, &tenant.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, &tenant)
	}
	return tenants, rows.Err()
}

func (r *TenantRepository) Delete(ctx context.Context, tenantID string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM tenants WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrTenantNotFound
	}
	return nil
}
