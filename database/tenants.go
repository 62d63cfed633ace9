/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/blnkfinance/namecard/internal/apierror"
	"github.com/blnkfinance/namecard/model"
)

const tenantColumns = `tenant_id, name, routing_key, status, daily_card_limit, batch_size_limit,
	reset_cadence, reset_day, credentials, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*model.Tenant, error) {
	t := model.Tenant{}
	var credentialsJSON []byte
	err := row.Scan(&t.TenantID, &t.Name, &t.RoutingKey, &t.Status,
		&t.Limits.DailyCardLimit, &t.Limits.BatchSizeLimit, &t.Limits.ResetCadence, &t.Limits.ResetDay,
		&credentialsJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(credentialsJSON) > 0 {
		if err := json.Unmarshal(credentialsJSON, &t.Credentials); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal tenant credentials", err)
		}
	}
	return &t, nil
}

func mapWriteError(err error, action string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return apierror.NewAPIError(apierror.ErrConflict, "Tenant with this ID or routing key already exists", err)
		case "check_violation", "not_null_violation":
			return apierror.NewAPIError(apierror.ErrInvalidInput, "Tenant record violates a table constraint", err)
		default:
			return apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
		}
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to "+action+" tenant", err)
}

func prepareTenant(t *model.Tenant) ([]byte, error) {
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	credentialsJSON, err := json.Marshal(t.Credentials)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal tenant credentials", err)
	}
	return credentialsJSON, nil
}

func (d Datasource) CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	if t.TenantID == "" {
		t.TenantID = model.GenerateUUIDWithSuffix("tnt")
	}
	credentialsJSON, err := prepareTenant(&t)
	if err != nil {
		return model.Tenant{}, err
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO namecard.tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.TenantID, t.Name, t.RoutingKey, t.Status,
		t.Limits.DailyCardLimit, t.Limits.BatchSizeLimit, t.Limits.ResetCadence, t.Limits.ResetDay,
		credentialsJSON, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return model.Tenant{}, mapWriteError(err, "create")
	}
	return t, nil
}

func (d Datasource) getTenant(ctx context.Context, column, value string) (*model.Tenant, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+tenantColumns+`
		FROM namecard.tenants
		WHERE `+column+` = $1
	`, value)

	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Tenant not found", err)
		}
		var apiErr apierror.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve tenant", err)
	}
	return t, nil
}

func (d Datasource) GetTenantByID(ctx context.Context, tenantID string) (*model.Tenant, error) {
	return d.getTenant(ctx, "tenant_id", tenantID)
}

func (d Datasource) GetTenantByRoutingKey(ctx context.Context, routingKey string) (*model.Tenant, error) {
	return d.getTenant(ctx, "routing_key", routingKey)
}

func (d Datasource) GetAllTenants(ctx context.Context, limit, offset int) ([]model.Tenant, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+tenantColumns+`
		FROM namecard.tenants
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve tenants", err)
	}
	defer rows.Close()

	tenants := []model.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan tenant data", err)
		}
		tenants = append(tenants, *t)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over tenants", err)
	}
	return tenants, nil
}

// UpdateTenant replaces every mutable field of the tenant. CreatedAt is kept.
func (d Datasource) UpdateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	credentialsJSON, err := prepareTenant(&t)
	if err != nil {
		return model.Tenant{}, err
	}
	t.UpdatedAt = time.Now().UTC()

	row := d.Conn.QueryRowContext(ctx, `
		UPDATE namecard.tenants
		SET name = $2, routing_key = $3, status = $4, daily_card_limit = $5, batch_size_limit = $6,
			reset_cadence = $7, reset_day = $8, credentials = $9, updated_at = $10
		WHERE tenant_id = $1
		RETURNING created_at
	`, t.TenantID, t.Name, t.RoutingKey, t.Status,
		t.Limits.DailyCardLimit, t.Limits.BatchSizeLimit, t.Limits.ResetCadence, t.Limits.ResetDay,
		credentialsJSON, t.UpdatedAt)
	if err := row.Scan(&t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Tenant{}, apierror.NewAPIError(apierror.ErrNotFound, "Tenant not found", err)
		}
		return model.Tenant{}, mapWriteError(err, "update")
	}
	return t, nil
}

func (d Datasource) UpdateTenantStatus(ctx context.Context, tenantID string, status model.TenantStatus) error {
	switch status {
	case model.TenantActive, model.TenantInactive, model.TenantPending:
	default:
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Unknown tenant status "+string(status), nil)
	}
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE namecard.tenants SET status = $2, updated_at = $3 WHERE tenant_id = $1
	`, tenantID, status, time.Now().UTC())
	if err != nil {
		return mapWriteError(err, "update")
	}
	return requireAffected(result)
}

func (d Datasource) DeleteTenant(ctx context.Context, tenantID string) error {
	result, err := d.Conn.ExecContext(ctx, `DELETE FROM namecard.tenants WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete tenant", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Tenant not found", nil)
	}
	return nil
}

func (d Datasource) Ping(ctx context.Context) error {
	return d.Conn.PingContext(ctx)
}
