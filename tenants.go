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

package namecard

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard/database"
	"github.com/blnkfinance/namecard/internal/docstore"
	"github.com/blnkfinance/namecard/internal/tenant"
	"github.com/blnkfinance/namecard/model"
)

// TenantAdmin manages tenant records and keeps the resolver cache in step
// with every write.
type TenantAdmin struct {
	datasource database.IDataSource
	resolver   *tenant.Resolver
	documents  docstore.Client
}

func NewTenantAdmin(ds database.IDataSource, resolver *tenant.Resolver, documents docstore.Client) *TenantAdmin {
	return &TenantAdmin{datasource: ds, resolver: resolver, documents: documents}
}

func (a *TenantAdmin) invalidate(ctx context.Context, tenants ...*model.Tenant) {
	for _, t := range tenants {
		if t == nil {
			continue
		}
		a.resolver.Invalidate(ctx, t.RoutingKey, t.TenantID)
	}
}

func (a *TenantAdmin) CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	ctx, span := tracer.Start(ctx, "Create Tenant")
	defer span.End()

	created, err := a.datasource.CreateTenant(ctx, t)
	if err != nil {
		return model.Tenant{}, err
	}
	// A negative lookup for the routing key may still be cached.
	a.invalidate(ctx, &created)
	logrus.WithField("tenant_id", created.TenantID).Info("tenant created")
	return created, nil
}

func (a *TenantAdmin) GetTenant(ctx context.Context, tenantID string) (*model.Tenant, error) {
	return a.datasource.GetTenantByID(ctx, tenantID)
}

func (a *TenantAdmin) ListTenants(ctx context.Context, limit, offset int) ([]model.Tenant, error) {
	return a.datasource.GetAllTenants(ctx, limit, offset)
}

// UpdateTenant replaces a tenant record. Both the old and the new routing
// key are evicted from the resolver cache.
func (a *TenantAdmin) UpdateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	ctx, span := tracer.Start(ctx, "Update Tenant")
	defer span.End()

	previous, err := a.datasource.GetTenantByID(ctx, t.TenantID)
	if err != nil {
		return model.Tenant{}, err
	}
	updated, err := a.datasource.UpdateTenant(ctx, t)
	if err != nil {
		return model.Tenant{}, err
	}
	a.invalidate(ctx, previous, &updated)
	return updated, nil
}

// SetStatus activates or deactivates a tenant.
func (a *TenantAdmin) SetStatus(ctx context.Context, tenantID string, status model.TenantStatus) (*model.Tenant, error) {
	if err := a.datasource.UpdateTenantStatus(ctx, tenantID, status); err != nil {
		return nil, err
	}
	t, err := a.datasource.GetTenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	a.invalidate(ctx, t)
	logrus.WithFields(logrus.Fields{"tenant_id": tenantID, "status": status}).Info("tenant status changed")
	return t, nil
}

func (a *TenantAdmin) DeleteTenant(ctx context.Context, tenantID string) error {
	t, err := a.datasource.GetTenantByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := a.datasource.DeleteTenant(ctx, tenantID); err != nil {
		return err
	}
	a.invalidate(ctx, t)
	return nil
}

// TestConnection checks that the tenant's document store credentials and
// table are usable.
func (a *TenantAdmin) TestConnection(ctx context.Context, tenantID string) error {
	t, err := a.datasource.GetTenantByID(ctx, tenantID)
	if err != nil {
		return err
	}
	return a.documents.Ping(ctx, t)
}
