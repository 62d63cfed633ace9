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

	"github.com/blnkfinance/namecard/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	tenant
	Ping(ctx context.Context) error
}

// tenant defines methods for handling tenant configuration records.
type tenant interface {
	CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error)
	GetTenantByID(ctx context.Context, tenantID string) (*model.Tenant, error)
	GetTenantByRoutingKey(ctx context.Context, routingKey string) (*model.Tenant, error)
	GetAllTenants(ctx context.Context, limit, offset int) ([]model.Tenant, error)
	UpdateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error)
	UpdateTenantStatus(ctx context.Context, tenantID string, status model.TenantStatus) error
	DeleteTenant(ctx context.Context, tenantID string) error
}
