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

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/blnkfinance/namecard/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(model.Tenant), args.Error(1)
}

func (m *MockDataSource) GetTenantByID(ctx context.Context, tenantID string) (*model.Tenant, error) {
	args := m.Called(ctx, tenantID)
	if t, ok := args.Get(0).(*model.Tenant); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetTenantByRoutingKey(ctx context.Context, routingKey string) (*model.Tenant, error) {
	args := m.Called(ctx, routingKey)
	if t, ok := args.Get(0).(*model.Tenant); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetAllTenants(ctx context.Context, limit, offset int) ([]model.Tenant, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Tenant), args.Error(1)
}

func (m *MockDataSource) UpdateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(model.Tenant), args.Error(1)
}

func (m *MockDataSource) UpdateTenantStatus(ctx context.Context, tenantID string, status model.TenantStatus) error {
	args := m.Called(ctx, tenantID, status)
	return args.Error(0)
}

func (m *MockDataSource) DeleteTenant(ctx context.Context, tenantID string) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

func (m *MockDataSource) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
