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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/namecard/database/mocks"
	"github.com/blnkfinance/namecard/internal/apierror"
	"github.com/blnkfinance/namecard/internal/docstore"
	"github.com/blnkfinance/namecard/internal/tenant"
	"github.com/blnkfinance/namecard/model"
)

type pingDocuments struct {
	fakeDocuments
	pingErr error
	pinged  *model.Tenant
}

func (p *pingDocuments) Ping(_ context.Context, t *model.Tenant) error {
	p.pinged = t
	return p.pingErr
}

func notFound() error {
	return apierror.NewAPIError(apierror.ErrNotFound, "tenant not found", nil)
}

func TestTenantAdmin_CreateClearsNegativeCache(t *testing.T) {
	ctx := context.Background()
	ds := new(mocks.MockDataSource)
	resolver := tenant.NewResolver(ds)
	admin := NewTenantAdmin(ds, resolver, &pingDocuments{})

	created := model.Tenant{TenantID: "tnt_1", RoutingKey: "Uabc", Status: model.TenantActive, Limits: model.DefaultLimits()}

	ds.On("GetTenantByRoutingKey", mock.Anything, "Uabc").Return(nil, notFound()).Once()
	_, err := resolver.Resolve(ctx, "Uabc")
	require.ErrorIs(t, err, tenant.ErrTenantNotFound)

	ds.On("CreateTenant", mock.Anything, mock.AnythingOfType("model.Tenant")).Return(created, nil)
	_, err = admin.CreateTenant(ctx, model.Tenant{RoutingKey: "Uabc"})
	require.NoError(t, err)

	ds.On("GetTenantByRoutingKey", mock.Anything, "Uabc").Return(&created, nil).Once()
	got, err := resolver.Resolve(ctx, "Uabc")
	require.NoError(t, err)
	assert.Equal(t, "tnt_1", got.TenantID)
	ds.AssertExpectations(t)
}

func TestTenantAdmin_UpdateEvictsOldRoutingKey(t *testing.T) {
	ctx := context.Background()
	ds := new(mocks.MockDataSource)
	resolver := tenant.NewResolver(ds)
	admin := NewTenantAdmin(ds, resolver, &pingDocuments{})

	old := &model.Tenant{TenantID: "tnt_1", RoutingKey: "Uold", Status: model.TenantActive, Limits: model.DefaultLimits()}
	updated := *old
	updated.RoutingKey = "Unew"

	ds.On("GetTenantByRoutingKey", mock.Anything, "Uold").Return(old, nil).Once()
	_, err := resolver.Resolve(ctx, "Uold")
	require.NoError(t, err)

	ds.On("GetTenantByID", mock.Anything, "tnt_1").Return(old, nil).Once()
	ds.On("UpdateTenant", mock.Anything, updated).Return(updated, nil)
	_, err = admin.UpdateTenant(ctx, updated)
	require.NoError(t, err)

	ds.On("GetTenantByRoutingKey", mock.Anything, "Uold").Return(nil, notFound()).Once()
	_, err = resolver.Resolve(ctx, "Uold")
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	ds.AssertExpectations(t)
}

func TestTenantAdmin_SetStatus(t *testing.T) {
	ctx := context.Background()
	ds := new(mocks.MockDataSource)
	admin := NewTenantAdmin(ds, tenant.NewResolver(ds), &pingDocuments{})

	ds.On("UpdateTenantStatus", mock.Anything, "tnt_1", model.TenantInactive).Return(nil)
	ds.On("GetTenantByID", mock.Anything, "tnt_1").Return(&model.Tenant{TenantID: "tnt_1", RoutingKey: "U1", Status: model.TenantInactive}, nil)

	got, err := admin.SetStatus(ctx, "tnt_1", model.TenantInactive)
	require.NoError(t, err)
	assert.Equal(t, model.TenantInactive, got.Status)

	ds.On("UpdateTenantStatus", mock.Anything, "missing", model.TenantActive).Return(notFound())
	_, err = admin.SetStatus(ctx, "missing", model.TenantActive)
	assert.True(t, apierror.IsNotFound(err))
}

func TestTenantAdmin_DeleteTenant(t *testing.T) {
	ctx := context.Background()
	ds := new(mocks.MockDataSource)
	admin := NewTenantAdmin(ds, tenant.NewResolver(ds), &pingDocuments{})

	ds.On("GetTenantByID", mock.Anything, "tnt_1").Return(&model.Tenant{TenantID: "tnt_1", RoutingKey: "U1"}, nil)
	ds.On("DeleteTenant", mock.Anything, "tnt_1").Return(nil)
	require.NoError(t, admin.DeleteTenant(ctx, "tnt_1"))

	ds.On("GetTenantByID", mock.Anything, "gone").Return(nil, notFound())
	assert.True(t, apierror.IsNotFound(admin.DeleteTenant(ctx, "gone")))
	ds.AssertNotCalled(t, "DeleteTenant", mock.Anything, "gone")
}

func TestTenantAdmin_TestConnection(t *testing.T) {
	ctx := context.Background()
	ds := new(mocks.MockDataSource)
	docs := &pingDocuments{}
	admin := NewTenantAdmin(ds, tenant.NewResolver(ds), docs)

	tnt := &model.Tenant{TenantID: "tnt_1", RoutingKey: "U1"}
	ds.On("GetTenantByID", mock.Anything, "tnt_1").Return(tnt, nil)

	require.NoError(t, admin.TestConnection(ctx, "tnt_1"))
	assert.Equal(t, tnt, docs.pinged)

	docs.pingErr = &docstore.Error{Kind: docstore.KindPermissionDenied, Err: errors.New("403")}
	err := admin.TestConnection(ctx, "tnt_1")
	assert.Equal(t, docstore.KindPermissionDenied, docstore.KindOf(err))
}
