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
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/namecard/internal/apierror"
	"github.com/blnkfinance/namecard/model"
)

var tenantColumnNames = []string{"tenant_id", "name", "routing_key", "status", "daily_card_limit", "batch_size_limit",
	"reset_cadence", "reset_day", "credentials", "created_at", "updated_at"}

func fakeTenant() model.Tenant {
	return model.Tenant{
		Name:       gofakeit.Company(),
		RoutingKey: "U" + gofakeit.UUID(),
		Status:     model.TenantActive,
		Limits:     model.TenantLimits{DailyCardLimit: 100, BatchSizeLimit: 20, ResetCadence: model.CadenceWeekly, ResetDay: 3},
		Credentials: model.TenantCredentials{
			ChannelSecretRef: "env:LINE_SECRET",
			ChannelTokenRef:  "env:LINE_TOKEN",
		},
	}
}

func TestCreateTenant_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	tenant := fakeTenant()
	credentialsJSON, err := json.Marshal(tenant.Credentials)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO namecard.tenants").
		WithArgs(sqlmock.AnyArg(), tenant.Name, tenant.RoutingKey, model.TenantActive, 100, 20,
			model.CadenceWeekly, 3, credentialsJSON, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateTenant(context.Background(), tenant)
	require.NoError(t, err)
	assert.Contains(t, created.TenantID, "tnt_")
	assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTenant_AppliesDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectExec("INSERT INTO namecard.tenants").
		WithArgs("tnt_fixed", "", "Urk", model.TenantPending, model.DefaultDailyCardLimit, model.DefaultBatchSizeLimit,
			model.CadenceDaily, 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateTenant(context.Background(), model.Tenant{TenantID: "tnt_fixed", RoutingKey: "Urk"})
	require.NoError(t, err)
	assert.Equal(t, model.TenantPending, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTenant_InvalidLimits(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	tenant := fakeTenant()
	tenant.Limits.ResetCadence = model.CadenceMonthly
	tenant.Limits.ResetDay = 31

	_, err = ds.CreateTenant(context.Background(), tenant)
	require.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))
}

func TestCreateTenant_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectExec("INSERT INTO namecard.tenants").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	_, err = ds.CreateTenant(context.Background(), fakeTenant())
	require.Error(t, err)
	assert.True(t, apierror.IsConflict(err))
}

func TestGetTenantByRoutingKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now().UTC().Truncate(time.Second)
	rows := sqlmock.NewRows(tenantColumnNames).
		AddRow("tnt_1", "Acme", "Uacme", "active", 50, 10, "daily", 0, []byte(`{"channel_token_ref":"env:TOKEN"}`), now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM namecard.tenants")).
		WithArgs("Uacme").
		WillReturnRows(rows)

	tenant, err := ds.GetTenantByRoutingKey(context.Background(), "Uacme")
	require.NoError(t, err)
	assert.Equal(t, "tnt_1", tenant.TenantID)
	assert.Equal(t, model.TenantActive, tenant.Status)
	assert.Equal(t, "env:TOKEN", tenant.Credentials.ChannelTokenRef)
	assert.Equal(t, now, tenant.CreatedAt)
}

func TestGetTenantByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectQuery(regexp.QuoteMeta("FROM namecard.tenants")).
		WithArgs("tnt_missing").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetTenantByID(context.Background(), "tnt_missing")
	require.Error(t, err)
	assert.True(t, apierror.IsNotFound(err))
}

func TestGetAllTenants(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now().UTC()
	rows := sqlmock.NewRows(tenantColumnNames).
		AddRow("tnt_1", "Acme", "Uacme", "active", 50, 10, "daily", 0, []byte(`{}`), now, now).
		AddRow("tnt_2", "Globex", "Uglobex", "inactive", 20, 5, "monthly", 1, []byte(`{}`), now, now)

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1 OFFSET $2")).
		WithArgs(20, 0).
		WillReturnRows(rows)

	tenants, err := ds.GetAllTenants(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, model.CadenceMonthly, tenants[1].Limits.ResetCadence)
}

func TestUpdateTenant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	created := time.Now().Add(-time.Hour).UTC()
	tenant := fakeTenant()
	tenant.TenantID = "tnt_1"

	mock.ExpectQuery("UPDATE namecard.tenants").
		WithArgs("tnt_1", tenant.Name, tenant.RoutingKey, model.TenantActive, 100, 20, model.CadenceWeekly, 3,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	updated, err := ds.UpdateTenant(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, created, updated.CreatedAt)

	mock.ExpectQuery("UPDATE namecard.tenants").WillReturnError(sql.ErrNoRows)
	_, err = ds.UpdateTenant(context.Background(), tenant)
	assert.True(t, apierror.IsNotFound(err))
}

func TestUpdateTenantStatusAndDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectExec("UPDATE namecard.tenants SET status").
		WithArgs("tnt_1", model.TenantInactive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, ds.UpdateTenantStatus(context.Background(), "tnt_1", model.TenantInactive))

	err = ds.UpdateTenantStatus(context.Background(), "tnt_1", "archived")
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	mock.ExpectExec("DELETE FROM namecard.tenants").
		WithArgs("tnt_2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = ds.DeleteTenant(context.Background(), "tnt_2")
	assert.True(t, apierror.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
