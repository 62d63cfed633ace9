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

package config

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/namecard/model"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{
		Redis: RedisConfig{Dns: "localhost:6379"},
	}
	err := cnf.validateAndAddDefaults()
	assert.EqualError(t, err, "data source DNS is required")

	cnf = Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"},
	}
	err = cnf.validateAndAddDefaults()
	assert.EqualError(t, err, "redis DNS is required")

	cnf = Configuration{
		DataSource: DataSourceConfig{Dns: "some-dns"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	}
	require.NoError(t, cnf.validateAndAddDefaults())

	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, QuotaFailOpen, cnf.Quota.FailPolicy)
	assert.Equal(t, UploadBackendAuto, cnf.Upload.Backend)
	assert.Equal(t, 3, cnf.Upload.MaxAttempts)
	assert.Equal(t, []time.Duration{10 * time.Second, 30 * time.Second, time.Minute}, cnf.UploadRetryDelays())
	assert.Equal(t, 7, cnf.Upload.LedgerTTLDays)
	assert.Equal(t, 2*time.Second, cnf.StoreTimeout())
	assert.Equal(t, 300, cnf.TenantCache.TTLSec)
	assert.Equal(t, 24, cnf.Session.TTLHours)
	assert.Equal(t, 10, cnf.Security.AbuseLimit)
	assert.Equal(t, 60, cnf.Security.AbuseWindowSec)
	assert.Equal(t, 60, cnf.Security.BlockDurationMin)
	assert.Equal(t, int64(10<<20), cnf.Security.MaxImageBytes)
	assert.Nil(t, cnf.DefaultTenantModel())
}

func TestValidateAndAddDefaults_RejectsBadValues(t *testing.T) {
	base := func() Configuration {
		return Configuration{
			DataSource: DataSourceConfig{Dns: "some-dns"},
			Redis:      RedisConfig{Dns: "localhost:6379"},
		}
	}

	cnf := base()
	cnf.Quota.FailPolicy = "sometimes"
	assert.Error(t, cnf.validateAndAddDefaults())

	cnf = base()
	cnf.Upload.Backend = "kafka"
	assert.Error(t, cnf.validateAndAddDefaults())

	cnf = base()
	cnf.Quota.Timezone = "Mars/Olympus"
	assert.Error(t, cnf.validateAndAddDefaults())

	cnf = base()
	cnf.DefaultTenant = DefaultTenantConfig{
		Enabled: true,
		Limits:  model.TenantLimits{ResetCadence: model.CadenceMonthly, ResetDay: 30},
	}
	assert.Error(t, cnf.validateAndAddDefaults())
}

func TestDefaultTenantModel(t *testing.T) {
	cnf := Configuration{
		DefaultTenant: DefaultTenantConfig{
			Enabled: true,
			Name:    "legacy",
			Limits:  model.TenantLimits{ResetCadence: model.CadenceWeekly, ResetDay: 3},
		},
	}

	tenant := cnf.DefaultTenantModel()
	require.NotNil(t, tenant)
	assert.Equal(t, "default", tenant.TenantID)
	assert.True(t, tenant.IsActive())
	assert.Equal(t, model.DefaultDailyCardLimit, tenant.Limits.DailyCardLimit)
	assert.Equal(t, 3, tenant.Limits.ResetDay)
	assert.NoError(t, tenant.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "namecard.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource:  DataSourceConfig{Dns: "temp-dns"},
		Redis:       RedisConfig{Dns: "temp-redis"},
		Upload:      UploadConfig{Backend: UploadBackendInProcess},
	}
	require.NoError(t, json.NewEncoder(tmpFile).Encode(sampleConfig))
	tmpFile.Close()

	os.Setenv("NAMECARD_PROJECT_NAME", "Env Project")
	defer os.Unsetenv("NAMECARD_PROJECT_NAME")
	os.Setenv("NAMECARD_QUOTA_FAIL_POLICY", "closed")
	defer os.Unsetenv("NAMECARD_QUOTA_FAIL_POLICY")

	require.NoError(t, loadConfigFromFile(tmpFile.Name()))

	loadedConfig, err := Fetch()
	require.NoError(t, err)

	assert.Equal(t, "Env Project", loadedConfig.ProjectName)
	assert.Equal(t, "temp-dns", loadedConfig.DataSource.Dns)
	assert.Equal(t, QuotaFailClosed, loadedConfig.Quota.FailPolicy)
	assert.Equal(t, UploadBackendInProcess, loadedConfig.Upload.Backend)
}

func TestInitConfig(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "namecard.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "InitConfig Test",
		DataSource:  DataSourceConfig{Dns: "init-config-dns"},
		Redis:       RedisConfig{Dns: "localhost:6379"},
	}
	require.NoError(t, json.NewEncoder(tmpFile).Encode(sampleConfig))
	tmpFile.Close()

	require.NoError(t, InitConfig(tmpFile.Name()))

	loadedConfig, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "InitConfig Test", loadedConfig.ProjectName)
	assert.Equal(t, "init-config-dns", loadedConfig.DataSource.Dns)
}
