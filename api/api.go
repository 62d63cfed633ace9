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

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/namecard"
	"github.com/blnkfinance/namecard/api/middleware"
	"github.com/blnkfinance/namecard/config"
	"github.com/blnkfinance/namecard/internal/apierror"
	"github.com/blnkfinance/namecard/internal/upload"
	"github.com/blnkfinance/namecard/model"
)

// UploadManager is the operator surface of the upload worker.
type UploadManager interface {
	ListFailed(ctx context.Context, userID string) ([]model.UploadTask, error)
	RetryTask(ctx context.Context, userID, taskID string) error
	RetryAll(ctx context.Context, userID string) (upload.RetrySummary, error)
	ClearFailed(ctx context.Context, userID string) (int, error)
	Status(ctx context.Context) (upload.Status, error)
}

// BlockManager is the operator surface of the block list.
type BlockManager interface {
	Block(ctx context.Context, tenantID, userID string, duration time.Duration, reason model.BlockReason) (*model.BlockEntry, error)
	IsBlocked(ctx context.Context, tenantID, userID string) (*model.BlockEntry, bool, error)
	Unblock(ctx context.Context, tenantID, userID string) error
}

type Api struct {
	namecard *namecard.Namecard
	tenants  *namecard.TenantAdmin
	uploads  UploadManager
	blocks   BlockManager
	conf     *config.Configuration
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/webhook", a.Webhook)
	router.POST("/webhook/:routingKey", a.Webhook)

	admin := router.Group("/")
	if a.conf.Server.Secure {
		admin.Use(middleware.SecretKeyAuthMiddleware(a.conf))
	}

	// Tenant routes need the tenant registry; a default-tenant-only
	// deployment has none.
	if a.tenants != nil {
		admin.POST("/tenants", a.CreateTenant)
		admin.GET("/tenants", a.GetAllTenants)
		admin.GET("/tenants/:id", a.GetTenant)
		admin.PUT("/tenants/:id", a.UpdateTenant)
		admin.PATCH("/tenants/:id/status", a.UpdateTenantStatus)
		admin.DELETE("/tenants/:id", a.DeleteTenant)
		admin.POST("/tenants/:id/test", a.TestTenantConnection)
	}

	admin.GET("/uploads/status", a.UploadStatus)
	admin.GET("/uploads/failed/:userID", a.GetFailedUploads)
	admin.POST("/uploads/failed/:userID/retry", a.RetryAllUploads)
	admin.POST("/uploads/failed/:userID/retry/:taskID", a.RetryUpload)
	admin.DELETE("/uploads/failed/:userID", a.ClearFailedUploads)

	admin.GET("/blocks/:tenantID/:userID", a.GetBlock)
	admin.POST("/blocks/:tenantID/:userID", a.BlockUser)
	admin.DELETE("/blocks/:tenantID/:userID", a.UnblockUser)

	admin.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return a.router
}

func NewAPI(n *namecard.Namecard, tenants *namecard.TenantAdmin, uploads UploadManager, blocks BlockManager) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(conf.ProjectName), middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{namecard: n, tenants: tenants, uploads: uploads, blocks: blocks, conf: conf, router: r}
}

// respondError writes err with the status its code maps to.
func respondError(c *gin.Context, err error) {
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": apiErr.Message})
		return
	}
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}
