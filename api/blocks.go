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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apimodel "github.com/blnkfinance/namecard/api/model"
	"github.com/blnkfinance/namecard/model"
)

func (a Api) GetBlock(c *gin.Context) {
	entry, blocked, err := a.blocks.IsBlocked(c.Request.Context(), c.Param("tenantID"), c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if !blocked {
		c.JSON(http.StatusNotFound, gin.H{"error": "user is not blocked"})
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (a Api) BlockUser(c *gin.Context) {
	var req apimodel.BlockUser
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateBlockUser(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reason := model.BlockReasonManual
	if req.Reason != "" {
		reason = model.BlockReason(req.Reason)
	}
	entry, err := a.blocks.Block(c.Request.Context(), c.Param("tenantID"), c.Param("userID"), time.Duration(req.DurationMinutes)*time.Minute, reason)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (a Api) UnblockUser(c *gin.Context) {
	if err := a.blocks.Unblock(c.Request.Context(), c.Param("tenantID"), c.Param("userID")); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User unblocked"})
}
