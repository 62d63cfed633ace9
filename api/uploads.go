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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apimodel "github.com/blnkfinance/namecard/api/model"
	"github.com/blnkfinance/namecard/internal/upload"
)

func (a Api) UploadStatus(c *gin.Context) {
	resp, err := a.uploads.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetFailedUploads(c *gin.Context) {
	tasks, err := a.uploads.ListFailed(c.Request.Context(), c.Param("userID"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, apimodel.ToFailedUploads(tasks))
}

// RetryUpload replays one failed upload and waits for the outcome.
func (a Api) RetryUpload(c *gin.Context) {
	err := a.uploads.RetryTask(c.Request.Context(), c.Param("userID"), c.Param("taskID"))
	switch {
	case errors.Is(err, upload.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "error_kind": upload.ErrorKind(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Upload completed"})
}

func (a Api) RetryAllUploads(c *gin.Context) {
	summary, err := a.uploads.RetryAll(c.Request.Context(), c.Param("userID"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (a Api) ClearFailedUploads(c *gin.Context) {
	n, err := a.uploads.ClearFailed(c.Request.Context(), c.Param("userID"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cleared": n})
}
