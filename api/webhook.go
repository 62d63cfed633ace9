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
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard"
)

const (
	SignatureHeader = "X-Line-Signature"
	maxWebhookBytes = 1 << 20
)

// Webhook acknowledges a messaging webhook and processes its events in the
// background. The routing key comes from the path when present, otherwise
// from the destination in the body.
func (a Api) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read request body"})
		return
	}

	tenant, events, err := a.namecard.Accept(c.Request.Context(), c.Param("routingKey"), body, c.GetHeader(SignatureHeader))
	switch {
	case errors.Is(err, namecard.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case errors.Is(err, namecard.ErrMalformedWebhook):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		logrus.WithError(err).Error("webhook rejected")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	a.namecard.Dispatch(c.Request.Context(), tenant, events)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
