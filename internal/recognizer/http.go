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

package recognizer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blnkfinance/namecard/internal/credentials"
	"github.com/blnkfinance/namecard/internal/request"
	"github.com/blnkfinance/namecard/model"
)

// DefaultMinConfidence is the confidence below which a result is rejected
// as low quality.
const DefaultMinConfidence = 0.3

type recognizeRequest struct {
	Image    string `json:"image"`
	TenantID string `json:"tenant_id"`
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPRecognizer posts base64 images to {baseURL}/recognize and expects a
// Result back. The bearer token comes from the tenant's recognizer
// credential reference.
type HTTPRecognizer struct {
	baseURL       string
	client        *http.Client
	creds         credentials.Resolver
	timeout       time.Duration
	minConfidence float64
}

func NewHTTPRecognizer(baseURL string, creds credentials.Resolver, timeout time.Duration) *HTTPRecognizer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPRecognizer{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{},
		creds:         creds,
		timeout:       timeout,
		minConfidence: DefaultMinConfidence,
	}
}

func (h *HTTPRecognizer) Recognize(ctx context.Context, tenant *model.Tenant, image []byte) (*Result, error) {
	token, err := h.creds.Resolve(tenant.Credentials.RecognizerRef)
	if err != nil {
		return nil, newError(KindInvalidCredentials, "recognizer credential could not be resolved", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var res Result
	_, err = request.Do(ctx, h.client, http.MethodPost, h.baseURL+"/recognize",
		map[string]string{"Authorization": request.BearerAuth(token)},
		recognizeRequest{Image: base64.StdEncoding.EncodeToString(image), TenantID: tenant.TenantID},
		&res)
	if err != nil {
		return nil, classify(ctx, err)
	}

	if len(res.Cards) == 0 {
		return nil, newError(KindNoCardFound, "no business card found in the image", nil)
	}
	if res.Confidence > 0 && res.Confidence < h.minConfidence {
		return nil, newError(KindLowQuality, "recognition confidence too low", nil)
	}
	for _, card := range res.Cards {
		if strings.TrimSpace(card.Name) == "" && strings.TrimSpace(card.Company) == "" {
			return nil, newError(KindIncomplete, "card is missing both name and company", nil)
		}
	}
	return &res, nil
}

func classify(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, "recognizer did not answer in time", err)
	}

	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return newError(KindParseError, "recognizer returned an unreadable response", err)
		}
		return newError(KindTimeout, "recognizer unreachable", err)
	}

	var body errorBody
	if json.Unmarshal([]byte(statusErr.Body), &body) == nil && knownKinds[Kind(body.Error.Kind)] {
		return newError(Kind(body.Error.Kind), body.Error.Message, nil)
	}

	switch statusErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return newError(KindInvalidCredentials, "recognizer rejected the credentials", err)
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return newError(KindQuotaExhausted, "recognizer quota exhausted", err)
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return newError(KindTimeout, "recognizer timed out", err)
	default:
		return newError(KindParseError, "recognizer request failed", err)
	}
}
