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

package docstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blnkfinance/namecard/internal/credentials"
	"github.com/blnkfinance/namecard/internal/request"
	"github.com/blnkfinance/namecard/model"
)

type createRequest struct {
	Fields model.CardRecord `json:"fields"`
}

type patchRequest struct {
	ImageURL string `json:"image_url"`
}

// HTTPClient talks to a REST document store:
//
//	POST  {base}/tables/{table}/records
//	PATCH {base}/tables/{table}/records/{id}
//	GET   {base}/tables/{table}
type HTTPClient struct {
	baseURL string
	client  *http.Client
	creds   credentials.Resolver
	timeout time.Duration
}

func NewHTTPClient(baseURL string, creds credentials.Resolver, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		creds:   creds,
		timeout: timeout,
	}
}

func (c *HTTPClient) tableURL(tenant *model.Tenant) (string, error) {
	table := tenant.Credentials.DocumentStoreTable
	if table == "" {
		return "", &Error{Kind: KindNotFound, Message: fmt.Sprintf("tenant %s has no document store table", tenant.TenantID)}
	}
	return fmt.Sprintf("%s/tables/%s", c.baseURL, url.PathEscape(table)), nil
}

func (c *HTTPClient) headers(tenant *model.Tenant) (map[string]string, error) {
	token, err := c.creds.Resolve(tenant.Credentials.DocumentStoreRef)
	if err != nil {
		return nil, &Error{Kind: KindPermissionDenied, Message: "document store credential could not be resolved", Err: err}
	}
	return map[string]string{"Authorization": request.BearerAuth(token)}, nil
}

func (c *HTTPClient) Create(ctx context.Context, tenant *model.Tenant, card model.CardRecord) (model.RecordHandle, error) {
	base, err := c.tableURL(tenant)
	if err != nil {
		return model.RecordHandle{}, err
	}
	headers, err := c.headers(tenant)
	if err != nil {
		return model.RecordHandle{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var handle model.RecordHandle
	if _, err := request.Do(ctx, c.client, http.MethodPost, base+"/records", headers, createRequest{Fields: card}, &handle); err != nil {
		return model.RecordHandle{}, classify(err)
	}
	if handle.ID == "" {
		return model.RecordHandle{}, &Error{Kind: KindSchemaMismatch, Message: "document store returned a record without an id"}
	}
	return handle, nil
}

func (c *HTTPClient) PatchImage(ctx context.Context, tenant *model.Tenant, handle model.RecordHandle, imageURL string) error {
	base, err := c.tableURL(tenant)
	if err != nil {
		return err
	}
	headers, err := c.headers(tenant)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := fmt.Sprintf("%s/records/%s", base, url.PathEscape(handle.ID))
	if _, err := request.Do(ctx, c.client, http.MethodPatch, target, headers, patchRequest{ImageURL: imageURL}, nil); err != nil {
		return classify(err)
	}
	return nil
}

// Ping checks that the tenant's credentials can read its table.
func (c *HTTPClient) Ping(ctx context.Context, tenant *model.Tenant) error {
	base, err := c.tableURL(tenant)
	if err != nil {
		return err
	}
	headers, err := c.headers(tenant)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := request.Do(ctx, c.client, http.MethodGet, base, headers, nil, nil); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) *Error {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) {
		return &Error{Kind: KindNetwork, Message: "document store unreachable", Err: err}
	}
	switch {
	case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindPermissionDenied, Message: "access to the document store was denied", Err: err}
	case statusErr.StatusCode == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Message: "table or record not found", Err: err}
	case statusErr.StatusCode == http.StatusBadRequest || statusErr.StatusCode == http.StatusUnprocessableEntity:
		return &Error{Kind: KindSchemaMismatch, Message: "record does not match the table schema", Err: err}
	case statusErr.StatusCode == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Message: "document store rate limit reached", Err: err}
	default:
		return &Error{Kind: KindNetwork, Message: "document store request failed", Err: err}
	}
}
