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

import "errors"

// Admission errors. Each one becomes a reply to the user rather than a
// failed webhook.
var (
	ErrQuotaExceeded  = errors.New("card quota exceeded for the current period")
	ErrUserBlocked    = errors.New("user is temporarily blocked")
	ErrBatchCapacity  = errors.New("batch is full")
	ErrTenantInactive = errors.New("tenant is not active")
	ErrInvalidImage   = errors.New("image is too large or not a supported format")

	ErrInvalidSignature = errors.New("webhook signature mismatch")
	ErrMalformedWebhook = errors.New("malformed webhook body")
)
