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

package traces

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupOTelSDK(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:4318")

	ctx := context.Background()
	shutdown, err := SetupOTelSDK(ctx, "NAMECARD")
	require.NoError(t, err)

	_, span := otel.Tracer("namecard.test").Start(ctx, "export-check")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NotPanics(t, func() { _ = shutdown(ctx) })
}

func TestNewResource(t *testing.T) {
	res, err := newResource("NAMECARD")
	require.NoError(t, err)

	found := false
	for _, kv := range res.Attributes() {
		if kv.Key == "service.name" {
			found = kv.Value.AsString() == "NAMECARD"
		}
	}
	assert.True(t, found)
}
