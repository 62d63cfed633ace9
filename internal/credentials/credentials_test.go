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

package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvResolver(t *testing.T) {
	t.Setenv("NAMECARD_TEST_SECRET", "s3cr3t")
	r := NewEnvResolver()

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "env:NAMECARD_TEST_SECRET", want: "s3cr3t"},
		{ref: "NAMECARD_TEST_SECRET", want: "s3cr3t"},
		{ref: "literal:abc:def", want: "abc:def"},
		{ref: "env:NAMECARD_TEST_MISSING", wantErr: true},
		{ref: "vault:secret/x", wantErr: true},
		{ref: " ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := r.Resolve(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatic(t *testing.T) {
	s := Static{"line": "token"}
	got, err := s.Resolve("line")
	assert.NoError(t, err)
	assert.Equal(t, "token", got)

	_, err = s.Resolve("other")
	assert.Error(t, err)
	_, err = s.Resolve("")
	assert.ErrorIs(t, err, ErrEmptyReference)
}
