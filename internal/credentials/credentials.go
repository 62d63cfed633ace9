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

// Package credentials turns the credential references stored on a tenant
// into secret values.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrEmptyReference = errors.New("credential reference is empty")

// Resolver looks up the secret behind a reference.
type Resolver interface {
	Resolve(ref string) (string, error)
}

// EnvResolver understands "env:NAME" and "literal:value" references. A
// reference without a scheme is read as an environment variable name.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

func (r *EnvResolver) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmptyReference
	}

	scheme, value, found := strings.Cut(ref, ":")
	if !found {
		scheme, value = "env", ref
	}

	switch scheme {
	case "literal":
		return value, nil
	case "env":
		v, ok := r.lookup(value)
		if !ok || v == "" {
			return "", fmt.Errorf("environment variable %s is not set", value)
		}
		return v, nil
	default:
		return "", fmt.Errorf("unsupported credential reference scheme %q", scheme)
	}
}

// Static resolves references from a fixed map, for tests and the default tenant.
type Static map[string]string

func (s Static) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", ErrEmptyReference
	}
	v, ok := s[ref]
	if !ok {
		return "", fmt.Errorf("unknown credential reference %q", ref)
	}
	return v, nil
}
