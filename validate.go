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

import "bytes"

// DefaultMaxImageBytes caps inbound card images at 10 MiB.
const DefaultMaxImageBytes = 10 << 20

var imageSignatures = [][]byte{
	{0xFF, 0xD8, 0xFF},                            // JPEG
	{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}, // PNG
	[]byte("GIF87a"),
	[]byte("GIF89a"),
}

// ValidateImage accepts non-empty JPEG, PNG and GIF images up to maxBytes.
func ValidateImage(image []byte, maxBytes int) error {
	if len(image) == 0 || len(image) > maxBytes {
		return ErrInvalidImage
	}
	for _, sig := range imageSignatures {
		if bytes.HasPrefix(image, sig) {
			return nil
		}
	}
	return ErrInvalidImage
}
