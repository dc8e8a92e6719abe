// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport indicates a connection failure or timeout.
	ErrTransport = errors.New("transport error")

	// ErrDecode indicates the payload was not a decodable image.
	ErrDecode = errors.New("image decode error")

	// ErrTooLarge indicates the payload exceeded the configured size limit.
	ErrTooLarge = errors.New("image payload too large")

	// ErrUnsupportedURL indicates a URL that cannot be fetched over HTTP.
	// It is not retried.
	ErrUnsupportedURL = errors.New("unsupported image URL")

	// ErrInvalidMaxAttempts indicates a non-positive attempt budget.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")
)

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
}
