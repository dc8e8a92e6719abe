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


// Package browser defines the browser-automation capability used by the crawler.
//
// The crawler never talks to a concrete driver. It acquires a Session from a
// Launcher, drives it through the small set of operations below and always
// closes it. browser/chrome provides the production implementation.
package browser

import "context"

// Launcher starts browser sessions.
type Launcher interface {
	// Launch starts a new browser session. The caller must Close it.
	Launch(ctx context.Context) (Session, error)
}

// Session is a single live browser tab.
// Sessions are not safe for concurrent use.
type Session interface {
	// Navigate loads url in the tab.
	Navigate(ctx context.Context, url string) error

	// WaitForSelector blocks until an element matching the CSS selector is
	// visible or ctx is done.
	WaitForSelector(ctx context.Context, selector string) error

	// QueryAll returns every element matching the CSS selector in document order.
	// No match is not an error.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// Query returns the first element matching the CSS selector, or nil.
	Query(ctx context.Context, selector string) (Element, error)

	// Content returns the serialized DOM of the current page.
	Content(ctx context.Context) (string, error)

	// Close releases the tab and the browser process behind it.
	Close() error
}

// Element is a handle to a DOM element inside a Session.
type Element interface {
	// Click activates the element.
	Click(ctx context.Context) error

	// Attribute returns the named attribute and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
}
