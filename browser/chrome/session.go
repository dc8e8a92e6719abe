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


package chrome

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/poiesic/imagerank/browser"
)

// Session is a browser.Session backed by a chromedp tab.
type Session struct {
	ctx       context.Context // tab context, lives until Close
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *slog.Logger
}

var _ browser.Session = (*Session)(nil)

// run executes actions on the tab, bounded by the caller's deadline and
// cancellation as well as the tab's lifetime.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("navigating", "url", url)
	return s.run(ctx, chromedp.Navigate(url))
}

// WaitForSelector waits until selector is visible.
func (s *Session) WaitForSelector(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// QueryAll returns every node matching selector without waiting for one to appear.
func (s *Session) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	elements := make([]browser.Element, len(nodes))
	for i, node := range nodes {
		elements[i] = &element{session: s, node: node}
	}
	return elements, nil
}

// Query returns the first node matching selector, or nil.
func (s *Session) Query(ctx context.Context, selector string) (browser.Element, error) {
	elements, err := s.QueryAll(ctx, selector)
	if err != nil || len(elements) == 0 {
		return nil, err
	}
	return elements[0], nil
}

// Content returns the outer HTML of the document element.
func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Close shuts the tab and the browser down. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// Cancel gracefully closes the browser before the allocator is torn down
		err = chromedp.Cancel(s.ctx)
		s.cancel()
		s.logger.Debug("browser closed")
	})
	return err
}

// element wraps a DOM node captured by QueryAll.
type element struct {
	session *Session
	node    *cdp.Node
}

// Click dispatches a mouse click on the node.
func (e *element) Click(ctx context.Context) error {
	return e.session.run(ctx, chromedp.MouseClickNode(e.node))
}

// Attribute reads an attribute from the node.
func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	value, ok := e.node.Attribute(name)
	return value, ok, nil
}
