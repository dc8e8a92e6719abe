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

	"github.com/chromedp/chromedp"
	"github.com/poiesic/imagerank/browser"
)

// Launcher starts Chrome through the DevTools protocol.
type Launcher struct {
	headless  bool
	userAgent string
	logger    *slog.Logger
}

var _ browser.Launcher = (*Launcher)(nil)

// Option configures a Launcher.
type Option func(*Launcher)

// WithHeadless controls whether Chrome shows a window. Default is true.
func WithHeadless(headless bool) Option {
	return func(l *Launcher) {
		l.headless = headless
	}
}

// WithUserAgent overrides the browser User-Agent.
func WithUserAgent(ua string) Option {
	return func(l *Launcher) {
		l.userAgent = ua
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
	}
}

// NewLauncher creates a Chrome launcher.
//
// Returns browser.Launcher interface to enforce abstraction.
func NewLauncher(opts ...Option) browser.Launcher {
	l := &Launcher{
		headless: true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "chromedp")
	return l
}

// Launch starts a browser process and opens a tab.
// The browser lifetime is owned by the returned session, not by ctx.
func (l *Launcher) Launch(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", l.headless))
	if l.userAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(l.userAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, args ...any) {
		l.logger.Debug("devtools error", "detail", format, "args", args)
	}))

	s := &Session{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		logger: l.logger,
	}

	// The first Run must use the tab context itself: a derived context would
	// tie the browser process to its cancellation. Startup still honors ctx.
	stop := context.AfterFunc(ctx, s.cancel)
	err := chromedp.Run(tabCtx)
	if !stop() || err != nil {
		s.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	l.logger.Debug("browser started", "headless", l.headless)
	return s, nil
}
