package crawl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/poiesic/imagerank/browser"
	"github.com/poiesic/imagerank/core"
	"github.com/poiesic/imagerank/fetch"
)

// fakeResult describes one search result rendered by fakeSession.
type fakeResult struct {
	src      string
	alt      string
	source   string // empty renders no attribution links
	clickErr error
	noSrc    bool
}

type fakeLauncher struct {
	session   *fakeSession
	launchErr error
	launches  int
}

func (l *fakeLauncher) Launch(ctx context.Context) (browser.Session, error) {
	l.launches++
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return l.session, nil
}

type fakeSession struct {
	mu        sync.Mutex
	results   []fakeResult
	noResults bool
	navigated []string
	active    int
	closed    bool
}

func newFakeSession(results ...fakeResult) *fakeSession {
	return &fakeSession{results: results, active: -1}
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) WaitForSelector(ctx context.Context, selector string) error {
	if selector == DefaultSelectors().Results && s.noResults {
		<-ctx.Done()
		return ctx.Err()
	}
	return ctx.Err()
}

func (s *fakeSession) QueryAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if selector != DefaultSelectors().Result {
		return nil, nil
	}
	elements := make([]browser.Element, len(s.results))
	for i := range s.results {
		elements[i] = &fakeResultElement{session: s, position: i}
	}
	return elements, nil
}

func (s *fakeSession) Query(ctx context.Context, selector string) (browser.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if selector != DefaultSelectors().Preview || s.active < 0 {
		return nil, nil
	}
	return &fakePreview{result: s.results[s.active]}, nil
}

func (s *fakeSession) Content(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active < 0 || s.results[s.active].source == "" {
		return "<html><body></body></html>", nil
	}
	return fmt.Sprintf(`<html><body><div jsname="figiqf">`+
		`<a class="YsLeY" href="https://images.example.net/visit">visit</a>`+
		`<a class="YsLeY" href="%s">source</a></div></body></html>`, s.results[s.active].source), nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeResultElement struct {
	session  *fakeSession
	position int
}

func (e *fakeResultElement) Click(ctx context.Context) error {
	r := e.session.results[e.position]
	if r.clickErr != nil {
		return r.clickErr
	}
	e.session.mu.Lock()
	e.session.active = e.position
	e.session.mu.Unlock()
	return nil
}

func (e *fakeResultElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	return "", false, nil
}

type fakePreview struct {
	result fakeResult
}

func (p *fakePreview) Click(ctx context.Context) error { return nil }

func (p *fakePreview) Attribute(ctx context.Context, name string) (string, bool, error) {
	switch name {
	case "src":
		if p.result.noSrc {
			return "", false, nil
		}
		return p.result.src, true, nil
	case "alt":
		return p.result.alt, true, nil
	}
	return "", false, nil
}

// fakeFetcher writes a small file per successful fetch. URLs listed in
// failures fail; digests maps URLs to fixed digests so duplicates can be forced.
type fakeFetcher struct {
	failures map[string]bool
	digests  map[string]core.Digest
	onFetch  func(call int)
	calls    int
}

func (f *fakeFetcher) Fetch(ctx context.Context, imageURL, stem string) (*fetch.Image, error) {
	f.calls++
	if f.onFetch != nil {
		f.onFetch(f.calls)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failures[imageURL] {
		return nil, fmt.Errorf("%w: %s", core.ErrFetchFailure, imageURL)
	}
	path := stem + core.ImageExtension
	payload := []byte(imageURL)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return nil, err
	}
	digest, ok := f.digests[imageURL]
	if !ok {
		digest = core.DigestBytes(payload)
	}
	return &fetch.Image{Path: path, SourceFormat: "jpeg", Width: 1, Height: 1, Digest: digest}, nil
}

var errClick = errors.New("element detached")
