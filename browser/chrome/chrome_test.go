package chrome

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/poiesic/imagerank/browser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPage = `<!DOCTYPE html>
<html><body>
<div id="results">
  <div class="result" data-n="1" onclick="document.getElementById('preview').style.display='block'">one</div>
  <div class="result" data-n="2">two</div>
</div>
<img id="preview" src="/full.png" alt="full size" style="display:none">
</body></html>`

// requireChrome skips the test when no Chrome binary is installed.
func requireChrome(t *testing.T) {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("chrome not installed")
}

func launchSession(t *testing.T) (browser.Session, string) {
	t.Helper()
	requireChrome(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, testPage)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := NewLauncher().Launch(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session, server.URL
}

func TestLaunch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err := NewLauncher().Launch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, session)
}

func TestSession_DrivesPage(t *testing.T) {
	session, url := launchSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, session.Navigate(ctx, url))
	require.NoError(t, session.WaitForSelector(ctx, "#results"))

	results, err := session.QueryAll(ctx, "div.result")
	require.NoError(t, err)
	require.Len(t, results, 2)
	n, ok, err := results[1].Attribute(ctx, "data-n")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", n)

	none, err := session.QueryAll(ctx, "div.missing")
	require.NoError(t, err)
	assert.Empty(t, none)
	missing, err := session.Query(ctx, "div.missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, results[0].Click(ctx))
	require.NoError(t, session.WaitForSelector(ctx, "#preview"))
	preview, err := session.Query(ctx, "#preview")
	require.NoError(t, err)
	require.NotNil(t, preview)
	alt, ok, err := preview.Attribute(ctx, "alt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "full size", alt)

	html, err := session.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, `id="results"`)

	require.NoError(t, session.Close())
	assert.NotPanics(t, func() { session.Close() })
}

func TestSession_CallerDeadlineDoesNotEndSession(t *testing.T) {
	session, url := launchSession(t)
	require.NoError(t, session.Navigate(context.Background(), url))

	waitCtx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := session.WaitForSelector(waitCtx, "div.never")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 10*time.Second)

	// The tab outlives the expired wait.
	ctx, cancelAll := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancelAll()
	require.NoError(t, session.WaitForSelector(ctx, "#results"))
}

func TestLaunch_SessionOutlivesLaunchContext(t *testing.T) {
	requireChrome(t)

	launchCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	session, err := NewLauncher().Launch(launchCtx)
	require.NoError(t, err)
	defer session.Close()
	cancel()

	ctx, cancelNav := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancelNav()
	assert.NoError(t, session.Navigate(ctx, "about:blank"))
}

func TestSession_CanceledCallerContext(t *testing.T) {
	session, url := launchSession(t)
	require.NoError(t, session.Navigate(context.Background(), url))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := session.QueryAll(ctx, "div.result")
	assert.ErrorIs(t, err, context.Canceled)
}
