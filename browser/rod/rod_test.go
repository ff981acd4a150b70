package rod

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mateothegreat/go-signin-e2e/browser"
)

func TestLauncherFlags(t *testing.T) {
	l := New(Config{}).launcher(browser.DefaultOptions())

	assert.True(t, l.Has("headless"))
	assert.True(t, l.Has("no-sandbox"))
	assert.True(t, l.Has("disable-dev-shm-usage"))
	assert.True(t, l.Has("silent"))
	assert.Equal(t, "3", l.Get("log-level"))
}

func TestLauncherHeadful(t *testing.T) {
	l := New(Config{}).launcher(browser.Options{})

	assert.False(t, l.Has("headless"))
	assert.False(t, l.Has("no-sandbox"))
	assert.False(t, l.Has("silent"))
}

func TestOpenCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{}).Open(ctx, browser.DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}
