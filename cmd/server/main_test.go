package main

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsListenError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	t.Setenv("REDIS_ADDR", mr.Addr())

	boom := errors.New("listen failed")
	orig := listenAndServe
	listenAndServe = func(addr string, handler http.Handler) error {
		assert.Equal(t, ":8080", addr)
		assert.NotNil(t, handler)
		return boom
	}
	defer func() { listenAndServe = orig }()

	err = run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("SNAPSHOT_INTERVAL", "50ms")

	orig := listenAndServe
	listenAndServe = func(string, http.Handler) error {
		select {} // serve forever, like the real thing
	}
	defer func() { listenAndServe = orig }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Setenv("SESSION_IDLE_TIMEOUT", "later")
	err := run(context.Background())
	assert.Error(t, err)
}
