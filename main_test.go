package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct{ shutdowns int }

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdowns++
	return nil
}

func TestWaitAndShutdown_ListenerFails(t *testing.T) {
	srv := &fakeServer{}
	serveErr := make(chan error, 1)
	serveErr <- errors.New("address already in use")

	err := waitAndShutdown(context.Background(), srv, serveErr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.Zero(t, srv.shutdowns)
}

func TestWaitAndShutdown_ServerClosed(t *testing.T) {
	serveErr := make(chan error, 1)
	serveErr <- http.ErrServerClosed
	assert.NoError(t, waitAndShutdown(context.Background(), &fakeServer{}, serveErr))
}

func TestWaitAndShutdown_Signal(t *testing.T) {
	srv := &fakeServer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, waitAndShutdown(ctx, srv, make(chan error)))
	assert.Equal(t, 1, srv.shutdowns)
}
