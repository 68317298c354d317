package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrijs2005/enginuity/internal/logging"
)

func TestServer_RunAndStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", http.NotFoundHandler(), logging.Discard(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_BadAddress(t *testing.T) {
	s := NewServer("256.0.0.1:http-nope", http.NotFoundHandler(), logging.Discard(), time.Second)

	err := s.Run(context.Background())
	assert.Error(t, err)
}
