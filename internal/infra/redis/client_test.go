package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/acme/lead-engagement/internal/config"
)

func TestNewClientPingsServer(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := NewClient(context.Background(), config.RedisConfig{Address: srv.Addr(), DB: 0})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if opt := client.AsynqOpt(); opt.Addr != srv.Addr() {
		t.Fatalf("asynq opt should target %s, got %s", srv.Addr(), opt.Addr)
	}
}

func TestNewClientUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	if _, err := NewClient(context.Background(), config.RedisConfig{Address: addr, MaxRetries: -1}); err == nil {
		t.Fatalf("expected ping error for a closed server")
	}
}
