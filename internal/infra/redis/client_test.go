package redis

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"github.com/ritaorion/district5b-portal/internal/infra/config"
)

func TestNewClientPingsServer(t *testing.T) {
	server := miniredis.RunT(t)

	cfg := config.RedisSettings{Host: server.Host(), Port: mustPort(t, server.Port())}
	client, err := NewClient(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	defer client.Close()

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}

	server.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping error after server shutdown")
	}
}

func mustPort(t *testing.T, raw string) int {
	t.Helper()
	port := 0
	for _, r := range raw {
		if r < '0' || r > '9' {
			t.Fatalf("invalid port %q", raw)
		}
		port = port*10 + int(r-'0')
	}
	return port
}
