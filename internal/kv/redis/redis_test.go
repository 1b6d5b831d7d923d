package redis

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
)

func TestNewDefaultsPrefix(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	s := New(rdb, "")
	if got := s.key("budget"); got != "walletflow:budget" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := New(rdb, "custom:").key("budget"); got != "custom:budget" {
		t.Fatalf("unexpected key: %s", got)
	}
}

func TestDialRequiresAddress(t *testing.T) {
	if _, err := Dial(context.Background(), " ", ""); err == nil {
		t.Fatal("expected error for blank address")
	}
}
