package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestReleaseLockScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	script := redis.NewScript(releaseLockScript)

	tests := []struct {
		name      string
		holder    string
		token     string
		wantFreed bool
	}{
		{
			name:      "owner releases",
			holder:    "token-a",
			token:     "token-a",
			wantFreed: true,
		},
		{
			name:      "other token leaves lock",
			holder:    "token-a",
			token:     "token-b",
			wantFreed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := mr.Set(lockKey, tt.holder); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			if err := script.Run(ctx, client, []string{lockKey}, tt.token).Err(); err != nil {
				t.Fatalf("Script failed: %v", err)
			}

			if freed := !mr.Exists(lockKey); freed != tt.wantFreed {
				t.Errorf("Expected freed=%v, got %v", tt.wantFreed, freed)
			}
		})
	}
}
