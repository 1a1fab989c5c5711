package redis

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// LobbyDirectory reserves lobby codes in Redis so instances sharing a Redis
// never hand out the same code. Each reservation carries the owning instance
// and expires after ttl.
type LobbyDirectory struct {
	client   *redis.Client
	ttl      time.Duration
	instance string
}

func NewLobbyDirectory(client *redis.Client, ttl time.Duration) *LobbyDirectory {
	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = "unknown"
	}
	return &LobbyDirectory{client: client, ttl: ttl, instance: instance}
}

func (d *LobbyDirectory) Reserve(ctx context.Context, code string) (bool, error) {
	return d.client.SetNX(ctx, d.key(code), d.instance, d.ttl).Result()
}

// Release deletes the reservation only while this instance still owns it.
func (d *LobbyDirectory) Release(ctx context.Context, code string) error {
	return releaseScript.Run(ctx, d.client, []string{d.key(code)}, d.instance).Err()
}

func (d *LobbyDirectory) key(code string) string {
	return "quiz:lobby:" + code
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
