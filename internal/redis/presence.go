package redis

import (
	"context"
	"fmt"
	"log"

	"github.com/mossy-p/rendezvous/config"
	"github.com/redis/go-redis/v9"
)

const onlineSetKey = "rendezvous:online"

// Connect dials Redis with the given config and verifies the connection.
func Connect(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// PresenceMirror keeps a best-effort copy of the online-identifier set in
// Redis for external directory consumers. The in-memory registry stays
// authoritative; mirror failures are logged and otherwise ignored. A nil
// *PresenceMirror is valid and does nothing.
type PresenceMirror struct {
	client *redis.Client
	ctx    context.Context
}

func NewPresenceMirror(client *redis.Client) *PresenceMirror {
	return &PresenceMirror{
		client: client,
		ctx:    context.Background(),
	}
}

// Add records an identifier as online.
func (m *PresenceMirror) Add(identifier string) {
	if m == nil {
		return
	}
	if err := m.client.SAdd(m.ctx, onlineSetKey, identifier).Err(); err != nil {
		log.Printf("Failed to mirror presence for %s: %v", identifier, err)
	}
}

// Remove records an identifier as offline.
func (m *PresenceMirror) Remove(identifier string) {
	if m == nil {
		return
	}
	if err := m.client.SRem(m.ctx, onlineSetKey, identifier).Err(); err != nil {
		log.Printf("Failed to clear mirrored presence for %s: %v", identifier, err)
	}
}

// Reset clears the mirrored set; called at startup so a crashed previous
// run cannot leave ghosts behind.
func (m *PresenceMirror) Reset() {
	if m == nil {
		return
	}
	if err := m.client.Del(m.ctx, onlineSetKey).Err(); err != nil {
		log.Printf("Failed to reset mirrored presence: %v", err)
	}
}

// Close closes the underlying Redis connection.
func (m *PresenceMirror) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}
