package redis

import (
	"fmt"
	"strings"
)

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "subfeed"
	if environment != "" && environment != "production" {
		prefix = "subfeed-" + environment
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// KeySnapshot returns the key holding a profile's persisted snapshot
func (kb *KeyBuilder) KeySnapshot(profile string) string {
	if profile == "" {
		profile = "default"
	}
	return kb.BuildKey(fmt.Sprintf(KeySnapshot, profile))
}

// KeyHandle returns the cache key of a resolved handle. Handles are
// case-insensitive.
func (kb *KeyBuilder) KeyHandle(handle string) string {
	return kb.BuildKey(fmt.Sprintf(KeyHandle, strings.ToLower(handle)))
}

// KeyChannel returns the cache key of a channel's catalog info
func (kb *KeyBuilder) KeyChannel(channelID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyChannel, channelID))
}
