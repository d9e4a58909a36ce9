// Package cache provides a layered (memory + disk) byte cache used to
// avoid re-embedding passages that were already embedded in a previous
// run.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// EmbeddingKey generates a cache key for an embedding request. The model
// name is part of the key so switching models never serves stale vectors.
func EmbeddingKey(embeddingModel, text string) string {
	hash := sha256.Sum256([]byte(embeddingModel + "\x00" + text))
	return "kensho:v1:" + hex.EncodeToString(hash[:])
}
