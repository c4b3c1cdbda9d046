package storage

import (
	"context"
	"time"

	"github.com/yourusername/nextai-chat/internal/domain/repository"
)

type scopedStateStore struct {
	inner  repository.StateStore
	prefix string
}

// NewScopedStateStore namespaces every key of inner under prefix
func NewScopedStateStore(inner repository.StateStore, prefix string) repository.StateStore {
	return &scopedStateStore{inner: inner, prefix: prefix}
}

func (s *scopedStateStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *scopedStateStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, value, ttl)
}

func (s *scopedStateStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}
