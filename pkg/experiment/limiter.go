package experiment

import (
	"context"
	"sync"

	"selfevolve/pkg/errors"
)

// ProviderLimiter caps in-flight requests per provider, independently of the
// item-level worker pool. Two models routed to the same provider share one
// cap.
type ProviderLimiter struct {
	mu   sync.Mutex
	size int
	sems map[string]chan struct{}
}

func NewProviderLimiter(size int) *ProviderLimiter {
	return &ProviderLimiter{
		size: size,
		sems: make(map[string]chan struct{}),
	}
}

func (l *ProviderLimiter) sem(provider string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[provider]
	if !ok {
		s = make(chan struct{}, l.size)
		l.sems[provider] = s
	}
	return s
}

// Acquire blocks until a slot for the provider is free or the context ends.
func (l *ProviderLimiter) Acquire(ctx context.Context, provider string) error {
	select {
	case l.sem(provider) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.CheckContext(ctx, "provider limiter")
	}
}

func (l *ProviderLimiter) Release(provider string) {
	<-l.sem(provider)
}
