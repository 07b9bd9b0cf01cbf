package cache

import (
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

type options struct {
	name           string
	drainInterval  time.Duration
	discardOnEvict bool
	logger         logger.ILogger
}

// Option configures a CacheManager
type Option func(*options)

// WithName sets the name used in logs and as the cache label of all metrics
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDrainInterval starts a goroutine that moves completed prefetches into
// the cache every d. Without it, a prefetched value is absorbed by the first
// Get of its id.
func WithDrainInterval(d time.Duration) Option {
	return func(o *options) { o.drainInterval = d }
}

// WithDiscardOnEvict removes evicted objects from the store as well. The cache
// then is the only owner of its objects, a Get of an evicted id fails with
// objstore.ErrNoSuchID.
func WithDiscardOnEvict() Option {
	return func(o *options) { o.discardOnEvict = true }
}

// WithLogger replaces the "cache" logger
func WithLogger(l logger.ILogger) Option {
	return func(o *options) { o.logger = l }
}
