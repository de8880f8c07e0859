package host

import (
	"log/slog"
	"time"
)

const defaultStatsTimeout = 2 * time.Second

// Option configures a ShardHost.
type Option func(*ShardHost)

// WithStatsTimeout bounds how long Stats waits for every live shard to
// answer before returning a partial result.
func WithStatsTimeout(d time.Duration) Option {
	return func(h *ShardHost) {
		h.statsTimeout = d
	}
}

// WithLogger overrides the default logger, tagging it with this host's
// component/type_name fields the same way the default one is tagged.
func WithLogger(logger *slog.Logger) Option {
	return func(h *ShardHost) {
		h.logger = logger.With("component", "shard_host", "type_name", h.typeName)
	}
}
