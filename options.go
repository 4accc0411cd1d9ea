package steward

import (
	"log/slog"

	"github.com/xraph/steward/notify"
	"github.com/xraph/steward/plugin"
	"github.com/xraph/steward/store"
)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithStore sets the composite store.
func WithStore(s store.Store) Option { return func(e *Engine) { e.store = s } }

// WithSink sets the notification sink. Defaults to a no-op sink.
func WithSink(s notify.Sink) Option { return func(e *Engine) { e.sink = s } }

// WithExternalState sets the collaborator that owns per-(user, node)
// external state. Defaults to a no-op implementation.
func WithExternalState(x ExternalState) Option { return func(e *Engine) { e.external = x } }

// WithCache sets the resolution result cache.
func WithCache(c Cache) Option { return func(e *Engine) { e.cache = c } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithPlugin registers a lifecycle plugin. May be given multiple times;
// plugins are notified in registration order.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) { e.pluginList = append(e.pluginList, p) }
}
