// Package context wraps the standard context.Context the way gVisor's
// pkg/context does: call sites across the kernel package take a
// *context.Context first argument for logging/tracing, the same shape as
// DecRef(ctx context.Context) and Msync(ctx context.Context, ...) in
// pkg/sentry/mm/special_mappable.go. It is never used to cancel a
// blocking core call — the thread core has no cancellation or timeouts
// by design; a Context here only carries a debug name and a logger for
// the duration of one call.
package context

import (
	stdcontext "context"

	"github.com/talismancer/kernelcore/pkg/log"
)

// Context decorates a standard context.Context with a debug name used in
// log lines emitted on its behalf.
type Context struct {
	stdcontext.Context
	name string
}

// Background returns a root Context with no parent and no name.
func Background() *Context {
	return &Context{Context: stdcontext.Background()}
}

// WithName returns a derived Context carrying name, used to prefix log
// lines (for example, the CLI names each command invocation).
func (c *Context) WithName(name string) *Context {
	return &Context{Context: c.Context, name: name}
}

// Debugf logs at debug level, prefixed with this Context's name if set.
func (c *Context) Debugf(format string, args ...any) {
	log.Debugf(c.prefix()+format, args...)
}

// Infof logs at info level, prefixed with this Context's name if set.
func (c *Context) Infof(format string, args ...any) {
	log.Infof(c.prefix()+format, args...)
}

// Warningf logs at warning level, prefixed with this Context's name if
// set. Used by Task lifecycle calls (Exit) that must report a
// problem without failing the caller outright.
func (c *Context) Warningf(format string, args ...any) {
	log.Warningf(c.prefix()+format, args...)
}

func (c *Context) prefix() string {
	if c.name == "" {
		return ""
	}
	return "[" + c.name + "] "
}
