package cases

import (
	"context"
	"log/slog"
	"sync"
)

type cleanupEntry struct {
	source string
	fn     func() error
	order  int
}

// ResolveCtx is handed to fixture, case and lazy value bodies.
type ResolveCtx struct {
	exec       *Execution
	source     string
	param      any
	hasParam   bool
	caseParams map[string]any
	cleanups   []cleanupEntry
	cleanupMu  sync.Mutex
}

// OnCleanup registers a function run at teardown of the body's scope. Cleanups run
// in reverse registration order.
func (ctx *ResolveCtx) OnCleanup(fn func() error) {
	ctx.cleanupMu.Lock()
	defer ctx.cleanupMu.Unlock()

	entry := cleanupEntry{
		source: ctx.source,
		fn:     fn,
		order:  len(ctx.cleanups),
	}
	ctx.cleanups = append(ctx.cleanups, entry)
}

// Param returns the current parameter of a parametrized fixture.
func (ctx *ResolveCtx) Param() (any, bool) {
	return ctx.param, ctx.hasParam
}

// CaseParam returns a parameter of the current parametrized case variant.
func (ctx *ResolveCtx) CaseParam(name string) (any, bool) {
	v, ok := ctx.caseParams[name]
	return v, ok
}

// Context returns the context of the running invocation.
func (ctx *ResolveCtx) Context() context.Context {
	return ctx.exec.ctx
}

// Logger returns the session logger annotated with the invocation id.
func (ctx *ResolveCtx) Logger() *slog.Logger {
	return ctx.exec.logger
}

// Execution returns the invocation being resolved.
func (ctx *ResolveCtx) Execution() *Execution {
	return ctx.exec
}

// GetTag retrieves a tag value from the session
func (ctx *ResolveCtx) GetTag(tag any) (any, bool) {
	return ctx.exec.session.GetTag(tag)
}

// GetTagOrDefault retrieves a typed session tag or returns a default value
func GetTagOrDefault[T any](ctx *ResolveCtx, tag Tag[T], defaultVal T) T {
	if val, ok := tag.GetFromSession(ctx.exec.session); ok {
		return val
	}
	return defaultVal
}

func (ctx *ResolveCtx) takeCleanups() []cleanupEntry {
	ctx.cleanupMu.Lock()
	defer ctx.cleanupMu.Unlock()
	out := ctx.cleanups
	ctx.cleanups = nil
	return out
}
