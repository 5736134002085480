// Package scripting provides a sandboxed GopherLua execution environment for
// operator-supplied hint scripts. Scripts see only the safe standard library
// plus the mimic.* helpers registered by RegisterModules.
package scripting

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// call when no override is configured.
const DefaultInstructionLimit = 100_000

// countingContext is a context.Context that cancels itself after Done() has
// been called limit times. GopherLua's mainLoopWithContext calls Done() once
// per opcode, making this an exact instruction-count limit.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

// Done returns the underlying cancellation channel. Each call decrements the
// remaining counter; when it reaches zero the cancel function fires,
// terminating the Lua VM on the next opcode boundary.
func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

// newCountingContext returns a context that cancels after limit calls to Done().
// Precondition: limit > 0.
func newCountingContext(limit int) (context.Context, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{
		Context:   base,
		cancel:    cancel,
		remaining: rem,
	}, cancel
}

// NewSandboxedState creates a GopherLua LState with:
//   - Only safe stdlib loaded: base, table, string, math
//   - Dangerous globals removed: dofile, loadfile, load, collectgarbage, require
//
// Postcondition: Returns a non-nil LState. The caller owns it and must call
// L.Close() when done. No instruction limit is installed; see Sandbox.
func NewSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// Sandbox serializes access to one sandboxed LState and gives every
// execution a fresh instruction budget.
//
// Sandbox is safe for concurrent use.
type Sandbox struct {
	mu    sync.Mutex
	L     *lua.LState
	limit int
}

// NewSandbox creates a Sandbox.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a Sandbox with an empty global environment.
func NewSandbox(instLimit int) *Sandbox {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	return &Sandbox{L: NewSandboxedState(), limit: instLimit}
}

// Setup runs fn with exclusive access to the LState, for registering modules.
func (s *Sandbox) Setup(fn func(L *lua.LState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.L)
}

// DoString executes src within the instruction budget.
func (s *Sandbox) DoString(src string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.limitNext()()
	return s.L.DoString(src)
}

// DoFile executes the script at path within the instruction budget.
func (s *Sandbox) DoFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.limitNext()()
	if err := s.L.DoFile(path); err != nil {
		return fmt.Errorf("scripting: loading %q: %w", path, err)
	}
	return nil
}

// Call invokes the global function name with args and returns its first
// result. An undefined function yields (LNil, nil).
//
// Postcondition: Lua runtime errors, including an exhausted instruction
// budget, are returned as errors; the sandbox stays usable.
func (s *Sandbox) Call(name string, args ...lua.LValue) (lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn := s.L.GetGlobal(name)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	defer s.limitNext()()
	if err := s.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		return lua.LNil, fmt.Errorf("scripting: calling %s: %w", name, err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	return ret, nil
}

// Close releases the LState.
func (s *Sandbox) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
}

// limitNext installs a fresh instruction budget and returns the function
// that removes it. Callers hold s.mu.
func (s *Sandbox) limitNext() func() {
	ctx, cancel := newCountingContext(s.limit)
	s.L.SetContext(ctx)
	return func() {
		s.L.RemoveContext()
		cancel()
	}
}
