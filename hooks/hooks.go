// Package hooks provides a prioritised hook registry whose hooks may veto the
// event they are run for.
package hooks

import (
	"reflect"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Result is what a hook decides about the event it was handed.
type Result int

const (
	// Passthru lets the remaining hooks decide.
	Passthru Result = iota
	// Allow accepts the event and stops further hooks.
	Allow
	// Deny rejects the event and stops further hooks.
	Deny
)

func (r Result) String() string {
	switch r {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "passthru"
	}
}

// Hook is a function run for an event of context type T.
type Hook[T any] func(ctx T) Result

// HookInfo stores a registered hook together with its owner and priority
type HookInfo[T any] struct {
	Owner    string  // Module that registered the hook
	Name     string  // Name of the hook function
	Hook     Hook[T] // The hook function itself
	Priority int64   // Lower values run first, like Unix nice
	seq      uint64
}

// Registry manages hook registration and execution for one event type
type Registry[T any] struct {
	mu    sync.RWMutex
	hooks []HookInfo[T]
	seq   uint64
}

// NewRegistry creates a new hook registry for the given context type
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		hooks: make([]HookInfo[T], 0),
	}
}

// Register adds a hook owned by owner with default priority (0)
func (r *Registry[T]) Register(owner string, hook Hook[T]) {
	r.RegisterWithPriority(owner, hook, 0)
}

// RegisterWithPriority adds a hook owned by owner with the specified priority.
// Hooks of equal priority run in registration order.
func (r *Registry[T]) RegisterWithPriority(owner string, hook Hook[T], priority int64) {
	name := runtime.FuncForPC(reflect.ValueOf(hook).Pointer()).Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.hooks = append(r.hooks, HookInfo[T]{
		Owner:    owner,
		Name:     name,
		Hook:     hook,
		Priority: priority,
		seq:      r.seq,
	})
	sort.SliceStable(r.hooks, func(i, j int) bool {
		if r.hooks[i].Priority != r.hooks[j].Priority {
			return r.hooks[i].Priority < r.hooks[j].Priority
		}
		return r.hooks[i].seq < r.hooks[j].seq
	})
}

// RemoveOwner drops every hook registered by owner and returns how many were removed
func (r *Registry[T]) RemoveOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.hooks[:0]
	removed := 0
	for _, h := range r.hooks {
		if h.Owner == owner {
			removed++
			continue
		}
		kept = append(kept, h)
	}
	// Zero the tail so dropped closures can be collected
	for i := len(kept); i < len(r.hooks); i++ {
		r.hooks[i] = HookInfo[T]{}
	}
	r.hooks = kept
	return removed
}

// Run executes the hooks in priority order until one returns something other
// than Passthru, and returns that result. A panicking hook is logged and
// counts as Passthru.
func (r *Registry[T]) Run(ctx T) Result {
	r.mu.RLock()
	// Copy so hooks may register or remove hooks while running
	hooks := make([]HookInfo[T], len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.RUnlock()

	for _, info := range hooks {
		if res := call(info, ctx); res != Passthru {
			return res
		}
	}
	return Passthru
}

func call[T any](info HookInfo[T], ctx T) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Str("hook", info.Name).
				Str("owner", info.Owner).
				Interface("panic", p).
				Msg("recovered from panic in hook")
			res = Passthru
		}
	}()
	return info.Hook(ctx)
}

// Clear removes all hooks from the registry
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks = make([]HookInfo[T], 0)
}

// Count returns the number of registered hooks
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.hooks)
}
