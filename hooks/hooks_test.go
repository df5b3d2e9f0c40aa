package hooks

import (
	"sync"
	"testing"
	"time"
)

// TestContext is a simple context type for testing
type TestContext struct {
	Value string
	Order []string
	Mutex sync.Mutex
}

// AddToOrder adds a value to the order slice in a thread-safe manner
func (tc *TestContext) AddToOrder(value string) {
	tc.Mutex.Lock()
	defer tc.Mutex.Unlock()
	tc.Order = append(tc.Order, value)
}

func TestRegistryBasic(t *testing.T) {
	registry := NewRegistry[*TestContext]()

	if registry.Count() != 0 {
		t.Errorf("Expected empty registry, got %d hooks", registry.Count())
	}

	registry.Register("test", func(ctx *TestContext) Result {
		ctx.Value = "modified"
		return Passthru
	})

	if registry.Count() != 1 {
		t.Errorf("Expected 1 hook, got %d hooks", registry.Count())
	}

	ctx := &TestContext{Value: "original"}
	if res := registry.Run(ctx); res != Passthru {
		t.Errorf("Expected passthru, got %v", res)
	}

	if ctx.Value != "modified" {
		t.Errorf("Expected context value to be 'modified', got '%s'", ctx.Value)
	}

	registry.Clear()

	if registry.Count() != 0 {
		t.Errorf("Expected empty registry after clear, got %d hooks", registry.Count())
	}
}

func TestRegistryPriority(t *testing.T) {
	registry := NewRegistry[*TestContext]()

	registry.RegisterWithPriority("test", func(ctx *TestContext) Result {
		ctx.AddToOrder("third")
		return Passthru
	}, 5)

	registry.RegisterWithPriority("test", func(ctx *TestContext) Result {
		ctx.AddToOrder("first")
		return Passthru
	}, -5)

	registry.RegisterWithPriority("test", func(ctx *TestContext) Result {
		ctx.AddToOrder("second")
		return Passthru
	}, 0)

	registry.RegisterWithPriority("test", func(ctx *TestContext) Result {
		ctx.AddToOrder("second-b")
		return Passthru
	}, 0)

	ctx := &TestContext{Order: make([]string, 0)}
	registry.Run(ctx)

	expected := []string{"first", "second", "second-b", "third"}
	if len(ctx.Order) != len(expected) {
		t.Fatalf("Expected execution order %v, got %v", expected, ctx.Order)
	}
	for i, v := range expected {
		if ctx.Order[i] != v {
			t.Errorf("Expected execution order %v, got %v", expected, ctx.Order)
			break
		}
	}
}

func TestRegistryDenyStops(t *testing.T) {
	registry := NewRegistry[*TestContext]()

	registry.RegisterWithPriority("a", func(ctx *TestContext) Result {
		ctx.AddToOrder("a")
		return Deny
	}, 0)
	registry.RegisterWithPriority("b", func(ctx *TestContext) Result {
		ctx.AddToOrder("b")
		return Allow
	}, 1)

	ctx := &TestContext{}
	if res := registry.Run(ctx); res != Deny {
		t.Errorf("Expected deny, got %v", res)
	}
	if len(ctx.Order) != 1 || ctx.Order[0] != "a" {
		t.Errorf("Expected only the first hook to run, got %v", ctx.Order)
	}
}

func TestRegistryPanic(t *testing.T) {
	registry := NewRegistry[*TestContext]()

	registry.Register("bad", func(ctx *TestContext) Result {
		panic("hook panic")
	})
	registry.Register("good", func(ctx *TestContext) Result {
		ctx.AddToOrder("good")
		return Allow
	})

	ctx := &TestContext{}
	if res := registry.Run(ctx); res != Allow {
		t.Errorf("Expected allow from the hook after the panic, got %v", res)
	}
	if len(ctx.Order) != 1 {
		t.Errorf("Expected the second hook to run, got %v", ctx.Order)
	}
}

func TestRegistryRemoveOwner(t *testing.T) {
	registry := NewRegistry[*TestContext]()

	for _, owner := range []string{"a", "b", "a", "c"} {
		o := owner
		registry.Register(o, func(ctx *TestContext) Result {
			ctx.AddToOrder(o)
			return Passthru
		})
	}

	if n := registry.RemoveOwner("a"); n != 2 {
		t.Errorf("Expected 2 hooks removed, got %d", n)
	}
	if registry.Count() != 2 {
		t.Errorf("Expected 2 hooks left, got %d", registry.Count())
	}

	ctx := &TestContext{}
	registry.Run(ctx)
	if len(ctx.Order) != 2 || ctx.Order[0] != "b" || ctx.Order[1] != "c" {
		t.Errorf("Expected [b c], got %v", ctx.Order)
	}

	if n := registry.RemoveOwner("missing"); n != 0 {
		t.Errorf("Expected nothing removed, got %d", n)
	}
}

func TestRegistryConcurrency(t *testing.T) {
	registry := NewRegistry[*TestContext]()

	for i := 0; i < 10; i++ {
		priority := int64(i - 5)
		registry.RegisterWithPriority("test", func(ctx *TestContext) Result {
			time.Sleep(1 * time.Millisecond)
			return Passthru
		}, priority)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.Run(&TestContext{})
		}()
	}

	wg.Wait()

	if registry.Count() != 10 {
		t.Errorf("Expected 10 hooks, got %d", registry.Count())
	}
}

func TestResultString(t *testing.T) {
	cases := map[Result]string{Passthru: "passthru", Allow: "allow", Deny: "deny"}
	for r, want := range cases {
		if r.String() != want {
			t.Errorf("Expected %q, got %q", want, r.String())
		}
	}
}

func BenchmarkRegistryExecution(b *testing.B) {
	registry := NewRegistry[*TestContext]()

	for i := 0; i < 100; i++ {
		priority := int64(i % 10)
		registry.RegisterWithPriority("bench", func(ctx *TestContext) Result {
			return Passthru
		}, priority)
	}

	ctx := &TestContext{}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		registry.Run(ctx)
	}
}
