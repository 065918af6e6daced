package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/felixgeelhaar/opsquery/domain/tool"
	"github.com/felixgeelhaar/opsquery/infrastructure/storage/memory"
)

func newTool(name string) tool.Tool {
	return tool.NewBuilder(name).
		WithHandler(func(_ context.Context, _ json.RawMessage) (tool.Result, error) {
			return tool.Result{}, nil
		}).
		MustBuild()
}

func TestNewToolRegistry(t *testing.T) {
	t.Parallel()

	r, err := memory.NewToolRegistry(newTool("shift_time"), newTool("extract_time_window"))
	if err != nil {
		t.Fatalf("NewToolRegistry() error = %v", err)
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
	names := r.Names()
	if names[0] != "extract_time_window" || names[1] != "shift_time" {
		t.Errorf("Names() = %v, want sorted", names)
	}
	if got := r.List(); got[0].Name() != "extract_time_window" {
		t.Errorf("List()[0] = %s", got[0].Name())
	}
	if !r.Has("shift_time") || r.Has("get_weather") {
		t.Error("Has() mismatch")
	}
	if _, ok := r.Get("get_weather"); ok {
		t.Error("Get(get_weather) found")
	}

	names[0] = "mutated"
	if r.Names()[0] != "extract_time_window" {
		t.Error("Names() exposed internal storage")
	}
}

func TestNewToolRegistry_Duplicate(t *testing.T) {
	t.Parallel()

	_, err := memory.NewToolRegistry(newTool("a"), newTool("a"))
	if !errors.Is(err, tool.ErrToolExists) {
		t.Errorf("NewToolRegistry() error = %v, want ErrToolExists", err)
	}
}

func TestToolRegistry_ConcurrentReads(t *testing.T) {
	t.Parallel()

	r := memory.MustToolRegistry(newTool("a"), newTool("b"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Get("a"); !ok {
				t.Error("Get(a) not found")
			}
			_ = tool.Declarations(r)
		}()
	}
	wg.Wait()
}
