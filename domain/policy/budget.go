// Package policy provides the bounds that keep a run from consuming
// unbounded resources.
package policy

import (
	"sort"
	"strings"
	"sync"
)

// Budget tracks consumption against configured limits. Limits may be set
// per name or per name prefix; names with neither are unlimited.
type Budget struct {
	limits       map[string]int
	prefixLimits map[string]int
	consumed     map[string]int
	mu           sync.RWMutex
}

// BudgetSnapshot is an immutable view of budget state.
type BudgetSnapshot struct {
	Consumed  map[string]int `json:"consumed"`
	Remaining map[string]int `json:"remaining"`
}

// NewBudget creates a budget with the given limits.
func NewBudget(limits map[string]int) *Budget {
	b := &Budget{
		limits:       make(map[string]int, len(limits)),
		prefixLimits: make(map[string]int),
		consumed:     make(map[string]int),
	}
	for k, v := range limits {
		b.limits[k] = v
	}
	return b
}

// UnlimitedBudget creates a budget with no limits.
func UnlimitedBudget() *Budget {
	return NewBudget(nil)
}

// WithPrefixLimit applies limit to every name starting with prefix that has
// no explicit limit.
func (b *Budget) WithPrefixLimit(prefix string, limit int) *Budget {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prefixLimits[prefix] = limit
	return b
}

// limitFor must be called with mu held.
func (b *Budget) limitFor(name string) (int, bool) {
	if limit, ok := b.limits[name]; ok {
		return limit, true
	}
	best, found, limit := -1, false, 0
	for prefix, l := range b.prefixLimits {
		if strings.HasPrefix(name, prefix) && len(prefix) > best {
			best, found, limit = len(prefix), true, l
		}
	}
	return limit, found
}

// CanConsume checks if the budget allows consuming the given amount.
func (b *Budget) CanConsume(name string, amount int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit, hasLimit := b.limitFor(name)
	if !hasLimit {
		return true
	}
	return b.consumed[name]+amount <= limit
}

// Consume deducts from the budget if allowed. When the limit would be
// exceeded nothing is deducted and ErrBudgetExceeded is returned.
func (b *Budget) Consume(name string, amount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit, hasLimit := b.limitFor(name)
	if hasLimit && b.consumed[name]+amount > limit {
		return ErrBudgetExceeded
	}
	b.consumed[name] += amount
	return nil
}

// Consumed returns how much of name has been used.
func (b *Budget) Consumed(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.consumed[name]
}

// Remaining returns the remaining budget for name, or -1 if unlimited.
func (b *Budget) Remaining(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit, hasLimit := b.limitFor(name)
	if !hasLimit {
		return -1
	}
	return limit - b.consumed[name]
}

// Snapshot returns an immutable view of every name consumed so far.
func (b *Budget) Snapshot() BudgetSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := BudgetSnapshot{
		Consumed:  make(map[string]int, len(b.consumed)),
		Remaining: make(map[string]int, len(b.consumed)),
	}
	for name, used := range b.consumed {
		s.Consumed[name] = used
		if limit, ok := b.limitFor(name); ok {
			s.Remaining[name] = limit - used
		}
	}
	return s
}

// Exhausted returns the names whose limit is fully used, sorted.
func (b *Budget) Exhausted() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []string
	for name, used := range b.consumed {
		if limit, ok := b.limitFor(name); ok && used >= limit {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
