package refresh

import (
	"errors"
	"fmt"
)

// ErrBudgetExhausted is returned by Consume when no capacity remains.
var ErrBudgetExhausted = errors.New("refresh budget exhausted")

// Budget caps the number of refresh attempts in one run. A limit of zero
// means unlimited.
type Budget struct {
	limit     int
	used      int
	unlimited bool
}

// NewBudget creates a budget for limit attempts.
func NewBudget(limit int) (*Budget, error) {
	if limit < 0 {
		return nil, fmt.Errorf("budget limit must be non-negative, got %d", limit)
	}
	return &Budget{limit: limit, unlimited: limit == 0}, nil
}

// Allow reports whether another attempt may be started.
func (b *Budget) Allow() bool {
	return b.unlimited || b.used < b.limit
}

// Consume records one attempt.
func (b *Budget) Consume() error {
	if !b.Allow() {
		return ErrBudgetExhausted
	}
	b.used++
	return nil
}

// Used is the number of consumed attempts.
func (b *Budget) Used() int { return b.used }

// Limit is the configured cap; zero means unlimited.
func (b *Budget) Limit() int { return b.limit }

// Remaining returns the attempts left, or -1 when unlimited.
func (b *Budget) Remaining() int {
	if b.unlimited {
		return -1
	}
	return b.limit - b.used
}
