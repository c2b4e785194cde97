// Package mock provides a scripted coach.Coach for tests.
package mock

import (
	"context"
	"sync"

	"github.com/sorilabs/sori/pkg/provider/assess"
)

// Call records a single Tip invocation.
type Call struct {
	ReferenceText string
	Result        *assess.Result
}

// Coach is a scripted coach.Coach. Zero value returns an empty tip.
type Coach struct {
	// TipText is returned from every Tip call.
	TipText string

	// Err, when non-nil, is returned instead of TipText.
	Err error

	mu    sync.Mutex
	calls []Call
}

// Tip implements coach.Coach.
func (c *Coach) Tip(_ context.Context, referenceText string, res *assess.Result) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{ReferenceText: referenceText, Result: res})
	c.mu.Unlock()
	if c.Err != nil {
		return "", c.Err
	}
	return c.TipText, nil
}

// Calls returns a copy of all recorded invocations.
func (c *Coach) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}
