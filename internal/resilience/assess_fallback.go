package resilience

import (
	"context"

	"github.com/sorilabs/sori/pkg/provider/assess"
)

// AssessFallback implements [assess.Provider] with automatic failover across
// multiple assessment backends, typically the same service in a second
// region or under a second key. Failover applies to session establishment
// only; an established session stays on the backend that opened it.
type AssessFallback struct {
	group *FallbackGroup[assess.Provider]
}

var _ assess.Provider = (*AssessFallback)(nil)

// NewAssessFallback creates an [AssessFallback] with primary as the
// preferred backend.
func NewAssessFallback(primary assess.Provider, primaryName string, cfg BreakerConfig) *AssessFallback {
	g := NewFallbackGroup[assess.Provider](cfg)
	g.Add(primaryName, primary)
	return &AssessFallback{group: g}
}

// AddFallback registers an additional assessment backend, tried after the
// primary.
func (f *AssessFallback) AddFallback(name string, p assess.Provider) {
	f.group.Add(name, p)
}

// StartSession implements assess.Provider. The first healthy backend that
// establishes a session wins.
func (f *AssessFallback) StartSession(ctx context.Context, cfg assess.SessionConfig) (assess.SessionHandle, error) {
	return DoWithResult(f.group, func(p assess.Provider) (assess.SessionHandle, error) {
		return p.StartSession(ctx, cfg)
	})
}
