package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sorilabs/sori/internal/resilience"
	"github.com/sorilabs/sori/pkg/provider/assess"
	assessmock "github.com/sorilabs/sori/pkg/provider/assess/mock"
)

func TestFallbackGroup_PrimaryFirst(t *testing.T) {
	g := resilience.NewFallbackGroup[string](resilience.BreakerConfig{})
	g.Add("primary", "a")
	g.Add("fallback", "b")

	var called []string
	err := g.Do(func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(called) != 1 || called[0] != "a" {
		t.Errorf("called = %v, want just the primary", called)
	}
}

func TestFallbackGroup_FailsOver(t *testing.T) {
	g := resilience.NewFallbackGroup[string](resilience.BreakerConfig{})
	g.Add("primary", "a")
	g.Add("fallback", "b")

	got, err := resilience.DoWithResult(g, func(v string) (string, error) {
		if v == "a" {
			return "", errBoom
		}
		return "from-" + v, nil
	})
	if err != nil {
		t.Fatalf("DoWithResult: %v", err)
	}
	if got != "from-b" {
		t.Errorf("result = %q, want from-b", got)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	g := resilience.NewFallbackGroup[string](resilience.BreakerConfig{})
	g.Add("only", "a")

	err := g.Do(func(string) error { return errBoom })
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_Empty(t *testing.T) {
	g := resilience.NewFallbackGroup[string](resilience.BreakerConfig{})
	if err := g.Do(func(string) error { return nil }); !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	g := resilience.NewFallbackGroup[string](resilience.BreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})
	g.Add("primary", "a")
	g.Add("fallback", "b")

	// Trip the primary's breaker.
	_ = g.Do(func(v string) error {
		if v == "a" {
			return errBoom
		}
		return nil
	})

	var called []string
	err := g.Do(func(v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(called) != 1 || called[0] != "b" {
		t.Errorf("called = %v, want only the fallback while primary is open", called)
	}
}

func TestAssessFallback_StartSession(t *testing.T) {
	primary := &assessmock.Provider{StartErr: errors.New("region down")}
	secondary := &assessmock.Provider{}

	f := resilience.NewAssessFallback(primary, "eastus", resilience.BreakerConfig{})
	f.AddFallback("westeurope", secondary)

	sess, err := f.StartSession(context.Background(), assess.SessionConfig{
		ReferenceText: "Hello.",
		Language:      "en-US",
	})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	defer sess.Close()

	if n := len(secondary.Sessions()); n != 1 {
		t.Errorf("fallback sessions = %d, want 1", n)
	}
	if got := secondary.Sessions()[0].Config.ReferenceText; got != "Hello." {
		t.Errorf("fallback session ReferenceText = %q", got)
	}
}
