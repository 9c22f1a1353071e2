package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestChain_PrimaryServes(t *testing.T) {
	t.Parallel()

	c := NewChain("primary", "p", FallbackConfig{})
	c.Add("secondary", "s")

	var called []string
	res, name, err := Call(c, func(v string) (string, error) {
		called = append(called, v)
		return "ok:" + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != "ok:p" || name != "primary" {
		t.Errorf("result = %q from %q", res, name)
	}
	if len(called) != 1 {
		t.Errorf("called = %v, want only primary", called)
	}
}

func TestChain_FailsOver(t *testing.T) {
	t.Parallel()

	c := NewChain("primary", "p", FallbackConfig{})
	c.Add("secondary", "s")

	res, name, err := Call(c, func(v string) (string, error) {
		if v == "p" {
			return "", errTest
		}
		return "ok:" + v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != "ok:s" || name != "secondary" {
		t.Errorf("result = %q from %q", res, name)
	}
}

func TestChain_AllFail(t *testing.T) {
	t.Parallel()

	c := NewChain("primary", 1, FallbackConfig{})
	c.Add("secondary", 2)

	_, _, err := Call(c, func(int) (struct{}, error) { return struct{}{}, errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Errorf("err = %v, want wrapped errTest", err)
	}
}

func TestChain_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	c := NewChain("primary", "p", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	c.Add("secondary", "s")

	primaryCalls := 0
	fn := func(v string) (string, error) {
		if v == "p" {
			primaryCalls++
			return "", errTest
		}
		return v, nil
	}
	for range 3 {
		if _, name, err := Call(c, fn); err != nil || name != "secondary" {
			t.Fatalf("Call = %q, %v", name, err)
		}
	}
	if primaryCalls != 1 {
		t.Errorf("primary called %d times, want 1 (breaker open afterwards)", primaryCalls)
	}

	states := map[string]State{}
	c.Each(func(name string, _ string, s State) { states[name] = s })
	if states["primary"] != StateOpen || states["secondary"] != StateClosed {
		t.Errorf("states = %v", states)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}
}
