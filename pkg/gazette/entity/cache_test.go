package entity

import (
	"errors"
	"reflect"
	"testing"
)

func TestCacheHitSkipsCompute(t *testing.T) {
	var c Cache
	calls := 0
	compute := func() ([]Occurrence, error) {
		calls++
		return []Occurrence{{Value: "a", ResolvedValue: "A", Range: Range{0, 1}, EntityIdentifier: "e"}}, nil
	}

	first, err := c.Parse("a", nil, true, compute)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	second, err := c.Parse("a", nil, true, compute)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if calls != 1 {
		t.Errorf("compute should run once, ran %d times", calls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached result differs: %v vs %v", first, second)
	}
}

func TestCacheBypass(t *testing.T) {
	var c Cache
	calls := 0
	compute := func() ([]Occurrence, error) {
		calls++
		return nil, nil
	}
	c.Parse("a", nil, false, compute)
	c.Parse("a", nil, false, compute)
	if calls != 2 {
		t.Errorf("useCache=false should always compute, ran %d times", calls)
	}
	if c.Len() != 0 {
		t.Errorf("bypass should not populate the cache, got %d entries", c.Len())
	}
}

func TestCacheKeyScope(t *testing.T) {
	if cacheKey("t", nil) == cacheKey("t", []string{}) {
		t.Error("nil scope and empty scope must not share a key")
	}
	if cacheKey("t", []string{"a", "b"}) != cacheKey("t", []string{"b", "a"}) {
		t.Error("scope order should not matter")
	}
	if cacheKey("t", []string{"ab"}) == cacheKey("t", []string{"a", "b"}) {
		t.Error("scope entries must be delimited")
	}
}

func TestCacheReset(t *testing.T) {
	var c Cache
	calls := 0
	compute := func() ([]Occurrence, error) {
		calls++
		return nil, nil
	}
	c.Parse("a", nil, true, compute)
	c.Reset()
	c.Parse("a", nil, true, compute)
	if calls != 2 {
		t.Errorf("reset should force recompute, ran %d times", calls)
	}
}

func TestCacheDropsResultComputedAcrossReset(t *testing.T) {
	var c Cache
	c.Parse("a", nil, true, func() ([]Occurrence, error) {
		c.Reset()
		return []Occurrence{{Value: "stale"}}, nil
	})
	if c.Len() != 0 {
		t.Errorf("result computed across a reset must not be stored, got %d entries", c.Len())
	}
}

func TestCacheErrorNotStored(t *testing.T) {
	var c Cache
	boom := errors.New("boom")
	if _, err := c.Parse("a", nil, true, func() ([]Occurrence, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("errors must not be cached")
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	var c Cache
	compute := func() ([]Occurrence, error) {
		return []Occurrence{{Value: "a"}}, nil
	}
	res, _ := c.Parse("a", nil, true, compute)
	res[0].Value = "mutated"
	again, _ := c.Parse("a", nil, true, compute)
	if again[0].Value != "a" {
		t.Errorf("caller mutation leaked into the cache: %q", again[0].Value)
	}
}

func TestFilterScope(t *testing.T) {
	occs := []Occurrence{
		{EntityIdentifier: "a"},
		{EntityIdentifier: "b"},
		{EntityIdentifier: "a"},
	}
	if got := FilterScope(occs, nil); len(got) != 3 {
		t.Errorf("nil scope should keep everything, got %d", len(got))
	}
	if got := FilterScope(occs, []string{"a"}); len(got) != 2 {
		t.Errorf("expected 2 occurrences of a, got %d", len(got))
	}
	if got := FilterScope(occs, []string{}); len(got) != 0 {
		t.Errorf("empty scope should keep nothing, got %d", len(got))
	}
}
