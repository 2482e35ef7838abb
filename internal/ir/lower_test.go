package ir

import (
	"testing"

	"github.com/axiomates/cli2cpp/internal/assembly"
)

func TestRegionOrderPreservesStorageOrder(t *testing.T) {
	// assembly.ExceptionHandler is documented as stored outer-first; regionOrder
	// must not reverse it.
	outer := assembly.ExceptionHandler{Kind: assembly.HandlerCatch, TryStart: 0, TryEnd: 20}
	inner := assembly.ExceptionHandler{Kind: assembly.HandlerCatch, TryStart: 5, TryEnd: 10}
	regions := []assembly.ExceptionHandler{outer, inner}

	got := regionOrder(regions)
	if len(got) != 2 {
		t.Fatalf("regionOrder returned %d entries, want 2", len(got))
	}
	if got[0].region != outer {
		t.Errorf("regionOrder[0] = %+v, want the outer region first", got[0].region)
	}
	if got[1].region != inner {
		t.Errorf("regionOrder[1] = %+v, want the inner region second", got[1].region)
	}
}

func TestRegionOrderEmpty(t *testing.T) {
	got := regionOrder(nil)
	if len(got) != 0 {
		t.Errorf("regionOrder(nil) returned %d entries, want 0", len(got))
	}
}
