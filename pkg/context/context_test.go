package context

import (
	"testing"

	"github.com/cuemby/ledgerd/pkg/capability"
)

func newTestRoot(t *testing.T) *RootContext {
	t.Helper()
	caps := capability.InitFalse()
	caps.Set(capability.RootContextCreate)
	rc, err := NewRootContext(caps, t.TempDir())
	if err != nil {
		t.Fatalf("NewRootContext: %v", err)
	}
	t.Cleanup(func() { rc.Close() })
	return rc
}

func TestNewRootContextRequiresCap(t *testing.T) {
	_, err := NewRootContext(capability.InitFalse(), t.TempDir())
	if err == nil {
		t.Fatal("expected error without root_context_create")
	}
}

func TestNewRootContextClearsCreateBitAndSetsRest(t *testing.T) {
	rc := newTestRoot(t)
	if rc.Caps().IsSet(capability.RootContextCreate) {
		t.Error("RootContextCreate should be cleared after init")
	}
	if !rc.Caps().IsSet(capability.BlockWrite) {
		t.Error("every other bit should be set after init")
	}
}

func TestReduceCapsShrinksOnly(t *testing.T) {
	rc := newTestRoot(t)
	before := rc.Caps()

	mask := capability.InitFalse()
	mask.Set(capability.PQTxnSubmit)
	mask.Set(capability.RootContextReduceCaps)

	if err := rc.ReduceCaps(mask); err != nil {
		t.Fatalf("ReduceCaps: %v", err)
	}

	after := rc.Caps()
	for b := capability.Bit(0); b < 64; b++ {
		if after.IsSet(b) && !before.IsSet(b) {
			t.Errorf("bit %d grew after ReduceCaps", b)
		}
	}
	if after.IsSet(capability.RootContextReduceCaps) {
		t.Error("RootContextReduceCaps should be cleared after use")
	}
	if err := rc.ReduceCaps(mask); err == nil {
		t.Error("second ReduceCaps call should fail, bit was cleared")
	}
}

func TestChildCapContainment(t *testing.T) {
	rc := newTestRoot(t)
	rootBefore := rc.Caps()

	mask := capability.InitFalse()
	mask.Set(capability.PQTxnSubmit)

	child, _, err := rc.CreateChild(mask)
	if err != nil {
		t.Fatalf("CreateChild: %v", err)
	}

	for b := capability.Bit(0); b < 64; b++ {
		if child.Caps().IsSet(b) && !mask.IsSet(b) {
			t.Errorf("child bit %d not in mask", b)
		}
		if child.Caps().IsSet(b) && !rootBefore.IsSet(b) {
			t.Errorf("child bit %d not in root-before-derivation", b)
		}
	}
}

func TestChildPoolExhaustionAndClose(t *testing.T) {
	rc := newTestRoot(t)
	mask := capability.InitTrue()

	var children []*ChildContext
	for i := 0; i < MaxChildContexts; i++ {
		c, _, err := rc.CreateChild(mask)
		if err != nil {
			t.Fatalf("CreateChild #%d: %v", i, err)
		}
		children = append(children, c)
	}

	if _, _, err := rc.CreateChild(mask); err == nil {
		t.Fatal("expected OutOfChildInstances once pool is exhausted")
	}

	// Close one, then confirm the pool has exactly one free slot again.
	if err := children[0].Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := rc.CreateChild(mask); err != nil {
		t.Fatalf("CreateChild after Close: %v", err)
	}
	if _, _, err := rc.CreateChild(mask); err == nil {
		t.Fatal("expected pool exhausted again after reusing the one freed slot")
	}
}

func TestChildCloseRequiresCap(t *testing.T) {
	rc := newTestRoot(t)
	mask := capability.InitFalse() // no ChildContextClose
	child, _, err := rc.CreateChild(mask)
	if err != nil {
		t.Fatalf("CreateChild: %v", err)
	}
	if err := child.Close(); err == nil {
		t.Fatal("expected NotAuthorized without ChildContextClose")
	}
}
