package bridge

import (
	"testing"

	"github.com/oleksandr-gridin/deinetuer-ai/internal/transcript"
)

func newRegisteredSession(reg *Registry, id string) *Session {
	s := NewSession(id, &fakeTele{}, newFakeBackend(), transcript.NewSink(nil), nil, reg)
	reg.Register(s)
	return s
}

func TestRegistry_LookupAndRemove(t *testing.T) {
	reg := NewRegistry()
	newRegisteredSession(reg, "a")
	newRegisteredSession(reg, "b")

	if reg.Len() != 2 {
		t.Fatalf("len = %d", reg.Len())
	}
	if _, ok := reg.Lookup("a"); !ok {
		t.Fatalf("lookup a failed")
	}
	if _, ok := reg.Lookup("missing"); ok {
		t.Fatalf("lookup of missing id succeeded")
	}

	reg.Remove("a")
	reg.Remove("a")
	if reg.Len() != 1 {
		t.Fatalf("len after remove = %d", reg.Len())
	}
}

func TestRegistry_ShutdownTearsDownAllSessions(t *testing.T) {
	reg := NewRegistry()
	a := newRegisteredSession(reg, "a")
	b := newRegisteredSession(reg, "b")
	go a.Run()
	go b.Run()

	reg.Shutdown()

	if reg.Len() != 0 {
		t.Fatalf("registry not empty after shutdown: %d", reg.Len())
	}
	if a.Deliver(nil) || b.Deliver(nil) {
		t.Fatalf("sessions still accept events after shutdown")
	}
}
