package cpu

import "testing"

func TestManager_AssignIsStableForSameSeat(t *testing.T) {
	m := NewManager(NewRegistry())
	p1, err := m.Assign("seat1")
	if err != nil {
		t.Fatalf("Assign() error: %v", err)
	}
	p2, err := m.Assign("seat1")
	if err != nil {
		t.Fatalf("second Assign() for same seat error: %v", err)
	}
	if p1.Name != p2.Name {
		t.Fatalf("Assign() gave seat1 different profiles on repeat calls: %s vs %s", p1.Name, p2.Name)
	}
}

func TestManager_AssignNeverDoubleBooksAProfile(t *testing.T) {
	m := NewManager(NewRegistry())
	seen := map[string]bool{}
	for i := 0; i < len(DefaultProfiles); i++ {
		seat := string(rune('a' + i))
		p, err := m.Assign(seat)
		if err != nil {
			t.Fatalf("Assign(%s) error: %v", seat, err)
		}
		if seen[p.Name] {
			t.Fatalf("profile %s assigned to more than one seat", p.Name)
		}
		seen[p.Name] = true
	}
	if _, err := m.Assign("overflow"); err == nil {
		t.Fatalf("expected error once every profile is held")
	}
}

func TestManager_ReleaseFreesProfileForReuse(t *testing.T) {
	m := NewManager(NewRegistry())
	p, _ := m.Assign("seat1")
	m.Release("seat1")
	if _, ok := m.Get("seat1"); ok {
		t.Fatalf("expected seat1 to have no profile after Release")
	}
	if _, err := m.AssignSpecific("seat2", p.Name); err != nil {
		t.Fatalf("AssignSpecific() after release error: %v", err)
	}
}

func TestManager_AssignSpecificRejectsHeldProfile(t *testing.T) {
	m := NewManager(NewRegistry())
	p, _ := m.Assign("seat1")
	if _, err := m.AssignSpecific("seat2", p.Name); err == nil {
		t.Fatalf("expected error assigning a profile already held by another seat")
	}
}

func TestManager_AssignSpecificUnknownProfile(t *testing.T) {
	m := NewManager(NewRegistry())
	if _, err := m.AssignSpecific("seat1", "Nobody"); err == nil {
		t.Fatalf("expected error for unregistered profile name")
	}
}

func TestRegistry_LoadFromJSONReplacesProfiles(t *testing.T) {
	r := NewRegistry()
	if r.Count() != len(DefaultProfiles) {
		t.Fatalf("Count() = %d, want %d default profiles", r.Count(), len(DefaultProfiles))
	}
	err := r.LoadFromJSON([]byte(`[{"name":"Custom","style":"Test"}]`))
	if err != nil {
		t.Fatalf("LoadFromJSON() error: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("Count() after load = %d, want 1", r.Count())
	}
	if _, ok := r.Get("Custom"); !ok {
		t.Fatalf("expected Custom profile to be registered")
	}
}
