package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultSettingsValid(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestVertexBudgetScalesWithViewDistance(t *testing.T) {
	s := DefaultSettings()
	s.ViewDistance = 4
	small := s.VertexBudget()
	s.ViewDistance = 8
	large := s.VertexBudget()
	if large != small*4 {
		t.Fatalf("budget should grow with view distance squared: %d vs %d", small, large)
	}

	s.VerticesPerUploadDivisor = 1 << 30
	if got := s.VertexBudget(); got != 1 {
		t.Fatalf("budget floor: got %d, want 1", got)
	}
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"view_distance": 20, "ao_strength": 0.5}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ViewDistance != 20 || s.AOStrength != 0.5 {
		t.Errorf("file values not applied: %+v", s)
	}
	if s.LastQueueQuota != 5 {
		t.Errorf("LastQueueQuota = %d, want default 5", s.LastQueueQuota)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"ao_strength": 3}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestMergeRespectsExplicitFlags(t *testing.T) {
	s := DefaultSettings()
	s.ViewDistance = 3
	file := DefaultSettings()
	file.ViewDistance = 30
	file.LODBias = 2

	Merge(s, file, map[string]bool{"view-distance": true})
	if s.ViewDistance != 3 {
		t.Errorf("explicit flag overwritten: %d", s.ViewDistance)
	}
	if s.LODBias != 2 {
		t.Errorf("file value not merged: %g", s.LODBias)
	}
}

func TestGlobalUpdate(t *testing.T) {
	orig := Get()
	defer func() { _ = Update(orig) }()

	s := orig
	s.ViewDistance = 7
	if err := Update(s); err != nil {
		t.Fatal(err)
	}
	if Get().ViewDistance != 7 {
		t.Fatalf("Update not visible through Get")
	}

	if d := AdjustViewDistance(2); d != 9 || Get().ViewDistance != 9 {
		t.Fatalf("AdjustViewDistance(2) = %d, stored %d, want 9", d, Get().ViewDistance)
	}
	if d := AdjustViewDistance(1000); d != MaxViewDistance {
		t.Fatalf("AdjustViewDistance past the top = %d, want %d", d, MaxViewDistance)
	}
	if d := AdjustViewDistance(-1000); d != MinViewDistance {
		t.Fatalf("AdjustViewDistance past the bottom = %d, want %d", d, MinViewDistance)
	}
	s.ViewDistance = MaxViewDistance + 1
	if err := Update(s); err == nil {
		t.Fatal("view distance past the maximum accepted")
	}
	s.ViewDistance = 7

	s.AOStrength = -1
	if err := Update(s); err == nil {
		t.Fatal("invalid settings accepted")
	}
}
