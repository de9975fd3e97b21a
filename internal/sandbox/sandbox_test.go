package sandbox

import "testing"

func TestCheckApplicationNoPolicy(t *testing.T) {
	s := New(Config{})
	if err := s.CheckApplication("Finder"); err != nil {
		t.Errorf("empty policy should allow everything, got %v", err)
	}
}

func TestCheckApplicationDenied(t *testing.T) {
	s := New(Config{DeniedApps: []string{"Terminal", "System*"}})

	tests := []struct {
		name    string
		app     string
		wantErr bool
	}{
		{"exact deny", "Terminal", true},
		{"case-insensitive deny", "terminal", true},
		{"glob deny", "System Settings", true},
		{"unrelated app", "Safari", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CheckApplication(tt.app)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckApplication(%q) = %v, wantErr %v", tt.app, err, tt.wantErr)
			}
		})
	}
}

func TestCheckApplicationAllowList(t *testing.T) {
	s := New(Config{
		AllowedApps: []string{"Calculator", "Safari"},
		DeniedApps:  []string{"Safari"},
	})

	if err := s.CheckApplication("Calculator"); err != nil {
		t.Errorf("allowed app rejected: %v", err)
	}
	if err := s.CheckApplication("Notes"); err == nil {
		t.Error("app outside allow list should be denied")
	}
	// Deny takes precedence over allow.
	if err := s.CheckApplication("Safari"); err == nil {
		t.Error("denied app should be rejected even when allowed")
	}
}

func TestNilSandbox(t *testing.T) {
	var s *Sandbox
	if err := s.CheckApplication("Anything"); err != nil {
		t.Errorf("nil sandbox should allow everything, got %v", err)
	}
}
