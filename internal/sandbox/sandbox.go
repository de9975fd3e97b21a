// Package sandbox enforces which applications the automation engine may
// act on. Execution consults the policy before every element-addressed
// action; a denied application fails the intent, never the whole task.
package sandbox

import (
	"fmt"
	"strings"
)

// Sandbox holds the application allow/deny policy. Deny takes precedence
// over allow; an empty allow list permits every non-denied application.
type Sandbox struct {
	allowedApps []string
	deniedApps  []string
}

// Config holds the sandbox configuration. Patterns are application names
// with an optional trailing "*" glob, matched case-insensitively.
type Config struct {
	AllowedApps []string
	DeniedApps  []string
}

// New creates a Sandbox from the given configuration.
func New(cfg Config) *Sandbox {
	s := &Sandbox{}
	for _, p := range cfg.AllowedApps {
		s.allowedApps = append(s.allowedApps, normalize(p))
	}
	for _, p := range cfg.DeniedApps {
		s.deniedApps = append(s.deniedApps, normalize(p))
	}
	return s
}

// CheckApplication validates that the named application may be automated.
// Returns nil if allowed, or an error describing why it's denied.
func (s *Sandbox) CheckApplication(name string) error {
	if s == nil {
		return nil
	}
	target := normalize(name)

	for _, denied := range s.deniedApps {
		if matchApp(denied, target) {
			return fmt.Errorf("sandbox: application %q matches denied pattern %q", name, denied)
		}
	}

	if len(s.allowedApps) == 0 {
		return nil
	}

	for _, allowed := range s.allowedApps {
		if matchApp(allowed, target) {
			return nil
		}
	}

	return fmt.Errorf("sandbox: application %q is not in the allowed list %v", name, s.allowedApps)
}

// AllowedApps returns the configured allow patterns.
func (s *Sandbox) AllowedApps() []string {
	return s.allowedApps
}

// DeniedApps returns the configured deny patterns.
func (s *Sandbox) DeniedApps() []string {
	return s.deniedApps
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// matchApp checks a simple glob pattern (only trailing * supported)
// against an application name.
func matchApp(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == name
}
