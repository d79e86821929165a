package state

import (
	"fmt"
	"strings"
)

// Triad is a target's recorded version information.
type Triad struct {
	Target   string `json:"target"`
	Previous string `json:"previous,omitempty"`
	Current  string `json:"current,omitempty"`
	Pending  string `json:"pending,omitempty"`
}

// Runnable is true when the target has a version to run now or after
// promotion.
func (t Triad) Runnable() bool {
	return t.Current != "" || t.Pending != ""
}

// HasPending is true when a staged version awaits promotion.
func (t Triad) HasPending() bool {
	return t.Pending != "" && t.Pending != t.Current
}

func (t Triad) String() string {
	return fmt.Sprintf("%s(previous=%s current=%s pending=%s)",
		t.Target, orNone(t.Previous), orNone(t.Current), orNone(t.Pending))
}

// State is a snapshot of every configured target against the deployment
// version, in configured order.
type State struct {
	DeploymentVersion string  `json:"deploymentVersion"`
	Targets           []Triad `json:"targets"`
}

// IsRunnable is true when every target is Runnable.
func (s State) IsRunnable() bool {
	for _, t := range s.Targets {
		if !t.Runnable() {
			return false
		}
	}
	return true
}

// Pending lists the targets with a staged version.
func (s State) Pending() []string {
	var names []string
	for _, t := range s.Targets {
		if t.HasPending() {
			names = append(names, t.Target)
		}
	}
	return names
}

func (s State) String() string {
	parts := make([]string, len(s.Targets))
	for i, t := range s.Targets {
		parts[i] = t.String()
	}
	return fmt.Sprintf("deployment=%s [%s]", s.DeploymentVersion, strings.Join(parts, ", "))
}

func orNone(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
