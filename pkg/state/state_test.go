package state

import (
	"testing"

	"gotest.tools/assert"
)

func TestRunnable(t *testing.T) {
	s := State{
		DeploymentVersion: "d1",
		Targets: []Triad{
			{Target: "a", Current: "1.0.0"},
			{Target: "b", Pending: "1.0.0"},
		},
	}
	assert.Check(t, s.IsRunnable())

	s.Targets = append(s.Targets, Triad{Target: "c", Previous: "0.9.0"})
	assert.Check(t, !s.IsRunnable())

	assert.Check(t, State{}.IsRunnable(), "no targets is vacuously runnable")
}

func TestPending(t *testing.T) {
	s := State{Targets: []Triad{
		{Target: "a", Current: "1.0.0", Pending: "1.1.0"},
		{Target: "b", Current: "1.0.0", Pending: "1.0.0"},
		{Target: "c", Current: "1.0.0"},
	}}
	assert.DeepEqual(t, s.Pending(), []string{"a"})
}

func TestString(t *testing.T) {
	s := State{DeploymentVersion: "d1", Targets: []Triad{{Target: "a", Current: "1.0.0"}}}
	assert.Equal(t, s.String(), "deployment=d1 [a(previous=- current=1.0.0 pending=-)]")
}
