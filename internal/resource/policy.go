package resource

import (
	"fmt"

	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
)

// capabilities is what a kind contributes to a controller.
type capabilities struct {
	getter reconcile.StatusGetter[Snapshot]
	setter reconcile.StatusSetter
	policy reconcile.Policy[Snapshot]
}

// statusIn matches snapshots whose status is one of statuses.
func statusIn(statuses ...string) reconcile.Condition[Snapshot] {
	set := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return func(s Snapshot) bool {
		_, ok := set[s.Status]
		return ok
	}
}

// toggle builds the policy of a resource that flips between two stable statuses.
func toggle(a Action, wait []string, stopped, running string) reconcile.Policy[Snapshot] {
	p := reconcile.Policy[Snapshot]{Wait: statusIn(wait...)}
	if a == ActionStart {
		p.Ready = statusIn(stopped)
		p.Success = statusIn(running)
	} else {
		p.Ready = statusIn(running)
		p.Success = statusIn(stopped)
	}
	return p
}

// scaled builds the policy of a resource whose desired count is set to n.
// active reports whether the resource can be scaled at all.
func scaled(n int32, active func(Snapshot) bool) reconcile.Policy[Snapshot] {
	return reconcile.Policy[Snapshot]{
		Wait: func(s Snapshot) bool {
			return active(s) && s.DesiredCount == n && s.RunningCount != n
		},
		Ready: func(s Snapshot) bool {
			return active(s) && s.DesiredCount != n
		},
		Success: func(s Snapshot) bool {
			return active(s) && s.DesiredCount == n && s.RunningCount == n
		},
	}
}

func unsupported(t Target, a Action) *reconcile.UnmatchedError {
	return &reconcile.UnmatchedError{
		Kind:    reconcile.UnsupportedStateError,
		Message: fmt.Sprintf("%s %s cannot be %s from its current state", t.Kind, t.ID, pastTense(a)),
	}
}

func pastTense(a Action) string {
	if a == ActionStart {
		return "started"
	}
	return "stopped"
}
