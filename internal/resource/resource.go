// Package resource binds AWS resources to reconcile controllers.
//
// Each supported kind provides a status getter, a status setter and a default
// start/stop policy over the shared Snapshot type.
package resource

import (
	"fmt"
	"time"
)

// Kind identifies a type of cloud resource.
type Kind string

// Resource kinds
const (
	KindEC2Instance      Kind = "ec2-instance"
	KindECSService       Kind = "ecs-service"
	KindAutoScalingGroup Kind = "autoscaling-group"
	KindRDSInstance      Kind = "rds-instance"
	KindRDSCluster       Kind = "rds-cluster"
	KindAppRunnerService Kind = "apprunner-service"
)

// Kinds returns all supported kinds.
func Kinds() []Kind {
	return []Kind{
		KindEC2Instance,
		KindECSService,
		KindAutoScalingGroup,
		KindRDSInstance,
		KindRDSCluster,
		KindAppRunnerService,
	}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Action is the desired lifecycle transition.
type Action string

const (
	ActionStart Action = "start"
	ActionStop  Action = "stop"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionStart, ActionStop:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q (want start or stop)", s)
	}
}

// StatusNotFound is reported when the API does not know the resource.
const StatusNotFound = "not-found"

// Snapshot is the observed state of a resource.
// Count fields are only meaningful for ECS services and Auto Scaling groups.
type Snapshot struct {
	Status       string `json:"status"`
	DesiredCount int32  `json:"desired,omitempty"`
	RunningCount int32  `json:"running,omitempty"`
	PendingCount int32  `json:"pending,omitempty"`
}

// Fields exposes the snapshot to predicate expressions.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"status":  s.Status,
		"desired": s.DesiredCount,
		"running": s.RunningCount,
		"pending": s.PendingCount,
	}
}

// Capacity is the size an ECS service or Auto Scaling group is started with.
type Capacity struct {
	Min     int32
	Max     int32
	Desired int32
}

// Conditions are optional Lua expressions replacing a default predicate.
type Conditions struct {
	Wait    string
	Ready   string
	Success string
}

// Target is a configured resource.
type Target struct {
	Name string
	Kind Kind

	// ID is the instance id, service name, group name, DB identifier or
	// App Runner service ARN depending on Kind.
	ID string

	// Cluster is the ECS cluster of an ecs-service target.
	Cluster string

	// Capacity is applied when starting ECS services and Auto Scaling groups.
	Capacity Capacity

	// Conditions override default predicates per action.
	Conditions map[Action]Conditions

	// Optional per-target run bounds.
	MaxRetries *int
	TTL        *int
	PollDelay  *time.Duration
}

// Validate checks that the target carries what its kind needs.
func (t Target) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("target name is required")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("target %s: unknown kind %q", t.Name, t.Kind)
	}
	if t.ID == "" {
		return fmt.Errorf("target %s: id is required", t.Name)
	}

	switch t.Kind {
	case KindECSService:
		if t.Cluster == "" {
			return fmt.Errorf("target %s: cluster is required for %s", t.Name, t.Kind)
		}
		if t.Capacity.Desired <= 0 {
			return fmt.Errorf("target %s: capacity.desired must be positive for %s", t.Name, t.Kind)
		}
	case KindAutoScalingGroup:
		c := t.Capacity
		if c.Desired <= 0 {
			return fmt.Errorf("target %s: capacity.desired must be positive for %s", t.Name, t.Kind)
		}
		if c.Min < 0 || c.Min > c.Desired || c.Max < c.Desired {
			return fmt.Errorf("target %s: capacity must satisfy 0 <= min <= desired <= max", t.Name)
		}
	}

	for action := range t.Conditions {
		if _, err := ParseAction(string(action)); err != nil {
			return fmt.Errorf("target %s: conditions: %w", t.Name, err)
		}
	}
	return nil
}
