package resource

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"

	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
)

// asgActive is the snapshot status of a group that is not being deleted.
// The API leaves Status empty in that case.
const asgActive = "active"

func autoScalingGroup(api AutoScalingAPI, t Target, a Action) (capabilities, error) {
	if api == nil {
		return capabilities{}, fmt.Errorf("autoscaling client not configured")
	}
	name := t.ID

	capacity := Capacity{}
	if a == ActionStart {
		capacity = t.Capacity
	}

	getter := reconcile.GetterFunc[Snapshot](func(ctx context.Context) (Snapshot, error) {
		out, err := api.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
			AutoScalingGroupNames: []string{name},
		})
		if err != nil {
			if isNotFound(err) {
				return Snapshot{Status: StatusNotFound}, nil
			}
			return Snapshot{}, fmt.Errorf("describe auto scaling group %s: %w", name, err)
		}
		for _, g := range out.AutoScalingGroups {
			if aws.ToString(g.AutoScalingGroupName) != name {
				continue
			}
			snap := Snapshot{
				Status:       asgActive,
				DesiredCount: aws.ToInt32(g.DesiredCapacity),
			}
			if g.Status != nil {
				snap.Status = aws.ToString(g.Status)
			}
			for _, inst := range g.Instances {
				switch inst.LifecycleState {
				case astypes.LifecycleStateInService:
					snap.RunningCount++
				case astypes.LifecycleStatePending, astypes.LifecycleStatePendingWait, astypes.LifecycleStatePendingProceed:
					snap.PendingCount++
				}
			}
			return snap, nil
		}
		return Snapshot{Status: StatusNotFound}, nil
	})

	setter := reconcile.SetterFunc(func(ctx context.Context) error {
		_, err := api.UpdateAutoScalingGroup(ctx, &autoscaling.UpdateAutoScalingGroupInput{
			AutoScalingGroupName: aws.String(name),
			MinSize:              aws.Int32(capacity.Min),
			MaxSize:              aws.Int32(capacity.Max),
			DesiredCapacity:      aws.Int32(capacity.Desired),
		})
		if err != nil {
			return fmt.Errorf("resize auto scaling group %s to %d: %w", name, capacity.Desired, err)
		}
		return nil
	})

	policy := scaled(capacity.Desired, func(s Snapshot) bool { return s.Status == asgActive })
	policy.Unmatched = unsupported(t, a)

	return capabilities{getter: getter, setter: setter, policy: policy}, nil
}
