package resource

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
)

var ec2Transitional = []string{
	string(ec2types.InstanceStateNamePending),
	string(ec2types.InstanceStateNameStopping),
}

func ec2Instance(api EC2API, t Target, a Action) (capabilities, error) {
	if api == nil {
		return capabilities{}, fmt.Errorf("ec2 client not configured")
	}
	id := t.ID

	getter := reconcile.GetterFunc[Snapshot](func(ctx context.Context) (Snapshot, error) {
		out, err := api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
		if err != nil {
			if isNotFound(err) {
				return Snapshot{Status: StatusNotFound}, nil
			}
			return Snapshot{}, fmt.Errorf("describe instance %s: %w", id, err)
		}
		for _, r := range out.Reservations {
			for _, inst := range r.Instances {
				if aws.ToString(inst.InstanceId) == id && inst.State != nil {
					return Snapshot{Status: string(inst.State.Name)}, nil
				}
			}
		}
		return Snapshot{Status: StatusNotFound}, nil
	})

	setter := reconcile.SetterFunc(func(ctx context.Context) error {
		var err error
		if a == ActionStart {
			_, err = api.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{id}})
		} else {
			_, err = api.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{id}})
		}
		if err != nil {
			return fmt.Errorf("%s instance %s: %w", a, id, err)
		}
		return nil
	})

	policy := toggle(a, ec2Transitional,
		string(ec2types.InstanceStateNameStopped),
		string(ec2types.InstanceStateNameRunning))
	policy.Unmatched = unsupported(t, a)

	return capabilities{getter: getter, setter: setter, policy: policy}, nil
}
