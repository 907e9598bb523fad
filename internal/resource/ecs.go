package resource

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"

	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
)

// ecsActive is the status of a service that can be scaled.
const ecsActive = "ACTIVE"

func ecsService(api ECSAPI, t Target, a Action) (capabilities, error) {
	if api == nil {
		return capabilities{}, fmt.Errorf("ecs client not configured")
	}
	cluster, service := t.Cluster, t.ID

	desired := int32(0)
	if a == ActionStart {
		desired = t.Capacity.Desired
	}

	getter := reconcile.GetterFunc[Snapshot](func(ctx context.Context) (Snapshot, error) {
		out, err := api.DescribeServices(ctx, &ecs.DescribeServicesInput{
			Cluster:  aws.String(cluster),
			Services: []string{service},
		})
		if err != nil {
			if isNotFound(err) {
				return Snapshot{Status: StatusNotFound}, nil
			}
			return Snapshot{}, fmt.Errorf("describe service %s/%s: %w", cluster, service, err)
		}
		for _, svc := range out.Services {
			if aws.ToString(svc.ServiceName) == service || aws.ToString(svc.ServiceArn) == service {
				return Snapshot{
					Status:       aws.ToString(svc.Status),
					DesiredCount: svc.DesiredCount,
					RunningCount: svc.RunningCount,
					PendingCount: svc.PendingCount,
				}, nil
			}
		}
		return Snapshot{Status: StatusNotFound}, nil
	})

	setter := reconcile.SetterFunc(func(ctx context.Context) error {
		_, err := api.UpdateService(ctx, &ecs.UpdateServiceInput{
			Cluster:      aws.String(cluster),
			Service:      aws.String(service),
			DesiredCount: aws.Int32(desired),
		})
		if err != nil {
			return fmt.Errorf("scale service %s/%s to %d: %w", cluster, service, desired, err)
		}
		return nil
	})

	policy := scaled(desired, func(s Snapshot) bool { return s.Status == ecsActive })
	policy.Unmatched = unsupported(t, a)

	return capabilities{getter: getter, setter: setter, policy: policy}, nil
}
