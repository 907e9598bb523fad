package resource

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apprunner"
	artypes "github.com/aws/aws-sdk-go-v2/service/apprunner/types"

	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
)

func appRunnerService(api AppRunnerAPI, t Target, a Action) (capabilities, error) {
	if api == nil {
		return capabilities{}, fmt.Errorf("apprunner client not configured")
	}
	arn := t.ID

	getter := reconcile.GetterFunc[Snapshot](func(ctx context.Context) (Snapshot, error) {
		out, err := api.DescribeService(ctx, &apprunner.DescribeServiceInput{ServiceArn: aws.String(arn)})
		if err != nil {
			if isNotFound(err) {
				return Snapshot{Status: StatusNotFound}, nil
			}
			return Snapshot{}, fmt.Errorf("describe apprunner service %s: %w", arn, err)
		}
		if out.Service == nil {
			return Snapshot{Status: StatusNotFound}, nil
		}
		return Snapshot{Status: string(out.Service.Status)}, nil
	})

	setter := reconcile.SetterFunc(func(ctx context.Context) error {
		var err error
		if a == ActionStart {
			_, err = api.ResumeService(ctx, &apprunner.ResumeServiceInput{ServiceArn: aws.String(arn)})
		} else {
			_, err = api.PauseService(ctx, &apprunner.PauseServiceInput{ServiceArn: aws.String(arn)})
		}
		if err != nil {
			return fmt.Errorf("%s apprunner service %s: %w", a, arn, err)
		}
		return nil
	})

	policy := toggle(a,
		[]string{string(artypes.ServiceStatusOperationInProgress)},
		string(artypes.ServiceStatusPaused),
		string(artypes.ServiceStatusRunning))
	policy.Unmatched = unsupported(t, a)

	return capabilities{getter: getter, setter: setter, policy: policy}, nil
}
