package resource

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
)

const (
	rdsAvailable = "available"
	rdsStopped   = "stopped"
)

// rdsTransitional covers instance and cluster statuses that settle on their own.
var rdsTransitional = []string{
	"starting",
	"stopping",
	"creating",
	"backing-up",
	"modifying",
	"rebooting",
	"renaming",
	"resetting-master-credentials",
	"maintenance",
	"upgrading",
	"storage-optimization",
	"configuring-enhanced-monitoring",
	"configuring-iam-database-auth",
	"configuring-log-exports",
	"promoting",
	"migrating",
	"backtracking",
}

func rdsInstance(api RDSAPI, t Target, a Action) (capabilities, error) {
	if api == nil {
		return capabilities{}, fmt.Errorf("rds client not configured")
	}
	id := t.ID

	getter := reconcile.GetterFunc[Snapshot](func(ctx context.Context) (Snapshot, error) {
		out, err := api.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{DBInstanceIdentifier: aws.String(id)})
		if err != nil {
			if isNotFound(err) {
				return Snapshot{Status: StatusNotFound}, nil
			}
			return Snapshot{}, fmt.Errorf("describe db instance %s: %w", id, err)
		}
		for _, db := range out.DBInstances {
			if aws.ToString(db.DBInstanceIdentifier) == id {
				return Snapshot{Status: aws.ToString(db.DBInstanceStatus)}, nil
			}
		}
		return Snapshot{Status: StatusNotFound}, nil
	})

	setter := reconcile.SetterFunc(func(ctx context.Context) error {
		var err error
		if a == ActionStart {
			_, err = api.StartDBInstance(ctx, &rds.StartDBInstanceInput{DBInstanceIdentifier: aws.String(id)})
		} else {
			_, err = api.StopDBInstance(ctx, &rds.StopDBInstanceInput{DBInstanceIdentifier: aws.String(id)})
		}
		if err != nil {
			return fmt.Errorf("%s db instance %s: %w", a, id, err)
		}
		return nil
	})

	policy := toggle(a, rdsTransitional, rdsStopped, rdsAvailable)
	policy.Unmatched = unsupported(t, a)

	return capabilities{getter: getter, setter: setter, policy: policy}, nil
}

func rdsCluster(api RDSAPI, t Target, a Action) (capabilities, error) {
	if api == nil {
		return capabilities{}, fmt.Errorf("rds client not configured")
	}
	id := t.ID

	getter := reconcile.GetterFunc[Snapshot](func(ctx context.Context) (Snapshot, error) {
		out, err := api.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{DBClusterIdentifier: aws.String(id)})
		if err != nil {
			if isNotFound(err) {
				return Snapshot{Status: StatusNotFound}, nil
			}
			return Snapshot{}, fmt.Errorf("describe db cluster %s: %w", id, err)
		}
		for _, c := range out.DBClusters {
			if aws.ToString(c.DBClusterIdentifier) == id {
				return Snapshot{Status: aws.ToString(c.Status)}, nil
			}
		}
		return Snapshot{Status: StatusNotFound}, nil
	})

	setter := reconcile.SetterFunc(func(ctx context.Context) error {
		var err error
		if a == ActionStart {
			_, err = api.StartDBCluster(ctx, &rds.StartDBClusterInput{DBClusterIdentifier: aws.String(id)})
		} else {
			_, err = api.StopDBCluster(ctx, &rds.StopDBClusterInput{DBClusterIdentifier: aws.String(id)})
		}
		if err != nil {
			return fmt.Errorf("%s db cluster %s: %w", a, id, err)
		}
		return nil
	})

	policy := toggle(a, rdsTransitional, rdsStopped, rdsAvailable)
	policy.Unmatched = unsupported(t, a)

	return capabilities{getter: getter, setter: setter, policy: policy}, nil
}
