package resource

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apprunner"
	artypes "github.com/aws/aws-sdk-go-v2/service/apprunner/types"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	astypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
)

// fakeCloud is an in-memory stand-in for every service API. Each write call
// is recorded and the next describe call returns the scripted state.
type fakeCloud struct {
	mu sync.Mutex

	// statuses are returned by describe calls in order; the last one repeats.
	statuses []Snapshot
	polls    int

	describeErr error
	writeErr    error

	calls []string
	last  any
}

func (f *fakeCloud) next() (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.describeErr != nil {
		return Snapshot{}, f.describeErr
	}
	i := f.polls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.polls++
	return f.statuses[i], nil
}

func (f *fakeCloud) record(call string, input any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.last = input
	return f.writeErr
}

func (f *fakeCloud) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	s, err := f.next()
	if err != nil {
		return nil, err
	}
	if s.Status == StatusNotFound {
		return &ec2.DescribeInstancesOutput{}, nil
	}
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{
		Instances: []ec2types.Instance{{
			InstanceId: aws.String(in.InstanceIds[0]),
			State:      &ec2types.InstanceState{Name: ec2types.InstanceStateName(s.Status)},
		}},
	}}}, nil
}

func (f *fakeCloud) StartInstances(_ context.Context, in *ec2.StartInstancesInput, _ ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	return &ec2.StartInstancesOutput{}, f.record("StartInstances", in)
}

func (f *fakeCloud) StopInstances(_ context.Context, in *ec2.StopInstancesInput, _ ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	return &ec2.StopInstancesOutput{}, f.record("StopInstances", in)
}

func (f *fakeCloud) DescribeServices(_ context.Context, in *ecs.DescribeServicesInput, _ ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	s, err := f.next()
	if err != nil {
		return nil, err
	}
	if s.Status == StatusNotFound {
		return &ecs.DescribeServicesOutput{}, nil
	}
	return &ecs.DescribeServicesOutput{Services: []ecstypes.Service{{
		ServiceName:  aws.String(in.Services[0]),
		Status:       aws.String(s.Status),
		DesiredCount: s.DesiredCount,
		RunningCount: s.RunningCount,
		PendingCount: s.PendingCount,
	}}}, nil
}

func (f *fakeCloud) UpdateService(_ context.Context, in *ecs.UpdateServiceInput, _ ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error) {
	return &ecs.UpdateServiceOutput{}, f.record("UpdateService", in)
}

func (f *fakeCloud) DescribeAutoScalingGroups(_ context.Context, in *autoscaling.DescribeAutoScalingGroupsInput, _ ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	s, err := f.next()
	if err != nil {
		return nil, err
	}
	if s.Status == StatusNotFound {
		return &autoscaling.DescribeAutoScalingGroupsOutput{}, nil
	}
	g := astypes.AutoScalingGroup{
		AutoScalingGroupName: aws.String(in.AutoScalingGroupNames[0]),
		DesiredCapacity:      aws.Int32(s.DesiredCount),
	}
	if s.Status != asgActive {
		g.Status = aws.String(s.Status)
	}
	for i := int32(0); i < s.RunningCount; i++ {
		g.Instances = append(g.Instances, astypes.Instance{LifecycleState: astypes.LifecycleStateInService})
	}
	for i := int32(0); i < s.PendingCount; i++ {
		g.Instances = append(g.Instances, astypes.Instance{LifecycleState: astypes.LifecycleStatePending})
	}
	return &autoscaling.DescribeAutoScalingGroupsOutput{AutoScalingGroups: []astypes.AutoScalingGroup{g}}, nil
}

func (f *fakeCloud) UpdateAutoScalingGroup(_ context.Context, in *autoscaling.UpdateAutoScalingGroupInput, _ ...func(*autoscaling.Options)) (*autoscaling.UpdateAutoScalingGroupOutput, error) {
	return &autoscaling.UpdateAutoScalingGroupOutput{}, f.record("UpdateAutoScalingGroup", in)
}

func (f *fakeCloud) DescribeDBInstances(_ context.Context, in *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	s, err := f.next()
	if err != nil {
		return nil, err
	}
	if s.Status == StatusNotFound {
		return &rds.DescribeDBInstancesOutput{}, nil
	}
	return &rds.DescribeDBInstancesOutput{DBInstances: []rdstypes.DBInstance{{
		DBInstanceIdentifier: in.DBInstanceIdentifier,
		DBInstanceStatus:     aws.String(s.Status),
	}}}, nil
}

func (f *fakeCloud) StartDBInstance(_ context.Context, in *rds.StartDBInstanceInput, _ ...func(*rds.Options)) (*rds.StartDBInstanceOutput, error) {
	return &rds.StartDBInstanceOutput{}, f.record("StartDBInstance", in)
}

func (f *fakeCloud) StopDBInstance(_ context.Context, in *rds.StopDBInstanceInput, _ ...func(*rds.Options)) (*rds.StopDBInstanceOutput, error) {
	return &rds.StopDBInstanceOutput{}, f.record("StopDBInstance", in)
}

func (f *fakeCloud) DescribeDBClusters(_ context.Context, in *rds.DescribeDBClustersInput, _ ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error) {
	s, err := f.next()
	if err != nil {
		return nil, err
	}
	if s.Status == StatusNotFound {
		return &rds.DescribeDBClustersOutput{}, nil
	}
	return &rds.DescribeDBClustersOutput{DBClusters: []rdstypes.DBCluster{{
		DBClusterIdentifier: in.DBClusterIdentifier,
		Status:              aws.String(s.Status),
	}}}, nil
}

func (f *fakeCloud) StartDBCluster(_ context.Context, in *rds.StartDBClusterInput, _ ...func(*rds.Options)) (*rds.StartDBClusterOutput, error) {
	return &rds.StartDBClusterOutput{}, f.record("StartDBCluster", in)
}

func (f *fakeCloud) StopDBCluster(_ context.Context, in *rds.StopDBClusterInput, _ ...func(*rds.Options)) (*rds.StopDBClusterOutput, error) {
	return &rds.StopDBClusterOutput{}, f.record("StopDBCluster", in)
}

func (f *fakeCloud) DescribeService(_ context.Context, in *apprunner.DescribeServiceInput, _ ...func(*apprunner.Options)) (*apprunner.DescribeServiceOutput, error) {
	s, err := f.next()
	if err != nil {
		return nil, err
	}
	if s.Status == StatusNotFound {
		return &apprunner.DescribeServiceOutput{}, nil
	}
	return &apprunner.DescribeServiceOutput{Service: &artypes.Service{
		ServiceArn: in.ServiceArn,
		Status:     artypes.ServiceStatus(s.Status),
	}}, nil
}

func (f *fakeCloud) PauseService(_ context.Context, in *apprunner.PauseServiceInput, _ ...func(*apprunner.Options)) (*apprunner.PauseServiceOutput, error) {
	return &apprunner.PauseServiceOutput{}, f.record("PauseService", in)
}

func (f *fakeCloud) ResumeService(_ context.Context, in *apprunner.ResumeServiceInput, _ ...func(*apprunner.Options)) (*apprunner.ResumeServiceOutput, error) {
	return &apprunner.ResumeServiceOutput{}, f.record("ResumeService", in)
}

func (f *fakeCloud) clients() *Clients {
	return &Clients{EC2: f, ECS: f, AutoScaling: f, RDS: f, AppRunner: f}
}
