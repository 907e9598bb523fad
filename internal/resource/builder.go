package resource

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/vibe-io/cdk-extensions-sub001/internal/expr"
	"github.com/vibe-io/cdk-extensions-sub001/internal/reconcile"
)

// Controller is a reconcile controller over resource snapshots.
type Controller = reconcile.Controller[Snapshot]

// Builder turns configured targets into controllers. All controllers built by
// one Builder share its API rate limit.
type Builder struct {
	clients  *Clients
	limiter  *rate.Limiter
	defaults reconcile.Config
}

// NewBuilder creates a Builder. rps <= 0 disables rate limiting.
func NewBuilder(clients *Clients, rps float64, defaults reconcile.Config) *Builder {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	if clients == nil {
		clients = &Clients{}
	}
	return &Builder{clients: clients, limiter: limiter, defaults: defaults}
}

// Build creates the controller driving t towards action.
func (b *Builder) Build(t Target, action Action) (*Controller, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseAction(string(action)); err != nil {
		return nil, err
	}

	caps, err := b.capabilities(t, action)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", t.Name, err)
	}

	policy, err := overrideConditions(caps.policy, t.Conditions[action])
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", t.Name, err)
	}

	cfg := b.defaults
	cfg.Name = fmt.Sprintf("%s/%s", t.Name, action)
	if t.MaxRetries != nil {
		cfg.MaxRetries = *t.MaxRetries
	}
	if t.TTL != nil {
		cfg.TTL = *t.TTL
	}
	if t.PollDelay != nil {
		cfg.PollDelay = *t.PollDelay
	}

	return reconcile.New(policy, b.limitGetter(caps.getter), b.limitSetter(caps.setter), cfg)
}

func (b *Builder) capabilities(t Target, a Action) (capabilities, error) {
	switch t.Kind {
	case KindEC2Instance:
		return ec2Instance(b.clients.EC2, t, a)
	case KindECSService:
		return ecsService(b.clients.ECS, t, a)
	case KindAutoScalingGroup:
		return autoScalingGroup(b.clients.AutoScaling, t, a)
	case KindRDSInstance:
		return rdsInstance(b.clients.RDS, t, a)
	case KindRDSCluster:
		return rdsCluster(b.clients.RDS, t, a)
	case KindAppRunnerService:
		return appRunnerService(b.clients.AppRunner, t, a)
	default:
		return capabilities{}, fmt.Errorf("unknown kind %q", t.Kind)
	}
}

// wait blocks until the limiter admits one API call. Unlike rate.Limiter.Wait
// it only fails with the context's own error.
func (b *Builder) wait(ctx context.Context) error {
	r := b.limiter.Reserve()
	if err := reconcile.Sleep(ctx, r.Delay()); err != nil {
		r.Cancel()
		return err
	}
	return nil
}

func (b *Builder) limitGetter(g reconcile.StatusGetter[Snapshot]) reconcile.StatusGetter[Snapshot] {
	return reconcile.GetterFunc[Snapshot](func(ctx context.Context) (Snapshot, error) {
		if err := b.wait(ctx); err != nil {
			return Snapshot{}, err
		}
		return g.GetStatus(ctx)
	})
}

func (b *Builder) limitSetter(s reconcile.StatusSetter) reconcile.StatusSetter {
	return reconcile.SetterFunc(func(ctx context.Context) error {
		if err := b.wait(ctx); err != nil {
			return err
		}
		return s.SetStatus(ctx)
	})
}

// overrideConditions replaces default predicates with compiled expressions.
func overrideConditions(p reconcile.Policy[Snapshot], c Conditions) (reconcile.Policy[Snapshot], error) {
	for _, o := range []struct {
		name string
		src  string
		dst  *reconcile.Condition[Snapshot]
	}{
		{"wait", c.Wait, &p.Wait},
		{"ready", c.Ready, &p.Ready},
		{"success", c.Success, &p.Success},
	} {
		if o.src == "" {
			continue
		}
		e, err := expr.Compile(o.src)
		if err != nil {
			return p, fmt.Errorf("%s condition: %w", o.name, err)
		}
		*o.dst = expr.Condition[Snapshot](e)
	}
	return p, nil
}
