package types

import (
	"context"
	"io"

	appsv1 "k8s.io/api/apps/v1"
)

const (
	// StrategyRolling replaces the Deployment in place and waits for the rollout.
	StrategyRolling = "rolling"
	// StrategyBlueGreen runs the new revision alongside the old one, then flips the Service selector.
	StrategyBlueGreen = "blue-green"
	// StrategyCanary scales the new revision up step by step, verifying health between steps.
	StrategyCanary = "canary"
)

// Strategy is the interface for rolling out a Deployment revision.
type Strategy interface {
	Name() string
	Rollout(ctx context.Context, opts RolloutOptions) error
}

// RolloutOptions is a set of options to perform a Deployment rollout.
type RolloutOptions struct {
	// Deployment is the desired revision, as loaded from the manifests.
	Deployment *appsv1.Deployment
	// Release identifies the rollout run, stamped on every managed object.
	Release string
	// ServiceName is the Service fronting the Deployment, required by the blue-green strategy.
	ServiceName string
	// HealthURL is an optional HTTP endpoint probed after the workload reports ready.
	HealthURL string
	// CanarySteps are the replica percentage steps of the canary strategy.
	CanarySteps []int
	// LogOutput is the writer where rollout progress should be written.
	LogOutput io.Writer
	// Transition reports the rollout phase of the resource to the caller.
	// Strategies call it through NotifyTransition, it may be nil.
	Transition func(phase string) error
}

// NotifyTransition reports a rollout phase through opts.Transition when set.
func (opts RolloutOptions) NotifyTransition(phase string) error {
	if opts.Transition == nil {
		return nil
	}
	return opts.Transition(phase)
}

// HealthChecker reports whether a workload revision is healthy.
type HealthChecker interface {
	// WaitDeploymentReady blocks until the Deployment converged on its desired state, or fails.
	WaitDeploymentReady(ctx context.Context, namespace, name string) error
	// CheckURL probes an HTTP endpoint, any 2xx status is considered healthy.
	CheckURL(ctx context.Context, url string) error
}

// ContainerRegistry is an abstraction for checking image references in a remote registry.
type ContainerRegistry interface {
	RefExists(imageRef string) (bool, error)
}
