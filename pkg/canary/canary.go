package canary

import (
	"context"
	"fmt"
	"math"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/health"
	k8sutils "github.com/radiofrance/rollo/pkg/kubernetes"
	"github.com/radiofrance/rollo/pkg/types"
	"gitlab.com/radiofrance/kubecli"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/utils/ptr"
)

// labelTrack separates canary pods from stable pods of the same Deployment.
const labelTrack = "rollo.radiofrance.dev/track"

// canarySuffix is appended to the Deployment name to build the canary Deployment name.
const canarySuffix = "-canary"

// defaultSteps are the replica percentage steps used when none are configured.
var defaultSteps = []int{25, 50, 100}

// ProbeFunc runs a verification probe against the canary pods, typically an exec
// command inside one of them. It is called between canary steps.
type ProbeFunc func(ctx context.Context, namespace string, selector labels.Set) error

// Strategy rolls out a Deployment revision progressively: a scaled-down copy of the
// new revision serves a fraction of the traffic, and is grown step by step as long as
// it stays healthy. The last step promotes the revision to the stable Deployment and
// removes the canary.
type Strategy struct {
	clientSet kubernetes.Interface
	checker   types.HealthChecker
	probe     ProbeFunc // Optional, may be nil.
	Steps     []int
	DryRun    bool // When dry-run mode is enabled, the cluster is never touched.
}

// Config holds the configuration for the canary strategy.
type Config struct {
	Steps []int `mapstructure:"steps"`
	Probe struct {
		Command   []string `mapstructure:"command"`
		Container string   `mapstructure:"container"`
	} `mapstructure:"probe"`
}

// New creates a new instance of Strategy.
func New(clientSet kubernetes.Interface, checker types.HealthChecker, probe ProbeFunc) *Strategy {
	return &Strategy{
		clientSet: clientSet,
		checker:   checker,
		probe:     probe,
		Steps:     defaultSteps,
	}
}

// Name returns the name of the strategy.
func (s *Strategy) Name() string {
	return types.StrategyCanary
}

// Rollout performs the canary deployment.
func (s *Strategy) Rollout(ctx context.Context, opts types.RolloutOptions) error {
	desired := opts.Deployment
	steps := s.Steps
	if len(opts.CanarySteps) > 0 {
		steps = opts.CanarySteps
	}
	if err := validateSteps(steps); err != nil {
		return err
	}

	if s.DryRun {
		logger.Infof("[DRY-RUN] canary rollout of deployment %s/%s, steps %v",
			desired.Namespace, desired.Name, steps)
		return nil
	}

	canary := s.canaryDeployment(desired)

	if err := opts.NotifyTransition("verifying"); err != nil {
		return err
	}

	for _, pct := range steps {
		if pct >= 100 {
			break
		}

		replicas := canaryReplicas(desiredReplicas(desired), pct)
		canary.Spec.Replicas = ptr.To(replicas)

		logger.Infof("Canary step %d%%: scaling %s/%s to %d replica(s)",
			pct, canary.Namespace, canary.Name, replicas)

		if err := k8sutils.CreateOrUpdate(ctx, s.clientSet, canary, opts.Release); err != nil {
			s.deleteCanary(ctx, canary)
			return err
		}

		if err := s.verify(ctx, canary, opts.HealthURL); err != nil {
			logger.Errorf("Canary step %d%% failed, rolling back: %v", pct, err)
			if notifyErr := opts.NotifyTransition("rolling-back"); notifyErr != nil {
				return notifyErr
			}
			s.deleteCanary(ctx, canary)
			if notifyErr := opts.NotifyTransition("rolled-back"); notifyErr != nil {
				return notifyErr
			}
			return err
		}
	}

	logger.Infof("Promoting canary of %s/%s to stable", desired.Namespace, desired.Name)

	if err := opts.NotifyTransition("promoting"); err != nil {
		return err
	}

	if err := k8sutils.CreateOrUpdate(ctx, s.clientSet, desired, opts.Release); err != nil {
		s.deleteCanary(ctx, canary)
		return err
	}

	if err := s.checker.WaitDeploymentReady(ctx, desired.Namespace, desired.Name); err != nil {
		// The stable Deployment did not converge on the new revision. The canary is kept
		// running so that the service keeps healthy endpoints while someone investigates.
		return fmt.Errorf("promotion of %s/%s failed: %w", desired.Namespace, desired.Name, err)
	}

	s.deleteCanary(ctx, canary)
	return nil
}

// canaryDeployment builds the canary copy of the desired Deployment, with a separate
// name and a track label so the stable selector does not adopt the canary pods.
func (s *Strategy) canaryDeployment(desired *appsv1.Deployment) *appsv1.Deployment {
	canary := desired.DeepCopy()
	canary.Name = desired.Name + canarySuffix

	canary.Labels = withTrackLabel(canary.Labels)
	if canary.Spec.Selector == nil {
		canary.Spec.Selector = &metav1.LabelSelector{}
	}
	canary.Spec.Selector.MatchLabels = withTrackLabel(canary.Spec.Selector.MatchLabels)
	canary.Spec.Template.Labels = withTrackLabel(canary.Spec.Template.Labels)

	return canary
}

func (s *Strategy) verify(ctx context.Context, canary *appsv1.Deployment, healthURL string) error {
	if err := s.checker.WaitDeploymentReady(ctx, canary.Namespace, canary.Name); err != nil {
		return err
	}

	if healthURL != "" {
		if err := s.checker.CheckURL(ctx, healthURL); err != nil {
			return err
		}
	}

	if s.probe != nil {
		return s.probe(ctx, canary.Namespace, labels.Set(canary.Spec.Selector.MatchLabels))
	}

	return nil
}

func (s *Strategy) deleteCanary(ctx context.Context, canary *appsv1.Deployment) {
	err := s.clientSet.AppsV1().Deployments(canary.Namespace).Delete(ctx, canary.Name, metav1.DeleteOptions{})
	if err != nil {
		logger.Warnf("Failed to delete canary deployment %s/%s, ignoring: %v",
			canary.Namespace, canary.Name, err)
	}
}

func validateSteps(steps []int) error {
	previous := 0
	for _, pct := range steps {
		if pct <= previous || pct > 100 {
			return fmt.Errorf("invalid canary steps %v: steps must be increasing percentages up to 100", steps)
		}
		previous = pct
	}
	if previous != 100 {
		return fmt.Errorf("invalid canary steps: last step must be 100, got %d", previous)
	}
	return nil
}

func canaryReplicas(desired int32, pct int) int32 {
	replicas := int32(math.Ceil(float64(desired) * float64(pct) / 100))
	if replicas < 1 {
		return 1
	}
	return replicas
}

func desiredReplicas(deploy *appsv1.Deployment) int32 {
	if deploy.Spec.Replicas == nil {
		return 1
	}
	return *deploy.Spec.Replicas
}

func withTrackLabel(existing map[string]string) map[string]string {
	merged := map[string]string{}
	for k, v := range existing {
		merged[k] = v
	}
	merged[labelTrack] = "canary"
	return merged
}

// CreateStrategy creates the canary strategy from the current kubeconfig context.
// When a probe command is configured, it is executed inside one of the canary pods
// between each step.
func CreateStrategy(cfg Config, healthCfg health.Config, dryRun bool) (*Strategy, error) {
	k8sClient, err := kubecli.New("")
	if err != nil {
		return nil, fmt.Errorf("could not get kube client from context: %w", err)
	}

	var probe ProbeFunc
	if len(cfg.Probe.Command) > 0 {
		probe = execProbe(k8sClient.ClientSet, *k8sClient.Config, cfg.Probe.Command, cfg.Probe.Container)
	}

	strategy := New(k8sClient.ClientSet, health.NewChecker(k8sClient.ClientSet, healthCfg), probe)
	strategy.DryRun = dryRun
	if len(cfg.Steps) > 0 {
		strategy.Steps = cfg.Steps
	}
	return strategy, nil
}

// execProbe runs the configured command inside a running canary pod.
func execProbe(clientSet kubernetes.Interface, restConfig rest.Config,
	command []string, container string,
) ProbeFunc {
	return func(ctx context.Context, namespace string, selector labels.Set) error {
		pod, err := k8sutils.FindRunningPod(ctx, clientSet, namespace, selector)
		if err != nil {
			return err
		}

		if container == "" && len(pod.Spec.Containers) > 0 {
			container = pod.Spec.Containers[0].Name
		}

		logger.Infof("Running canary probe %v in pod %s/%s", command, pod.Namespace, pod.Name)

		execOpts := k8sutils.NewExecOptions(clientSet, restConfig).WithContainer(pod, container)
		if err := execOpts.Run(command); err != nil {
			return fmt.Errorf("canary probe failed in pod %s: %w", pod.Name, err)
		}
		return nil
	}
}
