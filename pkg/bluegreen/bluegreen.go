package bluegreen

import (
	"context"
	"fmt"
	"time"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/health"
	k8sutils "github.com/radiofrance/rollo/pkg/kubernetes"
	"github.com/radiofrance/rollo/pkg/types"
	"gitlab.com/radiofrance/kubecli"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
)

const (
	// labelBaseName groups every revision of a blue-green Deployment under its manifest name.
	labelBaseName = "rollo.radiofrance.dev/name"
	// labelRevision identifies a single revision, and is the label the Service selector is flipped to.
	labelRevision = "rollo.radiofrance.dev/revision"
)

// Strategy runs the new revision of a Deployment alongside the old one, verifies its
// health, then flips the Service selector to the new revision before removing the old one.
type Strategy struct {
	clientSet     kubernetes.Interface
	checker       types.HealthChecker
	nameGenerator func(base string) string
	DryRun        bool // When dry-run mode is enabled, the cluster is never touched.

	// ScaleDownDelay is how long the old revision keeps running after the Service flip,
	// leaving in-flight requests time to drain.
	ScaleDownDelay time.Duration
}

// Config holds the configuration for the blue-green strategy.
type Config struct {
	ScaleDownDelay time.Duration `mapstructure:"scale_down_delay"`
}

// New creates a new instance of Strategy.
func New(clientSet kubernetes.Interface, checker types.HealthChecker) *Strategy {
	return &Strategy{
		clientSet: clientSet,
		checker:   checker,
		nameGenerator: func(base string) string {
			return k8sutils.UniqueName(base)()
		},
	}
}

// Name returns the name of the strategy.
func (s *Strategy) Name() string {
	return types.StrategyBlueGreen
}

// Rollout performs the blue-green deployment.
func (s *Strategy) Rollout(ctx context.Context, opts types.RolloutOptions) error {
	base := opts.Deployment.Name

	if opts.ServiceName == "" {
		return fmt.Errorf("blue-green rollout of %s requires a service to flip", base)
	}

	if s.DryRun {
		logger.Infof("[DRY-RUN] blue-green rollout of deployment %s, flipping service %s",
			base, opts.ServiceName)
		return nil
	}

	green := s.greenDeployment(opts.Deployment)
	logger.Infof("Creating green deployment %s/%s", green.Namespace, green.Name)

	if err := k8sutils.CreateOrUpdate(ctx, s.clientSet, green, opts.Release); err != nil {
		return err
	}

	if err := opts.NotifyTransition("verifying"); err != nil {
		return err
	}

	if err := s.verify(ctx, green, opts.HealthURL); err != nil {
		logger.Errorf("Green deployment %s failed verification, rolling back: %v", green.Name, err)
		if notifyErr := opts.NotifyTransition("rolling-back"); notifyErr != nil {
			return notifyErr
		}
		s.deleteDeployment(ctx, green.Namespace, green.Name)
		if notifyErr := opts.NotifyTransition("rolled-back"); notifyErr != nil {
			return notifyErr
		}
		return err
	}

	if err := opts.NotifyTransition("promoting"); err != nil {
		return err
	}

	if err := s.flipService(ctx, green.Namespace, opts.ServiceName, green.Name); err != nil {
		if notifyErr := opts.NotifyTransition("rolling-back"); notifyErr != nil {
			return notifyErr
		}
		s.deleteDeployment(ctx, green.Namespace, green.Name)
		if notifyErr := opts.NotifyTransition("rolled-back"); notifyErr != nil {
			return notifyErr
		}
		return err
	}

	if s.ScaleDownDelay > 0 {
		logger.Infof("Waiting %s before removing the old revision", s.ScaleDownDelay)
		select {
		case <-time.After(s.ScaleDownDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return s.deleteOldRevisions(ctx, green.Namespace, base, green.Name)
}

// greenDeployment builds the new revision from the desired Deployment: a unique name,
// plus the base and revision labels wired through the selector and the pod template.
func (s *Strategy) greenDeployment(desired *appsv1.Deployment) *appsv1.Deployment {
	green := desired.DeepCopy()
	green.Name = s.nameGenerator(desired.Name)

	green.Labels = mergeLabels(green.Labels, desired.Name, green.Name)
	if green.Spec.Selector == nil {
		green.Spec.Selector = &metav1.LabelSelector{}
	}
	green.Spec.Selector.MatchLabels = mergeLabels(green.Spec.Selector.MatchLabels, desired.Name, green.Name)
	green.Spec.Template.Labels = mergeLabels(green.Spec.Template.Labels, desired.Name, green.Name)

	return green
}

func (s *Strategy) verify(ctx context.Context, green *appsv1.Deployment, healthURL string) error {
	if err := s.checker.WaitDeploymentReady(ctx, green.Namespace, green.Name); err != nil {
		return err
	}

	if healthURL != "" {
		return s.checker.CheckURL(ctx, healthURL)
	}

	return nil
}

// flipService points the Service selector at the new revision.
func (s *Strategy) flipService(ctx context.Context, namespace, serviceName, revision string) error {
	svc, err := s.clientSet.CoreV1().Services(namespace).Get(ctx, serviceName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get service %s to flip: %w", serviceName, err)
	}

	if svc.Spec.Selector == nil {
		svc.Spec.Selector = map[string]string{}
	}
	svc.Spec.Selector[labelRevision] = revision

	_, err = s.clientSet.CoreV1().Services(namespace).Update(ctx, svc, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("failed to flip service %s to revision %s: %w", serviceName, revision, err)
	}

	logger.Infof("Service %s/%s now points to revision %s", namespace, serviceName, revision)
	return nil
}

// deleteOldRevisions removes every revision of the base deployment except the one that
// was just promoted.
func (s *Strategy) deleteOldRevisions(ctx context.Context, namespace, base, keep string) error {
	selector := labels.Set{
		k8sutils.LabelManagedBy: k8sutils.ManagerName,
		labelBaseName:           base,
	}

	deployments, err := s.clientSet.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to list old revisions of %s: %w", base, err)
	}

	for _, deploy := range deployments.Items {
		if deploy.Name == keep {
			continue
		}
		logger.Infof("Removing old revision %s/%s", namespace, deploy.Name)
		s.deleteDeployment(ctx, namespace, deploy.Name)
	}

	return nil
}

func (s *Strategy) deleteDeployment(ctx context.Context, namespace, name string) {
	err := s.clientSet.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		logger.Warnf("Failed to delete deployment %s/%s, ignoring: %v", namespace, name, err)
	}
}

func mergeLabels(existing map[string]string, base, revision string) map[string]string {
	merged := map[string]string{}
	for k, v := range existing {
		merged[k] = v
	}
	merged[labelBaseName] = base
	merged[labelRevision] = revision
	return merged
}

// CreateStrategy creates the blue-green strategy from the current kubeconfig context.
func CreateStrategy(cfg Config, healthCfg health.Config, dryRun bool) (*Strategy, error) {
	k8sClient, err := kubecli.New("")
	if err != nil {
		return nil, fmt.Errorf("could not get kube client from context: %w", err)
	}

	strategy := New(k8sClient.ClientSet, health.NewChecker(k8sClient.ClientSet, healthCfg))
	strategy.DryRun = dryRun
	strategy.ScaleDownDelay = cfg.ScaleDownDelay
	return strategy, nil
}
