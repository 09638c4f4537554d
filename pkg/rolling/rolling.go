package rolling

import (
	"context"
	"fmt"
	"io"

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

// Strategy applies the Deployment in place and waits for the native rolling update
// performed by the deployment controller to complete.
type Strategy struct {
	clientSet kubernetes.Interface
	checker   types.HealthChecker
	DryRun    bool // When dry-run mode is enabled, the cluster is never touched.
}

// New creates a new instance of Strategy.
func New(clientSet kubernetes.Interface, checker types.HealthChecker) *Strategy {
	return &Strategy{
		clientSet: clientSet,
		checker:   checker,
	}
}

// Name returns the name of the strategy.
func (s *Strategy) Name() string {
	return types.StrategyRolling
}

// Rollout applies the Deployment and blocks until the rollout converged.
func (s *Strategy) Rollout(ctx context.Context, opts types.RolloutOptions) error {
	deploy := opts.Deployment

	if s.DryRun {
		logger.Infof("[DRY-RUN] rolling update of deployment %s/%s", deploy.Namespace, deploy.Name)
		return nil
	}

	logger.Infof("Rolling update of deployment %s/%s", deploy.Namespace, deploy.Name)

	if err := k8sutils.CreateOrUpdate(ctx, s.clientSet, deploy, opts.Release); err != nil {
		return err
	}

	// The applied generation gates the monitor: the watch replays the current state
	// of the deployment, which may still be the converged previous revision.
	applied, err := s.clientSet.AppsV1().Deployments(deploy.Namespace).Get(ctx, deploy.Name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get deployment after apply: %w", err)
	}

	watcher, err := s.clientSet.AppsV1().Deployments(deploy.Namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: "metadata.name=" + deploy.Name,
		Watch:         true,
	})
	if err != nil {
		return fmt.Errorf("failed to watch deployment: %w", err)
	}
	defer watcher.Stop()

	readyChan, doneChan := k8sutils.MonitorDeployment(ctx, watcher, applied.Generation)
	go func() {
		// Discard the ready signal, the rolling strategy only cares about completion.
		for range readyChan { //nolint:revive
		}
	}()

	if err := opts.NotifyTransition("verifying"); err != nil {
		return err
	}

	if err := <-doneChan; err != nil {
		s.dumpPodLogs(ctx, deploy, opts.LogOutput)
		return fmt.Errorf("rolling update of %s/%s failed: %w", deploy.Namespace, deploy.Name, err)
	}

	if opts.HealthURL != "" {
		if err := s.checker.CheckURL(ctx, opts.HealthURL); err != nil {
			return err
		}
	}

	return nil
}

// dumpPodLogs streams the logs of one pod of the failed rollout, to help diagnose it.
func (s *Strategy) dumpPodLogs(ctx context.Context, deploy *appsv1.Deployment, out io.Writer) {
	if out == nil {
		return
	}

	selector := deploy.Spec.Selector
	if selector == nil || len(selector.MatchLabels) == 0 {
		return
	}

	pod, err := k8sutils.FindRunningPod(ctx, s.clientSet, deploy.Namespace, labels.Set(selector.MatchLabels))
	if err != nil {
		// Pending or crash-looping pods are expected after a failed rollout.
		pods, listErr := s.clientSet.CoreV1().Pods(deploy.Namespace).List(ctx, metav1.ListOptions{
			LabelSelector: metav1.FormatLabelSelector(selector),
		})
		if listErr != nil || len(pods.Items) == 0 {
			logger.Debugf("No pod found to dump logs from: %v", err)
			return
		}
		pod = &pods.Items[0]
	}

	container := ""
	if len(pod.Spec.Containers) > 0 {
		container = pod.Spec.Containers[0].Name
	}
	k8sutils.PrintPodLogs(ctx, out, s.clientSet, pod.Namespace, pod.Name, container)
}

// CreateStrategy creates the rolling strategy from the current kubeconfig context.
func CreateStrategy(healthCfg health.Config, dryRun bool) (*Strategy, error) {
	k8sClient, err := kubecli.New("")
	if err != nil {
		return nil, fmt.Errorf("could not get kube client from context: %w", err)
	}

	strategy := New(k8sClient.ClientSet, health.NewChecker(k8sClient.ClientSet, healthCfg))
	strategy.DryRun = dryRun
	return strategy, nil
}
