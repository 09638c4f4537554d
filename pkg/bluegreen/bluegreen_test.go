package bluegreen

import (
	"errors"
	"testing"

	"github.com/radiofrance/rollo/pkg/mock"
	"github.com/radiofrance/rollo/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func desiredDeployment() *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "web",
			Namespace: "web",
		},
		Spec: appsv1.DeploymentSpec{
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{"app": "web"},
			},
		},
	}
}

func oldRevision() *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "web-blue",
			Namespace: "web",
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": "rollo",
				labelBaseName:                  "web",
				labelRevision:                  "web-blue",
			},
		},
	}
}

func frontendService() *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "web"},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{labelRevision: "web-blue"},
		},
	}
}

func newTestStrategy(clientSet *fake.Clientset, checker types.HealthChecker) *Strategy {
	strategy := New(clientSet, checker)
	strategy.nameGenerator = func(base string) string {
		return base + "-green"
	}
	return strategy
}

func Test_Rollout_FlipsServiceAndRemovesOldRevision(t *testing.T) {
	t.Parallel()

	clientSet := fake.NewSimpleClientset(oldRevision(), frontendService())
	checker := &mock.HealthChecker{}
	strategy := newTestStrategy(clientSet, checker)

	var phases []string
	err := strategy.Rollout(t.Context(), types.RolloutOptions{
		Deployment:  desiredDeployment(),
		Release:     "release-1",
		ServiceName: "web",
		Transition: func(phase string) error {
			phases = append(phases, phase)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"verifying", "promoting"}, phases)
	assert.Equal(t, []string{"web/web-green"}, checker.ReadyChecked)

	green, err := clientSet.AppsV1().Deployments("web").Get(t.Context(), "web-green", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "web", green.Labels[labelBaseName])
	assert.Equal(t, "web-green", green.Labels[labelRevision])
	assert.Equal(t, "web-green", green.Spec.Selector.MatchLabels[labelRevision])
	assert.Equal(t, "web-green", green.Spec.Template.Labels[labelRevision])

	svc, err := clientSet.CoreV1().Services("web").Get(t.Context(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "web-green", svc.Spec.Selector[labelRevision])

	_, err = clientSet.AppsV1().Deployments("web").Get(t.Context(), "web-blue", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))
}

func Test_Rollout_RollsBackOnVerificationFailure(t *testing.T) {
	t.Parallel()

	clientSet := fake.NewSimpleClientset(oldRevision(), frontendService())
	checker := &mock.HealthChecker{ReadyError: errors.New("pods keep crashing")}
	strategy := newTestStrategy(clientSet, checker)

	var phases []string
	err := strategy.Rollout(t.Context(), types.RolloutOptions{
		Deployment:  desiredDeployment(),
		ServiceName: "web",
		Transition: func(phase string) error {
			phases = append(phases, phase)
			return nil
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pods keep crashing")
	assert.Equal(t, []string{"verifying", "rolling-back", "rolled-back"}, phases)

	// The green deployment was removed, the old revision still serves traffic.
	_, err = clientSet.AppsV1().Deployments("web").Get(t.Context(), "web-green", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))

	svc, err := clientSet.CoreV1().Services("web").Get(t.Context(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "web-blue", svc.Spec.Selector[labelRevision])
}

func Test_Rollout_RollsBackWhenServiceFlipFails(t *testing.T) {
	t.Parallel()

	// No Service in the cluster, the flip has nothing to point at the new revision.
	clientSet := fake.NewSimpleClientset(oldRevision())
	strategy := newTestStrategy(clientSet, &mock.HealthChecker{})

	var phases []string
	err := strategy.Rollout(t.Context(), types.RolloutOptions{
		Deployment:  desiredDeployment(),
		ServiceName: "web",
		Transition: func(phase string) error {
			phases = append(phases, phase)
			return nil
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get service web")
	assert.Equal(t, []string{"verifying", "promoting", "rolling-back", "rolled-back"}, phases)

	_, err = clientSet.AppsV1().Deployments("web").Get(t.Context(), "web-green", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))
}

func Test_Rollout_RequiresServiceName(t *testing.T) {
	t.Parallel()

	strategy := newTestStrategy(fake.NewSimpleClientset(), &mock.HealthChecker{})

	err := strategy.Rollout(t.Context(), types.RolloutOptions{
		Deployment: desiredDeployment(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a service to flip")
}

func Test_Rollout_DryRun(t *testing.T) {
	t.Parallel()

	clientSet := fake.NewSimpleClientset()
	strategy := newTestStrategy(clientSet, &mock.HealthChecker{})
	strategy.DryRun = true

	err := strategy.Rollout(t.Context(), types.RolloutOptions{
		Deployment:  desiredDeployment(),
		ServiceName: "web",
	})
	require.NoError(t, err)

	deployments, err := clientSet.AppsV1().Deployments("web").List(t.Context(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, deployments.Items)
}
