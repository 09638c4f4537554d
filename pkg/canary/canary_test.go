package canary

import (
	"context"
	"errors"
	"testing"

	"github.com/radiofrance/rollo/pkg/mock"
	"github.com/radiofrance/rollo/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"
)

func desiredDeployment(replicas int32) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "web",
			Namespace: "web",
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(replicas),
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{"app": "web"},
			},
		},
	}
}

func Test_Rollout_StepsThenPromotes(t *testing.T) {
	t.Parallel()

	clientSet := fake.NewSimpleClientset()
	checker := &mock.HealthChecker{}

	var probed []string
	probe := func(_ context.Context, namespace string, selector labels.Set) error {
		probed = append(probed, namespace+"/"+selector[labelTrack])
		return nil
	}
	strategy := New(clientSet, checker, probe)

	var phases []string
	err := strategy.Rollout(t.Context(), types.RolloutOptions{
		Deployment:  desiredDeployment(4),
		Release:     "release-1",
		CanarySteps: []int{50, 100},
		Transition: func(phase string) error {
			phases = append(phases, phase)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"verifying", "promoting"}, phases)
	assert.Equal(t, []string{"web/web-canary", "web/web"}, checker.ReadyChecked)
	assert.Equal(t, []string{"web/canary"}, probed)

	stable, err := clientSet.AppsV1().Deployments("web").Get(t.Context(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(4), *stable.Spec.Replicas)
	assert.NotContains(t, stable.Spec.Selector.MatchLabels, labelTrack)

	_, err = clientSet.AppsV1().Deployments("web").Get(t.Context(), "web-canary", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))
}

func Test_Rollout_RollsBackOnStepFailure(t *testing.T) {
	t.Parallel()

	clientSet := fake.NewSimpleClientset()
	checker := &mock.HealthChecker{ReadyError: errors.New("pods keep crashing")}
	strategy := New(clientSet, checker, nil)

	var phases []string
	err := strategy.Rollout(t.Context(), types.RolloutOptions{
		Deployment:  desiredDeployment(4),
		CanarySteps: []int{25, 100},
		Transition: func(phase string) error {
			phases = append(phases, phase)
			return nil
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pods keep crashing")
	assert.Equal(t, []string{"verifying", "rolling-back", "rolled-back"}, phases)

	// Neither the canary nor the stable revision survived the failed step.
	_, err = clientSet.AppsV1().Deployments("web").Get(t.Context(), "web-canary", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))
	_, err = clientSet.AppsV1().Deployments("web").Get(t.Context(), "web", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))
}

type perNameChecker struct {
	readyErrs map[string]error
}

func (c *perNameChecker) WaitDeploymentReady(_ context.Context, namespace, name string) error {
	return c.readyErrs[namespace+"/"+name]
}

func (c *perNameChecker) CheckURL(_ context.Context, _ string) error {
	return nil
}

func Test_Rollout_KeepsCanaryWhenPromotionFails(t *testing.T) {
	t.Parallel()

	clientSet := fake.NewSimpleClientset()
	checker := &perNameChecker{readyErrs: map[string]error{
		"web/web": errors.New("stable revision never converged"),
	}}
	strategy := New(clientSet, checker, nil)

	err := strategy.Rollout(t.Context(), types.RolloutOptions{
		Deployment:  desiredDeployment(4),
		CanarySteps: []int{50, 100},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "promotion of web/web failed")

	// The canary keeps serving traffic until someone investigates.
	canary, err := clientSet.AppsV1().Deployments("web").Get(t.Context(), "web-canary", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "canary", canary.Labels[labelTrack])
}

func Test_Rollout_DryRun(t *testing.T) {
	t.Parallel()

	clientSet := fake.NewSimpleClientset()
	strategy := New(clientSet, &mock.HealthChecker{}, nil)
	strategy.DryRun = true

	err := strategy.Rollout(t.Context(), types.RolloutOptions{
		Deployment: desiredDeployment(2),
	})
	require.NoError(t, err)

	deployments, err := clientSet.AppsV1().Deployments("web").List(t.Context(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, deployments.Items)
}

func Test_ValidateSteps(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		steps   []int
		wantErr bool
	}{
		{"default steps", []int{25, 50, 100}, false},
		{"single step", []int{100}, false},
		{"not increasing", []int{50, 25, 100}, true},
		{"above 100", []int{50, 150}, true},
		{"missing final step", []int{25, 50}, true},
		{"zero step", []int{0, 100}, true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := validateSteps(testCase.steps)
			if testCase.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_CanaryReplicas(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int32(1), canaryReplicas(1, 25))
	assert.Equal(t, int32(1), canaryReplicas(4, 25))
	assert.Equal(t, int32(2), canaryReplicas(4, 50))
	assert.Equal(t, int32(3), canaryReplicas(10, 25))
	assert.Equal(t, int32(10), canaryReplicas(10, 100))
}
