package rollo_test

import (
	"sync"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/radiofrance/rollo/pkg/dag"
	"github.com/radiofrance/rollo/pkg/manifest"
	"github.com/radiofrance/rollo/pkg/mock"
	"github.com/radiofrance/rollo/pkg/rollo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Plan_MarksMissingAndOutdatedResources(t *testing.T) {
	t.Parallel()

	upToDate := configMapNode("web-config")
	outdated := configMapNode("other-config")
	missing := configMapNode("new-config")

	graph := &dag.DAG{}
	graph.AddNode(upToDate)
	graph.AddNode(outdated)
	graph.AddNode(missing)

	clientSet := fake.NewSimpleClientset(
		&corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{
			Name:      "web-config",
			Namespace: "web",
			// Same checksum as the manifest document.
			Annotations: map[string]string{manifest.AnnotationChecksum: "cafe"},
		}},
		&corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{
			Name:        "other-config",
			Namespace:   "web",
			Annotations: map[string]string{manifest.AnnotationChecksum: "stale"},
		}},
	)

	err := rollo.Plan(t.Context(), graph, clientSet, nil, false, false)
	require.NoError(t, err)

	assert.False(t, upToDate.Resource.NeedsDeploy)
	assert.True(t, outdated.Resource.NeedsDeploy)
	assert.True(t, missing.Resource.NeedsDeploy)
}

func Test_Plan_ForceRedeployMarksEverything(t *testing.T) {
	t.Parallel()

	upToDate := configMapNode("web-config")
	graph := &dag.DAG{}
	graph.AddNode(upToDate)

	clientSet := fake.NewSimpleClientset(
		&corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{
			Name:        "web-config",
			Namespace:   "web",
			Annotations: map[string]string{manifest.AnnotationChecksum: "cafe"},
		}},
	)

	err := rollo.Plan(t.Context(), graph, clientSet, nil, true, false)
	require.NoError(t, err)

	assert.True(t, upToDate.Resource.NeedsDeploy)
}

func Test_Plan_ChecksDeploymentImages(t *testing.T) {
	t.Parallel()

	app := deploymentNode("web", nil)
	app.Resource.Document.Object = deploymentWithImage("registry.example.org/nginx:1.27")

	graph := &dag.DAG{}
	graph.AddNode(app)

	registry := &mock.Registry{
		ExistingRefs: []string{"registry.example.org/nginx:1.27"},
		Lock:         &sync.Mutex{},
	}

	err := rollo.Plan(t.Context(), graph, nil, registry, true, true)
	require.NoError(t, err)
	assert.Equal(t, 1, registry.RefExistsCallCount)
}

func deploymentWithImage(image string) *appsv1.Deployment {
	return &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{Kind: "Deployment", APIVersion: "apps/v1"},
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "web"},
		Spec: appsv1.DeploymentSpec{
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "nginx", Image: image}},
				},
			},
		},
	}
}

func Test_Plan_FailsOnMissingImage(t *testing.T) {
	t.Parallel()

	app := deploymentNode("web", nil)
	app.Resource.Document.Object = deploymentWithImage("registry.example.org/nginx:1.28")

	graph := &dag.DAG{}
	graph.AddNode(app)

	registry := &mock.Registry{
		ExistingRefs: []string{"registry.example.org/nginx:1.27"},
		Lock:         &sync.Mutex{},
	}

	err := rollo.Plan(t.Context(), graph, nil, registry, true, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry.example.org/nginx:1.28")
}
