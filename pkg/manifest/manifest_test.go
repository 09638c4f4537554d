package manifest_test

import (
	"testing"

	"github.com/radiofrance/rollo/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

func Test_IsManifest(t *testing.T) {
	t.Parallel()

	dataset := []struct {
		filename string
		expected bool
	}{
		{filename: "deployment.yaml", expected: true},
		{filename: "deployment.yml", expected: true},
		{filename: "sub/dir/service.yaml", expected: true},
		{filename: "README.md", expected: false},
		{filename: "kustomization", expected: false},
	}

	for _, ds := range dataset {
		assert.Equal(t, ds.expected, manifest.IsManifest(ds.filename), ds.filename)
	}
}

func Test_ParseFile_MultiDocument(t *testing.T) {
	t.Parallel()

	docs, err := manifest.ParseFile("testdata/webserver.yaml", "default")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	deployment := docs[0]
	assert.Equal(t, "Deployment", deployment.Kind)
	assert.Equal(t, "webserver", deployment.Name)
	assert.Equal(t, "frontend", deployment.Namespace)
	assert.Equal(t, "Deployment/webserver", deployment.ID())
	assert.Equal(t, "testdata/webserver.yaml", deployment.SourceFile)
	assert.NotEmpty(t, deployment.Checksum)

	obj, ok := deployment.Object.(*appsv1.Deployment)
	require.True(t, ok)
	assert.Equal(t, "registry.example.org/nginx:1.27", obj.Spec.Template.Spec.Containers[0].Image)

	service := docs[1]
	assert.Equal(t, "Service", service.Kind)
	_, ok = service.Object.(*corev1.Service)
	require.True(t, ok)

	// Checksums are per document, not per file.
	assert.NotEqual(t, deployment.Checksum, service.Checksum)
}

func Test_ParseFile_Annotations(t *testing.T) {
	t.Parallel()

	docs, err := manifest.ParseFile("testdata/webserver.yaml", "default")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	deployment := docs[0]
	assert.Equal(t, "blue-green", deployment.Strategy())
	assert.Equal(t, []string{"ConfigMap/webserver-config", "Secret/webserver-tls"}, deployment.DependsOn())
	assert.False(t, deployment.Skipped())
	assert.Equal(t, "webserver", deployment.Annotations[manifest.AnnotationService])

	service := docs[1]
	assert.Empty(t, service.Strategy())
	assert.Empty(t, service.DependsOn())
}

func Test_ParseFile_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := manifest.ParseFile("testdata/unknown-kind.yaml", "default")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "testdata/unknown-kind.yaml")
}

func Test_ParseFile_UnmanagedKind(t *testing.T) {
	t.Parallel()

	_, err := manifest.ParseFile("testdata/unmanaged-kind.yaml", "default")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported kind Pod")
	assert.Contains(t, err.Error(), "testdata/unmanaged-kind.yaml")
}

func Test_ParseFile_DefaultsNamespace(t *testing.T) {
	t.Parallel()

	docs, err := manifest.ParseFile("testdata/no-namespace.yaml", "team-a")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	configMap := docs[0]
	assert.Equal(t, "team-a", configMap.Namespace)
	obj, ok := configMap.Object.(*corev1.ConfigMap)
	require.True(t, ok)
	assert.Equal(t, "team-a", obj.Namespace)

	// Namespaces are cluster scoped and never defaulted.
	assert.Empty(t, docs[1].Namespace)
}

func Test_ParseFile_MissingName(t *testing.T) {
	t.Parallel()

	_, err := manifest.ParseFile("testdata/missing-name.yaml", "default")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing metadata.name")
}

func Test_ParseFile_DoesNotExist(t *testing.T) {
	t.Parallel()

	_, err := manifest.ParseFile("testdata/nope.yaml", "default")
	require.Error(t, err)
}
