package release_test

import (
	"os"
	"path"
	"testing"

	"github.com/radiofrance/rollo/pkg/release"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifestTree(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		filePath := path.Join(dir, name)
		require.NoError(t, os.MkdirAll(path.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o600))
	}
	return dir
}

func Test_HashManifests_IsStable(t *testing.T) {
	t.Parallel()

	dir := writeManifestTree(t, map[string]string{
		"app.yaml":        "kind: Deployment",
		"sub/config.yaml": "kind: ConfigMap",
	})

	first, err := release.HashManifests(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := release.HashManifests(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func Test_HashManifests_ChangesWithContent(t *testing.T) {
	t.Parallel()

	dir := writeManifestTree(t, map[string]string{"app.yaml": "kind: Deployment"})

	before, err := release.HashManifests(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path.Join(dir, "app.yaml"), []byte("kind: Service"), 0o600))

	after, err := release.HashManifests(dir)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func Test_HashFiles_OrderIndependent(t *testing.T) {
	t.Parallel()

	dir := writeManifestTree(t, map[string]string{
		"a.yaml": "kind: ConfigMap",
		"b.yaml": "kind: Secret",
	})
	fileA := path.Join(dir, "a.yaml")
	fileB := path.Join(dir, "b.yaml")

	first, err := release.HashFiles([]string{fileA, fileB})
	require.NoError(t, err)

	second, err := release.HashFiles([]string{fileB, fileA})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func Test_NewRelease(t *testing.T) {
	t.Parallel()

	dir := writeManifestTree(t, map[string]string{"app.yaml": "kind: Deployment"})

	rel, err := release.NewRelease(dir, "")
	require.NoError(t, err)
	assert.NotEmpty(t, rel.ID)
	assert.Equal(t, rel.Hash, rel.Name)
	assert.False(t, rel.StartedAt.IsZero())

	named, err := release.NewRelease(dir, "summer-cleanup")
	require.NoError(t, err)
	assert.Equal(t, "summer-cleanup", named.Name)
	assert.Equal(t, rel.Hash, named.Hash)
	assert.NotEqual(t, rel.ID, named.ID)
}
