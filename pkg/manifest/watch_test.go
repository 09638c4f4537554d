package manifest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/radiofrance/rollo/pkg/manifest"
	"github.com/stretchr/testify/require"
)

const manifestStub = "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: app\n"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func awaitChange(t *testing.T, changes <-chan struct{}) {
	t.Helper()
	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for a change signal")
	}
}

func assertNoChange(t *testing.T, changes <-chan struct{}) {
	t.Helper()
	select {
	case <-changes:
		t.Fatal("unexpected change signal")
	case <-time.After(800 * time.Millisecond):
	}
}

func Test_Watch_SignalsOnManifestChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.yaml"), manifestStub)

	changes, err := manifest.Watch(t.Context(), dir)
	require.NoError(t, err)

	// Non-manifest files are not part of the rollout.
	writeFile(t, filepath.Join(dir, "README.md"), "docs")
	assertNoChange(t, changes)

	writeFile(t, filepath.Join(dir, "app.yaml"), manifestStub+"data:\n  key: value\n")
	awaitChange(t, changes)
}

func Test_Watch_CoalescesEventBursts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	writeFile(t, path, manifestStub)

	changes, err := manifest.Watch(t.Context(), dir)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		writeFile(t, path, manifestStub+"data:\n  key: value\n")
		time.Sleep(10 * time.Millisecond)
	}

	awaitChange(t, changes)
	assertNoChange(t, changes)
}

func Test_Watch_RegistersNewDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.yaml"), manifestStub)

	changes, err := manifest.Watch(t.Context(), dir)
	require.NoError(t, err)

	subDir := filepath.Join(dir, "extra")
	require.NoError(t, os.Mkdir(subDir, 0o750))
	// Leave the watcher time to pick up the new directory.
	time.Sleep(250 * time.Millisecond)

	writeFile(t, filepath.Join(subDir, "extra.yaml"), manifestStub)
	awaitChange(t, changes)
}

func Test_Watch_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.yaml"), manifestStub)

	ctx, cancel := context.WithCancel(t.Context())
	changes, err := manifest.Watch(ctx, dir)
	require.NoError(t, err)

	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("watcher did not stop after context cancellation")
		}
	}
}
