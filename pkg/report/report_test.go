package report_test

import (
	"errors"
	"os"
	"path"
	"testing"
	"time"

	"github.com/radiofrance/rollo/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func Test_Generate_WritesYAMLReport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rolloutReport := report.Report{
		ReleaseName:    "summer-cleanup",
		ReleaseID:      "run-1",
		GenerationDate: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Dir:            dir,
		RolloutReports: []report.RolloutReport{
			{
				ResourceID: "Deployment/web",
				Strategy:   "bluegreen",
				Status:     report.RolloutStatusSuccess,
				Duration:   42 * time.Second,
			},
			{
				ResourceID: "Deployment/worker",
				Status:     report.RolloutStatusError,
			},
		},
	}

	require.NoError(t, report.Generate(rolloutReport))

	raw, err := os.ReadFile(path.Join(dir, "rollout-run-1.yaml"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &decoded))
	assert.Equal(t, "summer-cleanup", decoded["release_name"])

	rollouts, ok := decoded["rollouts"].([]any)
	require.True(t, ok)
	require.Len(t, rollouts, 2)

	first, ok := rollouts[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Deployment/web", first["resource"])
	assert.Equal(t, "success", first["status"])

	second, ok := rollouts[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "error", second["status"])
}

func Test_Generate_NoopWithoutDir(t *testing.T) {
	t.Parallel()

	require.NoError(t, report.Generate(report.Report{ReleaseID: "run-2"}))
}

func Test_GetLogsDir(t *testing.T) {
	t.Parallel()

	assert.Empty(t, report.Report{}.GetLogsDir())
	assert.Equal(t, "reports/logs", report.Report{Dir: "reports"}.GetLogsDir())
}

func Test_WithError(t *testing.T) {
	t.Parallel()

	rollout := report.RolloutReport{ResourceID: "Deployment/web"}
	failed := rollout.WithError(errors.New("pods keep crashing"))

	assert.Equal(t, report.RolloutStatusError, failed.Status)
	assert.Equal(t, "pods keep crashing", failed.FailureMessage)
	assert.Equal(t, report.RolloutStatusSkipped, rollout.Status)
}

func Test_CheckError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, report.CheckError(nil))
	assert.NoError(t, report.CheckError([]report.RolloutReport{
		{Status: report.RolloutStatusSuccess},
		{Status: report.RolloutStatusSkipped},
	}))
	assert.Error(t, report.CheckError([]report.RolloutReport{
		{Status: report.RolloutStatusSuccess},
		{Status: report.RolloutStatusError},
	}))
}
