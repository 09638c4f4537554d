package rollo_test

import (
	"testing"

	"github.com/radiofrance/rollo/pkg/mock"
	"github.com/radiofrance/rollo/pkg/rollo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RunPreHooks_StopsOnFirstFailure(t *testing.T) {
	t.Parallel()

	executor := mock.NewExecutor([]mock.ExecutorResult{
		{Output: "ok"},
		{Error: assert.AnError},
	})

	cfg := rollo.HooksConfig{
		Pre: []string{"echo first", "false", "echo never"},
	}

	err := rollo.RunPreHooks(executor, cfg, "blue-sky")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `pre-rollout hook "false" failed`)

	// The third hook never ran.
	assert.Len(t, executor.Executed, 2)
}

func Test_RunPostHooks_RunsAllDespiteFailures(t *testing.T) {
	t.Parallel()

	executor := mock.NewExecutor([]mock.ExecutorResult{
		{Error: assert.AnError},
		{Output: "ok"},
	})

	cfg := rollo.HooksConfig{
		Post: []string{"false", "echo last"},
	}

	err := rollo.RunPostHooks(executor, cfg, "blue-sky")
	require.Error(t, err)

	// Both hooks ran even though the first one failed.
	assert.Len(t, executor.Executed, 2)
}

func Test_RunHooks_PassesReleaseEnv(t *testing.T) {
	t.Parallel()

	executor := mock.NewExecutor(nil)
	cfg := rollo.HooksConfig{Pre: []string{"notify-deploy"}}

	// Release names are free-form, the hook command must not change when the
	// name contains shell metacharacters.
	require.NoError(t, rollo.RunPreHooks(executor, cfg, "blue sky;v2"))

	require.Len(t, executor.Executed, 1)
	assert.Contains(t, executor.Executed[0].Env, "ROLLO_RELEASE=blue sky;v2")
	assert.Equal(t, []string{"-c", "notify-deploy"}, executor.Executed[0].Args)
}
