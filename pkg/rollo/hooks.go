package rollo

import (
	"fmt"
	"os"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/exec"
)

// HooksConfig holds the shell commands run around a rollout.
type HooksConfig struct {
	// Pre commands run before anything is applied to the cluster. Any failure
	// aborts the rollout.
	Pre []string `mapstructure:"pre"`
	// Post commands run once the rollout completed. Failures are reported but
	// the rollout outcome is not changed.
	Post []string `mapstructure:"post"`
}

// RunPreHooks runs the pre-rollout commands, stopping at the first failure.
func RunPreHooks(executor exec.Executor, cfg HooksConfig, release string) error {
	for _, command := range cfg.Pre {
		logger.Infof("Running pre-rollout hook: %s", command)
		if err := runHook(executor, command, release); err != nil {
			return fmt.Errorf("pre-rollout hook %q failed: %w", command, err)
		}
	}
	return nil
}

// RunPostHooks runs the post-rollout commands. Failures do not stop the
// remaining hooks, the first one is returned.
func RunPostHooks(executor exec.Executor, cfg HooksConfig, release string) error {
	var firstErr error
	for _, command := range cfg.Post {
		logger.Infof("Running post-rollout hook: %s", command)
		if err := runHook(executor, command, release); err != nil {
			logger.Errorf("Post-rollout hook %q failed: %v", command, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("post-rollout hook %q failed: %w", command, err)
			}
		}
	}
	return firstErr
}

func runHook(executor exec.Executor, command, release string) error {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	// The release name reaches the hook through the environment, shell
	// metacharacters in it must not alter the command.
	return executor.ExecuteWithEnv(os.Stderr, []string{"ROLLO_RELEASE=" + release}, shell, "-c", command)
}
