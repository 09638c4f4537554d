package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gitlab.com/radiofrance/kubecli"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/bluegreen"
	"github.com/radiofrance/rollo/pkg/canary"
	"github.com/radiofrance/rollo/pkg/exec"
	"github.com/radiofrance/rollo/pkg/preflight"
	"github.com/radiofrance/rollo/pkg/ratelimit"
	"github.com/radiofrance/rollo/pkg/registry"
	"github.com/radiofrance/rollo/pkg/release"
	"github.com/radiofrance/rollo/pkg/report"
	"github.com/radiofrance/rollo/pkg/rolling"
	"github.com/radiofrance/rollo/pkg/rollo"
	"github.com/radiofrance/rollo/pkg/types"
)

func applyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply [MANIFESTS_PATH]",
		Short: "Roll out the manifests to the cluster",
		Long: `rollo apply loads the manifest tree, plans which resources changed, and rolls them
out in dependency order. Deployments go through their configured strategy (rolling,
blue-green or canary), other resources are applied directly.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			bindPFlagsSnakeCase(cmd.Flags())

			opts := applyOpts{}
			hydrateOptsFromViper(&opts)
			if len(args) > 0 {
				opts.ManifestsPath = args[0]
			}

			if err := doApply(cmd.Context(), opts); err != nil {
				logger.Fatalf("Rollout failed: %v", err)
			}
		},
	}

	cmd.Flags().Bool("dry-run", false,
		"Simulate what would happen without actually doing anything dangerous.")
	cmd.Flags().Bool("force-redeploy", false,
		"Forces rolling out the entire resource graph, without regarding if the live objects already match.")
	cmd.Flags().Bool("no-hooks", false,
		"Skip the pre and post rollout hooks.")
	cmd.Flags().Bool("check-images", false,
		"Verify that every Deployment image exists in the registry before applying anything.")
	cmd.Flags().String("release-name", "",
		"Custom release name. Defaults to the humanized hash of the manifest tree.")
	cmd.Flags().Int("concurrency", defaultConcurrency,
		"Maximum number of concurrent rollouts against the cluster.")
	cmd.Flags().String("reports-dir", defaultReportsDir,
		"Directory where rollout reports and logs are written.")

	return cmd
}

func doApply(ctx context.Context, opts applyOpts) error {
	manifestsPath := resolveManifestsPath(opts.ManifestsPath)
	logger.Infof("Rolling out manifests in directory \"%s\"", manifestsPath)

	rel, err := release.NewRelease(manifestsPath, opts.ReleaseName)
	if err != nil {
		return err
	}
	logger.Infof("Release \"%s\" (%s)", rel.Name, rel.ID)

	graph, err := rollo.GenerateDAG(manifestsPath)
	if err != nil {
		return err
	}

	k8sClient, err := kubecli.New("")
	if err != nil {
		return fmt.Errorf("could not get kube client from context: %w", err)
	}

	var reg types.ContainerRegistry
	if opts.CheckImages {
		if opts.RegistryURL == "" {
			return fmt.Errorf("--check-images requires a registry URL")
		}
		reg, err = registry.NewRegistry(opts.RegistryURL, opts.DryRun)
		if err != nil {
			return err
		}
	}

	if err := rollo.Plan(ctx, graph, k8sClient.ClientSet, reg, opts.ForceRedeploy, opts.CheckImages); err != nil {
		return err
	}

	strategies, err := createStrategies(opts)
	if err != nil {
		return err
	}

	executor := exec.NewShellExecutor(workingDir, os.Environ())
	runHooks := !opts.NoHooks && (len(opts.Hooks.Pre) > 0 || len(opts.Hooks.Post) > 0)
	if runHooks {
		preflight.RunPreflightChecks([]string{"sh"})
		if err := rollo.RunPreHooks(executor, opts.Hooks, rel.Name); err != nil {
			return err
		}
	}

	applier := rollo.NewKubeApplier(k8sClient.ClientSet)
	applier.DryRun = opts.DryRun

	rolloutReport := &report.Report{
		ReleaseName:    rel.Name,
		ReleaseID:      rel.ID,
		GenerationDate: rel.StartedAt,
		Dir:            opts.ReportsDir,
	}

	deployErr := rollo.Deploy(ctx, graph, strategies, applier,
		ratelimit.NewChannelRateLimiter(opts.Concurrency), rolloutReport)

	if runHooks {
		// Post hooks run regardless of the rollout outcome.
		if err := rollo.RunPostHooks(executor, opts.Hooks, rel.Name); err != nil && deployErr == nil {
			deployErr = err
		}
	}

	if deployErr != nil {
		return deployErr
	}

	if opts.Backup.S3Bucket != "" && !opts.DryRun {
		uploader, err := release.NewS3Uploader(ctx, opts.Backup.S3Region, opts.Backup.S3Bucket)
		if err != nil {
			return err
		}
		if err := release.NewSnapshotter(uploader).Snapshot(ctx, manifestsPath, rel); err != nil {
			return err
		}
	}

	logger.Infof("Rollout of release \"%s\" completed", rel.Name)
	return nil
}

func createStrategies(opts applyOpts) (map[string]types.Strategy, error) {
	rollingStrategy, err := rolling.CreateStrategy(opts.Health, opts.DryRun)
	if err != nil {
		return nil, err
	}

	blueGreenStrategy, err := bluegreen.CreateStrategy(opts.BlueGreen, opts.Health, opts.DryRun)
	if err != nil {
		return nil, err
	}

	canaryStrategy, err := canary.CreateStrategy(opts.Canary, opts.Health, opts.DryRun)
	if err != nil {
		return nil, err
	}

	return map[string]types.Strategy{
		rollingStrategy.Name():   rollingStrategy,
		blueGreenStrategy.Name(): blueGreenStrategy,
		canaryStrategy.Name():    canaryStrategy,
	}, nil
}
