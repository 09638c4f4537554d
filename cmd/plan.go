package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gitlab.com/radiofrance/kubecli"
	"k8s.io/client-go/kubernetes"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/dag"
	"github.com/radiofrance/rollo/pkg/manifest"
	"github.com/radiofrance/rollo/pkg/registry"
	"github.com/radiofrance/rollo/pkg/rollo"
	"github.com/radiofrance/rollo/pkg/types"
)

func planCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [MANIFESTS_PATH]",
		Short: "Show what a rollout would change without touching the cluster",
		Long: `rollo plan loads the manifest tree, compares it with the live cluster state, and
prints which resources would be rolled out by rollo apply. Nothing is applied.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			bindPFlagsSnakeCase(cmd.Flags())

			opts := planOpts{}
			hydrateOptsFromViper(&opts)
			if len(args) > 0 {
				opts.ManifestsPath = args[0]
			}

			if err := doPlan(cmd.Context(), opts); err != nil {
				logger.Fatalf("Plan failed: %v", err)
			}
		},
	}

	cmd.Flags().Bool("force-redeploy", false,
		"Plan as if every resource had changed.")
	cmd.Flags().Bool("check-images", false,
		"Verify that every Deployment image exists in the registry.")
	cmd.Flags().BoolP("watch", "w", false,
		"Re-plan whenever the manifest tree changes on disk.")

	return cmd
}

func doPlan(ctx context.Context, opts planOpts) error {
	clientSet := planClientSet()

	if err := planOnce(ctx, opts, clientSet); err != nil {
		return err
	}

	if !opts.Watch {
		return nil
	}

	events, err := manifest.Watch(ctx, resolveManifestsPath(opts.ManifestsPath))
	if err != nil {
		return err
	}

	logger.Infof("Watching manifests for changes, press Ctrl+C to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				return nil
			}
			if err := planOnce(ctx, opts, clientSet); err != nil {
				logger.Errorf("Plan failed: %v", err)
			}
		}
	}
}

func planOnce(ctx context.Context, opts planOpts, clientSet kubernetes.Interface) error {
	graph, err := rollo.GenerateDAG(resolveManifestsPath(opts.ManifestsPath))
	if err != nil {
		return err
	}

	var reg types.ContainerRegistry
	if opts.CheckImages {
		if opts.RegistryURL == "" {
			return fmt.Errorf("--check-images requires a registry URL")
		}
		reg, err = registry.NewRegistry(opts.RegistryURL, true)
		if err != nil {
			return err
		}
	}

	if err := rollo.Plan(ctx, graph, clientSet, reg, opts.ForceRedeploy, opts.CheckImages); err != nil {
		return err
	}

	renderPlanOutput(graph)
	return nil
}

// planClientSet returns the clientset of the current kubeconfig context, or nil
// when no cluster is reachable, in which case the plan marks everything.
func planClientSet() kubernetes.Interface {
	k8sClient, err := kubecli.New("")
	if err != nil {
		logger.Warnf("No cluster available, planning without live state: %v", err)
		return nil
	}
	return k8sClient.ClientSet
}

// renderPlanOutput displays the plan in stdout as a nice table.
func renderPlanOutput(graph *dag.DAG) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	var data [][]string
	for _, resource := range rollo.GetResourcesList(graph) {
		action := "none"
		if resource.NeedsDeploy {
			action = "deploy"
		}
		data = append(data, []string{resource.ID(), resource.Namespace, resource.Strategy, action})
	}

	table.AppendBulk(data)

	table.SetHeader([]string{"Resource", "Namespace", "Strategy", "Action"})
	table.Render()
}
