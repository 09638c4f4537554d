package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gitlab.com/radiofrance/kubecli"
	appsv1 "k8s.io/api/apps/v1"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/dag"
	"github.com/radiofrance/rollo/pkg/health"
	"github.com/radiofrance/rollo/pkg/rollo"
)

const statusRefreshInterval = 5 * time.Second

func statusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [MANIFESTS_PATH]",
		Short: "Print the health of the workloads managed by rollo",
		Long: `rollo status polls the cluster and prints a health summary of every Deployment of
the manifest tree: desired, updated and available replicas, plus failure conditions.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			bindPFlagsSnakeCase(cmd.Flags())

			opts := statusOpts{}
			hydrateOptsFromViper(&opts)
			if len(args) > 0 {
				opts.ManifestsPath = args[0]
			}

			if err := doStatus(cmd.Context(), opts); err != nil {
				logger.Fatalf("Status failed: %v", err)
			}
		},
	}

	cmd.Flags().BoolP("watch", "w", false,
		"Keep refreshing the status until interrupted.")

	return cmd
}

func doStatus(ctx context.Context, opts statusOpts) error {
	graph, err := rollo.GenerateDAG(resolveManifestsPath(opts.ManifestsPath))
	if err != nil {
		return err
	}

	k8sClient, err := kubecli.New("")
	if err != nil {
		return fmt.Errorf("could not get kube client from context: %w", err)
	}
	checker := health.NewChecker(k8sClient.ClientSet, opts.Health)

	if err := printStatus(ctx, graph, checker); err != nil {
		return err
	}

	if !opts.Watch {
		return nil
	}

	ticker := time.NewTicker(statusRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printStatus(ctx, graph, checker); err != nil {
				logger.Errorf("Status failed: %v", err)
			}
		}
	}
}

func printStatus(ctx context.Context, graph *dag.DAG, checker *health.Checker) error {
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
		if _, ok := resource.Document.Object.(*appsv1.Deployment); !ok {
			continue
		}

		status, err := checker.DeploymentStatus(ctx, resource.Namespace, resource.Name)
		if err != nil {
			return err
		}

		ready := "no"
		if status.Ready {
			ready = "yes"
		}
		data = append(data, []string{
			resource.ID(),
			resource.Namespace,
			ready,
			fmt.Sprintf("%d/%d", status.Available, status.Desired),
			fmt.Sprintf("%d", status.Updated),
			status.Message,
		})
	}

	table.AppendBulk(data)

	table.SetHeader([]string{"Resource", "Namespace", "Ready", "Available", "Updated", "Message"})
	table.Render()
	return nil
}
