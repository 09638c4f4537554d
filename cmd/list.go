package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/rollo"
)

func listCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print list of resources managed by rollo",
		Long:  `rollo list will print a list of all Kubernetes resources managed by rollo`,
		Run: func(cmd *cobra.Command, _ []string) {
			bindPFlagsSnakeCase(cmd.Flags())

			opts := listOpts{}
			hydrateOptsFromViper(&opts)

			if err := doList(opts); err != nil {
				logger.Fatalf("List failed: %v", err)
			}
		},
	}

	cmd.Flags().StringP("output", "o", "", ""+
		"Output format (console|graphviz|go-template-file)\n"+
		"You can provide a custom format using go-template: like this: \"-o go-template-file=...\".")

	return cmd
}

func doList(opts listOpts) error {
	formatOpts, err := rollo.ParseOutputOptions(opts.Output)
	if err != nil {
		return fmt.Errorf("error while parsing output options: %w", err)
	}

	graph, err := rollo.GenerateDAG(resolveManifestsPath(opts.ManifestsPath))
	if err != nil {
		return err
	}

	return rollo.GenerateList(graph, formatOpts)
}
