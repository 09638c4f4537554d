package cmd

import (
	"github.com/spf13/cobra"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/graphviz"
	"github.com/radiofrance/rollo/pkg/rollo"
)

func graphCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "graph [MANIFESTS_PATH]",
		Short: "Create a visual representation of the rollout graph",
		Long: `Create a visual representation of the rollout graph using graphviz

In the generated graph, resources are represented with color status
Red means the resource will be rolled out
Orange means the last rollout of the resource failed
Transparent means no action on the resource`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			bindPFlagsSnakeCase(cmd.Flags())

			opts := rootOpts{}
			hydrateOptsFromViper(&opts)
			if len(args) > 0 {
				opts.ManifestsPath = args[0]
			}

			graph, err := rollo.GenerateDAG(resolveManifestsPath(opts.ManifestsPath))
			if err != nil {
				logger.Fatalf("Generating graph failed: %v", err)
			}

			if err := graphviz.GenerateGraph(cmd.Context(), graph, workingDir); err != nil {
				logger.Fatalf("Generating graph failed: %v", err)
			}
		},
	}
}
