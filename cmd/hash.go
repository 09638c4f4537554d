package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/release"
)

func hashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [MANIFESTS_PATH]",
		Short: "Generates a version hash of the manifests directory",
		Long: `rollo hash will calculate a unique human readable hash of the manifests directory.
The hash only changes when the content of a manifest changes, and is used as the default release name`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			opts := rootOpts{}
			hydrateOptsFromViper(&opts)
			if len(args) > 0 {
				opts.ManifestsPath = args[0]
			}

			hash, err := release.HashManifests(resolveManifestsPath(opts.ManifestsPath))
			if err != nil {
				logger.Fatalf("Hash failed: %v", err)
			}
			fmt.Print(hash) //nolint:forbidigo
		},
	}
}
