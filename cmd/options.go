package cmd

import (
	"github.com/radiofrance/rollo/pkg/bluegreen"
	"github.com/radiofrance/rollo/pkg/canary"
	"github.com/radiofrance/rollo/pkg/health"
	"github.com/radiofrance/rollo/pkg/rollo"
)

// rootOpts are the options shared by every command.
type rootOpts struct {
	ManifestsPath string `mapstructure:"manifests_path"`
	RegistryURL   string `mapstructure:"registry_url"`
}

// backupOpts configures the release snapshot upload.
type backupOpts struct {
	S3Bucket string `mapstructure:"s3_bucket"`
	S3Region string `mapstructure:"s3_region"`
}

// applyOpts are the options of the apply command.
type applyOpts struct {
	// Root options
	ManifestsPath string `mapstructure:"manifests_path"`
	RegistryURL   string `mapstructure:"registry_url"`

	// Apply specific options
	DryRun        bool   `mapstructure:"dry_run"`
	ForceRedeploy bool   `mapstructure:"force_redeploy"`
	NoHooks       bool   `mapstructure:"no_hooks"`
	CheckImages   bool   `mapstructure:"check_images"`
	ReleaseName   string `mapstructure:"release_name"`
	Concurrency   int    `mapstructure:"concurrency"`
	ReportsDir    string `mapstructure:"reports_dir"`

	Health    health.Config     `mapstructure:"health"`
	BlueGreen bluegreen.Config  `mapstructure:"blue_green"`
	Canary    canary.Config     `mapstructure:"canary"`
	Hooks     rollo.HooksConfig `mapstructure:"hooks"`
	Backup    backupOpts        `mapstructure:"backup"`
}

// planOpts are the options of the plan command.
type planOpts struct {
	// Root options
	ManifestsPath string `mapstructure:"manifests_path"`
	RegistryURL   string `mapstructure:"registry_url"`

	// Plan specific options
	ForceRedeploy bool `mapstructure:"force_redeploy"`
	CheckImages   bool `mapstructure:"check_images"`
	Watch         bool `mapstructure:"watch"`
}

// listOpts are the options of the list command.
type listOpts struct {
	// Root options
	ManifestsPath string `mapstructure:"manifests_path"`

	// List specific options
	Output string `mapstructure:"output,omitempty"`
}

// statusOpts are the options of the status command.
type statusOpts struct {
	// Root options
	ManifestsPath string `mapstructure:"manifests_path"`

	// Status specific options
	Watch  bool          `mapstructure:"watch"`
	Health health.Config `mapstructure:"health"`
}
