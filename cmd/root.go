package cmd

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/radiofrance/rollo/internal/logger"
)

const (
	defaultManifestsPath = "manifests"
	defaultLogLevel      = "info"
	defaultConcurrency   = 2
	defaultReportsDir    = "reports"
)

var (
	workingDir string
	cfgFile    string
)

var rootCmd = &cobra.Command{
	Use: "rollo",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	Short: "An Opinionated Kubernetes Rollout Coordinator",
	Long: `rollo rolls out a directory of Kubernetes manifests as a dependency graph,
with per-workload rolling, blue-green or canary strategies

Run rollo --help for more information`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	// Set logger level from flags as early as possible, then load config, then finalize from Viper
	cobra.OnInitialize(preInitLogLevelFromFlags, initConfig, initLogLevel)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.config/.rollo.yaml)")
	rootCmd.PersistentFlags().String("manifests-path", defaultManifestsPath,
		`Path to the directory containing the Kubernetes manifests managed by rollo. Every YAML file will be
recursively found and added to the rollout graph. You can provide any subdirectory if you want to focus on a
reduced set of resources, as long as it has at least one manifest in it.`)
	rootCmd.PersistentFlags().String("registry-url", "",
		"Container registry URL used to verify that Deployment images exist before rolling out.")
	rootCmd.PersistentFlags().StringP("log-level", "l", defaultLogLevel,
		`Log level. Can be any standard log-level ("info", "debug", etc...)`)

	err := viper.BindPFlags(rootCmd.PersistentFlags())
	if err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(versionCommand())
	rootCmd.AddCommand(applyCommand())
	rootCmd.AddCommand(planCommand())
	rootCmd.AddCommand(listCommand())
	rootCmd.AddCommand(graphCommand())
	rootCmd.AddCommand(statusCommand())
	rootCmd.AddCommand(hashCommand())
	rootCmd.AddCommand(docgenCommand())
}

func initConfig() {
	var err error

	workingDir, err = os.Getwd()
	cobra.CheckErr(err)

	viper.SetConfigType("yaml")

	if cfgFile != "" {
		// Use config file from the flag.
		setConfigFile(cfgFile)
	} else if val := os.Getenv("ROLLO_CONFIG"); val != "" {
		// Use config file from the env variable.
		setConfigFile(val)
	} else {
		// Add $HOME/.config and current directory as paths for Viper to search for the config file in.
		homeDir, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(path.Join(homeDir, ".config"))
		viper.AddConfigPath(workingDir)

		// Search config file with name ".rollo.yaml" or ".rollo.yml".
		viper.SetConfigName(".rollo")
	}

	// Set defaults for config values that have no flag bound to them.
	viper.SetDefault("concurrency", defaultConcurrency)
	viper.SetDefault("reports_dir", defaultReportsDir)

	// Env vars starting with the ROLLO_ prefix can override any configuration.
	// e.g. ROLLO_LOG_LEVEL, ROLLO_BACKUP_S3_BUCKET, etc...
	viper.SetEnvPrefix("rollo")
	// Allows to override any sub-level in file config.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Read in environment variables that match.
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	err = viper.ReadInConfig()
	if err != nil {
		// Non-blocking, because some command does not require config file, ie: docgen.
		logger.Warnf("%s", err)
	} else {
		logger.Infof("Using config file: %s", viper.ConfigFileUsed())
	}
}

func initLogLevel() {
	logLevel := viper.GetString("log_level")
	logger.SetLevel(&logLevel)
}

// preInitLogLevelFromFlags sets the log level from Cobra flags or env before config/env are loaded by Viper,
// so that early logs (like config not found) respect user-provided preference.
// Precedence respected here: flag > env (ROLLO_LOG_LEVEL) > config (handled later in initLogLevel via Viper).
func preInitLogLevelFromFlags() {
	if rootCmd == nil {
		return
	}

	flag := rootCmd.PersistentFlags().Lookup("log-level")
	if flag != nil && flag.Changed {
		val, err := rootCmd.PersistentFlags().GetString("log-level")
		if err == nil {
			logger.SetLevel(&val)
			return
		}
	}

	if val, ok := os.LookupEnv("ROLLO_LOG_LEVEL"); ok && val != "" {
		logger.SetLevel(&val)
	}
}

func setConfigFile(name string) {
	_, err := os.Stat(name)
	if err != nil {
		cobra.CheckErr(fmt.Errorf("config file %q not found", name))
	}

	viper.SetConfigFile(name)
}

// resolveManifestsPath makes the manifests path absolute, relative paths are
// resolved against the current working directory.
func resolveManifestsPath(manifestsPath string) string {
	if path.IsAbs(manifestsPath) {
		return manifestsPath
	}
	return path.Join(workingDir, manifestsPath)
}

// hydrateOptsFromViper copies all the viper values into our config struct.
// The mapping between viper identifiers and struct field names
// is ensured by `mapstructure` struct tags.
func hydrateOptsFromViper(opts any) {
	_ = viper.Unmarshal(opts)
}

// bindPFlagsSnakeCase binds the flags with viper values. The identifier of the viper value
// is the name of the flag with dashes replaced by underscores. This is required so we can
// retrieve values from viper with the same behaviour with config coming from files
// (my_config: "value") or from flags (--my-config=value).
func bindPFlagsSnakeCase(flags *pflag.FlagSet) {
	flags.VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag(strings.ReplaceAll(flag.Name, "-", "_"), flag)
	})
}
