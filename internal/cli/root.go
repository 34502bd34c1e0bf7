package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/dl-alexandre/odshare/internal/api"
	"github.com/dl-alexandre/odshare/internal/config"
	"github.com/dl-alexandre/odshare/internal/logging"
	"github.com/dl-alexandre/odshare/internal/types"
	"github.com/dl-alexandre/odshare/internal/utils"
	"github.com/dl-alexandre/odshare/pkg/version"
	"github.com/spf13/cobra"
)

// annotationConfigOptional marks commands that fall back to the defaults
// when the configuration cannot be loaded
const annotationConfigOptional = "odshare/config-optional"

var (
	globalFlags types.GlobalFlags
	logger      logging.Logger = logging.NewNoOpLogger()
	appConfig   *config.Config
	debugRT     http.RoundTripper
)

var rootCmd = &cobra.Command{
	Use:   "odshare",
	Short: "Mirror OneDrive shared folders to local disk",
	Long: `odshare discovers the complete folder tree behind one or more anonymous
OneDrive share links and downloads every file into a local mirror.

Files already present with the remote size are skipped, so re-running a
mirror only fetches what is missing or changed in size.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}

		cfg, err := config.Load(globalFlags.Config)
		if err != nil {
			if cmd.Annotations[annotationConfigOptional] != "true" {
				return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidConfig, err.Error()).Build(), err)
			}
			cfg = config.DefaultConfig()
		}
		appConfig = cfg

		return initLogger(cfg)
	},
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the version number",
	Long:        "Print the version number of odshare",
	Annotations: map[string]string{annotationConfigOptional: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if globalFlags.OutputFormat == types.OutputFormatJSON {
			out := NewOutputWriter(globalFlags.OutputFormat, globalFlags.Quiet, globalFlags.Verbose)
			return out.WriteSuccess("version", info)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar((*string)(&globalFlags.OutputFormat), "output", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Debug, "debug", false, "Enable debug output, including HTTP requests")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.DryRun, "dry-run", false, "Show what would be done without making changes")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags() error {
	// Handle --json flag as alias for --output json
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}

	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid output format: %s", globalFlags.OutputFormat)).Build())
	}
	return nil
}

// buildLogConfig combines the configured log level with the global flags
func buildLogConfig(cfg *config.Config, flags types.GlobalFlags) logging.LogConfig {
	logConfig := logging.DefaultLogConfig()
	logConfig.Level = logging.ParseLevel(cfg.LogLevel)
	logConfig.OutputFile = flags.LogFile
	logConfig.EnableConsole = !flags.Quiet
	logConfig.EnableDebug = flags.Debug
	logConfig.EnableColor = cfg.ColorOutput

	if flags.Verbose {
		logConfig.Level = logging.DEBUG
	}
	if flags.OutputFormat == types.OutputFormatJSON && !flags.Verbose && !flags.Debug {
		logConfig.EnableConsole = false
	}
	return logConfig
}

func initLogger(cfg *config.Config) error {
	l, transport, err := logging.NewDebugLoggerWithTransport(buildLogConfig(cfg, globalFlags))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	debugRT = nil
	if transport != nil {
		debugRT = transport
	}
	return nil
}

// newClient builds an API client from the effective configuration
func newClient(cfg *config.Config) *api.Client {
	return api.NewClient(api.ClientOptions{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.GetRequestTimeout(),
		Transport: debugRT,
		Logger:    logger,
	})
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	_ = logger.Close()
	if err == nil {
		return utils.ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return utils.GetExitCode(utils.ErrorCode(err))
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}
