package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/dl-alexandre/odshare/internal/config"
	"github.com/dl-alexandre/odshare/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for inspecting and creating the odshare configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Display the configuration after applying the config file and ODSHARE_* environment variables",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Show configuration and ledger paths",
	Annotations: map[string]string{annotationConfigOptional: "true"},
	RunE:        runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a default configuration file",
	Annotations: map[string]string{annotationConfigOptional: "true"},
	RunE:        runConfigInit,
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing configuration file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

type configView struct {
	*config.Config
}

func (c configView) Headers() []string {
	return []string{"Key", "Value"}
}

func (c configView) Rows() [][]string {
	return [][]string{
		{"shares", fmt.Sprintf("%v", c.Shares)},
		{"outputDir", c.OutputDir},
		{"concurrency", fmt.Sprintf("%d", c.Concurrency)},
		{"discoveryConcurrency", fmt.Sprintf("%d", c.DiscoveryConcurrency)},
		{"apiBaseUrl", c.APIBaseURL},
		{"requestTimeout", fmt.Sprintf("%ds", c.RequestTimeout)},
		{"logLevel", c.LogLevel},
		{"verifyHashes", fmt.Sprintf("%t", c.VerifyHashes)},
		{"exclude", fmt.Sprintf("%v", c.Exclude)},
		{"metricsFile", c.MetricsFile},
		{"ledger", fmt.Sprintf("%t", c.Ledger)},
		{"colorOutput", fmt.Sprintf("%t", c.ColorOutput)},
	}
}

func (c configView) EmptyMessage() string {
	return ""
}

type pathsView struct {
	ConfigFile string `json:"configFile"`
	Ledger     string `json:"ledger"`
}

func (p pathsView) Headers() []string {
	return []string{"Name", "Path"}
}

func (p pathsView) Rows() [][]string {
	return [][]string{{"config", p.ConfigFile}, {"ledger", p.Ledger}}
}

func (p pathsView) EmptyMessage() string {
	return ""
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	return out.WriteSuccess("config.show", configView{appConfig})
}

// configFilePath is the file named by --config, else the default location
func configFilePath() (string, error) {
	if globalFlags.Config != "" {
		return globalFlags.Config, nil
	}
	return config.GetConfigPath()
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	configPath, err := configFilePath()
	if err != nil {
		return out.WriteError("config.path", utils.NewCLIError(utils.ErrCodeFilesystem, err.Error()).Build())
	}
	ledgerPath, err := config.GetLedgerPath()
	if err != nil {
		return out.WriteError("config.path", utils.NewCLIError(utils.ErrCodeFilesystem, err.Error()).Build())
	}
	return out.WriteSuccess("config.path", pathsView{ConfigFile: configPath, Ledger: ledgerPath})
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	path, err := configFilePath()
	if err != nil {
		return out.WriteError("config.init", utils.NewCLIError(utils.ErrCodeFilesystem, err.Error()).Build())
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return out.WriteError("config.init", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("%s already exists; use --force to overwrite", path)).Build())
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return out.WriteError("config.init", utils.NewCLIError(utils.ErrCodeFilesystem, err.Error()).Build())
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return out.WriteError("config.init", utils.NewCLIError(utils.ErrCodeFilesystem, err.Error()).Build())
	}

	out.Log("Configuration written to %s", path)
	return out.WriteSuccess("config.init", pathsView{ConfigFile: path})
}
