package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"clausebook/api/internal/tokens"
	"clausebook/api/internal/util"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const configName = ".clausectl"

// rootOptions is shared by every subcommand. The viper instance is built per
// root so tests do not leak settings into each other.
type rootOptions struct {
	cfgFile string
	v       *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "clausectl",
		Short: "Lint, render and export contract templates",
		Long: `clausectl works with serialised contract templates.

Settings are read from flags, CLAUSECTL_* environment variables and
$HOME/.clausectl.yaml, in that order of precedence.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.initConfig(); err != nil {
				return err
			}
			return util.SetLogLevel(opts.v.GetString("log_level"))
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.clausectl.yaml)")
	flags.String("tokens", "", "YAML token catalogue (default is the built-in catalogue)")
	flags.StringP("loglevel", "l", "warn", "Set log level. Available: debug, info, warn, error")
	_ = opts.v.BindPFlag("tokens_file", flags.Lookup("tokens"))
	_ = opts.v.BindPFlag("log_level", flags.Lookup("loglevel"))

	cmd.AddCommand(
		newTokensCmd(opts),
		newLintCmd(opts),
		newRenderCmd(opts),
		newImportMarkdownCmd(opts),
		newExportCmd(opts),
	)
	return cmd
}

// initConfig reads the config file and environment. A missing default config
// file is not an error.
func (o *rootOptions) initConfig() error {
	o.v.SetEnvPrefix("clausectl")
	o.v.AutomaticEnv()
	o.v.SetDefault("chrome_path", "")

	if o.cfgFile != "" {
		o.v.SetConfigFile(o.cfgFile)
		if err := o.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", o.cfgFile, err)
		}
		return nil
	}

	home, err := homedir.Dir()
	if err != nil {
		return nil
	}
	o.v.AddConfigPath(home)
	o.v.SetConfigName(configName)
	o.v.SetConfigType("yaml")
	if err := o.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config %s: %w", filepath.Join(home, configName+".yaml"), err)
	}
	return nil
}

func (o *rootOptions) registry() (*tokens.Registry, error) {
	path := o.v.GetString("tokens_file")
	if path == "" {
		return tokens.Default(), nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	return tokens.LoadFile(expanded)
}

func (o *rootOptions) chromePath() string {
	path, err := homedir.Expand(o.v.GetString("chrome_path"))
	if err != nil {
		return ""
	}
	return path
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(expanded)
}
