// Package cmd assembles the labelkit command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	exportcmd "github.com/jviitala/labelkit/cmd/export"
	projectcmd "github.com/jviitala/labelkit/cmd/project"
	servecmd "github.com/jviitala/labelkit/cmd/serve"
	"github.com/jviitala/labelkit/internal/conf"
)

// RootCommand creates the root command with all subcommands attached.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "labelkit",
		Short: "Local image annotation tool with multi-format dataset export",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	rootCmd.AddCommand(
		servecmd.Command(settings),
		exportcmd.Command(settings),
		projectcmd.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().StringVar(&settings.Server.DataDir,
		"data-dir", viper.GetString("server.datadir"),
		"Data directory used when no project is open")
	rootCmd.PersistentFlags().StringVar(&settings.Server.ProjectsDir,
		"projects-dir", viper.GetString("server.projectsdir"),
		"Directory holding all projects")
	rootCmd.PersistentFlags().BoolVarP(&settings.Server.Debug,
		"debug", "d", viper.GetBool("server.debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
