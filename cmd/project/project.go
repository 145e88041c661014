// Package project manages annotation projects on the command line.
package project

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jviitala/labelkit/internal/conf"
	"github.com/jviitala/labelkit/internal/model"
	"github.com/jviitala/labelkit/internal/project"
)

// Command creates the project subcommand with list/create/delete below it.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage annotation projects",
	}
	cmd.AddCommand(listCommand(settings), createCommand(settings), deleteCommand(settings))
	return cmd
}

func openStore(settings *conf.Settings) (*project.Store, error) {
	return project.New(settings.Server.ProjectsDir)
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all projects, most recently opened first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(settings)
			if err != nil {
				return err
			}
			projects, err := s.List()
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Println("No projects found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tIMAGES\tANNOTATIONS\tLAST OPENED")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					p.ID, p.Name, p.ImageCount, p.AnnotationCount,
					p.LastOpened.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func createCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			create := model.ProjectCreate{Name: args[0]}
			if err := create.Validate(); err != nil {
				return err
			}

			s, err := openStore(settings)
			if err != nil {
				return err
			}
			p, err := s.Create(create.Name)
			if err != nil {
				return err
			}
			fmt.Printf("Created project %q with id %s\n", p.Name, p.ID)
			return nil
		},
	}
}

func deleteCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project and all of its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(settings)
			if err != nil {
				return err
			}
			existed, err := s.Delete(args[0])
			if err != nil {
				return err
			}
			if !existed {
				return fmt.Errorf("project %q not found", args[0])
			}
			fmt.Printf("Deleted project %s\n", args[0])
			return nil
		},
	}
}
