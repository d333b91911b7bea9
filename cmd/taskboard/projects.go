package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskboard/internal/schema"
)

var projectsCmd = &cobra.Command{
	Use:     "projects",
	GroupID: "data",
	Short:   "List and create projects",
}

var projectsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your projects",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireSession(); err != nil {
			return err
		}

		projects, err := a.queries.Projects(cmd.Context())
		if err != nil {
			return err
		}

		if structured() {
			return writeOutput(cmd.OutOrStdout(), outputFormat, projects)
		}
		renderProjects(cmd.OutOrStdout(), projects)
		return nil
	},
}

var projectsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a project",
	Long: `Create a project. The name is taken from --name, or asked for
interactively when running in a terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		in := schema.ProjectInput{Name: trimmed(name)}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireSession(); err != nil {
			return err
		}

		if !cmd.Flags().Changed("name") {
			if !interactive() {
				return errors.New("--name is required when not running in a terminal")
			}
			if err := projectForm(&in); err != nil {
				if cancelled(err) {
					fmt.Fprintln(cmd.ErrOrStderr(), renderMuted("Cancelled"))
					return nil
				}
				return err
			}
		}

		project, err := a.mutations.CreateProject(cmd.Context(), in, nil)
		if err != nil {
			return err
		}

		if structured() {
			return writeOutput(cmd.OutOrStdout(), outputFormat, project)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Created project %s %s\n",
			renderPass("✓"), renderAccent(project.Name), renderMuted(project.ID))
		return nil
	},
}

func init() {
	projectsAddCmd.Flags().String("name", "", "Project name")

	projectsCmd.AddCommand(projectsListCmd, projectsAddCmd)
	rootCmd.AddCommand(projectsCmd)
}
