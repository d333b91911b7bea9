package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskboard/internal/schema"
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	GroupID: "data",
	Short:   "List, create, edit and delete tasks",
}

var tasksListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your tasks with their project names",
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

		tasks, err := a.queries.Tasks(cmd.Context())
		if err != nil {
			return err
		}
		projects, err := a.queries.Projects(cmd.Context())
		if err != nil {
			return err
		}

		rows := joinTasks(tasks, projects)
		if structured() {
			return writeOutput(cmd.OutOrStdout(), outputFormat, rows)
		}
		renderTasks(cmd.OutOrStdout(), rows)
		return nil
	},
}

var tasksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a task",
	Long: `Create a task in one of your projects.

--project accepts a project id or name. Without --name the task form is
shown when running in a terminal.`,
	Args: cobra.NoArgs,
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

		var in schema.TaskInput
		if err := applyTaskFlags(cmd, &in, projects); err != nil {
			return err
		}

		if !cmd.Flags().Changed("name") {
			if !interactive() {
				return errors.New("--name and --project are required when not running in a terminal")
			}
			if len(projects) == 0 {
				return errors.New("create a project first with 'taskboard projects add'")
			}
			if err := taskForm("New task", &in, projects); err != nil {
				if cancelled(err) {
					fmt.Fprintln(cmd.ErrOrStderr(), renderMuted("Cancelled"))
					return nil
				}
				return err
			}
		}

		task, err := a.mutations.CreateTask(cmd.Context(), in, nil)
		if err != nil {
			return err
		}

		if structured() {
			return writeOutput(cmd.OutOrStdout(), outputFormat, task)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Created task %s %s\n",
			renderPass("✓"), renderAccent(task.Name), renderMuted(task.ID))
		return nil
	},
}

var tasksEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a task's name, description or project",
	Long: `Edit a task. <id> may be a unique id prefix.

Flags change only the fields they name. Without flags the task form is shown
pre-filled with the current values; cancelling it changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireSession(); err != nil {
			return err
		}

		tasks, err := a.queries.Tasks(cmd.Context())
		if err != nil {
			return err
		}
		task, err := findTask(tasks, args[0])
		if err != nil {
			return err
		}
		projects, err := a.queries.Projects(cmd.Context())
		if err != nil {
			return err
		}

		in := task.Input()
		if taskFlagsChanged(cmd) {
			if err := applyTaskFlags(cmd, &in, projects); err != nil {
				return err
			}
		} else {
			if !interactive() {
				return errors.New("pass --name, --description or --project when not running in a terminal")
			}
			if err := taskForm("Edit task", &in, projects); err != nil {
				if cancelled(err) {
					fmt.Fprintln(cmd.ErrOrStderr(), renderMuted("Cancelled"))
					return nil
				}
				return err
			}
		}

		if in == task.Input() {
			fmt.Fprintln(cmd.OutOrStdout(), renderMuted("No changes"))
			return nil
		}

		if err := a.mutations.UpdateTask(cmd.Context(), task.ID, in, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Updated task %s\n", renderPass("✓"), renderAccent(in.Name))
		return nil
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.requireSession(); err != nil {
			return err
		}

		tasks, err := a.queries.Tasks(cmd.Context())
		if err != nil {
			return err
		}
		task, err := findTask(tasks, args[0])
		if err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !interactive() {
				return errors.New("--yes is required when not running in a terminal")
			}
			ok, err := confirm(fmt.Sprintf("Delete task %q?", task.Name))
			if err != nil && !cancelled(err) {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), renderMuted("Cancelled"))
				return nil
			}
		}

		if err := a.mutations.DeleteTask(cmd.Context(), task.ID, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted task %s\n", renderPass("✓"), renderAccent(task.Name))
		return nil
	},
}

func taskFlagsChanged(cmd *cobra.Command) bool {
	flags := cmd.Flags()
	return flags.Changed("name") || flags.Changed("description") || flags.Changed("project")
}

// applyTaskFlags copies the task flags that were set into in.
func applyTaskFlags(cmd *cobra.Command, in *schema.TaskInput, projects []schema.Project) error {
	flags := cmd.Flags()
	if flags.Changed("name") {
		name, _ := flags.GetString("name")
		in.Name = trimmed(name)
	}
	if flags.Changed("description") {
		in.Description, _ = flags.GetString("description")
	}
	if flags.Changed("project") {
		ref, _ := flags.GetString("project")
		// An empty ref is left for validation to report.
		in.ProjectID = ""
		if ref = trimmed(ref); ref != "" {
			project, err := resolveProject(projects, ref)
			if err != nil {
				return err
			}
			in.ProjectID = project.ID
		}
	}
	return nil
}

func init() {
	for _, cmd := range []*cobra.Command{tasksAddCmd, tasksEditCmd} {
		cmd.Flags().String("name", "", "Task name")
		cmd.Flags().String("description", "", "Task description")
		cmd.Flags().String("project", "", "Project id or name")
	}
	tasksDeleteCmd.Flags().BoolP("yes", "y", false, "Delete without asking")

	tasksCmd.AddCommand(tasksListCmd, tasksAddCmd, tasksEditCmd, tasksDeleteCmd)
	rootCmd.AddCommand(tasksCmd)
}
