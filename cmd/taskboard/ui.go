package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/schema"
	"github.com/mschirtzinger/taskboard/internal/sync"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD787")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func renderPass(s string) string   { return passStyle.Render(s) }
func renderFail(s string) string   { return failStyle.Render(s) }
func renderWarn(s string) string   { return warnStyle.Render(s) }
func renderAccent(s string) string { return accentStyle.Render(s) }
func renderMuted(s string) string  { return mutedStyle.Render(s) }

// initColor drops colors when NO_COLOR is set or stdout is not a terminal.
func initColor() {
	if termenv.EnvNoColor() || !isTerminal(os.Stdout) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// interactive reports whether forms can be shown.
func interactive() bool {
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

func checkFormat(format string) error {
	switch format {
	case "", "text", "yaml", "json":
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, yaml or json)", format)
	}
}

// structured reports whether output should be machine readable.
func structured() bool {
	return outputFormat == "yaml" || outputFormat == "json"
}

// writeOutput encodes v as YAML or JSON.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// rerunHint follows a failed read in one-shot commands.
const rerunHint = "run the command again to retry"

// describeError turns sync layer errors into the message shown to users.
func describeError(err error) string {
	return describeErrorHint(err, rerunHint)
}

// describeErrorHint is describeError with hint appended to read failures.
func describeErrorHint(err error, hint string) string {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		msgs := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			msgs = append(msgs, f.Message)
		}
		return strings.Join(msgs, "; ")
	}

	var aerr *remote.AuthError
	if errors.As(err, &aerr) {
		return aerr.Message
	}

	var rerr *sync.ReadError
	if errors.As(err, &rerr) {
		return fmt.Sprintf("failed to load %s: %v (%s)", rerr.Key, rerr.Err, hint)
	}

	return err.Error()
}

// sessionLine renders the gate state.
func sessionLine(state sync.SessionState) string {
	switch state.Status {
	case sync.SessionSignedIn:
		return fmt.Sprintf("Logged in as %s", renderAccent(state.Session.Email))
	case sync.SessionSignedOut:
		return renderWarn("Not logged in")
	default:
		return renderMuted("Loading session...")
	}
}

// taskRow is a task joined with its project's name.
type taskRow struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	ProjectID   string `json:"project_id" yaml:"project_id"`
	Project     string `json:"project" yaml:"project"`
	AssignedTo  string `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
	Completed   bool   `json:"completed" yaml:"completed"`
}

const unknownProject = "(unknown project)"

// joinTasks resolves each task's project name from projects.
func joinTasks(tasks []schema.Task, projects []schema.Project) []taskRow {
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}

	rows := make([]taskRow, len(tasks))
	for i, t := range tasks {
		name, ok := names[t.ProjectID]
		if !ok {
			name = unknownProject
		}
		rows[i] = taskRow{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			ProjectID:   t.ProjectID,
			Project:     name,
			AssignedTo:  t.AssignedTo,
			Completed:   t.Completed,
		}
	}
	return rows
}

func renderTasks(w io.Writer, rows []taskRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, renderMuted("No tasks yet. Add one with 'taskboard tasks add'."))
		return
	}

	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.Name))
	}
	nameStyle := lipgloss.NewStyle().Width(width + 2)

	for _, r := range rows {
		mark := renderMuted("○")
		if r.Completed {
			mark = renderPass("✓")
		}
		fmt.Fprintf(w, "%s %s%s  %s\n", mark, nameStyle.Render(r.Name), renderAccent(r.Project), renderMuted(r.ID))
		if r.Description != "" {
			fmt.Fprintf(w, "    %s\n", renderMuted(r.Description))
		}
	}
}

func renderProjects(w io.Writer, projects []schema.Project) {
	if len(projects) == 0 {
		fmt.Fprintln(w, renderMuted("No projects yet. Add one with 'taskboard projects add'."))
		return
	}

	width := 0
	for _, p := range projects {
		width = max(width, lipgloss.Width(p.Name))
	}
	nameStyle := lipgloss.NewStyle().Width(width + 2)

	for _, p := range projects {
		fmt.Fprintf(w, "%s%s\n", nameStyle.Render(p.Name), renderMuted(p.ID))
	}
}

// resolveProject finds a project by id or case-insensitive name.
func resolveProject(projects []schema.Project, ref string) (schema.Project, error) {
	for _, p := range projects {
		if p.ID == ref {
			return p, nil
		}
	}
	var matches []schema.Project
	for _, p := range projects {
		if strings.EqualFold(p.Name, ref) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return schema.Project{}, fmt.Errorf("no project matches %q", ref)
	default:
		return schema.Project{}, fmt.Errorf("project name %q is ambiguous; use its id", ref)
	}
}

// findTask finds a task by id or unique id prefix.
func findTask(tasks []schema.Task, ref string) (schema.Task, error) {
	if ref == "" {
		return schema.Task{}, errors.New(sync.MsgIDRequired)
	}
	var matches []schema.Task
	for _, t := range tasks {
		if t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return schema.Task{}, fmt.Errorf("no task matches %q", ref)
	default:
		return schema.Task{}, fmt.Errorf("task id prefix %q is ambiguous", ref)
	}
}
