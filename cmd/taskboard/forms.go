package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/mschirtzinger/taskboard/internal/schema"
)

// fieldMessage returns the validation message err holds for field, so a
// form input can show the same rule the coordinators enforce.
func fieldMessage(err error, field string) error {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		if msg := verr.Message(field); msg != "" {
			return errors.New(msg)
		}
	}
	return nil
}

func validEmail(s string) error {
	return fieldMessage(schema.Credentials{Email: s}.Validate(), "email")
}

func validPassword(s string) error {
	return fieldMessage(schema.Credentials{Password: s}.Validate(), "password")
}

func validProjectName(s string) error {
	return fieldMessage(schema.ProjectInput{Name: s}.Validate(), "name")
}

func validTaskName(s string) error {
	return fieldMessage(schema.TaskInput{Name: s}.Validate(), "name")
}

func validProjectRef(s string) error {
	return fieldMessage(schema.TaskInput{ProjectID: s}.Validate(), "project_id")
}

// credentialsForm asks for whichever of email and password is missing.
func credentialsForm(title string, creds *schema.Credentials) error {
	var fields []huh.Field
	if creds.Email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Value(&creds.Email).
			Validate(validEmail))
	}
	if creds.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&creds.Password).
			Validate(validPassword))
	}
	if len(fields) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(fields...).Title(title)).Run()
}

// readPassword prompts for a password without echo when only the password
// is missing and a full form is not wanted.
func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func projectForm(in *schema.ProjectInput) error {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Project name").
			Value(&in.Name).
			Validate(validProjectName),
	).Title("New project")).Run()
}

// taskForm edits in. Fields already set in in are shown pre-filled.
func taskForm(title string, in *schema.TaskInput, projects []schema.Project) error {
	options := make([]huh.Option[string], len(projects))
	for i, p := range projects {
		options[i] = huh.NewOption(p.Name, p.ID)
	}

	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Name").
			Value(&in.Name).
			Validate(validTaskName),
		huh.NewText().
			Title("Description").
			Value(&in.Description),
		huh.NewSelect[string]().
			Title("Project").
			Options(options...).
			Value(&in.ProjectID).
			Validate(validProjectRef),
	).Title(title)).Run()
}

func confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run()
	return ok, err
}

// cancelled reports whether err is the user aborting a form.
func cancelled(err error) bool {
	return errors.Is(err, huh.ErrUserAborted)
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
