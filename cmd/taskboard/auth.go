package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/taskboard/internal/remote"
	"github.com/mschirtzinger/taskboard/internal/schema"
	"github.com/mschirtzinger/taskboard/internal/sync"
)

// passwordEnv supplies the password for non-interactive sign-in.
const passwordEnv = "TASKBOARD_PASSWORD"

var signupCmd = &cobra.Command{
	Use:     "signup",
	GroupID: "session",
	Short:   "Create an account and log in",
	Long: `Create an account and log in.

Email and password are taken from --email and --password (or the
TASKBOARD_PASSWORD environment variable). Missing values are asked for
interactively when running in a terminal.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd, "Sign up", func(a *app, creds schema.Credentials) error {
			return a.gate.SignUp(cmd.Context(), creds)
		})
	},
}

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "session",
	Short:   "Log in with email and password",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return authenticate(cmd, "Log in", func(a *app, creds schema.Credentials) error {
			return a.gate.SignIn(cmd.Context(), creds)
		})
	},
}

func authenticate(cmd *cobra.Command, title string, submit func(*app, schema.Credentials) error) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	creds := schema.Credentials{Email: trimmed(email), Password: password}

	if creds.Email == "" || creds.Password == "" {
		if !interactive() {
			return errors.New("--email and --password (or " + passwordEnv + ") are required when not running in a terminal")
		}
		var err error
		if creds.Email != "" {
			creds.Password, err = readPassword()
		} else {
			err = credentialsForm(title, &creds)
		}
		if cancelled(err) {
			fmt.Fprintln(cmd.ErrOrStderr(), renderMuted("Cancelled"))
			return nil
		}
		if err != nil {
			return err
		}
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := submit(a, creds); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", renderPass("✓"), sessionLine(a.gate.Current()))
	return nil
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "session",
	Short:   "Log out and forget the stored session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.gate.Current().Active() {
			fmt.Fprintln(cmd.OutOrStdout(), sessionLine(a.gate.Current()))
			return nil
		}
		if err := a.gate.SignOut(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Logged out\n", renderPass("✓"))
		return nil
	},
}

// whoami is the structured form of the session state.
type whoami struct {
	Status    string     `json:"status" yaml:"status"`
	UserID    string     `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Email     string     `json:"email,omitempty" yaml:"email,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Backend   string     `json:"backend" yaml:"backend"`
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "session",
	Short:   "Show the logged-in user",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		state := a.gate.Current()
		info := whoami{Status: state.Status.String(), Backend: a.backend()}
		if state.Status == sync.SessionSignedIn {
			info.UserID = state.Session.UserID
			info.Email = state.Session.Email
			if !state.Session.ExpiresAt.IsZero() {
				expires := state.Session.ExpiresAt
				info.ExpiresAt = &expires
			}
		}

		if structured() {
			return writeOutput(cmd.OutOrStdout(), outputFormat, info)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, sessionLine(state))
		if info.ExpiresAt != nil {
			fmt.Fprintf(w, "   Expires: %s\n", info.ExpiresAt.Local().Format(time.RFC1123))
		}
		fmt.Fprintf(w, "   Backend: %s\n", info.Backend)
		return nil
	},
}

// backend describes where data is read from.
func (a *app) backend() string {
	if hc, ok := a.client.(*remote.HTTPClient); ok {
		return hc.URL()
	}
	return a.cfg.Store.Path
}

func init() {
	for _, cmd := range []*cobra.Command{signupCmd, loginCmd} {
		cmd.Flags().String("email", "", "Account email")
		cmd.Flags().String("password", "", "Account password (prefer "+passwordEnv+")")
	}

	rootCmd.AddCommand(signupCmd, loginCmd, logoutCmd, whoamiCmd)
}
