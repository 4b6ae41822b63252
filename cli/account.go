package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskflow/domain"
)

// readSecret returns flagVal or, when empty, the first line of stdin.
func (a *app) readSecret(prompt, flagVal string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	fmt.Fprint(a.errOut, prompt)
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(prompt), ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			pw, err := a.readSecret("Password: ", password)
			if err != nil {
				return err
			}
			u, err := a.auth.Login(cmd.Context(), username, pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s (%s)\n", u.DisplayName(), u.Role)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin when omitted)")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var form domain.Registration
	var role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if form.Username == "" || form.Email == "" {
				return errors.New("--username and --email are required")
			}
			if role != "" {
				r, err := domain.ParseRole(role)
				if err != nil {
					return err
				}
				form.Role = r
			}
			pw, err := a.readSecret("Password: ", form.Password)
			if err != nil {
				return err
			}
			form.Password = pw
			u, err := a.auth.Register(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Welcome, %s! You are registered as %s.\n", u.DisplayName(), u.Role)
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVarP(&form.Username, "username", "u", "", "username")
	f.StringVar(&form.Email, "email", "", "email address")
	f.StringVarP(&form.Password, "password", "p", "", "password (read from stdin when omitted)")
	f.StringVar(&form.FirstName, "first-name", "", "first name")
	f.StringVar(&form.LastName, "last-name", "", "last name")
	f.StringVar(&role, "role", "", "employee or scrum_master (default employee)")
	f.StringVar(&form.JobTitle, "job-title", "", "job title")
	f.StringVar(&form.Department, "department", "", "department")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if err := a.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		}),
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			u, err := a.currentUser(cmd.Context())
			if err != nil {
				return err
			}
			return a.printUser(u)
		}),
	}
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your profile",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			u, err := a.currentUser(cmd.Context())
			if err != nil {
				return err
			}
			return a.printUser(u)
		}),
	}

	fields := map[string]**string{}
	var upd domain.ProfileUpdate
	update := &cobra.Command{
		Use:   "update",
		Short: "Change profile fields",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			changed := 0
			for name, dst := range fields {
				if cmd.Flags().Changed(name) {
					v, _ := cmd.Flags().GetString(name)
					*dst = &v
					changed++
				}
			}
			if changed == 0 {
				return errors.New("nothing to update")
			}
			if _, err := a.currentUser(cmd.Context()); err != nil {
				return err
			}
			u, err := a.auth.UpdateProfile(cmd.Context(), upd)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Profile updated")
			return a.printUser(u)
		}),
	}
	for name, dst := range map[string]**string{
		"first-name": &upd.FirstName,
		"last-name":  &upd.LastName,
		"email":      &upd.Email,
		"bio":        &upd.Bio,
		"job-title":  &upd.JobTitle,
		"department": &upd.Department,
		"phone":      &upd.Phone,
		"theme":      &upd.ThemePreference,
	} {
		fields[name] = dst
		update.Flags().String(name, "", strings.ReplaceAll(name, "-", " "))
	}
	cmd.AddCommand(update)
	return cmd
}

func newPasswordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change or reset your password",
	}

	var current, next string
	change := &cobra.Command{
		Use:   "change",
		Short: "Change the password of the logged in user",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if current == "" || next == "" {
				return errors.New("--current and --new are required")
			}
			if err := a.auth.ChangePassword(cmd.Context(), current, next); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Password changed")
			return nil
		}),
	}
	change.Flags().StringVar(&current, "current", "", "current password")
	change.Flags().StringVar(&next, "new", "", "new password")

	var email string
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Request a password reset email",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			if err := a.client.Auth.RequestPasswordReset(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "If the address is registered a reset link is on its way")
			return nil
		}),
	}
	reset.Flags().StringVar(&email, "email", "", "account email")

	var token, newPassword string
	confirm := &cobra.Command{
		Use:   "reset-confirm",
		Short: "Set a new password with a reset token",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if token == "" || newPassword == "" {
				return errors.New("--token and --new are required")
			}
			err := a.client.Auth.ConfirmPasswordReset(cmd.Context(), domain.PasswordResetConfirm{
				Token:           token,
				NewPassword:     newPassword,
				ConfirmPassword: newPassword,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Password reset, you can log in now")
			return nil
		}),
	}
	confirm.Flags().StringVar(&token, "token", "", "reset token from the email")
	confirm.Flags().StringVar(&newPassword, "new", "", "new password")

	cmd.AddCommand(change, reset, confirm)
	return cmd
}
