package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/labportal/internal/client/api"
	"github.com/iudanet/labportal/internal/client/auth"
	"github.com/iudanet/labportal/internal/validation"
)

func (c *Cli) runRegister(ctx context.Context, args []string) error {
	fs := c.newFlagSet("register")
	var in auth.RegisterInput
	fs.StringVar(&in.FirstName, "first-name", "", "First name")
	fs.StringVar(&in.LastName, "last-name", "", "Last name")
	fs.StringVar(&in.Email, "email", "", "Account email")
	fs.StringVar(&in.Status, "status", "student", "Member status (student, researcher, professor)")
	var passwords Passwords
	bindPasswordFlags(fs, &passwords)
	if err := fs.Parse(args); err != nil {
		return err
	}

	c.io.Println("=== Registration ===")
	c.io.Println()

	for _, p := range []struct {
		value  *string
		prompt string
	}{
		{&in.FirstName, "First name: "},
		{&in.LastName, "Last name: "},
		{&in.Email, "Email: "},
	} {
		if err := c.promptIfEmpty(p.value, p.prompt); err != nil {
			return err
		}
	}

	if err := c.readNewPassword(passwords, &in.Password, &in.PasswordConfirmation); err != nil {
		return err
	}

	c.io.Println("Registering...")
	msg, err := c.app.Flows.Register(ctx, in)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	c.io.Println()
	c.io.Println("✓ " + withDefault(msg, "Registration successful!"))
	c.io.Println("Please run 'labctl login' to sign in.")
	return nil
}

func (c *Cli) runForgotPassword(ctx context.Context, args []string) error {
	fs := c.newFlagSet("forgot-password")
	email := fs.String("email", "", "Account email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := c.promptIfEmpty(email, "Email: "); err != nil {
		return err
	}

	msg, err := c.app.Flows.ForgotPassword(ctx, *email)
	if err != nil {
		return fmt.Errorf("password reset request failed: %w", err)
	}

	c.io.Println("✓ " + withDefault(msg, "Password reset link sent."))
	return nil
}

func (c *Cli) runResetPassword(ctx context.Context, args []string) error {
	fs := c.newFlagSet("reset-password")
	var in auth.ResetPasswordInput
	fs.StringVar(&in.Email, "email", "", "Account email")
	fs.StringVar(&in.Token, "token", "", "Reset token from the email")
	var passwords Passwords
	bindPasswordFlags(fs, &passwords)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := c.promptIfEmpty(&in.Email, "Email: "); err != nil {
		return err
	}
	if err := c.promptIfEmpty(&in.Token, "Reset token: "); err != nil {
		return err
	}
	if err := c.readNewPassword(passwords, &in.Password, &in.PasswordConfirmation); err != nil {
		return err
	}

	msg, err := c.app.Flows.ResetPassword(ctx, in)
	if err != nil {
		return fmt.Errorf("password reset failed: %w", err)
	}

	c.io.Println("✓ " + withDefault(msg, "Your password has been reset."))
	return nil
}

// readNewPassword запрашивает пароль и подтверждение.
// Пароль из env/файла/флага используется и как подтверждение.
func (c *Cli) readNewPassword(passwords Passwords, password, confirmation *string) error {
	pw, err := c.getPassword(passwords, "Password: ")
	if err != nil {
		return err
	}
	*password = pw

	if c.getenv(PasswordEnv) != "" || passwords.FromFile != "" || passwords.FromArgs != "" {
		*confirmation = pw
		return nil
	}

	confirm, err := c.io.ReadPassword("Confirm password: ")
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	// расхождение видно до запроса к серверу
	if err := validation.ValidatePasswordConfirmation(pw, confirm); err != nil {
		return err
	}
	*confirmation = confirm
	return nil
}

func errorMessage(err error) string {
	return api.Message(err)
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
