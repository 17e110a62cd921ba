package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/iudanet/labportal/internal/client/auth"
	"github.com/iudanet/labportal/internal/client/guard"
	"github.com/iudanet/labportal/internal/models"
)

func (c *Cli) runLogin(ctx context.Context, args []string) error {
	fs := c.newFlagSet("login")
	email := fs.String("email", "", "Account email")
	var passwords Passwords
	bindPasswordFlags(fs, &passwords)
	if err := fs.Parse(args); err != nil {
		return err
	}

	c.io.Println("=== Login ===")
	c.io.Println()

	if err := c.promptIfEmpty(email, "Email: "); err != nil {
		return err
	}
	password, err := c.getPassword(passwords, "Password: ")
	if err != nil {
		return err
	}

	c.io.Println("Authenticating...")

	user, err := c.app.Session.Login(ctx, auth.Credentials{Email: *email, Password: password})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.printUser(user)
	if target := c.app.Session.RedirectURL(); target != "" {
		c.io.Printf("Landing page: %s\n", target)
	}
	return nil
}

func (c *Cli) runLogout(ctx context.Context) error {
	c.io.Println("=== Logout ===")

	if err := c.app.Session.Logout(ctx); err != nil {
		// локальная сессия очищена в любом случае
		c.io.Println("Your local session has been deleted.")
		return fmt.Errorf("logout request failed: %w", err)
	}

	c.io.Println("✓ Logout successful!")
	c.io.Println("Your local session has been deleted.")
	return nil
}

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Authentication Status ===")
	c.io.Println()

	d, err := c.await(ctx, "", "/")
	if err != nil {
		return err
	}

	switch d.Kind {
	case guard.Render:
		c.io.Println("Status: Authenticated")
		c.printUser(d.User)
	default:
		c.io.Println("Status: Not authenticated")
		if d.Err != nil {
			c.io.Printf("Last error: %s\n", errorMessage(d.Err))
		}
		c.io.Println()
		c.io.Println("Run 'labctl login' to authenticate.")
	}
	return nil
}

func (c *Cli) runWhoami(ctx context.Context, args []string) error {
	fs := c.newFlagSet("whoami")
	role := fs.String("role", "", "Require this role")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := c.await(ctx, *role, "/whoami")
	if err != nil {
		return err
	}
	if err := decisionError(d, *role); err != nil {
		return err
	}

	c.printUser(d.User)
	return nil
}

// await проверяет доступ так же, как guard защищенной страницы
func (c *Cli) await(ctx context.Context, role, location string) (guard.Decision, error) {
	in := c.app.Guard(role).Mount(ctx)
	defer in.Unmount()

	d, err := in.Await(ctx, location)
	if err != nil {
		return d, fmt.Errorf("session check did not finish: %w", err)
	}
	return d, nil
}

// decisionError переводит решение guard в ошибку команды
func decisionError(d guard.Decision, role string) error {
	switch d.Kind {
	case guard.Render:
		return nil
	case guard.Forbidden:
		return fmt.Errorf("access denied: role %q required", role)
	default:
		msg := "not authenticated. Run 'labctl login' first"
		if d.Err != nil {
			msg += " (" + errorMessage(d.Err) + ")"
		}
		if d.Target != "" {
			msg += "; login entry: " + d.Target
		}
		return fmt.Errorf("%s", msg)
	}
}

func (c *Cli) printUser(user *models.User) {
	if user == nil {
		return
	}
	roles := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, r.Name)
	}

	c.io.Printf("User ID: %d\n", user.ID)
	c.io.Printf("Name: %s\n", user.Name)
	c.io.Printf("Email: %s\n", user.Email)
	if len(roles) > 0 {
		c.io.Printf("Roles: %s\n", strings.Join(roles, ", "))
	}
	if user.EmailVerifiedAt == nil {
		c.io.Println("⚠️  Email not verified")
	}
	if user.IsBlocked {
		c.io.Println("⚠️  Account is blocked")
	}
}
