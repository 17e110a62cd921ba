package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/iudanet/labportal/internal/client/api"
	"github.com/iudanet/labportal/internal/client/app"
	"github.com/iudanet/labportal/internal/client/iocli"
)

// PasswordEnv переменная окружения с паролем (для автоматизации)
const PasswordEnv = "LABPORTAL_PASSWORD"

// Passwords источники пароля из флагов
type Passwords struct {
	FromFile string
	FromArgs string
}

type Cli struct {
	app    *app.App
	io     iocli.IO
	getenv func(string) string
}

func New(a *app.App, io iocli.IO) *Cli {
	return &Cli{
		app:    a,
		io:     io,
		getenv: os.Getenv,
	}
}

// LoginNotice - реакция CLI на 401 при явном действии: точка входа
// для терминала - команда login
func LoginNotice(io iocli.IO) api.LoginRedirector {
	return api.RedirectFunc(func(ctx context.Context) {
		io.Println("Session expired. Run 'labctl login' to sign in again.")
	})
}

// Run выполняет команду
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return c.runLogin(ctx, args)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "whoami":
		return c.runWhoami(ctx, args)
	case "register":
		return c.runRegister(ctx, args)
	case "forgot-password":
		return c.runForgotPassword(ctx, args)
	case "reset-password":
		return c.runResetPassword(ctx, args)
	case "get":
		return c.runGet(ctx, args)
	case "post":
		return c.runPost(ctx, args)
	case "help":
		PrintUsage(c.io)
		return nil
	default:
		PrintUsage(c.io)
		return fmt.Errorf("unknown command: %s", command)
	}
}

// getPassword retrieves password from various sources with priority:
// 1. Environment variable LABPORTAL_PASSWORD
// 2. File specified in --password-file
// 3. Command-line parameter --password
// 4. Interactive prompt (fallback)
func (c *Cli) getPassword(passwords Passwords, prompt string) (string, error) {
	if envPassword := c.getenv(PasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	if passwords.FromFile != "" {
		content, err := os.ReadFile(passwords.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", fmt.Errorf("password file is empty")
		}
		return password, nil
	}

	if passwords.FromArgs != "" {
		return passwords.FromArgs, nil
	}

	password, err := c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

// promptIfEmpty запрашивает значение, если оно не передано флагом
func (c *Cli) promptIfEmpty(value *string, prompt string) error {
	if *value != "" {
		return nil
	}
	input, err := c.io.ReadInput(prompt)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	*value = input
	return nil
}

func (c *Cli) newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.io)
	return fs
}

func bindPasswordFlags(fs *pflag.FlagSet, p *Passwords) {
	fs.StringVar(&p.FromFile, "password-file", "", "Path to file containing the password")
	fs.StringVar(&p.FromArgs, "password", "", "Password (not recommended, use env var or file)")
}

func PrintUsage(io iocli.IO) {
	io.Println("Lab Portal Client")
	io.Println()
	io.Println("Usage:")
	io.Println("  labctl [OPTIONS] COMMAND [ARGS]")
	io.Println()
	io.Println("Options:")
	io.Println("  --version                Show version information")
	io.Println("  --config PATH            YAML config file (env LABPORTAL_CONFIG)")
	io.Println("  --server URL             Portal API base URL (default: http://localhost:8000)")
	io.Println("  --session-db PATH        Local session database (default: ~/.labctl/session.db)")
	io.Println("  --timeout DURATION       Per-request timeout (default: 30s)")
	io.Println("  --log-level LEVEL        debug, info, warn, error")
	io.Println()
	io.Println("Commands:")
	io.Println("  login                    Sign in (--email, --password-file)")
	io.Println("  logout                   Sign out and clear the local session")
	io.Println("  status                   Verify the session with the server")
	io.Println("  whoami [--role ROLE]     Show the current user, optionally requiring a role")
	io.Println("  register                 Create an account")
	io.Println("  forgot-password          Request a password reset link")
	io.Println("  reset-password           Set a new password with a reset token")
	io.Println("  get PATH                 Fetch a protected resource")
	io.Println("  post PATH                Send data or files to a protected resource")
	io.Println()
	io.Println("Password Priority (highest to lowest):")
	io.Println("  1. " + PasswordEnv + " environment variable")
	io.Println("  2. --password-file (file path)")
	io.Println("  3. --password (command line)")
	io.Println("  4. Interactive prompt (fallback)")
	io.Println()
	io.Println("Examples:")
	io.Println("  labctl login --email ada@lab.example.org")
	io.Println("  labctl whoami --role admin")
	io.Println("  labctl get /api/admin/ping")
	io.Println("  labctl post /api/publications --field title=Report --file attachment=report.pdf")
	io.Println("  labctl --server https://lab.example.org status")
}
