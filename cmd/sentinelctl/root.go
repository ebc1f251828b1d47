package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FilipeAphrody/sentinel-identity/internal/app"
	"github.com/FilipeAphrody/sentinel-identity/internal/config"
	"github.com/FilipeAphrody/sentinel-identity/internal/domain"
	"github.com/FilipeAphrody/sentinel-identity/internal/logging"
	"github.com/FilipeAphrody/sentinel-identity/pkg/security"
)

type openFunc func(ctx context.Context, configPath string) (*app.App, error)

type cli struct {
	stdout     io.Writer
	configPath string
	actor      string
	open       openFunc
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	return newCLI(stdout, openApp).rootCmd()
}

func newCLI(stdout io.Writer, open openFunc) *cli {
	return &cli{stdout: stdout, open: open}
}

// openApp loads configuration the same way the API server does.
func openApp(ctx context.Context, configPath string) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sentinelctl",
		Short:         "Operator tooling for Sentinel Identity",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stdout)
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("SENTINEL_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().StringVar(&c.actor, "actor", "sentinelctl", "email recorded as the actor in audit entries")

	root.AddCommand(c.accountCmd())
	root.AddCommand(c.sessionsCmd())
	root.AddCommand(c.auditCmd())
	root.AddCommand(c.hashPasswordCmd())
	return root
}

// withApp runs fn against a freshly opened core and closes it afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	a, err := c.open(ctx, c.configPath)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck
	return fn(ctx, a)
}

func (c *cli) accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Provision and lock or unlock accounts",
		Long: `Provision and lock or unlock accounts.

Examples:
  sentinelctl account create --email admin@example.com --role ADMIN --password 'Str0ng!pass'
  sentinelctl account unlock jane@example.com
  sentinelctl account lock 3f0c9a4e-6f43-4c1a-9a55-0d3b1f3f8a11`,
	}

	var email, password, role string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a local account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				account, err := a.CreateAccount(ctx, email, password, domain.Role(strings.ToUpper(role)))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "created account %s (%s, %s)\n", account.ID, account.Email, account.Role)
				return nil
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "account email")
	create.Flags().StringVar(&password, "password", "", "initial password")
	create.Flags().StringVar(&role, "role", string(domain.RoleEmployee), "SUPER_ADMIN, ADMIN, HR or EMPLOYEE")

	unlock := &cobra.Command{
		Use:   "unlock EMAIL",
		Short: "Clear the lock and failure counter of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Auth.UnlockAccount(ctx, c.actor, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "unlocked %s\n", args[0])
				return nil
			})
		},
	}

	lock := &cobra.Command{
		Use:   "lock ACCOUNT_ID",
		Short: "Lock an account and end its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Auth.LockAccountByID(ctx, c.actor, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "locked %s\n", args[0])
				return nil
			})
		},
	}

	disable2FA := &cobra.Command{
		Use:   "disable-2fa ACCOUNT_ID",
		Short: "Turn off two-factor authentication without a code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.TwoFactor.AdminDisable(ctx, c.actor, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "two-factor disabled for %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, unlock, lock, disable2FA)
	return cmd
}

func (c *cli) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and end login sessions",
	}

	var all bool
	list := &cobra.Command{
		Use:     "list EMAIL",
		Short:   "List the sessions of an account, newest first",
		Aliases: []string{"ls"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var (
					sessions []domain.Session
					err      error
				)
				if all {
					sessions, err = a.Sessions.ListAll(ctx, args[0])
				} else {
					sessions, err = a.Sessions.ListActive(ctx, args[0])
				}
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(c.stdout, "No sessions.")
					return nil
				}
				fmt.Fprintf(c.stdout, "%-36s %-16s %-8s %-20s %s\n", "SESSION", "IP", "DEVICE", "LOGIN", "ACTIVE")
				for _, s := range sessions {
					fmt.Fprintf(c.stdout, "%-36s %-16s %-8s %-20s %t\n",
						s.ID, s.ClientIP, s.Device, s.LoginTime.UTC().Format(time.RFC3339), s.Active)
				}
				return nil
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include ended sessions")

	terminateAll := &cobra.Command{
		Use:   "terminate-all EMAIL",
		Short: "End every active session of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Sessions.TerminateAll(ctx, c.actor, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "ended %d session(s) of %s\n", n, args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, terminateAll)
	return cmd
}

func (c *cli) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the security audit trail",
	}

	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show the newest audit entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				entries, err := a.Audit.Recent(ctx, limit)
				if err != nil {
					return err
				}
				c.printAudit(entries)
				return nil
			})
		},
	}
	recent.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")

	actor := &cobra.Command{
		Use:   "actor EMAIL",
		Short: "Show the audit entries recorded for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) error {
				entries, err := a.Audit.ByActor(ctx, args[0])
				if err != nil {
					return err
				}
				c.printAudit(entries)
				return nil
			})
		},
	}

	cmd.AddCommand(recent, actor)
	return cmd
}

func (c *cli) printAudit(entries []domain.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(c.stdout, "No audit entries.")
		return
	}
	fmt.Fprintf(c.stdout, "%-20s %-24s %-18s %-8s %-16s %s\n", "TIME", "ACTOR", "ACTION", "STATUS", "IP", "ERROR")
	for _, e := range entries {
		fmt.Fprintf(c.stdout, "%-20s %-24s %-18s %-8s %-16s %s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.ActorEmail, e.Action, e.Status, e.ClientIP, e.ErrorMessage)
	}
}

func (c *cli) hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print the argon2id hash of a password",
		Long:  "Print the argon2id hash of a password, for seeding accounts directly in the database.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := security.ValidatePassword(args[0]); err != nil {
				return err
			}
			hash, err := security.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, hash)
			return nil
		},
	}
}
