package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rental-admin/deployments"
	"rental-admin/internal/apiserver/auth"
	"rental-admin/internal/config"
	"rental-admin/internal/shared/eventbus"
	"rental-admin/internal/shared/infra"
	"rental-admin/internal/shared/model"
	"rental-admin/internal/shared/storage"
)

// opener 打开基础设施，测试中替换为内存实现
type opener func(ctx context.Context, configDir string) (*infra.Infrastructure, *config.Config, error)

type cli struct {
	open      opener
	configDir string
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}
	root := &cobra.Command{
		Use:           "rentalctl",
		Short:         "Rental admin maintenance tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configDir, "config", "", "directory containing {env}.yaml")

	userCmd := &cobra.Command{Use: "user", Short: "Manage user accounts"}
	userCmd.AddCommand(c.statusCmd(), c.resetPasswordCmd())

	root.AddCommand(c.seedAdminCmd(), userCmd, c.statsCmd(), composeCmd())
	return root
}

// withInfra 打开基础设施执行 fn 后关闭
func (c *cli) withInfra(cmd *cobra.Command, fn func(ctx context.Context, inf *infra.Infrastructure, cfg *config.Config) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	inf, cfg, err := c.open(ctx, c.configDir)
	if err != nil {
		return err
	}
	defer inf.Close()
	return fn(ctx, inf, cfg)
}

func (c *cli) seedAdminCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create a superadmin account (defaults to ADMIN_EMAIL / ADMIN_PASSWORD)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withInfra(cmd, func(ctx context.Context, inf *infra.Infrastructure, cfg *config.Config) error {
				if email == "" {
					email = cfg.Auth.AdminEmail
				}
				if password == "" {
					password = cfg.Auth.AdminPassword
				}
				if email == "" || password == "" {
					return errors.New("email and password are required")
				}
				user, created, err := auth.SeedAdmin(ctx, inf.Storage, email, password, cfg.Auth.BcryptCost)
				if err != nil {
					return err
				}
				if !created {
					fmt.Fprintf(cmd.OutOrStdout(), "User %s already exists (%s)\n", user.Email, user.ID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created superadmin %s (%s)\n", user.Email, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <email> <pending|approved|blocked|declined|hold>",
		Short: "Change an account status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := model.UserStatus(args[1])
			if !model.ValidUserStatus(status) {
				return fmt.Errorf("invalid status %q", args[1])
			}
			return c.withInfra(cmd, func(ctx context.Context, inf *infra.Infrastructure, cfg *config.Config) error {
				user, err := findUser(ctx, inf.Storage, args[0])
				if err != nil {
					return err
				}
				if err := inf.Storage.UpdateUserStatus(ctx, user.ID, status); err != nil {
					return fmt.Errorf("update status: %w", err)
				}
				if status == model.UserStatusBlocked || status == model.UserStatusDeclined {
					if err := inf.Sessions.DeleteUserSessions(ctx, user.ID); err != nil {
						return fmt.Errorf("revoke sessions: %w", err)
					}
				}
				eventbus.Emit(ctx, inf.Events, &eventbus.Event{
					Type:     eventbus.EventUserStatusChanged,
					Audience: []string{user.ID},
					Data:     map[string]any{"userId": user.ID, "status": status},
				})
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", user.Email, user.Status, status)
				return nil
			})
		},
	}
}

func (c *cli) resetPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Set a new password and revoke existing sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(password) < model.MinPasswordLength {
				return fmt.Errorf("password must be at least %d characters", model.MinPasswordLength)
			}
			return c.withInfra(cmd, func(ctx context.Context, inf *infra.Infrastructure, cfg *config.Config) error {
				user, err := findUser(ctx, inf.Storage, args[0])
				if err != nil {
					return err
				}
				hash, err := auth.HashPassword(password, cfg.Auth.BcryptCost)
				if err != nil {
					return err
				}
				if err := inf.Storage.UpdateUserPassword(ctx, user.ID, hash, time.Now().UTC()); err != nil {
					return fmt.Errorf("update password: %w", err)
				}
				if err := inf.Sessions.DeleteUserSessions(ctx, user.ID); err != nil {
					return fmt.Errorf("revoke sessions: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Password reset for %s\n", user.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print listing and application counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withInfra(cmd, func(ctx context.Context, inf *infra.Infrastructure, cfg *config.Config) error {
				users, err := inf.Storage.CountUsers(ctx)
				if err != nil {
					return err
				}
				apts, err := inf.Storage.ApartmentStats(ctx)
				if err != nil {
					return err
				}
				apps, err := inf.Storage.ApplicationStats(ctx, time.Now().AddDate(0, -6, 0))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "users:        %d\n", users)
				fmt.Fprintf(out, "apartments:   %d (available %d, rented %d)\n", apts.Total, apts.Available, apts.Rented)
				fmt.Fprintf(out, "applications: %d (pending %d, approved %d, rejected %d)\n",
					apps.Total, apps.ByStatus[string(model.ApplicationPending)], apps.ByStatus[string(model.ApplicationApproved)], apps.ByStatus[string(model.ApplicationRejected)])
				return nil
			})
		},
	}
}

// composeCmd 输出本地依赖的 docker-compose 模板
func composeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compose",
		Short: "Print a docker-compose file for MongoDB, PostgreSQL, Redis and MinIO",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), deployments.DockerCompose)
			return err
		},
	}
}

func findUser(ctx context.Context, users storage.UserStore, email string) (*model.User, error) {
	user, err := users.GetUserByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", email)
	}
	return user, nil
}
