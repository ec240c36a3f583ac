package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/bipstech/exam-portal/internal/database"
	"github.com/bipstech/exam-portal/internal/model"
	"github.com/bipstech/exam-portal/internal/repository"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const minPasswordLength = 8

func createAdminCmd(e *env) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a dashboard admin, or reset an existing admin's password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)

			// ─── Connect to PostgreSQL ─────────────────────────────────
			pool, err := database.NewPostgresPool(ctx, e.cfg, e.log)
			if err != nil {
				return fmt.Errorf("connect to PostgreSQL: %w", err)
			}
			defer pool.Close()

			// Password hashing does not touch Redis.
			adminService := service.NewAdminService(
				repository.NewAdminRepository(pool),
				service.NewAuthService(e.cfg, nil),
			)

			// ─── CLI Input ─────────────────────────────────────────────
			reader := bufio.NewReader(os.Stdin)

			if reset {
				fmt.Println("=== Reset Admin Password ===")
			} else {
				fmt.Println("=== Create New Admin User ===")
			}

			username := prompt(reader, "Enter Username: ")
			if username == "" {
				return errors.New("username is required")
			}

			password, err := readPassword("Enter Password: ")
			if err != nil {
				return err
			}
			if len(password) < minPasswordLength {
				return fmt.Errorf("password must be at least %d characters", minPasswordLength)
			}
			confirm, err := readPassword("Confirm Password: ")
			if err != nil {
				return err
			}
			if confirm != password {
				return errors.New("passwords do not match")
			}

			if reset {
				if err := adminService.ResetPassword(ctx, username, password); err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						return fmt.Errorf("admin %q not found", username)
					}
					return fmt.Errorf("reset password: %w", err)
				}
				fmt.Printf("\nSuccess! Password for '%s' updated\n", username)
				return nil
			}

			role := prompt(reader, "Enter Role (admin/super_admin, default admin): ")
			if role == "" {
				role = model.RoleAdmin
			}

			admin, err := adminService.Create(ctx, username, password, role)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			fmt.Printf("\nSuccess! Admin '%s' (%s) created with ID: %d\n", admin.Username, admin.Role, admin.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Reset the password of an existing admin")
	return cmd
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func readPassword(label string) (string, error) {
	fmt.Print(label)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
