package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bipstech/exam-portal/internal/database"
	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
)

func migrateCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the embedded schema migrations",
	}

	run := func(fn func(m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, args []string) error {
			if e.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is not set")
			}
			m, err := database.NewMigrator(e.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(m, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(m *migrate.Migrate, _ []string) error {
				if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("up failed: %w", err)
				}
				fmt.Println("Migrated up successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: run(func(m *migrate.Migrate, _ []string) error {
				if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("down failed: %w", err)
				}
				fmt.Println("Migrated down successfully")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: run(func(m *migrate.Migrate, _ []string) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("Version: none")
					return nil
				}
				if err != nil {
					return fmt.Errorf("version failed: %w", err)
				}
				fmt.Printf("Version: %d, Dirty: %t\n", version, dirty)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(m *migrate.Migrate, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version: %w", err)
				}
				if err := m.Force(v); err != nil {
					return fmt.Errorf("force failed: %w", err)
				}
				fmt.Printf("Forced version to %d\n", v)
				return nil
			}),
		},
	)
	return cmd
}
