package main

import (
	"errors"
	"fmt"
	"github.com/ariefcatur/go-dairy-orders/internal/config"
	"github.com/ariefcatur/go-dairy-orders/internal/postgres"
	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"os"
)

func main() {
	_ = godotenv.Load()

	var dsn string
	rootCmd := &cobra.Command{Use: "migrate", Short: "manage the orders schema", SilenceUsage: true}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", config.Load().PostgresDSN, "postgres connection string")
	rootCmd.AddCommand(
		upCommand(&dsn),
		downCommand(&dsn),
		versionCommand(&dsn),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func upCommand(dsn *string) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "migrate all the way up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := postgres.NewMigrator(*dsn)
			if err != nil {
				return err
			}
			defer m.Close()

			err = m.Up()
			if errors.Is(err, migrate.ErrNoChange) {
				fmt.Println("No change in migration")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println("Migrated up")
			return nil
		},
	}
}

func downCommand(dsn *string) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := postgres.NewMigrator(*dsn)
			if err != nil {
				return err
			}
			defer m.Close()

			err = m.Steps(-1)
			if errors.Is(err, migrate.ErrNoChange) || errors.Is(err, os.ErrNotExist) {
				fmt.Println("Nothing to roll back")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println("Rolled back one migration")
			return nil
		},
	}
}

func versionCommand(dsn *string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := postgres.NewMigrator(*dsn)
			if err != nil {
				return err
			}
			defer m.Close()

			v, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Println("No migrations applied")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("version=%d dirty=%t\n", v, dirty)
			return nil
		},
	}
}
