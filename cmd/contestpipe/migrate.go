package main

import (
	"errors"

	"github.com/spf13/cobra"

	pgstore "github.com/contestlab/contest-pipeline/internal/storage/postgres"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the contests schema to db.dsn",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if c.cfg.DB.DSN == "" {
				return errors.New("db.dsn is required")
			}
			if err := pgstore.RunMigrations(c.cfg.DB.DSN); err != nil {
				return err
			}
			c.logger.Info("schema up to date")
			return nil
		},
	}
}
