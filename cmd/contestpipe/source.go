package main

import (
	"github.com/spf13/cobra"

	"github.com/contestlab/contest-pipeline/internal/app"
)

func newSourceCmd(c *cli) *cobra.Command {
	var workDir string
	cmd := &cobra.Command{
		Use:    "source <name>",
		Short:  "Crawl a single source into the work directory",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunSource(cmd.Context(), c.cfg, args[0], workDir, c.logger)
		},
	}
	cmd.Flags().StringVar(&workDir, "work-dir", "", "directory for transient source artifacts")
	return cmd
}
