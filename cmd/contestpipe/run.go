package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Crawl, merge, enrich, and persist once",
		Long: `Runs every stage in order under the pipeline lock and prints the run summary
as JSON. Source failures and model outages degrade the run instead of failing it;
artifact write failures fail it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close(cmd.Context(), a)

			sum, runErr := a.Run(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			if runErr != nil {
				return fmt.Errorf("run %s failed: %w", sum.RunID, runErr)
			}
			return nil
		},
	}
}

func newCrawlCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every enabled source and merge into the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close(cmd.Context(), a)

			res, err := a.Crawl(cmd.Context())
			if err != nil {
				return err
			}
			for _, src := range res.Sources {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-8s accepted=%d excluded=%d\n",
					src.Source, src.Outcome, src.Accepted, src.Excluded)
			}
			return nil
		},
	}
}
