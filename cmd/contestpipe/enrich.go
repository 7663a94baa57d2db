package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/app"
)

func newEnrichCmd(c *cli) *cobra.Command {
	var (
		opts     app.EnrichOptions
		endpoint string
	)
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Tag the catalog with the vision model",
		Long: `Reads the merged catalog, tags each entry from its poster, and writes the
enriched artifact with periodic checkpoints. Entries already present in the
output are skipped, so an interrupted pass resumes where it stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if endpoint != "" {
				c.cfg.Enrich.ModelEndpoint = endpoint
			}
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close(cmd.Context(), a)

			res, err := a.Enrich(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if res.Interrupted {
				c.logger.Warn("enrichment interrupted, checkpoint written", zap.Int("processed", res.Processed))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d resumed=%d inserted=%d skipped=%d interrupted=%t\n",
				res.Processed, res.Resumed, res.Inserted, res.Skipped, res.Interrupted)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.InputFile, "input-file", "", "catalog to enrich (default data.catalog_file)")
	cmd.Flags().StringVar(&opts.OutputFile, "output-file", "", "enriched output and checkpoint (default data.enriched_file)")
	cmd.Flags().StringVar(&endpoint, "model-endpoint", "", "vision model endpoint (overrides enrich.model_endpoint)")
	cmd.Flags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "ollama-host" {
			name = "model-endpoint"
		}
		return pflag.NormalizedName(name)
	})
	return cmd
}
