// Package main hosts the contestpipe binary.
//
// Commands:
//   - run: crawl every enabled source, merge into the catalog, enrich it, and persist new contests.
//   - crawl: the crawl and merge stages only.
//   - enrich: tag an existing catalog, resuming from the enriched artifact when present.
//   - schedule: repeat run on a cron spec and serve /healthz, /readyz, /metrics, and /v1/runs.
//   - migrate: apply the Postgres schema.
//
// A hidden source command crawls a single source into a work directory. The process runner
// re-executes the binary with it so one misbehaving site cannot take the whole crawl down.
//
// Configuration comes from the file named by --config plus CONTESTPIPE_* environment overrides.
package main
