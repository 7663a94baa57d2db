// Package contest defines the records, ledgers, and collaborator interfaces shared by
// the ingest pipeline stages.
package contest
