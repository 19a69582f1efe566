// Command metastorectl is a read-only inspection CLI for a metastore data
// directory (spec §4.N): it opens the local KV engine directly — no daemon,
// no RPC — and prints catalog contents for schemas, tables, and jobs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cubestore/metastore/internal/catalog"
	"github.com/cubestore/metastore/internal/eventbus"
	"github.com/cubestore/metastore/internal/kvengine/badgerkv"
	"github.com/cubestore/metastore/internal/txn"
)

var dataDir string

var rootCmd = &cobra.Command{
	Use:   "metastorectl",
	Short: "metastorectl - read-only inspection of a metastore data directory",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./metastore-data/kv", "path to the metastore KV data directory")
	rootCmd.AddCommand(schemasCmd, tablesCmd, jobsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openCatalog opens dataDir for the duration of one subcommand. The engine
// itself is opened read-write (badgerkv has no read-only mode here), but
// metastorectl never writes, so a single-worker coordinator with no event
// bus listeners is enough.
func openCatalog() (*catalog.Catalog, func(), error) {
	kv, err := badgerkv.Open(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("metastorectl: opening %s: %w", dataDir, err)
	}
	co := txn.New(kv, eventbus.New(), 1)
	return catalog.New(co), func() { kv.Close() }, nil
}

var schemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "list every schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, closeFn, err := openCatalog()
		if err != nil {
			return err
		}
		defer closeFn()

		rows, err := cat.ListSchemas(context.Background())
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%d\t%s\n", r.ID, r.Row.Name)
		}
		return nil
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "list every table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, closeFn, err := openCatalog()
		if err != nil {
			return err
		}
		defer closeFn()

		rows, err := cat.ListTablesWithSchema(context.Background())
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%d\tschema=%s\t%s\t%d columns\n", r.Child.ID, r.Parent.Row.Name, r.Child.Row.Name, len(r.Child.Row.Columns))
		}
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "list every job and its status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, closeFn, err := openCatalog()
		if err != nil {
			return err
		}
		defer closeFn()

		rows, err := cat.ListJobs(context.Background())
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("%d\tentity=%d:%d\ttype=%s\tstatus=%d\tshard=%s\n",
				r.ID, r.Row.RowReference.EntityTableID, r.Row.RowReference.RowID, r.Row.JobType, r.Row.Status, r.Row.Shard)
		}
		return nil
	},
}
