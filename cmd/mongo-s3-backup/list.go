package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/fgeck/mongo-s3-backup/internal/services/objectstore"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var listAll bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives stored in the bucket, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listAll, "all", false, "list archives of every database, not only mongo.database")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database := cfg.Mongo.Database
	if listAll {
		database = ""
	}

	ctx, cancel := signalContext()
	defer cancel()

	archives, err := objectstore.New(log.Logger).List(ctx, cfg.Store, database)
	if err != nil {
		log.Error().Err(err).Str("bucket", cfg.Store.Bucket).Msg("failed to list archives")
		return err
	}

	return printArchives(cmd.OutOrStdout(), archives)
}

func printArchives(out io.Writer, archives []models.ArchiveObject) error {
	if len(archives) == 0 {
		_, err := fmt.Fprintln(out, "No archives found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ARCHIVE\tSIZE\tUPLOADED")
	for _, a := range archives {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			a.Name,
			humanize.Bytes(uint64(a.Size)), //nolint:gosec // object sizes are non-negative
			humanize.Time(a.LastModified),
		)
	}
	return w.Flush()
}
