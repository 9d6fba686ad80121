//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/fgeck/mongo-s3-backup/internal/services/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupThenRestore_Integration(t *testing.T) {
	db := getMongoConfig(t)
	store := getStoreConfig(t)

	for _, native := range []bool{false, true} {
		t.Run(map[bool]string{false: "tar", true: "native"}[native], func(t *testing.T) {
			cfg := models.AppConfig{
				Mongo:   db,
				Store:   store,
				Staging: models.StagingSettings{TempDir: t.TempDir()},
				Tools:   defaultTools(),
				Archive: models.ArchiveSettings{Native: native, Level: 6},
			}
			svc := pipeline.New(testLogger(), cfg)
			ctx := context.Background()

			backup, err := svc.Backup(ctx, cfg.Mongo, cfg.Store)
			require.NoError(t, err)
			assert.True(t, backup.Success())
			assert.Greater(t, backup.ArchiveSize, int64(0))

			restore, err := svc.Restore(ctx, cfg.Mongo, cfg.Store, backup.ArchiveName)
			require.NoError(t, err)
			assert.True(t, restore.Success())
		})
	}
}
