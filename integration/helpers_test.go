//go:build integration

package integration

import (
	"os"
	"strconv"
	"testing"

	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func getMongoConfig(t *testing.T) models.MongoConfig {
	t.Helper()

	host := os.Getenv("TEST_MONGO_HOST")
	if host == "" {
		t.Skip("TEST_MONGO_HOST not set")
	}

	portStr := os.Getenv("TEST_MONGO_PORT")
	if portStr == "" {
		portStr = "27017"
	}
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	database := os.Getenv("TEST_MONGO_DB")
	if database == "" {
		t.Skip("TEST_MONGO_DB not set")
	}

	return models.MongoConfig{
		Host:     host,
		Port:     port,
		Database: database,
		Username: os.Getenv("TEST_MONGO_USER"),
		Password: os.Getenv("TEST_MONGO_PASSWORD"),
	}
}

func getStoreConfig(t *testing.T) models.StoreConfig {
	t.Helper()

	bucket := os.Getenv("TEST_S3_BUCKET")
	if bucket == "" {
		t.Skip("TEST_S3_BUCKET not set")
	}

	accessKey := os.Getenv("TEST_S3_ACCESS_KEY")
	secretKey := os.Getenv("TEST_S3_SECRET_KEY")
	if accessKey == "" || secretKey == "" {
		t.Skip("TEST_S3_ACCESS_KEY or TEST_S3_SECRET_KEY not set")
	}

	region := os.Getenv("TEST_S3_REGION")
	if region == "" {
		region = "us-east-1"
	}

	prefix := os.Getenv("TEST_S3_PREFIX")
	if prefix == "" {
		prefix = "integration"
	}

	endpoint := os.Getenv("TEST_S3_ENDPOINT")

	return models.StoreConfig{
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    bucket,
		Prefix:    prefix,
		Region:    region,
		Endpoint:  endpoint,
		PathStyle: endpoint != "",
	}
}

func defaultTools() models.ToolSettings {
	return models.ToolSettings{
		Mongodump:    "mongodump",
		Mongorestore: "mongorestore",
		Tar:          "tar",
	}
}
