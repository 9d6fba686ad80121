// Package objectstore transfers backup archives to and from an S3-compatible bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/dustin/go-humanize"
	"github.com/fgeck/mongo-s3-backup/internal/models"
	"github.com/fgeck/mongo-s3-backup/internal/staging"
	"github.com/rs/zerolog"
)

// Service defines the interface for object store transfers.
type Service interface {
	Upload(ctx context.Context, cfg models.StoreConfig, localDir, name string) error
	Download(ctx context.Context, cfg models.StoreConfig, name, destPath string) error
	List(ctx context.Context, cfg models.StoreConfig, database string) ([]models.ArchiveObject, error)
}

// StatusError is returned when the store answers with a status other than 200.
type StatusError struct {
	Op   string
	Key  string
	Code int
	Err  error // underlying SDK error, nil when the SDK accepted the response
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s of %s failed with status %d", e.Op, e.Key, e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Impl implements the objectstore Service interface.
type Impl struct {
	newClient ClientFactory
	logger    zerolog.Logger
}

// New creates a new object store service. A fresh client is built for every call.
func New(logger zerolog.Logger) *Impl {
	return &Impl{newClient: NewS3Client, logger: logger}
}

// NewWithClientFactory creates a new object store service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{newClient: factory, logger: logger}
}

// ObjectKey joins the destination prefix and name into an object key.
// A prefix of "/" or "" addresses the bucket root.
func ObjectKey(prefix, name string) string {
	return strings.TrimPrefix(path.Join("/", prefix, name), "/")
}

// Upload streams localDir/name to <prefix>/name.
func (s *Impl) Upload(ctx context.Context, cfg models.StoreConfig, localDir, name string) error {
	source := filepath.Join(localDir, name)
	key := ObjectKey(cfg.Prefix, name)

	f, err := os.Open(source) //nolint:gosec // path is built from the staging layout
	if err != nil {
		return fmt.Errorf("failed to open %s for upload: %w", source, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", source, err)
	}

	s.logger.Info().
		Str("bucket", cfg.Bucket).
		Str("key", key).
		Str("size", humanize.Bytes(uint64(info.Size()))). //nolint:gosec // sizes are non-negative
		Msg("uploading archive")

	client, err := s.newClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	start := time.Now()
	out, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/gzip"),
	})
	if err != nil {
		return s.requestError("upload", key, err)
	}

	if code := statusCode(out.ResultMetadata); code != 0 && code != http.StatusOK {
		s.logger.Error().Str("key", key).Int("status", code).Msg("unexpected upload response")
		return &StatusError{Op: "upload", Key: key, Code: code}
	}

	s.logger.Info().
		Str("key", key).
		Int("status", http.StatusOK).
		Str("etag", aws.ToString(out.ETag)).
		Dur("duration", time.Since(start)).
		Msg("upload completed")

	return nil
}

// Download streams <prefix>/name into destPath. The parent directory of
// destPath is created before the request is sent. A partially written file
// is left in place when the transfer fails.
func (s *Impl) Download(ctx context.Context, cfg models.StoreConfig, name, destPath string) error {
	key := ObjectKey(cfg.Prefix, name)

	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	s.logger.Info().
		Str("bucket", cfg.Bucket).
		Str("key", key).
		Str("dest", destPath).
		Msg("downloading archive")

	client, err := s.newClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	start := time.Now()
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.requestError("download", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	if code := statusCode(out.ResultMetadata); code != 0 && code != http.StatusOK {
		s.logger.Error().Str("key", key).Int("status", code).Msg("unexpected download response")
		return &StatusError{Op: "download", Key: key, Code: code}
	}

	f, err := os.Create(destPath) //nolint:gosec // path is built from the staging layout
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}

	written, copyErr := io.Copy(f, out.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("download of %s interrupted after %d bytes: %w", key, written, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", destPath, closeErr)
	}

	s.logger.Info().
		Str("key", key).
		Int("status", http.StatusOK).
		Str("size", humanize.Bytes(uint64(written))). //nolint:gosec // io.Copy never returns a negative count
		Dur("duration", time.Since(start)).
		Msg("download completed")

	return nil
}

// List returns the archives stored under the prefix, newest first. A non-empty
// database restricts the result to archives of that database.
func (s *Impl) List(ctx context.Context, cfg models.StoreConfig, database string) ([]models.ArchiveObject, error) {
	dir := ObjectKey(cfg.Prefix, "")
	if dir != "" {
		dir += "/"
	}
	listPrefix := dir
	if database != "" {
		listPrefix += database + "_"
	}

	client, err := s.newClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	var archives []models.ArchiveObject
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.Bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.requestError("list", listPrefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, dir)
			db, _, err := staging.ParseArchiveName(name)
			if err != nil || strings.Contains(name, "/") {
				continue
			}
			if database != "" && db != database {
				continue
			}

			archives = append(archives, models.ArchiveObject{
				Name:         name,
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	sort.SliceStable(archives, func(i, j int) bool {
		return archives[i].LastModified.After(archives[j].LastModified)
	})

	s.logger.Debug().Int("count", len(archives)).Str("prefix", listPrefix).Msg("archives listed")
	return archives, nil
}

// requestError turns an SDK error into a StatusError when the store answered,
// or a wrapped transport error when it did not.
func (s *Impl) requestError(op, key string, err error) error {
	if code := responseStatus(err); code != 0 {
		s.logger.Error().Err(err).Str("key", key).Int("status", code).Msgf("%s rejected by object store", op)
		return &StatusError{Op: op, Key: key, Code: code, Err: err}
	}

	s.logger.Error().Err(err).Str("key", key).Msgf("%s request failed", op)
	return fmt.Errorf("%s of %s failed: %w", op, key, err)
}

// responseStatus returns the HTTP status carried by err, or 0 when the
// request never got a response. The SDK wraps send failures in a
// ResponseError too, so those are ruled out first.
func responseStatus(err error) int {
	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return 0
	}

	var respErr *awshttp.ResponseError
	if !errors.As(err, &respErr) || respErr.ResponseError == nil {
		return 0
	}
	resp := respErr.Response
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

// statusCode extracts the HTTP status of a completed operation, or 0 when
// the raw response is not available.
func statusCode(md middleware.Metadata) int {
	resp, ok := awsmiddleware.GetRawResponse(md).(*smithyhttp.Response)
	if !ok || resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
