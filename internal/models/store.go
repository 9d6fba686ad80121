package models

import "time"

// StoreConfig holds the S3-compatible object store settings.
type StoreConfig struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // destination prefix, "/" means bucket root
	Region    string
	Endpoint  string // optional, for MinIO and other S3-compatible servers
	PathStyle bool
}

// ArchiveObject describes a backup archive stored in the bucket.
type ArchiveObject struct {
	Name         string // archive file name relative to the prefix
	Key          string
	Size         int64
	LastModified time.Time
}
