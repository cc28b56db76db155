// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bureau-foundation/dropship/lib/mirror"
)

// Bucket is the object API used by Mirror.
type Bucket interface {
	// List returns the size of every object whose key starts with
	// prefix.
	List(ctx context.Context, prefix string) (map[string]int64, error)
	Put(ctx context.Context, key, localFile, contentType string) error
	Remove(ctx context.Context, key string) error
}

// Config configures a Mirror.
type Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Secure    bool

	Logger *slog.Logger

	// Client replaces the minio-backed bucket in tests.
	Client Bucket
}

// Mirror is an object-store transport.
type Mirror struct {
	bucketName string
	prefix     string
	bucket     Bucket
	logger     *slog.Logger
}

// New validates config and returns a Mirror. No request is made until
// the first Sync.
func New(config Config) (*Mirror, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("objectstore: Bucket is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("objectstore: Logger is required")
	}
	bucket := config.Client
	if bucket == nil {
		if config.Endpoint == "" {
			return nil, fmt.Errorf("objectstore: Endpoint is required")
		}
		client, err := minio.New(config.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
			Secure: config.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("objectstore: %s: %w", config.Endpoint, err)
		}
		bucket = &minioBucket{client: client, bucket: config.Bucket}
	}
	return &Mirror{
		bucketName: config.Bucket,
		prefix:     strings.Trim(config.Prefix, "/"),
		bucket:     bucket,
		logger:     config.Logger.With("component", "objectstore", "bucket", config.Bucket),
	}, nil
}

// Name implements mirror.Transport.
func (m *Mirror) Name() string { return "objectstore:" + m.bucketName }

// Root implements mirror.Transport.
func (m *Mirror) Root() string { return m.prefix }

// Sync implements mirror.Transport. destination is a key prefix.
func (m *Mirror) Sync(ctx context.Context, source, destination string) (mirror.SyncResult, error) {
	var result mirror.SyncResult
	destination = strings.Trim(path.Clean("/"+filepath.ToSlash(destination)), "/")
	keyPrefix := destination + "/"
	if destination == "" {
		keyPrefix = ""
	}

	remote, err := m.bucket.List(ctx, keyPrefix)
	if err != nil {
		return result, fmt.Errorf("objectstore: listing %s: %w", keyPrefix, err)
	}

	local := make(map[string]bool)
	var failures []error
	err = filepath.WalkDir(source, func(localPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relative, err := filepath.Rel(source, localPath)
		if err != nil {
			return err
		}
		relative = filepath.ToSlash(relative)
		key := keyPrefix + relative
		local[key] = true

		info, err := entry.Info()
		if err != nil {
			return err
		}
		if size, ok := remote[key]; ok && size == info.Size() {
			return nil
		}

		contentType := "application/octet-stream"
		if detected, err := mimetype.DetectFile(localPath); err == nil {
			contentType = detected.String()
		}
		if err := m.bucket.Put(ctx, key, localPath, contentType); err != nil {
			result.Failed++
			failures = append(failures, fmt.Errorf("uploading %s: %w", key, err))
			m.logger.Error("upload failed", "source", localPath, "key", key, "error", err)
			return nil
		}
		result.Copied++
		result.Uploaded = append(result.Uploaded, relative)
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("objectstore: walking %s: %w", source, err)
	}

	for key := range remote {
		if local[key] {
			continue
		}
		if err := m.bucket.Remove(ctx, key); err != nil {
			failures = append(failures, fmt.Errorf("removing %s: %w", key, err))
			continue
		}
		result.Removed++
		result.Deleted = append(result.Deleted, strings.TrimPrefix(key, keyPrefix))
	}

	if len(failures) > 0 {
		return result, fmt.Errorf("objectstore: %w", errors.Join(failures...))
	}
	return result, nil
}

type minioBucket struct {
	client *minio.Client
	bucket string
}

func (b *minioBucket) List(ctx context.Context, prefix string) (map[string]int64, error) {
	objects := make(map[string]int64)
	for object := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, object.Err
		}
		objects[object.Key] = object.Size
	}
	return objects, nil
}

func (b *minioBucket) Put(ctx context.Context, key, localFile, contentType string) error {
	_, err := b.client.FPutObject(ctx, b.bucket, key, localFile, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (b *minioBucket) Remove(ctx context.Context, key string) error {
	return b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{})
}
