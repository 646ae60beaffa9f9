// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const storageBucket = "missingpedia"

// S3 is the subset of minio.Client used in this program.
//
// We define our own interface for easier testing, so we only have to fake
// those parts of the (rather big) S3 interface that we actually use.
// A fake implementation for tests is in FakeS3, implemented in s3_test.go.
type S3 interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// NewStorageClient sets up a client for accessing S3-compatible object
// storage. The key file is JSON with the fields Endpoint, Key and Secret.
func NewStorageClient(ctx context.Context, keypath string) (*minio.Client, error) {
	data, err := os.ReadFile(keypath)
	if err != nil {
		return nil, err
	}

	var config struct{ Endpoint, Key, Secret string }
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.Key, config.Secret, ""),
		Secure: true,
	})
	if err != nil {
		return nil, err
	}
	client.SetAppInfo("MissingpediaBuilder", "0.1")

	exists, err := client.BucketExists(ctx, storageBucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("storage bucket %q does not exist", storageBucket)
	}
	return client, nil
}

// PutInStorage stores a file in S3 storage.
func PutInStorage(ctx context.Context, file string, s3 S3, bucket string, dest string, contentType string) error {
	options := minio.PutObjectOptions{ContentType: contentType}
	_, err := s3.FPutObject(ctx, bucket, dest, file, options)
	return err
}

// CleanupStorage deletes all but the most recent snapshots and stats
// from storage.
func CleanupStorage(ctx context.Context, s3 S3) error {
	for _, p := range []struct {
		prefix, pattern string
		keep            int
	}{
		{"public/pageviews-", `^public/pageviews-\d{8}\.zst$`, 3},
		{"public/stats-", `^public/stats-\d{8}\.json$`, 3},
	} {
		if err := cleanupStoragePath(ctx, s3, storageBucket, p.prefix, p.pattern, p.keep); err != nil {
			return err
		}
	}
	return nil
}

func cleanupStoragePath(ctx context.Context, s3 S3, bucket, prefix, pattern string, keep int) error {
	re := regexp.MustCompile(pattern)

	found := make([]string, 0, keep+10)
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for obj := range s3.ListObjects(ctx, bucket, opts) {
		if obj.Err != nil {
			return obj.Err
		}
		if re.MatchString(obj.Key) {
			found = append(found, obj.Key)
		}
	}

	if len(found) <= keep {
		return nil
	}
	sort.Strings(found)
	for _, path := range found[0 : len(found)-keep] {
		if logger != nil {
			logger.Printf("Deleting from storage: %s/%s", bucket, path)
		}
		if err := s3.RemoveObject(ctx, bucket, path, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}
