// Package storage is the optional MinIO-backed object storage sink a
// finished EPUB is pushed to once built, alongside (never instead of)
// the mandatory local-disk output layout. Grounded on the teacher's
// internal/storage/minio.go (MinIOClient/MinIOConfig over a
// minio.Client), generalized from a bare bookID object prefix to a
// caller-supplied variant so the Download Controller can scope objects
// by variant as well as book.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"oreilly-library/internal/apperrors"
)

// Config holds the connection settings for an ObjectSink.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// ObjectSink wraps a MinIO client scoped to one bucket.
type ObjectSink struct {
	client     *minio.Client
	bucketName string
	ctx        context.Context
}

// NewObjectSink dials MinIO and ensures the configured bucket exists,
// creating it if a bucket-existence check confirms it is absent. A
// failed existence check (e.g. insufficient permissions) is tolerated
// rather than fatal, matching the teacher's best-effort posture.
func NewObjectSink(cfg Config) (*ObjectSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, apperrors.New(apperrors.KindConfiguration, "create minio client", err)
	}

	ctx := context.Background()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err == nil && !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, apperrors.New(apperrors.KindConfiguration, "create minio bucket", err)
		}
	}

	return &ObjectSink{client: client, bucketName: cfg.Bucket, ctx: ctx}, nil
}

// objectName builds the bookID/variant/filename.epub key a build's
// output lives under.
func objectName(bookID, variant, localPath string) string {
	return fmt.Sprintf("%s/%s/%s", bookID, variant, filepath.Base(localPath))
}

// Upload pushes localPath to the sink under bookID/variant and returns
// the resulting object name and byte size.
func (s *ObjectSink) Upload(bookID, variant, localPath string) (string, int64, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return "", 0, apperrors.New(apperrors.KindFilesystem, "stat epub before upload", err)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", 0, apperrors.New(apperrors.KindFilesystem, "open epub for upload", err)
	}
	defer file.Close()

	name := objectName(bookID, variant, localPath)
	uploadInfo, err := s.client.PutObject(s.ctx, s.bucketName, name, file, info.Size(), minio.PutObjectOptions{
		ContentType: "application/epub+zip",
	})
	if err != nil {
		return "", 0, apperrors.New(apperrors.KindTransient, "upload epub to object storage", err)
	}

	return name, uploadInfo.Size, nil
}

// Exists reports whether any object already lives under bookID/variant.
func (s *ObjectSink) Exists(bookID, variant string) (bool, string, int64, error) {
	prefix := fmt.Sprintf("%s/%s/", bookID, variant)
	objectCh := s.client.ListObjects(s.ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return false, "", 0, apperrors.New(apperrors.KindTransient, "list object storage", object.Err)
		}
		if filepath.Ext(object.Key) == ".epub" {
			return true, object.Key, object.Size, nil
		}
	}
	return false, "", 0, nil
}

// PresignedURL issues a temporary download link for objectName.
func (s *ObjectSink) PresignedURL(objectName string, expiry time.Duration) (string, error) {
	url, err := s.client.PresignedGetObject(s.ctx, s.bucketName, objectName, expiry, nil)
	if err != nil {
		return "", apperrors.New(apperrors.KindTransient, "generate presigned url", err)
	}
	return url.String(), nil
}

// Download copies objectName from the sink to destPath.
func (s *ObjectSink) Download(objectName, destPath string) error {
	object, err := s.client.GetObject(s.ctx, s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return apperrors.New(apperrors.KindTransient, "fetch object from storage", err)
	}
	defer object.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return apperrors.New(apperrors.KindFilesystem, "create download destination", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, object); err != nil {
		return apperrors.New(apperrors.KindFilesystem, "write downloaded object", err)
	}
	return nil
}

// Delete removes objectName from the sink.
func (s *ObjectSink) Delete(objectName string) error {
	if err := s.client.RemoveObject(s.ctx, s.bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return apperrors.New(apperrors.KindTransient, "delete object from storage", err)
	}
	return nil
}

// Info returns metadata about objectName.
func (s *ObjectSink) Info(objectName string) (*minio.ObjectInfo, error) {
	info, err := s.client.StatObject(s.ctx, s.bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		return nil, apperrors.New(apperrors.KindTransient, "stat object in storage", err)
	}
	return &info, nil
}
