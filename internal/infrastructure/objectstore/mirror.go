package objectstore

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configure the S3-compatible mirror.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
}

// Mirror uploads finished artifacts to a MinIO/S3 bucket.
type Mirror struct {
	client *minio.Client
	bucket string
	region string
}

// New connects to the object store and makes sure the bucket exists.
func New(ctx context.Context, opts Options) (*Mirror, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	m := &Mirror{client: client, bucket: opts.Bucket, region: opts.Region}
	if err := m.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mirror) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("minio bucket check: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return fmt.Errorf("minio create bucket %s: %w", m.bucket, err)
	}
	return nil
}

// Publish uploads the artifact and returns its object key.
func (m *Mirror) Publish(ctx context.Context, jobID, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", err
	}

	object := ObjectName(jobID, filepath.Base(localPath))
	_, err = m.client.PutObject(ctx, m.bucket, object, file, stat.Size(), minio.PutObjectOptions{
		ContentType: ContentType(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("minio upload %s: %w", object, err)
	}
	return object, nil
}

// ObjectName builds the key under which a job's artifact is stored.
func ObjectName(jobID, fileName string) string {
	name := strings.ReplaceAll(fileName, "\\", "_")
	name = strings.ReplaceAll(name, "/", "_")
	return path.Join("jobs", jobID, name)
}

// ContentType guesses a media type from the file extension.
func ContentType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".opus":
		return "audio/opus"
	}
	if ct := mime.TypeByExtension(filepath.Ext(fileName)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
