package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// if true, use http instead of https (e.g. for local minio)
	Insecure     bool
	RequestTrace io.Writer
}

// Uploader uploads snapshots to S3-compatible storage
type Uploader struct {
	Client *minio.Client
	Bucket string
}

func (c *S3Config) validate() error {
	if c == nil {
		return errors.New("must provide config")
	}
	if c.Access == "" || c.Secret == "" || c.Bucket == "" || c.Endpoint == "" {
		return errors.New("must provide access, secret, bucket and endpoint in s3 config")
	}
	return nil
}

// NewUploader creates a client and checks that the bucket exists
func NewUploader(ctx context.Context, config *S3Config) (*Uploader, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	c := config
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	if c.RequestTrace != nil {
		mc.TraceOn(c.RequestTrace)
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return &Uploader{
		Client: mc,
		Bucket: c.Bucket,
	}, nil
}

// RemotePath returns "<prefix>/<file name of localPath>"
func RemotePath(prefix string, localPath string) string {
	return path.Join(prefix, filepath.Base(localPath))
}

// Upload uploads a local file as remotePath
func (u *Uploader) Upload(ctx context.Context, remotePath string, localPath string) (minio.UploadInfo, error) {
	opts := minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}
	return u.Client.FPutObject(ctx, u.Bucket, remotePath, localPath, opts)
}
