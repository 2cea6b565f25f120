/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config names the bucket and credentials an S3Mirror uploads to.
// Endpoint/ForcePathStyle exist for S3-compatible object stores (MinIO,
// Ceph RGW) the same way the teacher's S3Factory supports them.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	Bucket          string
	Prefix          string
	ForcePathStyle  bool
}

// S3Mirror uploads finalized files to an S3-compatible bucket.
type S3Mirror struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

// NewS3Mirror constructs a mirror against cfg. The client is built
// lazily on first Upload so a Mirror can be wired in before credentials
// are resolvable (e.g. instance-role credentials not yet available).
func NewS3Mirror(cfg S3Config) *S3Mirror {
	return &S3Mirror{cfg: cfg}
}

func (m *S3Mirror) ensureOpen(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opened {
		return nil
	}

	var opts []func(*config.LoadOptions) error
	if m.cfg.Region != "" {
		opts = append(opts, config.WithRegion(m.cfg.Region))
	}
	if m.cfg.AccessKeyID != "" && m.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(m.cfg.AccessKeyID, m.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("archive: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if m.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(m.cfg.Endpoint) })
	}
	if m.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	m.client = s3.NewFromConfig(awsCfg, s3Opts...)
	m.opened = true
	return nil
}

// Upload compresses localPath per its suffix and PUTs it to
// <prefix>/<basename>[.lz4|.xz].
func (m *S3Mirror) Upload(ctx context.Context, localPath string) error {
	if err := m.ensureOpen(ctx); err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := compress(localPath, f)
	if err != nil {
		return fmt.Errorf("archive: compress %s: %w", localPath, err)
	}

	key := objectKey(m.cfg.Prefix, localPath)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}
