package tilestore

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"elevation_service/internal/domain/model"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// MinioSink writes tiles as gzip-compressed JSON objects.
type MinioSink struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioSink(opts Options) (*MinioSink, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioSink{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (s *MinioSink) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioSink) PutTile(ctx context.Context, tile model.Tile) error {
	data, err := Encode(tile)
	if err != nil {
		return err
	}
	key := ObjectKey(s.prefix, tile)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:     "application/json",
		ContentEncoding: "gzip",
	})
	if err != nil {
		return fmt.Errorf("failed to upload tile %s: %w", key, err)
	}
	return nil
}

// ObjectKey is <prefix>/<size>/<x>_<y>.json.gz.
func ObjectKey(prefix string, tile model.Tile) string {
	return path.Join(prefix, fmt.Sprintf("%g", tile.Size), tile.Key.String()+".json.gz")
}

func Encode(tile model.Tile) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(tile); err != nil {
		return nil, fmt.Errorf("failed to encode tile %s: %w", tile.Key, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress tile %s: %w", tile.Key, err)
	}
	return buf.Bytes(), nil
}

func Decode(r io.Reader) (model.Tile, error) {
	var tile model.Tile
	zr, err := gzip.NewReader(r)
	if err != nil {
		return tile, fmt.Errorf("failed to open tile: %w", err)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(&tile); err != nil {
		return tile, fmt.Errorf("failed to decode tile: %w", err)
	}
	return tile, nil
}
