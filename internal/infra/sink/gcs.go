package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSSink stores the document as a Google Cloud Storage object.
type GCSSink struct {
	client *gcs.Client
	bucket string
	key    string
}

// NewGCSSink uses application default credentials unless a credentials
// file is configured.
func NewGCSSink(ctx context.Context, cfg Config) (*GCSSink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs sink requires a bucket")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	slog.Info("GCS state sink initialized", "bucket", cfg.Bucket, "key", cfg.objectKey())
	return &GCSSink{client: client, bucket: cfg.Bucket, key: cfg.objectKey()}, nil
}

func (s *GCSSink) Write(ctx context.Context, doc []byte) error {
	w := s.client.Bucket(s.bucket).Object(s.key).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, max-age=0"

	if _, err := w.Write(doc); err != nil {
		w.Close()
		return fmt.Errorf("failed to write to GCS object %s: %w", s.key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", s.key, err)
	}
	return nil
}

func (s *GCSSink) Read(ctx context.Context) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object %s: %w", s.key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", s.key, err)
	}
	return data, nil
}

func (s *GCSSink) Close() error {
	return s.client.Close()
}
