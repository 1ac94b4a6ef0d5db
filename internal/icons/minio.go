package icons

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Minio reads icon images from an object store bucket, one "<ref>.svg"
// object per icon under Prefix.
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinio(cfg MinioConfig) (*Minio, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("minio icon catalogue requires endpoint and bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Minio{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (m *Minio) key(ref Ref) string {
	if m.prefix == "" {
		return ref.objectName()
	}
	return path.Join(m.prefix, ref.objectName())
}

func (m *Minio) Resolve(ctx context.Context, ref Ref) (Icon, error) {
	entry, ok := lookupKnown(ref)
	if !ok {
		return Icon{}, notFound(ref)
	}
	key := m.key(ref)
	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Icon{}, notFound(ref)
		}
		return Icon{}, fmt.Errorf("stat icon %s: %w", key, err)
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return Icon{}, fmt.Errorf("get icon %s: %w", key, err)
	}
	defer obj.Close()
	image, err := io.ReadAll(obj)
	if err != nil {
		return Icon{}, fmt.Errorf("read icon %s: %w", key, err)
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = "image/svg+xml"
	}
	return Icon{Ref: ref, DisplayName: entry.DisplayName, ContentType: contentType, Image: image}, nil
}

// List returns the known icons that have an object in the bucket.
func (m *Minio) List(ctx context.Context) ([]Entry, error) {
	present := map[string]bool{}
	opts := minio.ListObjectsOptions{Recursive: true}
	if m.prefix != "" {
		opts.Prefix = m.prefix + "/"
	}
	for obj := range m.client.ListObjects(ctx, m.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list icons: %w", obj.Err)
		}
		present[obj.Key] = true
	}
	var out []Entry
	for _, e := range known {
		if present[m.key(e.Ref)] {
			out = append(out, e)
		}
	}
	return out, nil
}
