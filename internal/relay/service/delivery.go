package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/neon-saas/neon-gateway/internal/logging"
	"github.com/neon-saas/neon-gateway/internal/relay/domain"
	"github.com/neon-saas/neon-gateway/internal/relay/staging"
)

const (
	DeliveryPath   = "path"
	DeliveryInline = "inline"
	DeliveryObject = "object"
)

// Delivery decides how the backend gets at a staged file's bytes.
type Delivery interface {
	Mode() string
	// Reference returns the string handed to clients and the backend that
	// identifies the file (a local path or an object URI).
	Reference(ctx context.Context, up *domain.Upload) (string, error)
	// Attach adds the file fields to a backend envelope.
	Attach(ctx context.Context, env map[string]any, up *domain.Upload) error
	// Discard drops any copy made outside the staging directory.
	Discard(ctx context.Context, up *domain.Upload) error
}

// PathDelivery passes the absolute staged path. The backend must mount the
// staging directory.
type PathDelivery struct{}

func (PathDelivery) Mode() string { return DeliveryPath }

func (PathDelivery) Reference(_ context.Context, up *domain.Upload) (string, error) {
	return up.Path, nil
}

func (d PathDelivery) Attach(ctx context.Context, env map[string]any, up *domain.Upload) error {
	ref, _ := d.Reference(ctx, up)
	env["path"] = ref
	return nil
}

func (PathDelivery) Discard(context.Context, *domain.Upload) error { return nil }

// InlineDelivery embeds the file bytes in the envelope as base64.
type InlineDelivery struct{}

func (InlineDelivery) Mode() string { return DeliveryInline }

func (InlineDelivery) Reference(_ context.Context, up *domain.Upload) (string, error) {
	return up.Path, nil
}

func (InlineDelivery) Attach(_ context.Context, env map[string]any, up *domain.Upload) error {
	b, err := os.ReadFile(up.Path)
	if err != nil {
		return fmt.Errorf("%w: read staged file: %v", domain.ErrStaging, err)
	}
	env["filename"] = displayName(up)
	env["content_base64"] = base64.StdEncoding.EncodeToString(b)
	return nil
}

func (InlineDelivery) Discard(context.Context, *domain.Upload) error { return nil }

// ObjectStore is the slice of *s3.Client used by ObjectDelivery.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// ObjectDelivery copies the staged file to an S3 bucket and passes its URI.
// Objects are keyed <prefix>/<upload id>/<filename>.
type ObjectDelivery struct {
	client ObjectStore
	bucket string
	prefix string
}

func NewObjectDelivery(client ObjectStore, bucket, prefix string) *ObjectDelivery {
	return &ObjectDelivery{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (*ObjectDelivery) Mode() string { return DeliveryObject }

func (d *ObjectDelivery) key(up *domain.Upload) string {
	return path.Join(d.prefix, up.ID, displayName(up))
}

func (d *ObjectDelivery) uri(key string) string {
	return "s3://" + d.bucket + "/" + key
}

// ParseURI splits a URI produced by this delivery into the upload id and
// filename. URIs for other buckets or prefixes are rejected.
func (d *ObjectDelivery) ParseURI(uri string) (id, filename string, ok bool) {
	rest, found := strings.CutPrefix(uri, d.uri(""))
	if !found {
		return "", "", false
	}
	if d.prefix != "" {
		if rest, found = strings.CutPrefix(rest, d.prefix+"/"); !found {
			return "", "", false
		}
	}
	id, filename, found = strings.Cut(rest, "/")
	if !found || id == "" || filename == "" || strings.Contains(filename, "/") {
		return "", "", false
	}
	return id, filename, true
}

func (d *ObjectDelivery) Reference(ctx context.Context, up *domain.Upload) (string, error) {
	key := d.key(up)

	f, err := os.Open(up.Path)
	if err != nil {
		return "", fmt.Errorf("%w: open staged file: %v", domain.ErrStaging, err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(up.Size),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			"upload-id": up.ID,
			"sha256":    up.SHA256,
		},
	})
	if err != nil {
		logging.FromContext(ctx).Error("put staged object",
			zap.String("bucket", d.bucket),
			zap.String("key", key),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: upload to object storage: %v", domain.ErrStaging, err)
	}
	return d.uri(key), nil
}

func (d *ObjectDelivery) Attach(ctx context.Context, env map[string]any, up *domain.Upload) error {
	uri, err := d.Reference(ctx, up)
	if err != nil {
		return err
	}
	env["object_uri"] = uri
	env["filename"] = displayName(up)
	return nil
}

// Discard deletes the upload's object. Uploads without an id (registry
// entries whose data was lost) are left to the bucket lifecycle rule.
func (d *ObjectDelivery) Discard(ctx context.Context, up *domain.Upload) error {
	if up.ID == "" {
		return nil
	}
	key := d.key(up)
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func displayName(up *domain.Upload) string {
	if up.OriginalName != "" {
		return staging.SanitizeFilename(up.OriginalName)
	}
	return filepath.Base(up.Path)
}
