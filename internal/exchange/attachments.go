package exchange

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"pixelpilot/internal/util"
)

// Attachments resolves an outbound image into the reference stored on the
// message. Images arrive as data URIs from the composer.
type Attachments interface {
	Store(ctx context.Context, image string) (string, error)
}

// InlineAttachments keeps the data URI on the message verbatim. It is the
// default: the whole image round-trips through the persisted chat blob.
type InlineAttachments struct{}

func (InlineAttachments) Store(_ context.Context, image string) (string, error) {
	return image, nil
}

// MinioAttachments uploads image payloads to object storage and stores a
// pre-signed URL on the message instead of the raw bytes, keeping the chat
// blob small.
type MinioAttachments struct {
	client        *minio.Client
	bucket        string
	presignExpiry time.Duration
}

// NewMinioAttachments connects to MinIO and ensures the bucket exists.
func NewMinioAttachments(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioAttachments, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioAttachments{
		client:        client,
		bucket:        bucket,
		presignExpiry: 7 * 24 * time.Hour,
	}, nil
}

// Store uploads a data URI payload and returns a pre-signed GET URL. Anything
// that is not a data URI, or any storage failure, falls back to the inline
// representation so a flaky object store never drops a message.
func (m *MinioAttachments) Store(ctx context.Context, image string) (string, error) {
	mediaType, payload, ok := parseDataURI(image)
	if !ok {
		return image, nil
	}
	key := "attachments/" + util.NewID() + extForMediaType(mediaType)
	_, err := m.client.PutObject(ctx, m.bucket, key,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: mediaType})
	if err != nil {
		slog.Warn("upload attachment, keeping inline", "err", err)
		return image, nil
	}
	url, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.presignExpiry, nil)
	if err != nil {
		slog.Warn("presign attachment, keeping inline", "err", err)
		return image, nil
	}
	return url.String(), nil
}

// parseDataURI splits "data:<mediatype>;base64,<data>" into its parts.
func parseDataURI(uri string) (mediaType string, payload []byte, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:")
	if !found {
		return "", nil, false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return "", nil, false
	}
	mediaType = strings.TrimSuffix(meta, ";base64")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	payload, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", nil, false
	}
	return mediaType, payload, true
}

func extForMediaType(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
