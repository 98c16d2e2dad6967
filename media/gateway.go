package media

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// Gateway uploads and deletes media objects in a MinIO (S3-compatible) bucket
// and maps between browser-facing URLs and object keys.
type Gateway struct {
	Client *minio.Client
	Bucket string
	// BaseURL is the public path prefix the reverse proxy rewrites to the
	// object store, e.g. "/storage".
	BaseURL string
}

// Store uploads the local temporary file at localPath to the bucket and
// returns its public URL. The temporary file is removed whether or not the
// upload succeeds; callers must treat an error as "nothing was stored".
func (g *Gateway) Store(ctx context.Context, localPath string) (string, error) {
	defer os.Remove(localPath)

	ext := strings.ToLower(path.Ext(localPath))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := uuid.New().String() + ext
	_, err := g.Client.FPutObject(ctx, g.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return g.URLFor(key), nil
}

// URLFor builds the browser-facing URL for an object key.
// path = "{base}/{bucket}/{key}", which the reverse proxy rewrites to
// /{bucket}/{key} for the object store to resolve.
func (g *Gateway) URLFor(key string) string {
	return strings.TrimSuffix(g.BaseURL, "/") + "/" + g.Bucket + "/" + key
}

// KeyFor derives the object key back from a URL produced by URLFor.
func (g *Gateway) KeyFor(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse media url: %w", err)
	}
	prefix := strings.TrimSuffix(g.BaseURL, "/") + "/" + g.Bucket + "/"
	key := strings.TrimPrefix(u.Path, prefix)
	if key == "" || key == u.Path {
		return "", fmt.Errorf("no object key in url %q", rawURL)
	}
	return key, nil
}

// Remove deletes the remote object behind a previously returned URL.
func (g *Gateway) Remove(ctx context.Context, rawURL string) error {
	key, err := g.KeyFor(rawURL)
	if err != nil {
		return err
	}
	if err := g.Client.RemoveObject(ctx, g.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
