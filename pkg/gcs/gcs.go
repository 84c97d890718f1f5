// Package gcs wraps Google Cloud Storage for video asset uploads.
package gcs

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Client stores and removes video objects in a single bucket.
type Client struct {
	client *storage.Client
	bucket string
}

// NewClient connects to GCS. credentialsFile may be empty, in which case
// application default credentials are used.
func NewClient(ctx context.Context, bucket, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &Client{client: client, bucket: bucket}, nil
}

// Upload streams an object into the bucket and returns its public URL.
func (c *Client) Upload(ctx context.Context, objectName, contentType string, r io.Reader) (string, error) {
	writer := c.client.Bucket(c.bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, r); err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to write object %s: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object %s: %w", objectName, err)
	}

	return c.PublicURL(objectName), nil
}

// Delete removes an object. A missing object is not an error.
func (c *Client) Delete(ctx context.Context, objectName string) error {
	err := c.client.Bucket(c.bucket).Object(objectName).Delete(ctx)
	if err == storage.ErrObjectNotExist {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectName, err)
	}
	return nil
}

// PublicURL returns the canonical HTTPS URL for an object.
func (c *Client) PublicURL(objectName string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", c.bucket, objectName)
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}
