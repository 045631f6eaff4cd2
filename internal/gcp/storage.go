package gcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// SaveToGCSAtomically writes content to a GCS object only if it doesn't
// already exist. With at-least-once event delivery a stage can run twice;
// the precondition makes the second write a clean no-op.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, content string) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, strings.NewReader(content)); err != nil {
		_ = writer.Close()
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Info("Object already exists, skipping write.", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Info("Object already exists, skipping write.", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// DownloadToFile streams a GCS object to a local path, retrying transient
// failures with linear backoff.
func DownloadToFile(ctx context.Context, client *storage.Client, bucket, object, destPath string, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := time.Duration(i) * 2 * time.Second
			slog.Warn("Download failed, will retry.", "gcsObject", object, "attempt", i+1, "backoff", backoff.String(), "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = downloadOnce(ctx, client, bucket, object, destPath)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("download of gs://%s/%s failed after %d attempts: %w", bucket, object, attempts, lastErr)
}

func downloadOnce(ctx context.Context, client *storage.Client, bucket, object, destPath string) error {
	gcsReader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer gcsReader.Close()
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, gcsReader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}

// ReadObject reads an entire GCS object into memory. Extracted text for even
// very large budget documents stays in the low tens of megabytes.
func ReadObject(ctx context.Context, client *storage.Client, bucket, object string) (string, error) {
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	return string(content), nil
}
