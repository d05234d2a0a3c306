// Package artifact publishes generated node code to a directory or an S3
// bucket.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dd0wney/cluso-apx/pkg/metrics"
)

// ErrInvalidName is returned for an empty name or one that leaves its prefix
var ErrInvalidName = errors.New("artifact: invalid name")

// Publisher stores one named file
type Publisher interface {
	Publish(ctx context.Context, name string, content []byte) error
	// Location describes where name ends up, for logs
	Location(name string) string
}

// Open returns an S3Publisher for s3://bucket/prefix targets and a
// DirPublisher for anything else
func Open(ctx context.Context, target string) (Publisher, error) {
	if strings.HasPrefix(target, "s3://") {
		cfg, err := ParseS3URL(target)
		if err != nil {
			return nil, err
		}
		return NewS3Publisher(ctx, cfg)
	}
	return NewDirPublisher(target)
}

// PublishFiles reads each path and publishes it under its base name. Every
// upload is counted in registry when it is not nil.
func PublishFiles(ctx context.Context, p Publisher, registry *metrics.Registry, paths ...string) error {
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		err = p.Publish(ctx, filepath.Base(path), content)
		if registry != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			registry.RecordArtifactUpload(status)
		}
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", path, err)
		}
	}
	return nil
}

// cleanName rejects names that are empty or escape the target
func cleanName(name string) (string, error) {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if name == "" {
		return "", ErrInvalidName
	}
	clean := filepath.ToSlash(filepath.Clean(name))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrInvalidName, name)
	}
	return clean, nil
}

// contentType returns the MIME type of a generated file
func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".c", ".h":
		return "text/x-c; charset=utf-8"
	case ".apx", ".yaml", ".yml":
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}
