package objectstore

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/gradepilot/backend/internal/errdefs"
)

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".pdf": true, ".txt": true, ".html": true, ".htm": true,
}

// GenerateKey builds a collision-resistant object key as <uuid>.<ext>,
// keeping only the original extension.
func GenerateKey(filename string) (string, error) {
	extension := strings.ToLower(path.Ext(filename))
	if extension == "" {
		return "", fmt.Errorf("file %q has no extension: %w", filename, errdefs.ErrValidation)
	}
	if !allowedExtensions[extension] {
		return "", fmt.Errorf("file extension %s not allowed: %w", extension, errdefs.ErrValidation)
	}

	return uuid.New().String() + extension, nil
}
