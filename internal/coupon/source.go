package coupon

import (
	"fmt"
	"path/filepath"
	"strings"

	"sgl-admin/internal/model"
)

// S3Scheme marks a source naming an exact S3 object key.
const S3Scheme = "s3://"

// CleanSource normalises a client supplied import source. Local paths and S3
// keys must both be relative and stay below their root once cleaned.
func CleanSource(source string) (string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", model.ErrMissingSource
	}

	rest, isS3 := strings.CutPrefix(source, S3Scheme)

	cleaned, ok := localPath(rest)
	if !ok {
		return "", model.ErrInvalidSource.WithMessage(fmt.Sprintf("Code source %q escapes the import directory", source))
	}

	if isS3 {
		return S3Scheme + filepath.ToSlash(cleaned), nil
	}
	return cleaned, nil
}

// localPath cleans p and reports whether it names something strictly below
// the directory it is resolved against.
func localPath(p string) (string, bool) {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) {
		return "", false
	}
	cleaned := filepath.Clean(p)
	if cleaned == "." || !filepath.IsLocal(cleaned) {
		return "", false
	}
	return cleaned, true
}
