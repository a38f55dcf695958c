package coupon

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"sgl-admin/internal/model"

	"github.com/rs/zerolog"
)

// gzipMagic is the two-byte header of a gzip stream.
var gzipMagic = []byte{0x1f, 0x8b}

// LoaderOption configures a file or S3 loader.
type LoaderOption func(*loaderOptions)

type loaderOptions struct {
	maxCodes int
}

// WithMaxCodes caps the number of distinct codes a single source may hold.
// Zero or negative means no cap.
func WithMaxCodes(n int) LoaderOption {
	return func(o *loaderOptions) {
		o.maxCodes = n
	}
}

func applyLoaderOptions(opts []LoaderOption) loaderOptions {
	var o loaderOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// fileLoader implements Loader for code lists below one local directory.
type fileLoader struct {
	baseDir string
	opts    loaderOptions
	logger  zerolog.Logger
}

// NewFileLoader creates a loader that reads code files below baseDir.
// Paths are resolved relative to baseDir and may not leave it, including
// through symlinks.
func NewFileLoader(baseDir string, logger zerolog.Logger, opts ...LoaderOption) Loader {
	return &fileLoader{
		baseDir: baseDir,
		opts:    applyLoaderOptions(opts),
		logger:  logger.With().Str("component", "code-loader").Str("base_dir", baseDir).Logger(),
	}
}

// Load reads a code file and returns a CodeSet.
// The file is expected to contain one code per line, optionally gzipped.
func (l *fileLoader) Load(ctx context.Context, filePath string) (CodeSet, error) {
	name, ok := localPath(filePath)
	if !ok {
		l.logger.Warn().Str("file", filePath).Msg("rejected code file outside import directory")
		return nil, model.ErrInvalidSource.WithMessage(fmt.Sprintf("Code source %q escapes the import directory", filePath))
	}

	l.logger.Info().Str("file", name).Msg("loading code file")

	root, err := os.OpenRoot(l.baseDir)
	if err != nil {
		l.logger.Error().Err(err).Msg("failed to open import directory")
		return nil, fmt.Errorf("failed to open import directory %s: %w", l.baseDir, err)
	}
	defer root.Close()

	file, err := root.Open(name)
	if err != nil {
		l.logger.Error().Err(err).Str("file", name).Msg("failed to open code file")
		return nil, fmt.Errorf("failed to open code file %s: %w", name, err)
	}
	defer file.Close()

	set, err := readCodes(ctx, file, l.opts.maxCodes)
	if err != nil {
		l.logger.Error().Err(err).Str("file", name).Msg("error reading code file")
		return nil, fmt.Errorf("error reading code file %s: %w", name, err)
	}

	l.logger.Info().
		Str("file", name).
		Int("codes_loaded", set.Size()).
		Msg("code file loaded successfully")

	return set, nil
}

// readCodes scans r line by line, transparently decompressing gzip input.
// It stops with model.ErrTooManyCodes as soon as more than maxCodes distinct
// codes are seen.
func readCodes(ctx context.Context, r io.Reader, maxCodes int) (CodeSet, error) {
	br := bufio.NewReader(r)

	var src io.Reader = br
	if header, err := br.Peek(len(gzipMagic)); err == nil && string(header) == string(gzipMagic) {
		gzipReader, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		src = gzipReader
	}

	set := NewCodeSet(1024).(*orderedCodeSet)

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineCount := 0
	for scanner.Scan() {
		// Check context cancellation periodically
		if lineCount%10_000 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		lineCount++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !set.Add(line) {
			continue
		}
		if maxCodes > 0 && set.Size() > maxCodes {
			return nil, model.ErrTooManyCodes.WithMessage(fmt.Sprintf("Code source holds more than %d codes", maxCodes))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return set, nil
}
