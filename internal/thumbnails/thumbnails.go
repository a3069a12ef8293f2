// Package thumbnails renders and caches square JPEG previews of library
// images.
package thumbnails

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/singleflight"

	"polaris/internal/models"
)

// Outcome labels what a Thumbnail call did, for metrics.
type Outcome string

const (
	OutcomeHit       Outcome = "hit"
	OutcomeGenerated Outcome = "generated"
	OutcomeFailed    Outcome = "failed"
)

// Observer is notified of every Thumbnail call.
type Observer func(Outcome)

// Options configures a Generator.
type Options struct {
	Logger   *slog.Logger
	Quality  int
	Observer Observer
}

// Generator produces thumbnails on demand and stores them in a cache
// directory keyed by source identity and requested size. It is safe for
// concurrent use; concurrent requests for the same thumbnail share one
// rendering.
type Generator struct {
	dir      string
	quality  int
	logger   *slog.Logger
	observer Observer
	group    singleflight.Group
}

// DefaultQuality is the JPEG quality of generated thumbnails.
const DefaultQuality = 85

// New prepares the cache directory.
func New(dir string, opts Options) (*Generator, error) {
	const op = "thumbnails.New"
	if dir == "" {
		return nil, models.E(models.KindCacheDirectory, op, errors.New("cache directory not configured"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, models.E(models.KindCacheDirectory, op, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, models.E(models.KindCacheDirectory, op, err)
	}
	if !info.IsDir() {
		return nil, models.E(models.KindCacheDirectory, op, fmt.Errorf("%s is not a directory", dir))
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{dir: dir, quality: quality, logger: logger, observer: opts.Observer}, nil
}

// Dir returns the cache directory.
func (g *Generator) Dir() string {
	return g.dir
}

// Thumbnail returns the path of a cached thumbnail of realPath no larger
// than maxDimension on either side, rendering it first when needed.
func (g *Generator) Thumbnail(ctx context.Context, realPath string, maxDimension int) (string, error) {
	const op = "thumbnails.Thumbnail"
	if maxDimension <= 0 {
		return "", models.E(models.KindImageProcessing, op, fmt.Errorf("invalid dimension %d", maxDimension))
	}
	info, err := os.Stat(realPath)
	if err != nil {
		g.observe(OutcomeFailed)
		return "", models.E(models.KindIO, op, err)
	}
	target := filepath.Join(g.dir, cacheKey(realPath, info, maxDimension)+".jpg")

	if _, err := os.Stat(target); err == nil {
		g.observe(OutcomeHit)
		return target, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		g.observe(OutcomeFailed)
		return "", models.E(models.KindCacheDirectory, op, err)
	}

	result := g.group.DoChan(target, func() (any, error) {
		if _, err := os.Stat(target); err == nil {
			return target, nil
		}
		if err := g.render(realPath, target, maxDimension); err != nil {
			return "", err
		}
		g.logger.Debug("thumbnail generated", "source", realPath, "max_dimension", maxDimension)
		return target, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-result:
		if res.Err != nil {
			g.observe(OutcomeFailed)
			return "", res.Err
		}
		g.observe(OutcomeGenerated)
		return res.Val.(string), nil
	}
}

func (g *Generator) observe(outcome Outcome) {
	if g.observer != nil {
		g.observer(outcome)
	}
}

// cacheKey changes whenever the source is replaced or modified.
func cacheKey(realPath string, info fs.FileInfo, maxDimension int) string {
	h := sha256.New()
	h.Write([]byte(filepath.Clean(realPath)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(info.Size(), 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(info.ModTime().UnixNano(), 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(maxDimension)))
	return hex.EncodeToString(h.Sum(nil))
}
