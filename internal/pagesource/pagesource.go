// Package pagesource provides the extracted page images a scene is built
// from. Rasterization itself happens upstream; sources here load the ordered
// image set for a scene from wherever the extractor put it.
package pagesource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/panelvox/panelvox/pkg/types"
)

// Source loads the ordered page images for one scene.
type Source interface {
	// Pages returns the scene's page images ordered by page number. An empty
	// result is an error: a scene without pages cannot be analyzed.
	Pages(ctx context.Context, scene string) ([]types.PageImage, error)
}

// pagePattern matches extractor output files: {base}_page_{n}.png (or .jpg).
var pagePattern = regexp.MustCompile(`^(.+)_page_(\d+)\.(png|jpg|jpeg)$`)

// Directory serves page images from a local directory of extractor output.
type Directory struct {
	log *slog.Logger
	dir string
}

var _ Source = (*Directory)(nil)

// NewDirectory creates a Directory source rooted at dir.
func NewDirectory(dir string, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		log: log.With("component", "pagesource"),
		dir: dir,
	}
}

// Pages implements Source. Only files whose base matches scene are loaded.
func (d *Directory) Pages(ctx context.Context, scene string) ([]types.PageImage, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("pagesource: read %s: %w", d.dir, err)
	}

	var pages []types.PageImage
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := pagePattern.FindStringSubmatch(entry.Name())
		if m == nil || m[1] != scene {
			continue
		}
		number, err := strconv.Atoi(m[2])
		if err != nil || number < 1 {
			continue
		}
		path := filepath.Join(d.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("pagesource: read page %d: %w", number, err)
		}
		pages = append(pages, types.PageImage{
			Number:   number,
			Path:     path,
			Data:     data,
			MIMEType: mimeFor(m[3]),
		})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("pagesource: no pages for scene %q in %s", scene, d.dir)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	d.log.Debug("pages loaded", "scene", scene, "count", len(pages))
	return pages, nil
}

// Cleanup deletes the on-disk files behind the given pages. Called only after
// a scene has been persisted; a failed delete is logged, never raised.
func Cleanup(log *slog.Logger, pages []types.PageImage) {
	if log == nil {
		log = slog.Default()
	}
	for _, page := range pages {
		if page.Path == "" {
			continue
		}
		if err := os.Remove(page.Path); err != nil && !os.IsNotExist(err) {
			log.Warn("page image cleanup failed", "path", page.Path, "error", err)
		}
	}
}

func mimeFor(ext string) string {
	if strings.HasPrefix(strings.ToLower(ext), "jp") {
		return "image/jpeg"
	}
	return "image/png"
}
