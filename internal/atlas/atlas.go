// Package atlas packs block textures into fixed-size pages. Every page is a
// separate GPU texture; a page index doubles as the mesh pool's atlas index.
package atlas

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"golang.org/x/image/draw"
)

// ErrAtlasFull means no page can take another tile. It indicates a packaging
// or configuration defect and is treated as fatal by callers.
var ErrAtlasFull = errors.New("atlas: all pages full")

// TextureSubID identifies a registered tile.
type TextureSubID int32

// TexturePos locates a tile: its page and UV rectangle.
type TexturePos struct {
	AtlasIndex int
	U1, V1     float32
	U2, V2     float32
}

// Lerp maps a tile-local UV (0..1) into the page.
func (p TexturePos) Lerp(u, v float32) (float32, float32) {
	return p.U1 + (p.U2-p.U1)*u, p.V1 + (p.V2-p.V1)*v
}

// Atlas is safe for concurrent use.
type Atlas struct {
	mu        sync.RWMutex
	tileSize  int
	pageSize  int
	maxPages  int
	pages     []*image.RGBA
	positions []TexturePos
	names     map[string]TextureSubID
	nextSlot  int // slot in the last page
	listeners []func(index int)
	logger    *slog.Logger
}

// New creates an atlas of square pages holding square tiles.
func New(tileSize, pageSize, maxPages int, logger *slog.Logger) (*Atlas, error) {
	if tileSize <= 0 || pageSize < tileSize || maxPages <= 0 {
		return nil, fmt.Errorf("atlas: invalid layout tile=%d page=%d pages=%d", tileSize, pageSize, maxPages)
	}
	return &Atlas{
		tileSize: tileSize,
		pageSize: pageSize,
		maxPages: maxPages,
		names:    make(map[string]TextureSubID),
		logger:   logger,
	}, nil
}

func (a *Atlas) slotsPerPage() int {
	n := a.pageSize / a.tileSize
	return n * n
}

// OnPageAdded registers a callback run when a new page is created. It is
// called with the atlas lock released.
func (a *Atlas) OnPageAdded(fn func(index int)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// Register packs img under name, scaling it to the tile size. Registering
// an existing name returns the existing id.
func (a *Atlas) Register(name string, img image.Image) (TextureSubID, error) {
	a.mu.Lock()
	if id, ok := a.names[name]; ok {
		a.mu.Unlock()
		return id, nil
	}

	added := -1
	if len(a.pages) == 0 || a.nextSlot >= a.slotsPerPage() {
		if len(a.pages) >= a.maxPages {
			a.mu.Unlock()
			return 0, fmt.Errorf("%w: cannot place %s in %d pages", ErrAtlasFull, name, a.maxPages)
		}
		a.pages = append(a.pages, image.NewRGBA(image.Rect(0, 0, a.pageSize, a.pageSize)))
		a.nextSlot = 0
		added = len(a.pages) - 1
	}

	pageIdx := len(a.pages) - 1
	perRow := a.pageSize / a.tileSize
	x := (a.nextSlot % perRow) * a.tileSize
	y := (a.nextSlot / perRow) * a.tileSize
	dst := image.Rect(x, y, x+a.tileSize, y+a.tileSize)
	draw.NearestNeighbor.Scale(a.pages[pageIdx], dst, img, img.Bounds(), draw.Src, nil)
	a.nextSlot++

	// Half-texel inset avoids sampling the neighbouring tile.
	ps := float32(a.pageSize)
	inset := float32(0.5)
	pos := TexturePos{
		AtlasIndex: pageIdx,
		U1:         (float32(dst.Min.X) + inset) / ps,
		V1:         (float32(dst.Min.Y) + inset) / ps,
		U2:         (float32(dst.Max.X) - inset) / ps,
		V2:         (float32(dst.Max.Y) - inset) / ps,
	}
	id := TextureSubID(len(a.positions))
	a.positions = append(a.positions, pos)
	a.names[name] = id
	listeners := a.listeners
	a.mu.Unlock()

	if added >= 0 {
		a.logger.Debug("atlas page added", "index", added)
		for _, fn := range listeners {
			fn(added)
		}
	}
	return id, nil
}

// Lookup returns the id registered under name.
func (a *Atlas) Lookup(name string) (TextureSubID, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.names[name]
	return id, ok
}

// Position returns the page and UV rectangle of a tile.
func (a *Atlas) Position(id TextureSubID) TexturePos {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if id < 0 || int(id) >= len(a.positions) {
		return TexturePos{U2: 1, V2: 1}
	}
	return a.positions[id]
}

// PositionOf resolves a texture name directly.
func (a *Atlas) PositionOf(name string) (TexturePos, bool) {
	id, ok := a.Lookup(name)
	if !ok {
		return TexturePos{}, false
	}
	return a.Position(id), true
}

// PageCount returns the number of pages in use.
func (a *Atlas) PageCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.pages)
}

// Page returns the pixels of a page. The image must not be modified.
func (a *Atlas) Page(index int) *image.RGBA {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pages[index]
}

// TileCount returns the number of registered tiles.
func (a *Atlas) TileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.positions)
}

// LoadDir registers every PNG below dir. Tile names drop the extension and
// keep the path relative to dir, e.g. "block/stone".
func (a *Atlas) LoadDir(fsys fs.FS, dir string) (int, error) {
	loaded := 0
	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(path.Ext(p), ".png") {
			return nil
		}
		f, err := fsys.Open(p)
		if err != nil {
			return fmt.Errorf("failed to open texture %s: %w", p, err)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to decode texture %s: %w", p, err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(p, dir+"/"), path.Ext(p))
		if _, err := a.Register(name, img); err != nil {
			return err
		}
		loaded++
		return nil
	})
	return loaded, err
}

// SolidTile returns a tile of one colour with a darker border, used for
// missing textures and generated scenes.
func SolidTile(size int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	edge := color.RGBA{c.R / 2, c.G / 2, c.B / 2, c.A}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x == 0 || y == 0 || x == size-1 || y == size-1 {
				img.SetRGBA(x, y, edge)
			} else {
				img.SetRGBA(x, y, c)
			}
		}
	}
	return img
}
