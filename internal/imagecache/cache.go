// Package imagecache serves generated session images from memory, disk or
// the network, in that order. Disk is the durable copy; the memory tier is a
// byte-bounded LRU.
package imagecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/metrics"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
)

var (
	ErrFailedToLoadFromNetwork = errors.New("failed to load image from network")
	ErrHostMismatch            = errors.New("image cache state belongs to a different host")
)

// DefaultMemoryBudget bounds the memory tier when Config.MemoryBudget is zero.
const DefaultMemoryBudget = 32 << 20

// ImageFetcher downloads image bytes.
type ImageFetcher interface {
	FetchImage(ctx context.Context, workspaceID, imageID int) ([]byte, error)
}

type Config struct {
	// Dir is the root cache directory; images go in Dir/<HostIdentifier>/images.
	Dir            string
	HostIdentifier string
	WorkspaceID    int
	Fetcher        ImageFetcher
	MemoryBudget   int64
}

type memEntry struct {
	data       []byte
	lastAccess uint64
}

// Cache is the image cache for one host.
type Cache struct {
	dir         string
	host        string
	workspaceID int
	fetcher     ImageFetcher
	budget      int64

	mu      sync.Mutex
	meta    map[int]models.SessionImage
	mem     map[int]*memEntry
	memSize int64
	clock   uint64

	loads singleflight.Group
}

// New creates the image directory for cfg.HostIdentifier.
func New(cfg Config) (*Cache, error) {
	if cfg.HostIdentifier == "" {
		return nil, fmt.Errorf("image cache requires a host identifier")
	}
	if cfg.MemoryBudget == 0 {
		cfg.MemoryBudget = DefaultMemoryBudget
	}
	dir := filepath.Join(cfg.Dir, cfg.HostIdentifier, "images")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &Cache{
		dir:         dir,
		host:        cfg.HostIdentifier,
		workspaceID: cfg.WorkspaceID,
		fetcher:     cfg.Fetcher,
		budget:      cfg.MemoryBudget,
		meta:        make(map[int]models.SessionImage),
		mem:         make(map[int]*memEntry),
	}, nil
}

// Dir returns the image directory.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) path(id int) string {
	return filepath.Join(c.dir, strconv.Itoa(id)+".png")
}

// Cache stores images on disk and in memory and records their metadata.
// Images without data only have their metadata recorded.
func (c *Cache) Cache(images []models.SessionImage) error {
	var firstErr error
	for _, img := range images {
		if img.Data != nil {
			if err := writeFile(c.path(img.ID), img.Data); err != nil {
				logging.Warn("failed to write image", logging.ImageID(img.ID), logging.Err(err))
				if firstErr == nil {
					firstErr = err
				}
			}
		}

		c.mu.Lock()
		c.meta[img.ID] = img.WithoutData()
		if img.Data != nil {
			c.putLocked(img.ID, img.Data)
		}
		c.mu.Unlock()
	}
	return firstErr
}

// ImagesForBatch returns the metadata of a batch's images ordered by id.
func (c *Cache) ImagesForBatch(batchID int) []models.SessionImage {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.SessionImage
	for _, img := range c.meta {
		if img.BatchID == batchID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BatchIDs returns the ids of all known batches in ascending order.
func (c *Cache) BatchIDs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[int]bool)
	var ids []int
	for _, img := range c.meta {
		if !seen[img.BatchID] {
			seen[img.BatchID] = true
			ids = append(ids, img.BatchID)
		}
	}
	sort.Ints(ids)
	return ids
}

// Image returns an image's bytes. A disk hit repopulates memory; a network
// hit populates both tiers. Concurrent loads of one id share a single fetch.
// The returned slice belongs to the caller.
func (c *Cache) Image(ctx context.Context, id int) ([]byte, error) {
	c.mu.Lock()
	if e, ok := c.mem[id]; ok {
		c.clock++
		e.lastAccess = c.clock
		c.mu.Unlock()
		metrics.RecordImageLookup("memory")
		return bytes.Clone(e.data), nil
	}
	c.mu.Unlock()

	v, err, _ := c.loads.Do(strconv.Itoa(id), func() (interface{}, error) {
		return c.load(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil
}

func (c *Cache) load(ctx context.Context, id int) ([]byte, error) {
	if data, err := os.ReadFile(c.path(id)); err == nil && len(data) > 0 {
		metrics.RecordImageLookup("disk")
		c.mu.Lock()
		c.putLocked(id, data)
		c.mu.Unlock()
		return data, nil
	}

	metrics.RecordImageLookup("network")
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: image %d: no fetcher", ErrFailedToLoadFromNetwork, id)
	}
	data, err := c.fetcher.FetchImage(ctx, c.workspaceID, id)
	if err != nil {
		return nil, fmt.Errorf("%w: image %d: %w", ErrFailedToLoadFromNetwork, id, err)
	}
	if err := writeFile(c.path(id), data); err != nil {
		logging.Warn("failed to write fetched image", logging.ImageID(id), logging.Err(err))
	}
	c.mu.Lock()
	c.putLocked(id, data)
	c.mu.Unlock()
	return data, nil
}

// putLocked adds data to the memory tier, evicting least recently accessed
// entries to stay within budget. Images larger than the budget are skipped.
// The tier keeps its own copy of data.
func (c *Cache) putLocked(id int, data []byte) {
	size := int64(len(data))
	if size > c.budget {
		return
	}
	if old, ok := c.mem[id]; ok {
		c.memSize -= int64(len(old.data))
		delete(c.mem, id)
	}
	for c.memSize+size > c.budget {
		if !c.evictOldest() {
			break
		}
	}
	c.clock++
	c.mem[id] = &memEntry{data: bytes.Clone(data), lastAccess: c.clock}
	c.memSize += size
	metrics.SetImageMemoryBytes(c.memSize)
}

// evictOldest removes the least recently accessed entry.
// Must be called with lock held.
func (c *Cache) evictOldest() bool {
	oldestID := -1
	var oldest *memEntry
	for id, e := range c.mem {
		if oldest == nil || e.lastAccess < oldest.lastAccess {
			oldest = e
			oldestID = id
		}
	}
	if oldest == nil {
		return false
	}
	c.memSize -= int64(len(oldest.data))
	delete(c.mem, oldestID)
	return true
}

// InMemory reports whether id is resident in the memory tier.
func (c *Cache) InMemory(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.mem[id]
	return ok
}

// MemorySize returns the bytes held by the memory tier.
func (c *Cache) MemorySize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memSize
}

// State returns the metadata table for persistence. It never includes image bytes.
func (c *Cache) State() models.ImageCacheState {
	c.mu.Lock()
	defer c.mu.Unlock()

	images := make([]models.SessionImage, 0, len(c.meta))
	for _, img := range c.meta {
		images = append(images, img)
	}
	models.SortImages(images)
	return models.ImageCacheState{HostIdentifier: c.host, Images: images}
}

// Restore replaces the metadata table with a persisted one. Bytes are loaded
// lazily from disk or the network.
func (c *Cache) Restore(state models.ImageCacheState) error {
	if state.HostIdentifier != "" && state.HostIdentifier != c.host {
		return fmt.Errorf("%w: %q != %q", ErrHostMismatch, state.HostIdentifier, c.host)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = make(map[int]models.SessionImage, len(state.Images))
	for _, img := range state.Images {
		c.meta[img.ID] = img.WithoutData()
	}
	return nil
}

// Clear drops the memory tier and the metadata table. Files on disk are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = make(map[int]models.SessionImage)
	c.mem = make(map[int]*memEntry)
	c.memSize = 0
	metrics.SetImageMemoryBytes(0)
}

func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
