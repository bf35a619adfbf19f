// Package filecache keeps a per-workspace disk mirror of workspace files.
// Cached copies carry their server version and a SHA-256 checksum as
// extended attributes so they can be validated without a network round trip.
package filecache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/metrics"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/progress"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/reconcile"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/rest"
)

var (
	ErrDownloadAlreadyInProgress = errors.New("download already in progress")
	ErrDownloadFailed            = errors.New("failed to download file")
	ErrSaveFailed                = errors.New("failed to save file")
	ErrVersionMismatch           = errors.New("cached file version mismatch")
	ErrChecksumMismatch          = errors.New("cached file checksum mismatch")
)

// Fetcher downloads file contents. A non-empty versionTag is a precondition:
// when the server copy matches, FetchFile returns rest.ErrNotModified.
type Fetcher interface {
	FetchFile(ctx context.Context, fileID int, versionTag string) (io.ReadCloser, int64, error)
}

// Pusher sends edited contents to the server and returns the file at its new version.
type Pusher interface {
	PushFile(ctx context.Context, file *models.File, contents []byte) (*models.File, error)
}

// FileSource lists the current files of a workspace.
type FileSource interface {
	Files(workspaceID int) []*models.File
}

// Config configures a Cache.
type Config struct {
	// Dir is the root cache directory; files go in Dir/<workspace uniqueId>.
	Dir         string
	Workspace   *models.Workspace
	Files       FileSource
	Fetcher     Fetcher
	Pusher      Pusher
	Concurrency int
}

// Cache is the disk mirror of one workspace.
type Cache struct {
	dir         string
	workspaceID int
	files       FileSource
	fetcher     Fetcher
	sem         chan struct{}

	mu     sync.Mutex
	pusher Pusher
	tasks  map[int]*task
	all    *bulkSync
}

// task is one in-flight download. Its fields are guarded by Cache.mu.
type task struct {
	file        *models.File
	versionTag  string
	transferred int64
	expected    int64
	tracker     *progress.Tracker
	bulk        *bulkSync
}

// bulkSync tracks a CacheAll pass.
type bulkSync struct {
	tracker   *progress.Tracker
	tasks     []*task
	remaining int
	err       error
}

// report publishes Σtransferred/Σexpected. Callers hold Cache.mu.
func (b *bulkSync) report() {
	var done, total int64
	for _, t := range b.tasks {
		done += t.transferred
		total += t.expected
	}
	if total > 0 {
		b.tracker.Report(float64(done) / float64(total))
	}
}

// New creates the cache directory for cfg.Workspace.
func New(cfg Config) (*Cache, error) {
	if cfg.Workspace == nil || cfg.Workspace.UniqueID == "" {
		return nil, fmt.Errorf("file cache requires a workspace with a unique id")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	dir := filepath.Join(cfg.Dir, cfg.Workspace.UniqueID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:         dir,
		workspaceID: cfg.Workspace.ID,
		files:       cfg.Files,
		fetcher:     cfg.Fetcher,
		pusher:      cfg.Pusher,
		sem:         make(chan struct{}, cfg.Concurrency),
		tasks:       make(map[int]*task),
	}, nil
}

// Dir returns the workspace cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// SetPusher replaces the collaborator used by Save.
func (c *Cache) SetPusher(p Pusher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pusher = p
}

// CachedPath returns where file is or will be stored.
func (c *Cache) CachedPath(file *models.File) string {
	name := strconv.Itoa(file.ID)
	if ext := file.Extension(); ext != "" {
		name += "." + ext
	}
	return filepath.Join(c.dir, name)
}

// IsCached reports whether a non-empty copy of file exists.
func (c *Cache) IsCached(file *models.File) bool {
	info, err := os.Stat(c.CachedPath(file))
	return err == nil && info.Size() > 0
}

// IsCurrent reports whether the cached copy is of file's current version.
func (c *Cache) IsCurrent(file *models.File) bool {
	if !c.IsCached(file) {
		return false
	}
	attrs, ok := readAttrs(c.CachedPath(file))
	return ok && attrs.Version == file.Version
}

// Validate checks the cached copy's version and checksum against its
// stored attributes.
func (c *Cache) Validate(file *models.File) error {
	path := c.CachedPath(file)
	attrs, ok := readAttrs(path)
	if !ok || attrs.Version != file.Version {
		return fmt.Errorf("%w: file %d", ErrVersionMismatch, file.ID)
	}
	sum, err := checksum(path)
	if err != nil {
		return err
	}
	if sum != attrs.SHA256 {
		return fmt.Errorf("%w: file %d", ErrChecksumMismatch, file.ID)
	}
	return nil
}

// ActiveTasks returns the number of in-flight downloads.
func (c *Cache) ActiveTasks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// Flush re-downloads one file. The cached copy is kept and revalidated with
// a conditional request only when it carries the file's current version;
// otherwise it is deleted first.
func (c *Cache) Flush(ctx context.Context, file *models.File) (*progress.Tracker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.all != nil || c.tasks[file.ID] != nil {
		return nil, ErrDownloadAlreadyInProgress
	}
	t := c.newTaskLocked(file, c.conditionalTag(file))
	go c.run(ctx, t)
	return t.tracker, nil
}

// Recache deletes the cached copy and downloads it again. If a download of
// the file is already running, its tracker is returned instead.
func (c *Cache) Recache(ctx context.Context, file *models.File) *progress.Tracker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t := c.tasks[file.ID]; t != nil {
		return t.tracker
	}
	c.removeFiles(c.CachedPath(file))
	t := c.newTaskLocked(file, "")
	go c.run(ctx, t)
	return t.tracker
}

// CacheAll brings every workspace file up to date. All tasks are registered
// before any download starts. The first failure fails the returned tracker
// but sibling downloads continue. While a pass is active, calling CacheAll
// again returns the same tracker.
func (c *Cache) CacheAll(ctx context.Context) (*progress.Tracker, error) {
	if c.files == nil {
		return nil, fmt.Errorf("file cache has no file source")
	}
	files := c.files.Files(c.workspaceID)

	c.mu.Lock()
	if c.all != nil {
		tr := c.all.tracker
		c.mu.Unlock()
		return tr, nil
	}
	if len(files) == 0 {
		c.mu.Unlock()
		return progress.Completed(), nil
	}

	bulk := &bulkSync{tracker: progress.New()}
	var created []*task
	for _, f := range files {
		t := c.tasks[f.ID]
		if t == nil {
			t = c.newTaskLocked(f, c.conditionalTag(f))
			created = append(created, t)
		}
		t.bulk = bulk
		bulk.tasks = append(bulk.tasks, t)
	}
	bulk.remaining = len(bulk.tasks)
	c.all = bulk
	c.mu.Unlock()

	logging.Info("caching workspace files",
		logging.WorkspaceID(c.workspaceID),
		logging.Int("files", len(files)),
		logging.Int("new_tasks", len(created)),
	)
	for _, t := range created {
		go c.run(ctx, t)
	}
	return bulk.tracker, nil
}

// conditionalTag returns the precondition for re-fetching file, deleting a
// stale copy when there is nothing to revalidate. Callers hold mu.
func (c *Cache) conditionalTag(file *models.File) string {
	path := c.CachedPath(file)
	if c.IsCached(file) {
		if attrs, ok := readAttrs(path); ok && attrs.Version == file.Version {
			return file.VersionTag()
		}
	}
	c.removeFiles(path)
	return ""
}

func (c *Cache) newTaskLocked(file *models.File, versionTag string) *task {
	t := &task{
		file:       file.Clone(),
		versionTag: versionTag,
		expected:   file.SizeBytes,
		tracker:    progress.New(),
	}
	c.tasks[file.ID] = t
	metrics.SetCacheTasksActive(len(c.tasks))
	return t
}

func (c *Cache) run(ctx context.Context, t *task) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		c.finish(t.file.ID, ctx.Err())
		return
	}
	defer func() { <-c.sem }()

	c.finish(t.file.ID, c.download(ctx, t))
}

func (c *Cache) download(ctx context.Context, t *task) error {
	id := t.file.ID
	body, size, err := c.fetcher.FetchFile(ctx, id, t.versionTag)
	if errors.Is(err, rest.ErrNotModified) {
		metrics.RecordFileDownload("not_modified", 0)
		logging.Debug("cached file not modified", logging.FileID(id))
		c.progress(id, -1, 0)
		return nil
	}
	if err != nil {
		metrics.RecordFileDownload("error", 0)
		return fmt.Errorf("%w: file %d: %w", ErrDownloadFailed, id, err)
	}
	defer body.Close()

	counter := &countingWriter{fn: func(n int64) { c.progress(id, n, size) }}
	n, err := c.writeFile(t.file, io.TeeReader(body, counter))
	if err != nil {
		metrics.RecordFileDownload("error", n)
		return fmt.Errorf("%w: file %d: %w", ErrDownloadFailed, id, err)
	}
	metrics.RecordFileDownload("downloaded", n)
	return nil
}

// progress records bytes transferred for a task. transferred < 0 marks the
// task complete; size > 0 replaces the expected byte count.
func (c *Cache) progress(fileID int, transferred, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.tasks[fileID]
	if t == nil {
		return
	}
	if size > 0 {
		t.expected = size
	}
	if transferred < 0 {
		transferred = t.expected
	}
	t.transferred = transferred
	if t.expected > 0 {
		t.tracker.Report(float64(t.transferred) / float64(t.expected))
	}
	if t.bulk != nil {
		t.bulk.report()
	}
}

// finish removes a completed task and delivers its result. A task that is
// not in the map is an internal invariant violation.
func (c *Cache) finish(fileID int, err error) error {
	c.mu.Lock()
	t, ok := c.tasks[fileID]
	if !ok {
		c.mu.Unlock()
		ierr := fmt.Errorf("cache task for file %d: %w", fileID, reconcile.ErrInternalInvariant)
		logging.Error("cache task completed without a task entry", logging.Err(ierr))
		return ierr
	}
	delete(c.tasks, fileID)
	metrics.SetCacheTasksActive(len(c.tasks))

	var bulkDone *bulkSync
	if b := t.bulk; b != nil {
		if err == nil {
			t.transferred = max(t.transferred, t.expected)
			b.report()
		} else if b.err == nil {
			b.err = err
		}
		b.remaining--
		if b.remaining == 0 {
			if c.all == b {
				c.all = nil
			}
			bulkDone = b
		}
	}
	c.mu.Unlock()

	if err != nil {
		logging.Warn("file download failed", logging.FileID(fileID), logging.Err(err))
	}
	t.tracker.Finish(err)
	if t.bulk != nil && err != nil {
		t.bulk.tracker.Finish(err)
	}
	if bulkDone != nil {
		bulkDone.tracker.Finish(bulkDone.err)
	}
	return nil
}

// writeFile streams r into the cached path for file via a temp file and an
// atomic rename, then records version and checksum.
func (c *Cache) writeFile(file *models.File, r io.Reader) (int64, error) {
	path := c.CachedPath(file)
	tmp, err := os.CreateTemp(c.dir, ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	hash := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hash), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return written, fmt.Errorf("write content: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return written, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return written, fmt.Errorf("rename temp file: %w", err)
	}

	attrs := fileAttrs{Version: file.Version, SHA256: hex.EncodeToString(hash.Sum(nil))}
	if err := writeAttrs(path, attrs); err != nil {
		return written, fmt.Errorf("write attributes: %w", err)
	}
	return written, nil
}

// Store caches data as the contents of file at its current version.
func (c *Cache) Store(file *models.File, data []byte) error {
	if _, err := c.writeFile(file, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSaveFailed, file.Name, err)
	}
	return nil
}

// StoreFrom caches the contents of a local file as file.
func (c *Cache) StoreFrom(file *models.File, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSaveFailed, file.Name, err)
	}
	defer src.Close()
	if _, err := c.writeFile(file, src); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSaveFailed, file.Name, err)
	}
	return nil
}

// Copy caches the cached contents of src as dst.
func (c *Cache) Copy(src, dst *models.File) error {
	return c.StoreFrom(dst, c.CachedPath(src))
}

// Remove deletes the cached copy of file.
func (c *Cache) Remove(file *models.File) {
	c.removeFiles(c.CachedPath(file))
}

func (c *Cache) removeFiles(path string) {
	for _, p := range []string{path, sidecarPath(path)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logging.Info("failed to remove cached file", logging.String("path", p), logging.Err(err))
		}
	}
}

// Contents returns the cached contents of file, waiting for an active bulk
// sync first and re-downloading a missing or empty copy.
func (c *Cache) Contents(ctx context.Context, file *models.File) ([]byte, error) {
	c.mu.Lock()
	all := c.all
	c.mu.Unlock()
	if all != nil {
		if err := all.tracker.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if !c.IsCached(file) {
		if err := c.Recache(ctx, file).Wait(ctx); err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(c.CachedPath(file))
	if err != nil {
		return nil, fmt.Errorf("read cached %s: %w", file.Name, err)
	}
	return data, nil
}

// HandleChange applies a pushed file change to the disk mirror. Updates to a
// file whose cached copy is stale start a flush; deletes remove the copy.
func (c *Cache) HandleChange(ctx context.Context, change reconcile.ChangeType, file *models.File) error {
	switch change {
	case reconcile.Delete:
		c.Remove(file)
	case reconcile.Update:
		if !c.IsCached(file) || c.IsCurrent(file) {
			return nil
		}
		if _, err := c.Flush(ctx, file); err != nil {
			if errors.Is(err, ErrDownloadAlreadyInProgress) {
				logging.Debug("skipping flush for changed file", logging.FileID(file.ID))
				return nil
			}
			return err
		}
	}
	return nil
}

// Save pushes contents to the server and, on success, rewrites the cached
// copy at the new version. The updated file is returned.
func (c *Cache) Save(ctx context.Context, file *models.File, contents []byte) (*models.File, error) {
	c.mu.Lock()
	pusher := c.pusher
	c.mu.Unlock()
	if pusher == nil {
		return nil, fmt.Errorf("%w: no pusher configured", ErrSaveFailed)
	}

	updated, err := pusher.PushFile(ctx, file, contents)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSaveFailed, file.Name, err)
	}
	if err := c.Store(updated, contents); err != nil {
		return nil, err
	}
	logging.Info("file saved", logging.FileID(updated.ID), logging.Int("version", updated.Version))
	return updated, nil
}

// Entry describes one cached file on disk.
type Entry struct {
	FileID  int
	Path    string
	Size    int64
	Version int
	Valid   bool
}

// List returns the cached files ordered by id.
func (c *Cache) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, sidecarSuffix) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(c.dir, name)
		e := Entry{FileID: id, Path: path, Size: info.Size()}
		if attrs, ok := readAttrs(path); ok {
			e.Version = attrs.Version
			if sum, err := checksum(path); err == nil {
				e.Valid = sum == attrs.SHA256
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FileID < entries[j].FileID })
	return entries, nil
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type countingWriter struct {
	n  int64
	fn func(int64)
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	w.fn(w.n)
	return len(p), nil
}
