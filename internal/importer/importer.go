// Package importer uploads local files into a workspace and seeds the file
// cache with their contents.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/progress"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
)

var (
	ErrNoFiles      = errors.New("no files to import")
	ErrUploadFailed = errors.New("upload failed")
)

const defaultConcurrency = 4

// FileToImport is a local file and the name it should have in the workspace.
type FileToImport struct {
	Path       string
	UniqueName string
}

// Name returns UniqueName, or the base name of Path when it is empty.
func (f FileToImport) Name() string {
	if f.UniqueName != "" {
		return f.UniqueName
	}
	return filepath.Base(f.Path)
}

// Uploader creates workspace files. *rest.Client satisfies it.
type Uploader interface {
	UploadFile(ctx context.Context, workspaceID int, name string, r io.Reader, size int64, onProgress func(sent int64)) (*models.File, error)
}

// Store receives the local copy of every uploaded file.
type Store interface {
	StoreFrom(file *models.File, srcPath string) error
}

type Config struct {
	WorkspaceID int
	Uploader    Uploader
	Cache       Store
	Concurrency int
}

type Importer struct {
	workspaceID int
	uploader    Uploader
	cache       Store
	concurrency int
}

func New(cfg Config) *Importer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Importer{
		workspaceID: cfg.WorkspaceID,
		uploader:    cfg.Uploader,
		cache:       cfg.Cache,
		concurrency: cfg.Concurrency,
	}
}

// Import is a running batch of uploads.
type Import struct {
	tracker *progress.Tracker
	files   []FileToImport
	sizes   []int64
	total   int64

	mu       sync.Mutex
	sent     []int64
	imported []*models.File
}

// Start sizes every file and begins uploading them in the background.
// A file that cannot be stat'ed fails Start before anything is sent.
// An upload failure fails the import but does not stop the other uploads.
func (im *Importer) Start(ctx context.Context, files []FileToImport) (*Import, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	imp := &Import{
		tracker:  progress.New(),
		files:    files,
		sizes:    make([]int64, len(files)),
		sent:     make([]int64, len(files)),
		imported: make([]*models.File, len(files)),
	}
	for i, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			return nil, fmt.Errorf("import %s: %w", f.Path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("import %s: is a directory", f.Path)
		}
		imp.sizes[i] = info.Size()
		imp.total += info.Size()
	}

	logging.Info("starting import",
		logging.WorkspaceID(im.workspaceID),
		logging.Int("files", len(files)),
		logging.Int64("bytes", imp.total))

	go im.run(ctx, imp)
	return imp, nil
}

func (im *Importer) run(ctx context.Context, imp *Import) {
	var g errgroup.Group
	g.SetLimit(im.concurrency)
	for i := range imp.files {
		i := i
		g.Go(func() error {
			return im.upload(ctx, imp, i)
		})
	}
	err := g.Wait()
	if err != nil {
		logging.Warn("import failed", logging.WorkspaceID(im.workspaceID), logging.Err(err))
	}
	imp.tracker.Finish(err)
}

func (im *Importer) upload(ctx context.Context, imp *Import, i int) error {
	f := imp.files[i]
	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUploadFailed, f.Name(), err)
	}
	defer src.Close()

	file, err := im.uploader.UploadFile(ctx, im.workspaceID, f.Name(), src, imp.sizes[i], func(sent int64) {
		imp.report(i, sent)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUploadFailed, f.Name(), err)
	}
	imp.report(i, imp.sizes[i])

	if im.cache != nil {
		if err := im.cache.StoreFrom(file, f.Path); err != nil {
			logging.Warn("failed to cache imported file", logging.String("name", f.Name()), logging.Err(err))
		}
	}

	imp.mu.Lock()
	imp.imported[i] = file
	imp.mu.Unlock()
	return nil
}

func (imp *Import) report(i int, sent int64) {
	imp.mu.Lock()
	imp.sent[i] = min(sent, imp.sizes[i])
	var sum int64
	for _, n := range imp.sent {
		sum += n
	}
	imp.mu.Unlock()

	frac := float64(sum) / float64(imp.total)
	if math.IsNaN(frac) || math.IsInf(frac, 0) {
		frac = 1
	}
	imp.tracker.Report(frac)
}

// Progress reports the fraction of all bytes sent. It finishes once every
// upload has completed or failed.
func (imp *Import) Progress() *progress.Tracker {
	return imp.tracker
}

// Files returns the workspace files created so far, in input order.
func (imp *Import) Files() []*models.File {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	out := make([]*models.File, 0, len(imp.imported))
	for _, f := range imp.imported {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// Wait blocks until the import finishes and returns the created files.
func (imp *Import) Wait(ctx context.Context) ([]*models.File, error) {
	if err := imp.tracker.Wait(ctx); err != nil {
		return imp.Files(), err
	}
	return imp.Files(), nil
}
