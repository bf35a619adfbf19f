package main

import (
	"errors"
	"fmt"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/filecache"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/imagecache"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/state"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
)

func (a *app) workspace(id int) (*models.Workspace, error) {
	if id <= 0 {
		return nil, errors.New("--workspace is required")
	}
	ws := a.model.Workspace(id)
	if ws == nil {
		return nil, fmt.Errorf("workspace %d not found for %s", id, a.info.User.Login)
	}
	return ws, nil
}

func (a *app) fileCache(ws *models.Workspace) (*filecache.Cache, error) {
	return filecache.New(filecache.Config{
		Dir:         a.cfg.Cache.Dir,
		Workspace:   ws,
		Files:       a.model,
		Fetcher:     a.rest,
		Concurrency: a.cfg.Cache.Concurrency,
	})
}

// imageCache creates the host's image cache and restores the metadata
// persisted in saved. State from another host is ignored.
func (a *app) imageCache(ws *models.Workspace, saved models.SessionState) (*imagecache.Cache, error) {
	images, err := imagecache.New(imagecache.Config{
		Dir:            a.cfg.Cache.Dir,
		HostIdentifier: a.cfg.Host().Identifier(),
		WorkspaceID:    ws.ID,
		Fetcher:        a.rest,
		MemoryBudget:   a.cfg.Cache.ImageMemoryBytes,
	})
	if err != nil {
		return nil, err
	}
	if err := images.Restore(saved.ImageCacheState); err != nil {
		if !errors.Is(err, imagecache.ErrHostMismatch) {
			return nil, err
		}
		logging.Warn("discarding image state from another host", logging.Err(err))
	}
	return images, nil
}

func (a *app) stateStore() (*state.Store, error) {
	return state.Open(a.cfg.State.Path)
}
