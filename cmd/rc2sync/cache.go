package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
)

func newCacheCmd() *cobra.Command {
	var wsID int
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the local workspace cache",
	}
	cmd.PersistentFlags().IntVarP(&wsID, "workspace", "w", 0, "workspace id")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List cached files and whether they are current",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCacheList(cmd, wsID)
			},
		},
		&cobra.Command{
			Use:   "flush FILE_ID",
			Short: "Discard and re-download one file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				fileID, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid file id %q", args[0])
				}
				return runCacheFlush(cmd, wsID, fileID)
			},
		},
		&cobra.Command{
			Use:   "sync",
			Short: "Bring every cached file up to date",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCacheSync(cmd, wsID)
			},
		},
		&cobra.Command{
			Use:   "clear-images",
			Short: "Forget the image metadata saved for a workspace",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runClearImages(cmd, wsID)
			},
		},
	)
	return cmd
}

func runCacheList(cmd *cobra.Command, wsID int) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()
	ws, err := a.workspace(wsID)
	if err != nil {
		return err
	}
	files, err := a.fileCache(ws)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tSIZE\tSTATUS")
	for _, f := range a.model.Files(ws.ID) {
		status := "missing"
		switch {
		case files.IsCurrent(f):
			status = "current"
		case files.IsCached(f):
			status = "stale"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", f.ID, f.Name, f.Version, f.SizeBytes, status)
	}
	return tw.Flush()
}

func runCacheFlush(cmd *cobra.Command, wsID, fileID int) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()
	ws, err := a.workspace(wsID)
	if err != nil {
		return err
	}
	file := a.model.File(ws.ID, fileID)
	if file == nil {
		return fmt.Errorf("file %d not found in %s", fileID, ws.Name)
	}
	files, err := a.fileCache(ws)
	if err != nil {
		return err
	}
	tracker, err := files.Flush(cmd.Context(), file)
	if err != nil {
		return err
	}
	return showProgress(cmd.Context(), cmd.ErrOrStderr(), file.Name, tracker)
}

func runCacheSync(cmd *cobra.Command, wsID int) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()
	ws, err := a.workspace(wsID)
	if err != nil {
		return err
	}
	files, err := a.fileCache(ws)
	if err != nil {
		return err
	}
	tracker, err := files.CacheAll(cmd.Context())
	if err != nil {
		return err
	}
	return showProgress(cmd.Context(), cmd.ErrOrStderr(), "caching "+ws.Name, tracker)
}

func runClearImages(cmd *cobra.Command, wsID int) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()
	ws, err := a.workspace(wsID)
	if err != nil {
		return err
	}
	store, err := a.stateStore()
	if err != nil {
		return err
	}
	defer store.Close()

	saved, err := store.Load(ws.ID)
	if err != nil {
		return err
	}
	images, err := a.imageCache(ws, saved)
	if err != nil {
		return err
	}
	n := len(images.State().Images)
	images.Clear()
	saved.ImageCacheState = images.State()
	if err := store.Save(ws.ID, saved); err != nil {
		return err
	}
	logging.Info("cleared image metadata", logging.WorkspaceID(ws.ID), logging.Int("images", n))
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %d images\n", n)
	return nil
}
