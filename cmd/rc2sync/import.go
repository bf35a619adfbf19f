package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/importer"
)

func newImportCmd() *cobra.Command {
	var (
		wsID  int
		names []string
	)
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Upload local files into a workspace",
		Long: `Import uploads files into a workspace and copies them into the local cache.
Use --as to give files a different name on the server, one per file in order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(names) > len(args) {
				return fmt.Errorf("%d names given for %d files", len(names), len(args))
			}
			toImport := make([]importer.FileToImport, len(args))
			for i, path := range args {
				toImport[i] = importer.FileToImport{Path: path}
				if i < len(names) {
					toImport[i].UniqueName = names[i]
				}
			}
			return runImport(cmd, wsID, toImport)
		},
	}
	cmd.Flags().IntVarP(&wsID, "workspace", "w", 0, "workspace id")
	cmd.Flags().StringSliceVar(&names, "as", nil, "server-side names")
	return cmd
}

func runImport(cmd *cobra.Command, wsID int, files []importer.FileToImport) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	ws, err := a.workspace(wsID)
	if err != nil {
		return err
	}
	cache, err := a.fileCache(ws)
	if err != nil {
		return err
	}

	imp := importer.New(importer.Config{
		WorkspaceID: ws.ID,
		Uploader:    a.rest,
		Cache:       cache,
		Concurrency: a.cfg.Cache.Concurrency,
	})
	job, err := imp.Start(ctx, files)
	if err != nil {
		return err
	}
	progressErr := showProgress(ctx, cmd.ErrOrStderr(), "importing", job.Progress())

	imported := job.Files()
	for _, f := range imported {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\tv%d\n", f.ID, f.Name, f.Version)
	}
	if progressErr != nil {
		return fmt.Errorf("imported %d of %d files: %w", len(imported), len(files), progressErr)
	}
	return nil
}
