package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/connection"
)

func newInfoCmd() *cobra.Command {
	var showFiles bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the projects and workspaces of the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			printTree(cmd.OutOrStdout(), a.model, showFiles)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showFiles, "files", "f", false, "list workspace files")
	return cmd
}

func printTree(w io.Writer, model *connection.Model, showFiles bool) {
	user := model.User()
	fmt.Fprintf(w, "%s (user %d)\n", user.Login, user.ID)
	for _, p := range model.Projects() {
		fmt.Fprintf(w, "  project %d: %s\n", p.ID, p.Name)
		for _, ws := range p.Workspaces {
			files := model.Files(ws.ID)
			fmt.Fprintf(w, "    workspace %d: %s (%d files)\n", ws.ID, ws.Name, len(files))
			if !showFiles {
				continue
			}
			for _, f := range files {
				fmt.Fprintf(w, "      %d %s v%d %d bytes\n", f.ID, f.Name, f.Version, f.SizeBytes)
			}
		}
	}
}
