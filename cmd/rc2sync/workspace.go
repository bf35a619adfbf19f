package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newWorkspaceCmd() *cobra.Command {
	var projectID int
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Create or delete workspaces",
	}
	cmd.PersistentFlags().IntVarP(&projectID, "project", "p", 0, "project id")

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a workspace in a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if a.model.Project(projectID) == nil {
				return fmt.Errorf("project %d not found", projectID)
			}
			result, err := a.rest.CreateWorkspace(cmd.Context(), projectID, args[0])
			if err != nil {
				return err
			}
			a.model.Update(&result.BulkInfo)
			fmt.Fprintf(cmd.OutOrStdout(), "created workspace %d: %s\n", result.WorkspaceID, args[0])
			return nil
		},
	}

	var wsID int
	remove := &cobra.Command{
		Use:   "delete",
		Short: "Delete a workspace and its saved session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if wsID <= 0 {
				return errors.New("--workspace is required")
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			ws, err := a.workspace(wsID)
			if err != nil {
				return err
			}
			if projectID != 0 && ws.ProjectID != projectID {
				return fmt.Errorf("workspace %d is not in project %d", wsID, projectID)
			}
			if err := a.rest.DeleteWorkspace(cmd.Context(), ws.ProjectID, ws.ID); err != nil {
				return err
			}

			store, err := a.stateStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Delete(ws.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted workspace %d: %s\n", ws.ID, ws.Name)
			return nil
		},
	}
	remove.Flags().IntVarP(&wsID, "workspace", "w", 0, "workspace id")

	cmd.AddCommand(create, remove)
	return cmd
}
