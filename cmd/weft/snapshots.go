package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weft-ai/weft/internal/snapshot"
)

var snapshotsDB string

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect stored task snapshots",
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list [task-id]",
	Short: "List snapshots, optionally for one task",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSnapshotStore()
		if err != nil {
			return err
		}
		defer store.Close()

		taskIDs := args
		if len(taskIDs) == 0 {
			taskIDs, err = store.Tasks()
			if err != nil {
				return err
			}
		}
		if len(taskIDs) == 0 {
			fmt.Println("No snapshots stored.")
			return nil
		}

		for _, taskID := range taskIDs {
			snaps, err := store.ListByTask(taskID)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", color.CyanString("task"), taskID)
			for _, s := range snaps {
				fmt.Printf("  %s  %s  %-11s  %d msgs, %d tokens\n",
					s.ID, s.Timestamp.Format("2006-01-02 15:04:05"),
					s.Metadata.Reason, s.Metadata.MessageCount, s.Metadata.TotalTokens)
			}
		}
		return nil
	},
}

var snapshotsShowCmd = &cobra.Command{
	Use:   "show <snapshot-id>",
	Short: "Show one snapshot in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSnapshotStore()
		if err != nil {
			return err
		}
		defer store.Close()

		s, err := store.Get(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Snapshot %s\n", s.ID)
		fmt.Printf("  Task:      %s\n", s.TaskID)
		fmt.Printf("  Taken:     %s\n", s.Timestamp.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Reason:    %s\n", s.Metadata.Reason)
		fmt.Printf("  Memory:    %d messages, %d tokens\n", s.Metadata.MessageCount, s.Metadata.TotalTokens)
		if s.ExecutionState.CurrentAgent != "" {
			fmt.Printf("  Current:   %s\n", s.ExecutionState.CurrentAgent)
		}
		if len(s.ExecutionState.CompletedAgents) > 0 {
			fmt.Printf("  Completed: %v\n", s.ExecutionState.CompletedAgents)
		}
		if len(s.ExecutionState.FailedAgents) > 0 {
			fmt.Printf("  Failed:    %v\n", s.ExecutionState.FailedAgents)
		}
		for _, as := range s.AgentSnapshots {
			line := fmt.Sprintf("  agent %-16s %s/%s", as.AgentID, as.WorkflowStatus, as.ExecutionStatus)
			if as.ConsecutiveErrors > 0 {
				line += fmt.Sprintf("  (%d consecutive errors: %s)", as.ConsecutiveErrors, as.LastError)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func openSnapshotStore() (*snapshot.Store, error) {
	path := snapshotsDB
	if path == "" {
		path = snapshot.DefaultStorePath()
	}
	return snapshot.OpenStore(path)
}

func init() {
	snapshotsCmd.PersistentFlags().StringVar(&snapshotsDB, "db", "", "Snapshot database path (defaults to the XDG data dir)")
	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsShowCmd)
}
