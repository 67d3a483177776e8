package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dukerupert/starchart/internal/database"
	"github.com/dukerupert/starchart/internal/model"
	"github.com/dukerupert/starchart/internal/store"
	"github.com/dukerupert/starchart/internal/task"
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show a child's tasks grouped by what can be done now",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

func init() {
	tasksCmd.Flags().Int64("child", 0, "member ID of the child")
	tasksCmd.MarkFlagRequired("child")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	childID, _ := cmd.Flags().GetInt64("child")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	members := store.NewMemberStore(db)
	child, err := members.GetByID(childID)
	if err != nil {
		return err
	}
	if child == nil || !child.IsChild() {
		return fmt.Errorf("no child with id %d", childID)
	}

	clock := task.SystemClock{Location: loc}
	tasks, err := store.NewTaskStore(db).ListForChild(childID)
	if err != nil {
		return err
	}
	live, err := store.NewCompletionStore(db, clock).LiveByTask(childID)
	if err != nil {
		return err
	}

	now := clock.Now()
	return printPartition(cmd.OutOrStdout(), child, task.PartitionTasks(tasks, live, childID, now), now)
}

func printPartition(out io.Writer, child *model.Member, p task.Partition, now time.Time) error {
	fmt.Fprintf(out, "%s %s: %d stars (%s)\n", child.AvatarEmoji, child.Name, child.StarBalance, now.Format("Mon Jan 2 2006"))

	groups := []struct {
		label string
		tasks []task.TaskWithEligibility
	}{
		{"Available", p.Available},
		{"Waiting for a parent", p.PendingApproval},
		{"Done", p.Completed},
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, g := range groups {
		fmt.Fprintf(tw, "\n%s (%d)\n", g.label, len(g.tasks))
		for _, t := range g.tasks {
			next := ""
			if t.NextScheduled != nil {
				next = "next " + t.NextScheduled.Format("Mon Jan 2")
			}
			fmt.Fprintf(tw, "  #%d\t%s\t%d★\t%s\t%s\n", t.ID, t.Title, t.StarValue, t.Schedule, next)
		}
	}
	return tw.Flush()
}
