package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/talkcomms/internal/pipeline"
	"github.com/TobiSchelling/talkcomms/internal/talk"
)

var (
	dryRun bool
	paper  bool
	force  bool
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <record-id>",
	Short: "Clean slides and transcript and catalog resources for a talk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd.Context(), talk.Prepare, args[0])
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote <record-id>",
	Short: "Draft, verify and assemble social posts for a talk or paper",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ct := talk.Promote
		if paper {
			ct = talk.PromotePaper
		}
		return runRecord(cmd.Context(), ct, args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{prepareCmd, promoteCmd} {
		c.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	}
	prepareCmd.Flags().BoolVar(&force, "force", false, "Redo stages whose output is already in the ledger")
	promoteCmd.Flags().BoolVar(&paper, "paper", false, "Promote a research paper instead of a recorded talk")
}

func runRecord(ctx context.Context, ct talk.ContentType, recordID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if dryRun {
		row, err := a.ledger.Read(ctx, recordID, talk.ReadColumns(ct))
		if err != nil {
			return fmt.Errorf("reading record %s: %w", recordID, err)
		}
		printSteps(a.orch.Plan(ct, talk.FromRow(recordID, row), pipeline.RunOptions{Force: force}))
		return nil
	}

	run, res, err := a.service.RunSync(ctx, pipeline.Request{ContentType: ct, RecordID: recordID, Force: force})
	if res != nil {
		printSteps(res)
	}
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInFlight) {
			return err
		}
		fmt.Printf("\nRun %s failed: %s\n", run.ID, run.Error)
		return err
	}

	fmt.Printf("\nRun %s complete.", run.ID)
	if !res.Verified {
		fmt.Print(" Drafts did not reach the quality threshold and are marked UNVERIFIED.")
	}
	fmt.Println()
	return nil
}

func printSteps(res *pipeline.Result) {
	total := len(res.Steps)
	for i, step := range res.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, total, step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
			continue
		}
		fmt.Printf("  %s", step.Summary)
		if step.Duration > 0 {
			fmt.Printf(" (%s)", step.Duration.Round(time.Millisecond))
		}
		fmt.Println()
	}
}
