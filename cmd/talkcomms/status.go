package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/talkcomms/internal/ledger"
	"github.com/TobiSchelling/talkcomms/internal/tracker"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [record-id]",
	Short: "Show recent runs, or the ledger status of one record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		journal := tracker.NewDBJournal(db)
		ctx := cmd.Context()

		if len(args) == 1 {
			store, err := openStore(db)
			if err != nil {
				return err
			}
			id := args[0]
			row, err := store.ReadRow(ctx, id, []string{ledger.ColStatus, ledger.ColProgress})
			if err != nil {
				return fmt.Errorf("reading record %s: %w", id, err)
			}
			status := row[ledger.ColStatus]
			if status == "" {
				status = ledger.StatusValue(tracker.NotStarted)
			}
			fmt.Printf("Record: %s\nStatus: %s\n", id, status)
			if p := row[ledger.ColProgress]; p != "" {
				fmt.Printf("\n%s\n", p)
			}
			if run, err := journal.LoadLatest(ctx, id); err == nil && run != nil {
				fmt.Printf("\nLatest run: %s (%s, %s)\n", run.ID, run.ContentType, run.Status)
				if run.Error != "" {
					fmt.Printf("  %s\n", run.Error)
				}
			}
			return nil
		}

		runs, err := journal.LoadRecent(ctx, statusLimit)
		if err != nil {
			return fmt.Errorf("loading runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs yet. Start one with: talkcomms prepare <record-id>")
			return nil
		}
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			last := ""
			if len(r.Progress) > 0 {
				last = r.Progress[len(r.Progress)-1]
			}
			if r.Error != "" {
				last = r.Error
			}
			rows = append(rows, []string{
				r.ID[:8],
				r.RecordID,
				r.ContentType,
				string(r.Status),
				strconv.Itoa(len(r.Progress)),
				r.UpdatedAt.Local().Format(time.DateTime),
				truncate(last, 60),
			})
		}
		fmt.Println(renderTable(
			[]string{"Run", "Record", "Type", "Status", "Steps", "Updated", "Last message"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
		))
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 20, "Number of runs to show")
}
