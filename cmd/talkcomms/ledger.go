package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/talkcomms/internal/ledger"
)

// --- ledger command ---

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect and edit ledger records",
}

func withStore(fn func(store ledger.Store) error) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	store, err := openStore(db)
	if err != nil {
		return err
	}
	return fn(store)
}

var ledgerGetCmd = &cobra.Command{
	Use:   "get <record-id> [column...]",
	Short: "Print the columns of a record",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store ledger.Store) error {
			cols := args[1:]
			if len(cols) == 0 {
				cols = ledger.AllColumns()
			}
			row, err := store.ReadRow(cmd.Context(), args[0], cols)
			if err != nil {
				return err
			}
			if len(cols) == 1 {
				fmt.Println(row[cols[0]])
				return nil
			}
			var rows [][]string
			for _, c := range cols {
				if v := row[c]; v != "" {
					rows = append(rows, []string{c, truncate(strings.ReplaceAll(v, "\n", " "), 70)})
				}
			}
			if len(rows) == 0 {
				fmt.Printf("Record %s has no values.\n", args[0])
				return nil
			}
			fmt.Println(renderTable([]string{"Column", "Value"}, rows, nil))
			return nil
		})
	},
}

var ledgerSetCmd = &cobra.Command{
	Use:   "set <record-id> <column> <value>",
	Short: "Set one column of a record; a value of - reads stdin",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, col, value := args[0], args[1], args[2]
		if col == ledger.ColStatus {
			return ledger.ErrStatusInContent
		}
		if value == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			value = string(data)
		}
		return withStore(func(store ledger.Store) error {
			if err := store.WriteRow(cmd.Context(), id, map[string]string{col: value}); err != nil {
				return err
			}
			fmt.Printf("Updated %s.%s\n", id, col)
			return nil
		})
	},
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Write the rows of a YAML file into the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return withStore(func(store ledger.Store) error {
			n, err := ledger.Import(cmd.Context(), store, f)
			fmt.Printf("Imported %d record(s)\n", n)
			return err
		})
	},
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List records in the local ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store ledger.Store) error {
			local, ok := store.(*ledger.SQLiteStore)
			if !ok {
				return fmt.Errorf("list is only supported by the sqlite ledger backend")
			}
			ids, err := local.Records(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("No records. Add some with: talkcomms ledger import <file.yaml>")
				return nil
			}
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				row, err := local.ReadRow(cmd.Context(), id, []string{ledger.ColSpeaker, ledger.ColTitle, ledger.ColStatus})
				if err != nil {
					return err
				}
				rows = append(rows, []string{id, row[ledger.ColSpeaker], truncate(row[ledger.ColTitle], 50), row[ledger.ColStatus]})
			}
			fmt.Println(renderTable([]string{"Record", "Speaker", "Title", "Status"}, rows, nil))
			return nil
		})
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerGetCmd)
	ledgerCmd.AddCommand(ledgerSetCmd)
	ledgerCmd.AddCommand(ledgerImportCmd)
	ledgerCmd.AddCommand(ledgerListCmd)
}
