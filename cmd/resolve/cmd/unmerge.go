package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/resolve/pkg/queue"
)

var (
	unmergeBy     string
	unmergeReason string
	deleteGolden  bool
)

// unmergeCmd represents the unmerge command
var unmergeCmd = &cobra.Command{
	Use:   "unmerge <golden-record-id>",
	Short: "Reverse a merge and restore the source records",
	Long: `Restore the archived source records behind a golden record.

Provenance is kept and marked unmerged so the reversal stays auditable.
Pass --delete-golden to also remove the golden record from the store.`,
	Example: `  resolve unmerge golden-1 --by reviewer@example.com --reason "wrong match"`,
	Args:    cobra.ExactArgs(1),
	RunE:    runUnmerge,
}

func init() {
	rootCmd.AddCommand(unmergeCmd)
	unmergeCmd.Flags().StringVar(&unmergeBy, "by", "", "identity recorded on the provenance")
	unmergeCmd.Flags().StringVar(&unmergeReason, "reason", "", "why the merge is being reversed")
	unmergeCmd.Flags().BoolVar(&deleteGolden, "delete-golden", false, "also delete the golden record")
}

func runUnmerge(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	result, err := q.Unmerge(cmd.Context(), args[0], &queue.UnmergeOptions{
		UnmergedBy:         unmergeBy,
		Reason:             unmergeReason,
		DeleteGoldenRecord: deleteGolden,
	})
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(result.RestoredRecords))
	for _, r := range result.RestoredRecords {
		ids = append(ids, r.ID())
	}
	fmt.Printf("Unmerged %s, restored %s\n", result.GoldenRecordID, strings.Join(ids, ", "))
	return nil
}
