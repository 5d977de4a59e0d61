package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/logging"
	"github.com/agentstation/resolve/pkg/queue"
)

var (
	queueStatus string
	queueLimit  int
	decidedBy   string
	matchID     string
	decideNotes string
)

// queueCmd represents the queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Work the manual review queue",
	Long: `Inspect and decide queued potential matches.

Items move pending -> reviewing -> confirmed/rejected/merged. A decide
runs the merge, persists the golden record, and archives the sources.`,
}

var queueListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List queue items",
	Example: `  resolve queue list --status pending --limit 20`,
	RunE:    runQueueList,
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-status queue counts",
	RunE:  runQueueStats,
}

var queueReviewCmd = &cobra.Command{
	Use:   "review <item-id>",
	Short: "Claim an item for review",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueReview,
}

var queueRejectCmd = &cobra.Command{
	Use:   "reject <item-id>",
	Short: "Reject an item as a non-match",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueReject,
}

var queueDecideCmd = &cobra.Command{
	Use:   "decide <item-id>",
	Short: "Merge the candidate with a selected match",
	Long: `Merge the item's candidate record with the selected potential match.

The merged golden record is written to the store, both source records are
archived, and provenance is saved for a later unmerge.`,
	Example: `  resolve queue decide 6f1c... --match rec-001 --by reviewer@example.com`,
	Args:    cobra.ExactArgs(1),
	RunE:    runQueueDecide,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd, queueStatsCmd, queueReviewCmd, queueRejectCmd, queueDecideCmd)

	queueListCmd.Flags().StringVar(&queueStatus, "status", "", "filter by status (pending, reviewing, confirmed, rejected, merged)")
	queueListCmd.Flags().IntVar(&queueLimit, "limit", 0, "cap the number of items listed")

	for _, c := range []*cobra.Command{queueReviewCmd, queueRejectCmd, queueDecideCmd} {
		c.Flags().StringVar(&decidedBy, "by", "", "reviewer identity recorded on the item")
	}
	queueRejectCmd.Flags().StringVar(&decideNotes, "notes", "", "free-form decision notes")
	queueDecideCmd.Flags().StringVar(&matchID, "match", "", "record id of the selected potential match")
	_ = queueDecideCmd.MarkFlagRequired("match")
}

func openQueue() (*queue.Queue, func() error, error) {
	adapters, closeStore, err := openAdapters()
	if err != nil {
		return nil, nil, err
	}
	q, err := queue.New(adapters,
		queue.WithLogger(logging.Default()),
		queue.WithMergeConfig(cfg.Merge))
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	return q, closeStore, nil
}

func runQueueList(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	filter := &adapter.QueueFilter{Limit: queueLimit}
	if queueStatus != "" {
		status := adapter.Status(queueStatus)
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", queueStatus)
		}
		filter.Status = status
	}

	items, err := q.List(cmd.Context(), filter)
	if err != nil {
		return err
	}
	for _, item := range items {
		fmt.Printf("%s  %-10s  candidate=%s  matches=%d  priority=%d\n",
			item.ID, item.Status, item.CandidateRecord.ID(), len(item.PotentialMatches), item.Priority)
	}
	fmt.Printf("%d item(s)\n", len(items))
	return nil
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	stats, err := q.Stats(cmd.Context())
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(stats)
}

func runQueueReview(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	item, err := q.Review(cmd.Context(), args[0], decidedBy)
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", item.ID, item.Status)
	return nil
}

func runQueueReject(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	item, err := q.Reject(cmd.Context(), args[0], decidedBy, decideNotes)
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", item.ID, item.Status)
	return nil
}

func runQueueDecide(cmd *cobra.Command, args []string) error {
	q, closeStore, err := openQueue()
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	result, err := q.HandleMergeDecision(cmd.Context(), args[0], &queue.MergeDecision{
		SelectedMatchID: matchID,
		DecidedBy:       decidedBy,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Merged into golden record %s\n", result.Merge.GoldenRecordID)
	fmt.Printf("Sources archived:  %d\n", result.Merge.Stats.SourceCount)
	fmt.Printf("Fields merged:     %d\n", result.Merge.Stats.FieldCount)
	fmt.Printf("Conflicts:         %d\n", result.Merge.Stats.ConflictCount)
	if !result.QueueItemUpdated {
		fmt.Println("Warning: merge committed but the queue item status update failed")
	}
	return nil
}
