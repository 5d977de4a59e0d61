package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/logging"
	"github.com/agentstation/resolve/pkg/record"
	"github.com/agentstation/resolve/pkg/resolver"
)

var dedupeJSON bool

// dedupeCmd represents the dedupe command
var dedupeCmd = &cobra.Command{
	Use:   "dedupe <records-file>",
	Short: "Deduplicate a batch of records",
	Long: `Deduplicate the records in a JSON or YAML file.

Every candidate pair inside a blocking group is scored with the profile's
field comparators. Definite matches are clustered into duplicate groups;
potential matches land on the review queue when autoQueue is enabled.`,
	Example: `  resolve dedupe contacts.json --config profile.yaml
  resolve dedupe contacts.yaml -c profile.yaml --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDedupe,
}

func init() {
	rootCmd.AddCommand(dedupeCmd)
	dedupeCmd.Flags().BoolVar(&dedupeJSON, "json", false, "emit the full result as JSON")
}

func runDedupe(cmd *cobra.Command, args []string) error {
	records, err := loadRecords(args[0])
	if err != nil {
		return err
	}

	adapters, closeStore, err := openAdapters()
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	opts := []resolver.Option{
		resolver.WithLogger(logging.Default()),
		resolver.WithScoring(cfg.Scoring),
		resolver.WithMerge(cfg.Merge),
		resolver.WithAdapters(adapters),
	}
	if cfg.Blocking != nil {
		strategy, err := cfg.BlockingStrategy()
		if err != nil {
			return err
		}
		opts = append(opts, resolver.WithBlocking(strategy))
	}
	if cfg.MaxFetchSize > 0 {
		opts = append(opts, resolver.WithMaxFetchSize(cfg.MaxFetchSize))
	}

	r, err := resolver.New(opts...)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	ctx := cmd.Context()
	result, err := r.DeduplicateBatch(ctx, records, &resolver.Options{
		AutoQueue:     cfg.Queue.AutoQueue,
		QueuePriority: cfg.Queue.Priority,
		QueueTags:     cfg.Queue.Tags,
	})
	if err != nil {
		return err
	}
	if err := r.Flush(ctx); err != nil {
		return err
	}

	if dedupeJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}

	fmt.Printf("Records:           %d\n", result.TotalRecords)
	fmt.Printf("Compared pairs:    %d\n", result.ComparedPairs)
	fmt.Printf("Definite matches:  %d\n", result.DefiniteMatches)
	fmt.Printf("Potential matches: %d\n", result.PotentialMatches)
	fmt.Printf("Duration:          %s\n", result.Duration)
	for i, group := range result.Groups {
		fmt.Printf("Group %d: %s\n", i+1, strings.Join(group, ", "))
	}
	return nil
}

// loadRecords reads a JSON or YAML array of records, keyed by file
// extension.
func loadRecords(path string) ([]record.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConnection("file", err)
	}

	var records []record.Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, errors.WrapValidation("records", err)
		}
	default:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, errors.WrapValidation("records", err)
		}
	}
	if len(records) == 0 {
		return nil, errors.NewValidationError("records", path, "file holds no records")
	}
	return records, nil
}
