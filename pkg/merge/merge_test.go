package merge

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/provenance"
	"github.com/agentstation/resolve/pkg/record"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func sourcePair() []record.SourceRecord {
	return []record.SourceRecord{
		{
			ID: "rec-001",
			Record: record.Record{
				"id":        "rec-001",
				"firstName": "John",
				"lastName":  "Smith",
				"email":     "john@example.com",
			},
		},
		{
			ID: "rec-002",
			Record: record.Record{
				"id":        "rec-002",
				"firstName": "Jonathan",
				"lastName":  "Smith",
				"email":     "johnny@example.com",
				"phone":     "555-1234",
			},
		},
	}
}

func TestNewExecutorValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "zero config gets defaults",
			config: Config{},
		},
		{
			name:    "unknown default strategy",
			config:  Config{DefaultStrategy: FieldStrategy{Strategy: "bogus"}},
			wantErr: true,
		},
		{
			name: "unknown field strategy",
			config: Config{
				FieldStrategies: map[string]FieldStrategy{
					"email": {Strategy: "bogus"},
				},
			},
			wantErr: true,
		},
		{
			name:    "unknown conflict resolution",
			config:  Config{ConflictResolution: "explode"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExecutor(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, PreferFirst, e.Config().DefaultStrategy.Strategy)
			assert.Equal(t, "updatedAt", e.Config().TimestampField)
			assert.Equal(t, ConflictMark, e.Config().ConflictResolution)
		})
	}
}

func TestMergeRequiresSources(t *testing.T) {
	e, err := NewExecutor(Config{})
	require.NoError(t, err)

	_, err = e.Merge(nil)
	assert.True(t, errors.IsValidationError(err))

	_, err = e.Merge([]record.SourceRecord{{Record: record.Record{"a": 1}}})
	assert.True(t, errors.IsValidationError(err))
}

func TestMergeGoldenRecord(t *testing.T) {
	e, err := NewExecutor(Config{
		FieldStrategies: map[string]FieldStrategy{
			"firstName": {Strategy: PreferLonger},
			"lastName":  {Strategy: PreferLonger},
			"email":     {Strategy: PreferFirst},
			"phone":     {Strategy: PreferNonNull},
		},
		TrackProvenance: true,
		GoldenRecordID:  "golden-1",
	}, WithClock(fixedClock))
	require.NoError(t, err)

	result, err := e.Merge(sourcePair())
	require.NoError(t, err)

	want := record.Record{
		"id":        "golden-1",
		"firstName": "Jonathan",
		"lastName":  "Smith",
		"email":     "john@example.com",
		"phone":     "555-1234",
	}
	if diff := cmp.Diff(want, result.GoldenRecord); diff != "" {
		t.Errorf("golden record mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, result.Provenance)
	assert.Equal(t, []string{"rec-001", "rec-002"}, result.Provenance.SourceRecordIDs)
	assert.Equal(t, "golden-1", result.Provenance.GoldenRecordID)
	assert.Equal(t, fixedClock(), result.Provenance.MergedAt)

	firstName := result.Provenance.FieldSources["firstName"]
	assert.Equal(t, "rec-002", firstName.SourceRecordID)
	assert.Equal(t, string(PreferLonger), firstName.StrategyApplied)
	assert.True(t, firstName.HadConflict)

	lastName := result.Provenance.FieldSources["lastName"]
	assert.False(t, lastName.HadConflict)

	phone := result.Provenance.FieldSources["phone"]
	assert.Equal(t, "rec-002", phone.SourceRecordID)
	assert.Len(t, phone.AllValues, 1)

	assert.Equal(t, 2, result.Stats.SourceCount)
	assert.Equal(t, 4, result.Stats.FieldCount)
}

func TestMergeIdempotence(t *testing.T) {
	config := Config{
		FieldStrategies: map[string]FieldStrategy{
			"firstName": {Strategy: PreferLonger},
			"email":     {Strategy: PreferFirst},
		},
		TrackProvenance: true,
		GoldenRecordID:  "golden-1",
	}

	run := func() *Result {
		e, err := NewExecutor(config, WithClock(fixedClock))
		require.NoError(t, err)
		result, err := e.Merge(sourcePair())
		require.NoError(t, err)
		return result
	}

	first := run()
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, run()); diff != "" {
			t.Fatalf("merge not deterministic (-first +rerun):\n%s", diff)
		}
	}
}

func TestMergeDefaultGoldenIDIsFirstSource(t *testing.T) {
	e, err := NewExecutor(Config{})
	require.NoError(t, err)

	result, err := e.Merge(sourcePair())
	require.NoError(t, err)
	assert.Equal(t, "rec-001", result.GoldenRecordID)
	assert.Equal(t, "rec-001", result.GoldenRecord["id"])
	assert.Contains(t, result.Provenance.SourceRecordIDs, result.GoldenRecordID)
}

func TestMergeConflictFlaggedRegardlessOfStrategy(t *testing.T) {
	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"city": "Austin"}},
		{ID: "b", Record: record.Record{"city": "Dallas"}},
	}

	for _, strategy := range []Strategy{PreferFirst, PreferLast, PreferLonger, MostFrequent} {
		t.Run(string(strategy), func(t *testing.T) {
			e, err := NewExecutor(Config{
				DefaultStrategy: FieldStrategy{Strategy: strategy},
				TrackProvenance: true,
			})
			require.NoError(t, err)

			result, err := e.Merge(sources)
			require.NoError(t, err)
			assert.True(t, result.Provenance.FieldSources["city"].HadConflict)
		})
	}
}

func TestMergeErrorModeAborts(t *testing.T) {
	e, err := NewExecutor(Config{
		ConflictResolution: ConflictError,
	})
	require.NoError(t, err)

	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"city": "Austin", "state": "TX", "zip": "78701"}},
		{ID: "b", Record: record.Record{"city": "Dallas", "state": "TX", "zip": "75201"}},
	}

	result, err := e.Merge(sources)
	assert.Nil(t, result)
	require.Error(t, err)

	var conflictErr *errors.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, []string{"city", "zip"}, conflictErr.Fields)
}

func TestMergeErrorModeAgreementSucceeds(t *testing.T) {
	e, err := NewExecutor(Config{ConflictResolution: ConflictError, GoldenRecordID: "g"})
	require.NoError(t, err)

	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"state": "TX"}},
		{ID: "b", Record: record.Record{"state": "TX", "zip": "75201"}},
	}

	result, err := e.Merge(sources)
	require.NoError(t, err)
	assert.Equal(t, "TX", result.GoldenRecord["state"])
	assert.Equal(t, "75201", result.GoldenRecord["zip"])
}

func TestMergeViolationFallsBackToDefault(t *testing.T) {
	// Sum over non-numeric values cannot apply; markConflict resolves via
	// the default strategy and records the conflict.
	e, err := NewExecutor(Config{
		FieldStrategies: map[string]FieldStrategy{
			"name": {Strategy: Sum},
		},
		DefaultStrategy: FieldStrategy{Strategy: PreferFirst},
		TrackProvenance: true,
		GoldenRecordID:  "g",
	})
	require.NoError(t, err)

	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"name": "Alice"}},
		{ID: "b", Record: record.Record{"name": "Alicia"}},
	}

	result, err := e.Merge(sources)
	require.NoError(t, err)
	assert.Equal(t, "Alice", result.GoldenRecord["name"])

	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "name", result.Conflicts[0].Field)
	assert.Equal(t, ConflictMark, result.Conflicts[0].Resolution)

	fs := result.Provenance.FieldSources["name"]
	assert.Equal(t, string(PreferFirst), fs.StrategyApplied)
	assert.Equal(t, string(ConflictMark), fs.ConflictResolution)
}

func TestMergeViolationUseDefaultSilent(t *testing.T) {
	e, err := NewExecutor(Config{
		FieldStrategies: map[string]FieldStrategy{
			"tags": {Strategy: Union},
		},
		ConflictResolution: ConflictUseDefault,
		GoldenRecordID:     "g",
	})
	require.NoError(t, err)

	// Union over a scalar is a violation; useDefault keeps the first value
	// without recording a conflict entry.
	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"tags": "scalar"}},
		{ID: "b", Record: record.Record{"tags": "other"}},
	}

	result, err := e.Merge(sources)
	require.NoError(t, err)
	assert.Equal(t, "scalar", result.GoldenRecord["tags"])
	assert.Empty(t, result.Conflicts)
}

func TestMergeViolationErrorModeAborts(t *testing.T) {
	e, err := NewExecutor(Config{
		FieldStrategies: map[string]FieldStrategy{
			"total": {Strategy: Average},
		},
		ConflictResolution: ConflictError,
	})
	require.NoError(t, err)

	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"total": "not a number"}},
		{ID: "b", Record: record.Record{"total": "not a number"}},
	}

	_, err = e.Merge(sources)
	var conflictErr *errors.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, []string{"total"}, conflictErr.Fields)
}

func TestMergeTemporalStrategies(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"email": "old@example.com"}, UpdatedAt: older},
		{ID: "b", Record: record.Record{"email": "new@example.com"}, UpdatedAt: newer},
	}

	for _, tt := range []struct {
		strategy Strategy
		want     string
		winner   string
	}{
		{PreferNewer, "new@example.com", "b"},
		{PreferOlder, "old@example.com", "a"},
	} {
		t.Run(string(tt.strategy), func(t *testing.T) {
			e, err := NewExecutor(Config{
				DefaultStrategy: FieldStrategy{Strategy: tt.strategy},
				TrackProvenance: true,
				GoldenRecordID:  "g",
			})
			require.NoError(t, err)

			result, err := e.Merge(sources)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.GoldenRecord["email"])
			assert.Equal(t, tt.winner, result.Provenance.FieldSources["email"].SourceRecordID)
		})
	}
}

func TestMergeAggregateStrategies(t *testing.T) {
	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"amount": 10}},
		{ID: "b", Record: record.Record{"amount": 20.5}},
		{ID: "c", Record: record.Record{"amount": 3}},
	}

	for _, tt := range []struct {
		strategy Strategy
		want     float64
	}{
		{Sum, 33.5},
		{Average, 33.5 / 3},
		{Min, 3},
		{Max, 20.5},
	} {
		t.Run(string(tt.strategy), func(t *testing.T) {
			e, err := NewExecutor(Config{
				DefaultStrategy: FieldStrategy{Strategy: tt.strategy},
				GoldenRecordID:  "g",
			})
			require.NoError(t, err)

			result, err := e.Merge(sources)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, result.GoldenRecord["amount"], 1e-9)
		})
	}
}

func TestMergeUnionAndConcatenate(t *testing.T) {
	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"tags": []any{"x", "y"}, "notes": "first"}},
		{ID: "b", Record: record.Record{"tags": []any{"y", "z"}, "notes": "second"}},
	}

	e, err := NewExecutor(Config{
		FieldStrategies: map[string]FieldStrategy{
			"tags":  {Strategy: Union},
			"notes": {Strategy: Concatenate, Options: FieldOptions{Separator: "; "}},
		},
		GoldenRecordID: "g",
	})
	require.NoError(t, err)

	result, err := e.Merge(sources)
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y", "z"}, result.GoldenRecord["tags"])
	assert.Equal(t, "first; second", result.GoldenRecord["notes"])
}

func TestMergeMostFrequent(t *testing.T) {
	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"city": "Austin"}},
		{ID: "b", Record: record.Record{"city": "Dallas"}},
		{ID: "c", Record: record.Record{"city": "Dallas"}},
	}

	e, err := NewExecutor(Config{
		DefaultStrategy: FieldStrategy{Strategy: MostFrequent},
		GoldenRecordID:  "g",
	})
	require.NoError(t, err)

	result, err := e.Merge(sources)
	require.NoError(t, err)
	assert.Equal(t, "Dallas", result.GoldenRecord["city"])
}

func TestMergeCustomStrategy(t *testing.T) {
	e, err := NewExecutor(Config{
		FieldStrategies: map[string]FieldStrategy{
			"score": {
				Strategy: Custom,
				Func: func(values []provenance.Value, _ []record.SourceRecord, _ FieldOptions) (any, error) {
					return len(values), nil
				},
			},
		},
		GoldenRecordID: "g",
	})
	require.NoError(t, err)

	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"score": 1}},
		{ID: "b", Record: record.Record{"score": 2}},
	}

	result, err := e.Merge(sources)
	require.NoError(t, err)
	assert.Equal(t, 2, result.GoldenRecord["score"])
}

func TestMergeNullContributionsSkipped(t *testing.T) {
	sources := []record.SourceRecord{
		{ID: "a", Record: record.Record{"phone": nil}},
		{ID: "b", Record: record.Record{"phone": "555-1234"}},
	}

	e, err := NewExecutor(Config{TrackProvenance: true, GoldenRecordID: "g"})
	require.NoError(t, err)

	result, err := e.Merge(sources)
	require.NoError(t, err)
	assert.Equal(t, "555-1234", result.GoldenRecord["phone"])
	assert.False(t, result.Provenance.FieldSources["phone"].HadConflict)
}
