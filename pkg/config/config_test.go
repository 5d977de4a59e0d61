package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/resolve/pkg/blocking"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/merge"
)

const profileYAML = `
scoring:
  fields:
    - field: firstName
      comparator: jaroWinkler
      weight: 1
    - field: lastName
      comparator: jaroWinkler
      weight: 1
    - field: email
      comparator: exact
      weight: 2
      threshold: 0.5
  noMatchThreshold: 0.45
  definiteMatchThreshold: 0.9
blocking:
  kind: standard
  fields: [lastName]
  transform: soundex
merge:
  defaultStrategy:
    strategy: preferNonNull
  fieldStrategies:
    email:
      strategy: preferFirst
    tags:
      strategy: union
  conflictResolution: markConflict
queue:
  autoQueue: true
  tags: [auto]
store:
  driver: memory
maxFetchSize: 500
`

func TestParseProfile(t *testing.T) {
	c, err := Parse([]byte(profileYAML))
	require.NoError(t, err)

	require.Len(t, c.Scoring.Fields, 3)
	assert.Equal(t, "jaroWinkler", c.Scoring.Fields[0].Comparator)
	assert.Equal(t, 0.5, c.Scoring.Fields[2].Threshold)
	assert.Equal(t, 0.45, c.Scoring.NoMatchThreshold)
	assert.Equal(t, 0.9, c.Scoring.DefiniteMatchThreshold)

	require.NotNil(t, c.Blocking)
	assert.Equal(t, blocking.KindStandard, c.Blocking.Kind)
	assert.Equal(t, blocking.TransformSoundex, c.Blocking.Transform)

	assert.Equal(t, merge.PreferNonNull, c.Merge.DefaultStrategy.Strategy)
	assert.Equal(t, merge.Union, c.Merge.FieldStrategies["tags"].Strategy)
	assert.Equal(t, merge.ConflictMark, c.Merge.ConflictResolution)

	assert.True(t, c.Queue.AutoQueue)
	assert.Equal(t, StoreMemory, c.Store.Driver)
	assert.Equal(t, 500, c.MaxFetchSize)

	strategy, err := c.BlockingStrategy()
	require.NoError(t, err)
	require.NotNil(t, strategy)
	assert.Equal(t, blocking.KindStandard, strategy.Descriptor().Kind)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profileYAML), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Scoring.Fields, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseRejectsInvalidProfiles(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no scoring fields", `store: {driver: memory}`},
		{"unknown comparator", `
scoring:
  fields:
    - field: name
      comparator: fuzzy
      weight: 1
`},
		{"unknown merge strategy", `
scoring:
  fields:
    - {field: name, comparator: exact, weight: 1}
merge:
  defaultStrategy: {strategy: newest}
`},
		{"unknown store driver", `
scoring:
  fields:
    - {field: name, comparator: exact, weight: 1}
store: {driver: postgres}
`},
		{"sqlite without path", `
scoring:
  fields:
    - {field: name, comparator: exact, weight: 1}
store: {driver: sqlite}
`},
		{"bad blocking descriptor", `
scoring:
  fields:
    - {field: name, comparator: exact, weight: 1}
blocking: {kind: standard}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESOLVE_STORE_DRIVER", "sqlite")
	t.Setenv("RESOLVE_STORE_PATH", "/tmp/resolve.db")
	t.Setenv("RESOLVE_SCORING_DEFINITE_MATCH_THRESHOLD", "0.95")
	t.Setenv("RESOLVE_MAX_FETCH_SIZE", "42")
	t.Setenv("RESOLVE_QUEUE_AUTO_QUEUE", "false")

	c, err := Parse([]byte(profileYAML))
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, c.Store.Driver)
	assert.Equal(t, "/tmp/resolve.db", c.Store.Path)
	assert.Equal(t, 0.95, c.Scoring.DefiniteMatchThreshold)
	assert.Equal(t, 42, c.MaxFetchSize)
	assert.False(t, c.Queue.AutoQueue)
}

func TestValidateValidatesThresholdOrdering(t *testing.T) {
	c, err := Parse([]byte(`
scoring:
  fields:
    - {field: name, comparator: exact, weight: 1}
  noMatchThreshold: 0.9
  definiteMatchThreshold: 0.5
`))
	assert.Nil(t, c)
	assert.True(t, errors.IsValidationError(err))
}
