package blocking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/resolve/pkg/record"
)

func people() []record.Record {
	return []record.Record{
		{"id": "r0", "lastName": "Smith", "zip": "10001", "firstName": "John"},
		{"id": "r1", "lastName": "smith ", "zip": "10001", "firstName": "Jon"},
		{"id": "r2", "lastName": "Smyth", "zip": "10001", "firstName": "John"},
		{"id": "r3", "lastName": "Jones", "zip": "94105", "firstName": "Mary"},
		{"id": "r4", "zip": "10001", "firstName": "Ghost"}, // missing lastName
	}
}

func TestStandardGenerate(t *testing.T) {
	s, err := NewStandard([]string{"lastName", "zip"})
	require.NoError(t, err)

	key, ok := s.Generate(people()[0])
	require.True(t, ok)
	assert.Equal(t, Key{"lastName": "smith", "zip": "10001"}, key)

	// Normalization: trim, lowercase.
	key2, ok := s.Generate(people()[1])
	require.True(t, ok)
	assert.Equal(t, key.String(), key2.String())

	// Missing field excludes the record from the block, without error.
	_, ok = s.Generate(people()[4])
	assert.False(t, ok)
}

func TestStandardPairs(t *testing.T) {
	s, err := NewStandard([]string{"lastName", "zip"})
	require.NoError(t, err)

	pairs := s.Pairs(people())
	assert.Equal(t, []Pair{{A: 0, B: 1}}, pairs)
}

func TestStandardPhoneticTransform(t *testing.T) {
	s, err := NewStandard([]string{"lastName"}, WithTransform(TransformSoundex))
	require.NoError(t, err)

	// Smith and Smyth share a soundex block.
	pairs := s.Pairs(people())
	assert.Contains(t, pairs, Pair{A: 0, B: 2})
	assert.Contains(t, pairs, Pair{A: 0, B: 1})
}

func TestStandardCandidates(t *testing.T) {
	s, err := NewStandard([]string{"zip"})
	require.NoError(t, err)

	candidate := record.Record{"id": "new", "zip": "10001"}
	assert.Equal(t, []int{0, 1, 2, 4}, s.Candidates(candidate, people()))

	// Candidate missing the blocking field yields no candidates.
	assert.Nil(t, s.Candidates(record.Record{"id": "new"}, people()))
}

func TestStandardValidation(t *testing.T) {
	_, err := NewStandard(nil)
	assert.Error(t, err)
}

func TestSortedNeighbourhoodPairs(t *testing.T) {
	records := []record.Record{
		{"id": "a", "lastName": "Adams"},
		{"id": "b", "lastName": "Baker"},
		{"id": "c", "lastName": "Cook"},
		{"id": "d", "lastName": "Dunn"},
	}

	s, err := NewSortedNeighbourhood([]string{"lastName"}, 1)
	require.NoError(t, err)

	// Window 1: only adjacent records in sort order pair up.
	assert.Equal(t, []Pair{{A: 0, B: 1}, {A: 1, B: 2}, {A: 2, B: 3}}, s.Pairs(records))

	wide, err := NewSortedNeighbourhood([]string{"lastName"}, 3)
	require.NoError(t, err)
	assert.Len(t, wide.Pairs(records), 6) // all pairs within window 3
}

func TestSortedNeighbourhoodSkipsMissing(t *testing.T) {
	s, err := NewSortedNeighbourhood([]string{"lastName"}, 2)
	require.NoError(t, err)

	pairs := s.Pairs(people())
	for _, p := range pairs {
		assert.NotEqual(t, 4, p.A, "record without lastName must not pair")
		assert.NotEqual(t, 4, p.B, "record without lastName must not pair")
	}
}

func TestSortedNeighbourhoodCandidates(t *testing.T) {
	records := []record.Record{
		{"id": "a", "lastName": "Adams"},
		{"id": "b", "lastName": "Baker"},
		{"id": "c", "lastName": "Cook"},
		{"id": "d", "lastName": "Dunn"},
	}

	s, err := NewSortedNeighbourhood([]string{"lastName"}, 1)
	require.NoError(t, err)

	// "Cole" sorts between Baker and Cook.
	got := s.Candidates(record.Record{"lastName": "Cole"}, records)
	assert.Equal(t, []int{1, 2}, got)
}

func TestSortedNeighbourhoodValidation(t *testing.T) {
	_, err := NewSortedNeighbourhood(nil, 2)
	assert.Error(t, err)
	_, err = NewSortedNeighbourhood([]string{"x"}, 0)
	assert.Error(t, err)
}

func TestCompositeUnion(t *testing.T) {
	byZip, err := NewStandard([]string{"zip"})
	require.NoError(t, err)
	byName, err := NewStandard([]string{"lastName"}, WithTransform(TransformSoundex))
	require.NoError(t, err)

	c, err := NewComposite(ModeUnion, byZip, byName)
	require.NoError(t, err)

	pairs := c.Pairs(people())
	// Union: candidate when any sub-strategy matches.
	assert.Contains(t, pairs, Pair{A: 0, B: 2}) // same zip and same soundex
	assert.Contains(t, pairs, Pair{A: 0, B: 4}) // same zip only
}

func TestCompositeIntersection(t *testing.T) {
	byZip, err := NewStandard([]string{"zip"})
	require.NoError(t, err)
	byName, err := NewStandard([]string{"lastName"}, WithTransform(TransformSoundex))
	require.NoError(t, err)

	c, err := NewComposite(ModeIntersection, byZip, byName)
	require.NoError(t, err)

	pairs := c.Pairs(people())
	assert.Contains(t, pairs, Pair{A: 0, B: 2})    // same zip AND same soundex
	assert.NotContains(t, pairs, Pair{A: 0, B: 4}) // same zip, missing lastName
	assert.NotContains(t, pairs, Pair{A: 0, B: 3}) // different everything
}

func TestCompositeCandidates(t *testing.T) {
	byZip, _ := NewStandard([]string{"zip"})
	byName, _ := NewStandard([]string{"lastName"}, WithTransform(TransformSoundex))

	union, err := NewComposite(ModeUnion, byZip, byName)
	require.NoError(t, err)
	candidate := record.Record{"zip": "94105", "lastName": "Smith"}
	assert.Equal(t, []int{0, 1, 2, 3}, union.Candidates(candidate, people()))

	both, err := NewComposite(ModeIntersection, byZip, byName)
	require.NoError(t, err)
	assert.Empty(t, both.Candidates(candidate, people()))
}

func TestCompositeValidation(t *testing.T) {
	_, err := NewComposite("neither", nil)
	assert.Error(t, err)
	_, err = NewComposite(ModeUnion)
	assert.Error(t, err)
}

func TestDescriptorRoundTrip(t *testing.T) {
	byZip, _ := NewStandard([]string{"zip"})
	snb, _ := NewSortedNeighbourhood([]string{"lastName"}, 3, WithTransform(TransformMetaphone))
	composite, _ := NewComposite(ModeUnion, byZip, snb)
	composite.WithName("zip-or-phonetic-name")

	d := composite.Descriptor()
	assert.Equal(t, KindComposite, d.Kind)
	assert.Equal(t, "zip-or-phonetic-name", d.Name)
	assert.ElementsMatch(t, []string{"zip", "lastName"}, d.Fields)
	require.Len(t, d.Sub, 2)
	assert.Equal(t, 3, d.Sub[1].Window)
	assert.Equal(t, TransformMetaphone, d.Sub[1].Transform)

	// Structured descriptors reconstruct equivalent strategies.
	rebuilt, err := FromDescriptor(d)
	require.NoError(t, err)
	assert.Equal(t, d.Kind, rebuilt.Descriptor().Kind)

	records := people()
	assert.Equal(t, composite.Pairs(records), rebuilt.Pairs(records))
}

func TestDescriptorKeyNormalizer(t *testing.T) {
	s, err := NewStandard([]string{"lastName"}, WithTransform(TransformSoundex))
	require.NoError(t, err)

	key, ok := s.Generate(record.Record{"id": "a", "lastName": "Smith"})
	require.True(t, ok)

	// A stored record's raw field folds to the same key value the
	// strategy derived, even when spelled differently.
	normalize := s.Descriptor().KeyNormalizer()
	assert.Equal(t, key["lastName"], normalize("lastName", "Smyth"))
	assert.Equal(t, key["lastName"], normalize("lastName", "  SMITH "))

	// Fields outside the strategy fold case and whitespace only.
	assert.Equal(t, "john doe", normalize("fullName", " John  Doe "))
}

func TestDescriptorKeyNormalizerComposite(t *testing.T) {
	byZip, _ := NewStandard([]string{"zip"})
	byName, _ := NewStandard([]string{"lastName"}, WithTransform(TransformFirstN), WithPrefixLen(2))
	composite, err := NewComposite(ModeUnion, byZip, byName)
	require.NoError(t, err)

	normalize := composite.Descriptor().KeyNormalizer()
	assert.Equal(t, "sm", normalize("lastName", "Smith"))
	assert.Equal(t, "94107", normalize("zip", " 94107 "))
}

func TestFromDescriptorUnknownKind(t *testing.T) {
	_, err := FromDescriptor(Descriptor{Kind: "bogus"})
	assert.Error(t, err)
}
