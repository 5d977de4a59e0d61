package resolver

import (
	"context"
	"sort"
	"time"

	"github.com/agentstation/resolve/pkg/blocking"
	"github.com/agentstation/resolve/pkg/errors"
	"github.com/agentstation/resolve/pkg/record"
	"github.com/agentstation/resolve/pkg/scoring"
)

// PairResult is one scored batch pair. A and B index into the input slice.
type PairResult struct {
	A      int                 `json:"a"`
	B      int                 `json:"b"`
	Result scoring.MatchResult `json:"result"`
}

// BatchResult aggregates a batch deduplication run.
type BatchResult struct {
	TotalRecords     int           `json:"totalRecords"`
	ComparedPairs    int           `json:"comparedPairs"`
	DefiniteMatches  int           `json:"definiteMatches"`
	PotentialMatches int           `json:"potentialMatches"`
	NoMatches        int           `json:"noMatches"`
	Duration         time.Duration `json:"duration"`

	// Pairs holds the definite and potential pairs; no-match pairs are
	// counted but not retained.
	Pairs []PairResult `json:"pairs"`

	// Groups are connected components of definite matches: each group is
	// a sorted list of record ids believed to be the same entity.
	Groups [][]string `json:"groups"`
}

// DeduplicateBatch scores record pairs across a batch. With a blocking
// strategy configured only pairs sharing a block are compared; otherwise
// every pair is. Potential matches are auto-queued when requested, and
// definite matches are grouped transitively.
func (r *Resolver) DeduplicateBatch(ctx context.Context, records []record.Record, opts *Options) (*BatchResult, error) {
	if opts == nil {
		opts = &Options{}
	}
	start := time.Now()
	result := &BatchResult{TotalRecords: len(records)}

	pairs := r.batchPairs(records)
	groups := newUnionFind(len(records))

	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, errors.WrapCanceled(err)
		}
		score := r.engine.Score(records[p.A], records[p.B])
		result.ComparedPairs++

		switch score.Outcome {
		case scoring.OutcomeDefinite:
			result.DefiniteMatches++
			groups.union(p.A, p.B)
			result.Pairs = append(result.Pairs, PairResult{A: p.A, B: p.B, Result: score})
		case scoring.OutcomePotential:
			result.PotentialMatches++
			result.Pairs = append(result.Pairs, PairResult{A: p.A, B: p.B, Result: score})
			if opts.AutoQueue {
				r.maybeQueue(&Resolution{
					Candidate: records[p.A],
					Matches:   []Match{{Record: records[p.B], Result: score}},
				}, opts)
			}
		default:
			result.NoMatches++
		}
	}

	result.Groups = groups.groups(records)
	result.Duration = time.Since(start)

	r.logger.Info().
		Int("records", result.TotalRecords).
		Int("compared_pairs", result.ComparedPairs).
		Int("definite", result.DefiniteMatches).
		Int("potential", result.PotentialMatches).
		Int("groups", len(result.Groups)).
		Dur("duration", result.Duration).
		Msg("batch deduplication finished")
	return result, nil
}

func (r *Resolver) batchPairs(records []record.Record) []blocking.Pair {
	if r.strategy != nil {
		return r.strategy.Pairs(records)
	}
	var pairs []blocking.Pair
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			pairs = append(pairs, blocking.Pair{A: i, B: j})
		}
	}
	return pairs
}

// unionFind groups indexes by transitive definite matches.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}

// groups returns record-id groups of size two or more, each sorted, in a
// stable overall order.
func (u *unionFind) groups(records []record.Record) [][]string {
	members := make(map[int][]string)
	for i := range u.parent {
		root := u.find(i)
		id := records[i].ID()
		if id == "" {
			id = record.CoerceString(i)
		}
		members[root] = append(members[root], id)
	}

	var out [][]string
	for _, ids := range members {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		out = append(out, ids)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i][0] < out[j][0]
	})
	return out
}
