package compare

import (
	"time"

	"github.com/agentstation/resolve/pkg/record"
)

// Exact scores 1 when two values are equal, 0 otherwise. Strings fold case
// unless opts.CaseSensitive; time.Time values compare at millisecond
// precision. There is no cross-type coercion: a string never equals a
// number regardless of rendering.
func Exact(a, b any, opts *Options) float64 {
	opts = ensureOptions(opts)
	if score, handled := nullScore(a, b, opts); handled {
		return score
	}

	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		if !opts.CaseSensitive {
			as = foldCaser.String(as)
			bs = foldCaser.String(bs)
		}
		if as == bs {
			return 1
		}
		return 0
	}
	if aIsStr != bIsStr {
		return 0
	}

	at, aIsTime := a.(time.Time)
	bt, bIsTime := b.(time.Time)
	if aIsTime && bIsTime {
		if at.UnixMilli() == bt.UnixMilli() {
			return 1
		}
		return 0
	}
	if aIsTime != bIsTime {
		return 0
	}

	if record.Equal(a, b) {
		return 1
	}
	return 0
}
