package compare

// JaroWinkler scores two values by Jaro similarity plus a common-prefix
// bonus: jaro + prefixLen × prefixScale × (1 - jaro). The prefix length is
// capped at opts.MaxPrefixLength (default 4) and the scale defaults to 0.1,
// clamped to the valid 0–0.25 range. Case-insensitive by default.
func JaroWinkler(a, b any, opts *Options) float64 {
	opts = ensureOptions(opts)
	if score, handled := nullScore(a, b, opts); handled {
		return score
	}

	as := []rune(normalize(a, opts))
	bs := []rune(normalize(b, opts))

	jaro := jaroSimilarity(as, bs)
	if jaro == 0 {
		return 0
	}

	scale := opts.PrefixScale
	if scale < 0 {
		scale = 0
	}
	if scale > 0.25 {
		scale = 0.25
	}
	maxPrefix := opts.MaxPrefixLength
	if maxPrefix <= 0 {
		maxPrefix = 4
	}

	prefix := 0
	for i := 0; i < len(as) && i < len(bs) && i < maxPrefix; i++ {
		if as[i] != bs[i] {
			break
		}
		prefix++
	}

	return jaro + float64(prefix)*scale*(1-jaro)
}

// jaroSimilarity computes the plain Jaro similarity over rune slices.
func jaroSimilarity(a, b []rune) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	window := max(len(a), len(b))/2 - 1
	if window < 0 {
		window = 0
	}

	aMatched := make([]bool, len(a))
	bMatched := make([]bool, len(b))
	matches := 0

	for i := range a {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window + 1
		if hi > len(b) {
			hi = len(b)
		}
		for j := lo; j < hi; j++ {
			if bMatched[j] || a[i] != b[j] {
				continue
			}
			aMatched[i] = true
			bMatched[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0
	}

	// Count transpositions among matched characters.
	transpositions := 0
	j := 0
	for i := range a {
		if !aMatched[i] {
			continue
		}
		for !bMatched[j] {
			j++
		}
		if a[i] != b[j] {
			transpositions++
		}
		j++
	}

	m := float64(matches)
	t := float64(transpositions) / 2
	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}
