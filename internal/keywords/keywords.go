// Package keywords picks the salient single-word concepts of a request.
//
// Candidates are the request's non-stop-words. Each candidate is embedded as
// a sparse vector of its context words (a window around every occurrence)
// plus its own character trigrams, so inflections of one stem land close
// together. The document vector is the frequency-weighted sum of candidate
// vectors. Selection is maximal marginal relevance against that document.
package keywords

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Defaults.
const (
	DefaultTopN      = 5
	DefaultDiversity = 0.7
	contextWindow    = 2
)

// Extractor selects keywords by maximal marginal relevance.
type Extractor struct {
	// Diversity trades relevance (0) for dissimilarity to keywords already
	// chosen (1).
	Diversity float64
}

// New returns an extractor. Diversity outside [0,1] means the default.
func New(diversity float64) *Extractor {
	if diversity < 0 || diversity > 1 {
		diversity = DefaultDiversity
	}
	return &Extractor{Diversity: diversity}
}

// Extract is a convenience wrapper around the default extractor.
func Extract(text string, topN int) []string {
	return New(DefaultDiversity).Extract(text, topN)
}

type vector map[string]float64

type candidate struct {
	word  string
	count int
	vec   vector
	rel   float64
}

// Extract returns at most topN distinct lowercase keywords in relevance
// order. Empty or stop-word-only text yields an empty, non-nil slice.
func (e *Extractor) Extract(text string, topN int) []string {
	out := []string{}
	if topN <= 0 {
		topN = DefaultTopN
	}
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return out
	}

	cands := buildCandidates(tokens)
	if len(cands) == 0 {
		return out
	}

	doc := vector{}
	for _, c := range cands {
		for k, v := range c.vec {
			doc[k] += v * float64(c.count)
		}
	}
	for _, c := range cands {
		c.rel = cosine(c.vec, doc)
	}

	for _, c := range mmr(cands, topN, e.Diversity) {
		out = append(out, c.word)
	}
	return out
}

// tokenize lowercases text and splits it into runs of letters and digits
// of at least two runes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func buildCandidates(tokens []string) []*candidate {
	index := map[string]*candidate{}
	var order []*candidate

	for i, tok := range tokens {
		if isStopWord(tok) || isNumber(tok) {
			continue
		}
		c, ok := index[tok]
		if !ok {
			c = &candidate{word: tok, vec: vector{}}
			for _, g := range trigrams(tok) {
				c.vec["g:"+g]++
			}
			index[tok] = c
			order = append(order, c)
		}
		c.count++
		lo, hi := max(0, i-contextWindow), min(len(tokens)-1, i+contextWindow)
		for j := lo; j <= hi; j++ {
			if j != i && !isStopWord(tokens[j]) {
				c.vec["w:"+tokens[j]]++
			}
		}
	}
	return order
}

// trigrams returns the character trigrams of " word ".
func trigrams(word string) []string {
	r := []rune(" " + word + " ")
	out := make([]string, 0, len(r))
	for i := 0; i+3 <= len(r); i++ {
		out = append(out, string(r[i:i+3]))
	}
	return out
}

// mmr picks the most relevant candidate first, then repeatedly the one that
// maximises (1-d)*relevance - d*max similarity to anything already picked.
// Ties go to the earlier candidate.
func mmr(cands []*candidate, topN int, diversity float64) []*candidate {
	if topN > len(cands) {
		topN = len(cands)
	}
	picked := make([]*candidate, 0, topN)
	used := make([]bool, len(cands))

	best := 0
	for i, c := range cands {
		if c.rel > cands[best].rel {
			best = i
		}
	}
	picked = append(picked, cands[best])
	used[best] = true

	for len(picked) < topN {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range cands {
			if used[i] {
				continue
			}
			maxSim := 0.0
			for _, p := range picked {
				maxSim = math.Max(maxSim, cosine(c.vec, p.vec))
			}
			score := (1-diversity)*c.rel - diversity*maxSim
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		picked = append(picked, cands[best])
		used[best] = true
	}
	return picked
}

// cosine sums in sorted key order so equal inputs give bit-identical scores.
func cosine(a, b vector) float64 {
	var dot, na, nb float64
	for _, k := range sortedKeys(a) {
		v := a[k]
		dot += v * b[k]
		na += v * v
	}
	for _, k := range sortedKeys(b) {
		nb += b[k] * b[k]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortedKeys(v vector) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
