package keyword

import (
	"sort"
	"strings"
	"sync"
)

// Suggestion is a candidate correction for one query term.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
	Score     float64
}

// SpellChecker suggests corrections for query terms that do not occur in the index.
type SpellChecker struct {
	dictionary     TermDictionary
	maxDistance    int
	minFreq        int
	maxSuggestions int
	minTermLength  int

	mu      sync.RWMutex
	terms   []string
	termSet map[string]struct{}
	valid   bool
}

// SpellCheckerOption configures a SpellChecker.
type SpellCheckerOption func(*SpellChecker)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency ignores dictionary terms that occur in fewer than f segments.
func WithMinFrequency(f int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// WithMaxSuggestions caps suggestions per term.
func WithMaxSuggestions(n int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// NewSpellChecker creates a SpellChecker backed by dict.
func NewSpellChecker(dict TermDictionary, opts ...SpellCheckerOption) *SpellChecker {
	s := &SpellChecker{
		dictionary:     dict,
		maxDistance:    2,
		minFreq:        1,
		maxSuggestions: 5,
		minTermLength:  4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate drops the cached term list; it is reloaded on next use.
func (s *SpellChecker) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

func (s *SpellChecker) load() error {
	s.mu.RLock()
	valid := s.valid
	s.mu.RUnlock()
	if valid {
		return nil
	}

	terms, err := s.dictionary.AllTerms()
	if err != nil {
		return err
	}
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[strings.ToLower(t)] = struct{}{}
	}

	s.mu.Lock()
	s.terms = terms
	s.termSet = set
	s.valid = true
	s.mu.Unlock()
	return nil
}

// Suggest returns corrections for term ranked by frequency over distance.
func (s *SpellChecker) Suggest(term string) []Suggestion {
	if err := s.load(); err != nil {
		return nil
	}
	term = strings.ToLower(term)

	s.mu.RLock()
	terms := s.terms
	s.mu.RUnlock()

	var out []Suggestion
	for _, candidate := range terms {
		c := strings.ToLower(candidate)
		if c == term {
			continue
		}
		if diff := len([]rune(c)) - len([]rune(term)); diff > s.maxDistance || -diff > s.maxDistance {
			continue
		}
		d := EditDistance(term, c)
		if d > s.maxDistance {
			continue
		}
		freq, err := s.dictionary.TermFrequency(candidate)
		if err != nil || freq < s.minFreq {
			continue
		}
		out = append(out, Suggestion{
			Term:      candidate,
			Distance:  d,
			Frequency: freq,
			Score:     float64(freq) / float64(d+1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > s.maxSuggestions {
		out = out[:s.maxSuggestions]
	}
	return out
}

// Correct rewrites unknown terms of query to their best suggestion.
// It reports false when nothing was changed.
func (s *SpellChecker) Correct(query string) (string, bool) {
	if err := s.load(); err != nil {
		return query, false
	}
	terms := tokenizeQuery(query)
	changed := false
	for i, term := range terms {
		if len([]rune(term)) < s.minTermLength {
			continue
		}
		s.mu.RLock()
		_, known := s.termSet[term]
		s.mu.RUnlock()
		if known {
			continue
		}
		if sug := s.Suggest(term); len(sug) > 0 {
			terms[i] = sug[0].Term
			changed = true
		}
	}
	if !changed {
		return query, false
	}
	return strings.Join(terms, " "), true
}

// EditDistance is the optimal-string-alignment distance between a and b:
// insertions, deletions, substitutions and adjacent transpositions each cost 1.
func EditDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	d := make([][]int, len(ra)+1)
	for i := range d {
		d[i] = make([]int, len(rb)+1)
		d[i][0] = i
	}
	for j := 0; j <= len(rb); j++ {
		d[0][j] = j
	}
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				d[i][j] = min(d[i][j], d[i-2][j-2]+1)
			}
		}
	}
	return d[len(ra)][len(rb)]
}
