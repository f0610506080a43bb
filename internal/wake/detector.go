// Package wake turns a stream of speech hypotheses into discrete wake
// events.
//
// The detector is armed while the pipeline listens for the trigger phrase.
// It inspects every interim hypothesis so a match fires as early as
// possible, falling back to the final hypothesis for phrases the decoder
// only commits to at the end of the utterance. Matching is case-insensitive
// substring first, then Jaro-Winkler fuzzy comparison over an n-gram window
// the size of the phrase, which absorbs mild mis-transcriptions
// ("hey oracle" for "hey auricle").
//
// One arm cycle produces at most one event: after a trigger the detector
// disarms itself and stays quiet until Arm is called again.
package wake

import (
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

const defaultMinSimilarity = 0.84

// MatchKind reports how a hypothesis matched the phrase.
type MatchKind string

const (
	// MatchExact means the phrase appeared verbatim in the hypothesis.
	MatchExact MatchKind = "exact"
	// MatchFuzzy means an n-gram scored above the similarity threshold.
	MatchFuzzy MatchKind = "fuzzy"
)

// Event is a single wake trigger.
type Event struct {
	// Heard is the hypothesis text that triggered the match.
	Heard string

	// Kind reports whether the match was exact or fuzzy.
	Kind MatchKind

	// Similarity is the Jaro-Winkler score of the best n-gram. 1 for exact
	// matches.
	Similarity float64

	// Final reports whether the triggering hypothesis was final.
	Final bool
}

// Option is a functional option for configuring a Detector.
type Option func(*Detector)

// WithMinSimilarity sets the Jaro-Winkler threshold for fuzzy matches.
// Default: 0.84.
func WithMinSimilarity(threshold float64) Option {
	return func(d *Detector) { d.minSimilarity = threshold }
}

// Detector matches hypotheses against a wake phrase. All methods are safe
// for concurrent use.
type Detector struct {
	phrase        string
	phraseWords   int
	minSimilarity float64

	mu    sync.Mutex
	armed bool
}

// New returns a Detector for the given phrase, initially disarmed. The
// phrase is matched case-insensitively.
func New(phrase string, opts ...Option) *Detector {
	p := strings.ToLower(strings.TrimSpace(phrase))
	d := &Detector{
		phrase:        p,
		phraseWords:   len(strings.Fields(p)),
		minSimilarity: defaultMinSimilarity,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Arm enables detection for a new cycle.
func (d *Detector) Arm() {
	d.mu.Lock()
	d.armed = true
	d.mu.Unlock()
}

// Disarm disables detection without a trigger.
func (d *Detector) Disarm() {
	d.mu.Lock()
	d.armed = false
	d.mu.Unlock()
}

// Armed reports whether the detector is currently armed.
func (d *Detector) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Observe feeds one hypothesis to the detector. When the detector is armed
// and the text matches the phrase, Observe disarms the detector and returns
// the trigger event with ok true. In all other cases ok is false.
func (d *Detector) Observe(text string, final bool) (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.armed || d.phrase == "" {
		return Event{}, false
	}

	kind, score, matched := d.match(text)
	if !matched {
		return Event{}, false
	}

	d.armed = false
	return Event{
		Heard:      text,
		Kind:       kind,
		Similarity: score,
		Final:      final,
	}, true
}

// match runs the substring check first, then slides a phrase-sized word
// window over the text scoring each n-gram with Jaro-Winkler.
func (d *Detector) match(text string) (MatchKind, float64, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return "", 0, false
	}
	if strings.Contains(lower, d.phrase) {
		return MatchExact, 1, true
	}

	words := strings.Fields(lower)
	n := d.phraseWords
	if n == 0 || len(words) < n {
		// Short hypotheses still get one whole-string comparison so a
		// clipped phrase can match fuzzily.
		if score := matchr.JaroWinkler(lower, d.phrase, false); score >= d.minSimilarity {
			return MatchFuzzy, score, true
		}
		return "", 0, false
	}

	best := 0.0
	for i := 0; i+n <= len(words); i++ {
		gram := strings.Join(words[i:i+n], " ")
		if score := matchr.JaroWinkler(gram, d.phrase, false); score > best {
			best = score
		}
	}
	if best >= d.minSimilarity {
		return MatchFuzzy, best, true
	}
	return "", 0, false
}
