package wake

import "testing"

func TestObserve_ExactSubstring(t *testing.T) {
	t.Parallel()
	d := New("hey auricle")
	d.Arm()

	ev, ok := d.Observe("well hey auricle what's up", false)
	if !ok {
		t.Fatal("expected a trigger")
	}
	if ev.Kind != MatchExact {
		t.Errorf("kind = %q, want exact", ev.Kind)
	}
	if ev.Similarity != 1 {
		t.Errorf("similarity = %v, want 1", ev.Similarity)
	}
}

func TestObserve_CaseInsensitive(t *testing.T) {
	t.Parallel()
	d := New("Hey Auricle")
	d.Arm()

	if _, ok := d.Observe("HEY AURICLE", true); !ok {
		t.Error("expected case-insensitive match")
	}
}

func TestObserve_FuzzyMatch(t *testing.T) {
	t.Parallel()
	d := New("hey auricle")
	d.Arm()

	// A plausible mis-transcription of the phrase.
	ev, ok := d.Observe("hey auricl turn on the lights", false)
	if !ok {
		t.Fatal("expected a fuzzy trigger")
	}
	if ev.Kind != MatchFuzzy {
		t.Errorf("kind = %q, want fuzzy", ev.Kind)
	}
	if ev.Similarity < 0.84 {
		t.Errorf("similarity = %v, want >= 0.84", ev.Similarity)
	}
}

func TestObserve_NoMatch(t *testing.T) {
	t.Parallel()
	d := New("hey auricle")
	d.Arm()

	if _, ok := d.Observe("completely unrelated words", false); ok {
		t.Error("unexpected trigger")
	}
	if !d.Armed() {
		t.Error("detector should stay armed after a non-match")
	}
}

func TestObserve_OneEventPerArmCycle(t *testing.T) {
	t.Parallel()
	d := New("hey auricle")
	d.Arm()

	if _, ok := d.Observe("hey auricle", false); !ok {
		t.Fatal("expected first trigger")
	}
	if _, ok := d.Observe("hey auricle", true); ok {
		t.Error("second hypothesis in the same cycle should not trigger")
	}

	d.Arm()
	if _, ok := d.Observe("hey auricle", true); !ok {
		t.Error("re-arming should allow a new trigger")
	}
}

func TestObserve_DisarmedIgnoresEverything(t *testing.T) {
	t.Parallel()
	d := New("hey auricle")

	if _, ok := d.Observe("hey auricle", true); ok {
		t.Error("disarmed detector should not trigger")
	}
}

func TestObserve_ShortHypothesisWholeStringFuzzy(t *testing.T) {
	t.Parallel()
	d := New("hey auricle")
	d.Arm()

	// Fewer words than the phrase: compared as a whole string.
	ev, ok := d.Observe("heyauricle", false)
	if !ok {
		t.Fatal("expected fuzzy match on clipped hypothesis")
	}
	if ev.Kind != MatchFuzzy {
		t.Errorf("kind = %q, want fuzzy", ev.Kind)
	}
}

func TestObserve_ThresholdConfigurable(t *testing.T) {
	t.Parallel()
	strict := New("hey auricle", WithMinSimilarity(0.99))
	strict.Arm()

	if _, ok := strict.Observe("hey oracle", false); ok {
		t.Error("near-match should not pass a 0.99 threshold")
	}

	lenient := New("hey auricle", WithMinSimilarity(0.7))
	lenient.Arm()
	if _, ok := lenient.Observe("hey oracle", false); !ok {
		t.Error("near-match should pass a 0.7 threshold")
	}
}

func TestObserve_EmptyHypothesis(t *testing.T) {
	t.Parallel()
	d := New("hey auricle")
	d.Arm()

	if _, ok := d.Observe("", true); ok {
		t.Error("empty hypothesis should not trigger")
	}
}
