package gazetteer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/cognicore/gazette/pkg/gazette/entity"
	"github.com/cognicore/gazette/pkg/gazette/internalerr"
)

func dummyConfigs() map[string]EntityConfig {
	return map[string]EntityConfig{
		"dummy_entity_1": {
			Threshold: 1.0,
			Utterances: map[string]string{
				"dummy_entity_1": "dummy_entity_1",
				"dummy_1":        "dummy_entity_1",
			},
		},
		"dummy_entity_2": {
			Threshold: 1.0,
			Utterances: map[string]string{
				"dummy_entity_2": "dummy_entity_2",
				"dummy_2":        "dummy_entity_2",
			},
		},
	}
}

func mustBuild(t *testing.T, configs map[string]EntityConfig) *Index {
	t.Helper()
	idx, err := Build(configs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func TestTokenizeOffsets(t *testing.T) {
	tokens := Tokenize("Hello, Wörld_2!  ok")
	expected := []Token{
		{Text: "hello", Start: 0, End: 5},
		{Text: "wörld_2", Start: 7, End: 14},
		{Text: "ok", Start: 17, End: 19},
	}
	if !reflect.DeepEqual(tokens, expected) {
		t.Errorf("Expected %v, got %v", expected, tokens)
	}
}

func TestTokenizeEmpty(t *testing.T) {
	if tokens := Tokenize("  ,;  "); len(tokens) != 0 {
		t.Errorf("Expected no tokens, got %v", tokens)
	}
}

func TestMatchDummyScenario(t *testing.T) {
	idx := mustBuild(t, dummyConfigs())

	result := idx.Match("dummy_entity_1 dummy_1 dummy_entity_2 dummy_2")

	expected := []entity.Occurrence{
		{Value: "dummy_entity_1", ResolvedValue: "dummy_entity_1", Range: entity.Range{Start: 0, End: 14}, EntityIdentifier: "dummy_entity_1"},
		{Value: "dummy_1", ResolvedValue: "dummy_entity_1", Range: entity.Range{Start: 15, End: 22}, EntityIdentifier: "dummy_entity_1"},
		{Value: "dummy_entity_2", ResolvedValue: "dummy_entity_2", Range: entity.Range{Start: 23, End: 37}, EntityIdentifier: "dummy_entity_2"},
		{Value: "dummy_2", ResolvedValue: "dummy_entity_2", Range: entity.Range{Start: 38, End: 45}, EntityIdentifier: "dummy_entity_2"},
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestMatchEmptyInputs(t *testing.T) {
	idx := mustBuild(t, dummyConfigs())
	if got := idx.Match(""); len(got) != 0 {
		t.Errorf("empty text should not match, got %v", got)
	}

	empty := mustBuild(t, map[string]EntityConfig{"empty": {Threshold: 0.5}})
	if got := empty.Match("anything at all"); len(got) != 0 {
		t.Errorf("empty vocabulary should not match, got %v", got)
	}
}

func TestMatchCaseInsensitive(t *testing.T) {
	idx := mustBuild(t, map[string]EntityConfig{
		"city": {Threshold: 1.0, Utterances: map[string]string{"New York": "NYC"}},
	})
	result := idx.Match("flights to NEW YORK tomorrow")
	if len(result) != 1 {
		t.Fatalf("Expected 1 match, got %v", result)
	}
	if result[0].Value != "NEW YORK" || result[0].ResolvedValue != "NYC" {
		t.Errorf("Unexpected occurrence %+v", result[0])
	}
	if result[0].Range != (entity.Range{Start: 11, End: 19}) {
		t.Errorf("Unexpected range %+v", result[0].Range)
	}
}

func TestMatchExactThresholdRejectsPartial(t *testing.T) {
	idx := mustBuild(t, map[string]EntityConfig{
		"song": {Threshold: 1.0, Utterances: map[string]string{"the dark side of the moon": "dsotm"}},
	})
	if got := idx.Match("play the dark side of moon"); len(got) != 0 {
		t.Errorf("threshold 1.0 should reject partial match, got %v", got)
	}
}

func TestMatchExactOverlappingEntries(t *testing.T) {
	idx := mustBuild(t, map[string]EntityConfig{
		"band": {Threshold: 1.0, Utterances: map[string]string{
			"hot chili":             "hot chili",
			"red hot chili peppers": "rhcp",
		}},
		"letters": {Threshold: 1.0, Utterances: map[string]string{"a b": "ab", "b c d": "bcd"}},
	})

	result := idx.Match("play Red Hot Chili Peppers now")
	expected := []entity.Occurrence{
		{Value: "Red Hot Chili Peppers", ResolvedValue: "rhcp", Range: entity.Range{Start: 5, End: 26}, EntityIdentifier: "band"},
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}

	// "b c d" starts inside "a b" and must still be found to win on span.
	result = idx.Match("a b c d")
	if len(result) != 1 || result[0].ResolvedValue != "bcd" {
		t.Errorf("Expected the longer overlapping entry, got %v", result)
	}

	if result = idx.Match("hotchili"); len(result) != 0 {
		t.Errorf("Exact entries should only match on token boundaries, got %v", result)
	}
}

func TestMatchExactAndFuzzyEntities(t *testing.T) {
	idx := mustBuild(t, map[string]EntityConfig{
		"city":     {Threshold: 1.0, Utterances: map[string]string{"paris": "Paris"}},
		"nickname": {Threshold: 0.6, Utterances: map[string]string{"city of light": "Paris"}},
	})
	result := idx.Match("PARIS, the city of light")
	expected := []entity.Occurrence{
		{Value: "PARIS", ResolvedValue: "Paris", Range: entity.Range{Start: 0, End: 5}, EntityIdentifier: "city"},
		{Value: "city of light", ResolvedValue: "Paris", Range: entity.Range{Start: 11, End: 24}, EntityIdentifier: "nickname"},
	}
	if !reflect.DeepEqual(result, expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestMatchFuzzyThreshold(t *testing.T) {
	idx := mustBuild(t, map[string]EntityConfig{
		"song": {Threshold: 0.8, Utterances: map[string]string{"the dark side of the moon": "dsotm"}},
	})
	result := idx.Match("play the dark side of moon please")
	if len(result) != 1 {
		t.Fatalf("Expected 1 fuzzy match, got %v", result)
	}
	if result[0].Value != "the dark side of moon" {
		t.Errorf("Unexpected value %q", result[0].Value)
	}
	if result[0].ResolvedValue != "dsotm" {
		t.Errorf("Unexpected resolved value %q", result[0].ResolvedValue)
	}
}

func TestMatchTinyThresholdKeepsWholePhrase(t *testing.T) {
	for _, threshold := range []float64{0, 1e-19, 0.01} {
		idx := mustBuild(t, map[string]EntityConfig{
			"city": {Threshold: threshold, Utterances: map[string]string{"new york city": "NYC"}},
		})
		result := idx.Match("new york city")
		expected := []entity.Occurrence{
			{Value: "new york city", ResolvedValue: "NYC", Range: entity.Range{Start: 0, End: 13}, EntityIdentifier: "city"},
		}
		if !reflect.DeepEqual(result, expected) {
			t.Errorf("threshold %v: expected %v, got %v", threshold, expected, result)
		}
	}
}

func TestWindowLimitMonotonic(t *testing.T) {
	prev := windowLimit(3, 1)
	if prev != 3 {
		t.Errorf("threshold 1 should allow exactly the entry length, got %d", prev)
	}
	for _, threshold := range []float64{0.8, 0.5, 0.01, 1e-9, 1e-19, 0} {
		limit := windowLimit(3, threshold)
		if limit < prev {
			t.Errorf("windowLimit(3, %v) = %d, smaller than %d for a higher threshold", threshold, limit, prev)
		}
		prev = limit
	}
}

func TestMatchPrefersHigherRatio(t *testing.T) {
	idx := mustBuild(t, map[string]EntityConfig{
		"a": {Threshold: 0.5, Utterances: map[string]string{"blue moon": "blue moon"}},
		"b": {Threshold: 0.5, Utterances: map[string]string{"moon": "moon"}},
	})
	// "moon" alone matches b exactly (ratio 1) and a partially (ratio 2/3).
	result := idx.Match("moon")
	if len(result) != 1 || result[0].EntityIdentifier != "b" {
		t.Errorf("Expected exact match on b, got %v", result)
	}
}

func TestMatchPrefersLongerSpanOnTie(t *testing.T) {
	idx := mustBuild(t, map[string]EntityConfig{
		"short": {Threshold: 1.0, Utterances: map[string]string{"york": "york"}},
		"long":  {Threshold: 1.0, Utterances: map[string]string{"new york": "new york"}},
	})
	result := idx.Match("new york")
	if len(result) != 1 || result[0].EntityIdentifier != "long" {
		t.Errorf("Expected longer span to win, got %v", result)
	}
}

func TestMatchPrefersEarlierStartOnTie(t *testing.T) {
	idx := mustBuild(t, map[string]EntityConfig{
		"e": {Threshold: 1.0, Utterances: map[string]string{"a b": "ab", "b c": "bc"}},
	})
	result := idx.Match("a b c")
	if len(result) != 1 || result[0].ResolvedValue != "ab" {
		t.Errorf("Expected earlier start to win, got %v", result)
	}
}

func TestMatchEntityOrderOnTie(t *testing.T) {
	idx := mustBuild(t, map[string]EntityConfig{
		"zeta":  {Threshold: 1.0, Utterances: map[string]string{"paris": "Paris"}},
		"alpha": {Threshold: 1.0, Utterances: map[string]string{"paris": "Paris, FR"}},
	})
	result := idx.Match("paris")
	if len(result) != 1 || result[0].EntityIdentifier != "alpha" {
		t.Errorf("Expected lexically smaller entity to win, got %v", result)
	}
}

func TestMatchDeterministic(t *testing.T) {
	configs := map[string]EntityConfig{
		"a": {Threshold: 0.6, Utterances: map[string]string{"red hot chili peppers": "rhcp", "red hot": "rh"}},
		"b": {Threshold: 0.6, Utterances: map[string]string{"hot chili": "hc", "peppers": "p"}},
	}
	text := "I love red hot chili peppers and hot chili"
	first := mustBuild(t, configs).Match(text)
	for i := 0; i < 20; i++ {
		if got := mustBuild(t, configs).Match(text); !reflect.DeepEqual(first, got) {
			t.Fatalf("Match not deterministic: %v vs %v", first, got)
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].Range.Overlaps(first[i].Range) {
			t.Errorf("Overlapping occurrences kept: %v and %v", first[i-1], first[i])
		}
		if first[i-1].Range.Start > first[i].Range.Start {
			t.Errorf("Occurrences not ordered by start: %v", first)
		}
	}
}

func TestMatchUnicodeOffsets(t *testing.T) {
	idx := mustBuild(t, map[string]EntityConfig{
		"city": {Threshold: 1.0, Utterances: map[string]string{"Zürich": "Zurich"}},
	})
	result := idx.Match("né à zürich")
	if len(result) != 1 {
		t.Fatalf("Expected 1 match, got %v", result)
	}
	if result[0].Range != (entity.Range{Start: 5, End: 11}) || result[0].Value != "zürich" {
		t.Errorf("Unexpected occurrence %+v", result[0])
	}
}

func TestBuildRejectsInvalidThreshold(t *testing.T) {
	_, err := Build(map[string]EntityConfig{"x": {Threshold: 1.5}})
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuildDuplicateNormalizedRaw(t *testing.T) {
	idx := mustBuild(t, map[string]EntityConfig{
		"e": {Threshold: 1.0, Utterances: map[string]string{"Foo": "upper", "foo": "lower"}},
	})
	if idx.Size() != 1 {
		t.Errorf("Expected duplicates to collapse, got %d entries", idx.Size())
	}
	result := idx.Match("foo")
	if len(result) != 1 || result[0].ResolvedValue != "upper" {
		t.Errorf("Expected smallest raw value to win, got %v", result)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"new york", "New York", 1},
		{"new york", "york", 2.0 / 3.0},
		{"a b c", "c b a", 2.0 / 6.0},
		{"", "", 0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if Similarity(tt.a, tt.b) != Similarity(tt.b, tt.a) {
			t.Errorf("Similarity(%q, %q) is not symmetric", tt.a, tt.b)
		}
	}
}

func TestMerge(t *testing.T) {
	a := mustBuild(t, map[string]EntityConfig{"a": {Threshold: 1, Utterances: map[string]string{"x": "X"}}})
	b := mustBuild(t, map[string]EntityConfig{"b": {Threshold: 1, Utterances: map[string]string{"y": "Y"}}})
	merged, err := Merge(a, b)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !reflect.DeepEqual(merged.Entities(), []string{"a", "b"}) {
		t.Errorf("Unexpected entities %v", merged.Entities())
	}
	if _, err := Merge(a, a); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("Expected collision error, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "parser")
	idx := mustBuild(t, dummyConfigs())

	if err := Save(ctx, dir, idx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(ctx, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.ID() != idx.ID() {
		t.Errorf("ID mismatch: got %s, want %s", loaded.ID(), idx.ID())
	}
	if !reflect.DeepEqual(loaded.Configs(), idx.Configs()) {
		t.Errorf("Configs mismatch: got %v, want %v", loaded.Configs(), idx.Configs())
	}
	text := "dummy_entity_1 dummy_1 dummy_entity_2 dummy_2"
	if !reflect.DeepEqual(loaded.Match(text), idx.Match(text)) {
		t.Errorf("Match differs after round trip")
	}

	// Saving again over an existing index replaces it.
	if err := Save(ctx, dir, idx); err != nil {
		t.Fatalf("Save over existing: %v", err)
	}
}

func TestLoadMissingOrCorrupt(t *testing.T) {
	ctx := context.Background()
	if _, err := Load(ctx, t.TempDir()); !errors.Is(err, internalerr.ErrSerialization) {
		t.Errorf("Expected ErrSerialization for missing index, got %v", err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("nothing interesting here"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(ctx, dir); !errors.Is(err, internalerr.ErrSerialization) {
		t.Errorf("Expected ErrSerialization for corrupt index, got %v", err)
	}
}
