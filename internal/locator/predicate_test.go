package locator

import (
	"strings"
	"testing"
	"unicode/utf8"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "apply now", Normalize("  Apply \n\t NOW "))
	assert.Equal(t, "", Normalize(" \n "))
}

func TestLabelPredicate_Match(t *testing.T) {
	tests := []struct {
		name string
		pred LabelPredicate
		text string
		want bool
	}{
		{"prefix matches", StartsWith("Apply"), "  APPLY  now", true},
		{"prefix ignores mentions", StartsWith("Apply"), "How to apply", false},
		{"contains matches mentions", Contains("close"), "Close dialog", true},
		{"contains any label", Contains("close", "cancel"), "Cancel", true},
		{"exact rejects suffix", Exactly("Applied"), "Applied today", false},
		{"exact collapses whitespace", Exactly("Apply now"), "apply\n now", true},
		{"zero matches nothing", LabelPredicate{}, "Apply", false},
		{"blank labels are dropped", StartsWith(" ", ""), "Apply", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred.Match(tt.text))
		})
	}
}

func TestMatching(t *testing.T) {
	p, err := Matching(`^apply( now)?$`)
	require.NoError(t, err)
	assert.True(t, p.Match("APPLY  Now"))
	assert.False(t, p.Match("apply later"))
	assert.Equal(t, "regex:^apply( now)?$", p.String())

	_, err = Matching("([")
	assert.Error(t, err)
}

func TestParsePredicate(t *testing.T) {
	p, err := ParsePredicate("Apply")
	require.NoError(t, err)
	assert.Equal(t, ModePrefix, p.Mode())
	assert.Equal(t, "prefix:apply", p.String())

	p, err = ParsePredicate("contains:Close|Cancel|Back")
	require.NoError(t, err)
	assert.Equal(t, ModeContains, p.Mode())
	assert.True(t, p.Match("Go back"))

	p, err = ParsePredicate("exact:Applied")
	require.NoError(t, err)
	assert.True(t, p.Match("applied"))

	p, err = ParsePredicate("")
	require.NoError(t, err)
	assert.True(t, p.IsZero())

	// A colon only introduces a mode when the prefix names one.
	p, err = ParsePredicate("Apply: Easy")
	require.NoError(t, err)
	assert.Equal(t, ModePrefix, p.Mode())
	assert.True(t, p.Match("Apply: Easy  now"))
	assert.False(t, p.Match("Apply"))

	p, err = ParsePredicate("fuzzy:apply|Send")
	require.NoError(t, err)
	assert.Equal(t, ModePrefix, p.Mode())
	assert.True(t, p.Match("fuzzy:apply"))
	assert.True(t, p.Match("Send application"))

	p, err = ParsePredicate(" Contains :Close")
	require.NoError(t, err)
	assert.Equal(t, ModeContains, p.Mode())

	_, err = ParsePredicate("regex:([")
	assert.ErrorContains(t, err, "invalid label pattern")

	assert.Panics(t, func() { MustParsePredicate("regex:([") })
}

// FuzzLabelPredicate checks the matching invariants hold for arbitrary labels.
func FuzzLabelPredicate(f *testing.F) {
	f.Add([]byte("apply"))
	f.Add([]byte("  Close \t dialog "))
	f.Fuzz(func(t *testing.T, data []byte) {
		var in struct {
			Label  string
			Prefix string
			Suffix string
		}
		if err := fuzz.NewConsumer(data).GenerateStruct(&in); err != nil {
			return
		}
		if !utf8.ValidString(in.Label) || !utf8.ValidString(in.Prefix) || !utf8.ValidString(in.Suffix) {
			return
		}
		label := Normalize(in.Label)
		if label == "" {
			return
		}
		if strings.HasPrefix(label, " ") || strings.HasSuffix(label, " ") || strings.Contains(label, "  ") {
			t.Fatalf("Normalize(%q) left stray whitespace: %q", in.Label, label)
		}
		if !StartsWith(in.Label).Match(in.Label + " " + in.Suffix) {
			t.Fatalf("StartsWith(%q) did not match its own label with a suffix", in.Label)
		}
		if !Contains(in.Label).Match(in.Prefix + " " + in.Label + " " + in.Suffix) {
			t.Fatalf("Contains(%q) did not match its own label", in.Label)
		}
		if !Exactly(in.Label).Match(in.Label) {
			t.Fatalf("Exactly(%q) did not match itself", in.Label)
		}
	})
}
