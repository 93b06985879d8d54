package dedup

import (
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/termreg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(text string) *core.Document {
	return &core.Document{
		Meta: core.DocumentMeta{Source: "https://example.test/page"},
		Text: text,
	}
}

func TestFilter_FirstSeenWins(t *testing.T) {
	f := NewFilter()

	base := strings.Repeat("the customs office at the border crossing handles import declarations ", 10)

	assert.False(t, f.Seen(doc(base)), "first occurrence must be admitted")
	assert.True(t, f.Seen(doc(base)), "identical text must be rejected")
	assert.Equal(t, 1, f.Admitted())
}

func TestFilter_NearDuplicateRejected(t *testing.T) {
	f := NewFilter()

	base := strings.Repeat("pharmacies in the old town stay open late on weekdays and offer prescription services ", 12)
	// One word changed out of a long text keeps Jaccard well above 0.85.
	variant := strings.Replace(base, "weekdays", "weekends", 1)

	require.False(t, f.Seen(doc(base)))
	assert.True(t, f.Seen(doc(variant)))
}

func TestFilter_ReorderedDocumentRejected(t *testing.T) {
	f := NewFilter()

	words := strings.Fields("ferry schedules between the harbour and the islands change with the season check departures daily")
	base := strings.Join(words, " ")

	// Same token set in reverse order: similarity is set-based, so a
	// shuffled copy is still a duplicate.
	for i, j := 0, len(words)-1; i < j; i, j = i+1, j-1 {
		words[i], words[j] = words[j], words[i]
	}
	reordered := strings.Join(words, " ")

	require.False(t, f.Seen(doc(base)))
	assert.True(t, f.Seen(doc(reordered)))
	assert.Equal(t, 1, f.Admitted())
}

func TestFilter_DistinctTextsAdmitted(t *testing.T) {
	f := NewFilter()

	texts := []string{
		"customs office border crossing import export declarations duty free allowances",
		"pharmacy medication prescriptions opening hours emergency rota night service",
		"beaches swimming snorkeling water sports sun loungers umbrella rental season",
		"restaurants taverna meze local cuisine reservations seaside terrace dining",
	}

	for i, text := range texts {
		assert.False(t, f.Seen(doc(text)), "text %d should be admitted", i)
	}
	assert.Equal(t, len(texts), f.Admitted())
}

func TestFilter_ClusterKeepsExactlyOne(t *testing.T) {
	f := NewFilter()

	base := strings.Repeat("ferry schedules between the harbour and the islands change with the season check departures timetable tickets port terminal crossing duration ", 10)

	admitted := 0
	for i := 0; i < 5; i++ {
		// Each copy differs by a trailing token only.
		text := base + fmt.Sprintf("revision %d", i)
		if !f.Seen(doc(text)) {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted, "a duplicate cluster admits exactly its first member")
}

func TestSignature_Deterministic(t *testing.T) {
	a := NewFilter()
	b := NewFilter()

	text := "stable signatures across filter instances and process restarts"
	assert.Equal(t, a.signature(text), b.signature(text))
}

func TestTokens(t *testing.T) {
	t.Run("lowercased and split on whitespace", func(t *testing.T) {
		assert.Equal(t, []string{"two", "words"}, tokens("Two  Words"))
	})

	t.Run("empty text yields sentinel token", func(t *testing.T) {
		assert.Equal(t, []string{""}, tokens("   "))
	})
}
