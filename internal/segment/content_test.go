package segment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hyperjump/kaiwa/internal/models"
)

func msg(id int64, content string, isUser bool, ts time.Time) *models.ChatMessage {
	return &models.ChatMessage{ID: id, ChatID: 1, Content: content, IsUser: isUser, Timestamp: ts}
}

func TestGenerateSegmentContent(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	contact := &models.Contact{Name: "Anna", Department: "Billing"}
	msgs := []*models.ChatMessage{
		msg(2, "Wie geht's?", false, day.Add(10*time.Hour+time.Minute)),
		msg(1, "Hallo", true, day.Add(10*time.Hour)),
	}

	got := GenerateSegmentContent(contact, day, msgs)

	want := strings.Join([]string{
		"Conversation with: Anna",
		"Department: Billing",
		"Date: 01.03.2024",
		"---",
		"[Anna]: Hallo",
		"[AI assistant]: Wie geht's?",
	}, "\n")
	assert.Equal(t, want, got.CombinedContent)
	assert.Equal(t, "Anna - 01.03.2024: Hallo", got.Title)
	assert.Equal(t, "hallo,geht's,anna,billing", got.Keywords)
}

func TestGenerateSegmentContent_Deterministic(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	msgs := []*models.ChatMessage{msg(1, "Frage zu Rechnung", true, day)}
	a := GenerateSegmentContent(nil, day, msgs)
	b := GenerateSegmentContent(nil, day, msgs)
	assert.Equal(t, a, b)
}

func TestGenerateSegmentContent_UnknownContact(t *testing.T) {
	day := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	got := GenerateSegmentContent(nil, day, []*models.ChatMessage{msg(1, "Rechnung bitte", true, day)})

	assert.True(t, strings.HasPrefix(got.CombinedContent, "Conversation with: Unknown\nDate: 02.03.2024\n---\n"))
	assert.NotContains(t, got.CombinedContent, "Department:")
	assert.Contains(t, got.CombinedContent, "[Unknown]: Rechnung bitte")
	assert.Equal(t, "Unknown - 02.03.2024: Rechnung bitte", got.Title)
}

func TestBuildTitle(t *testing.T) {
	day := time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC)
	exact := strings.Repeat("a", 40)
	long := strings.Repeat("b", 41)

	assert.Equal(t, "Bob - 24.12.2024: "+exact, BuildTitle("Bob", day, exact))
	assert.Equal(t, "Bob - 24.12.2024: "+strings.Repeat("b", 40)+"...", BuildTitle("Bob", day, long))
	assert.Equal(t, "Bob - 24.12.2024: "+strings.Repeat("ü", 40)+"...", BuildTitle("Bob", day, strings.Repeat("ü", 45)))
	assert.Equal(t, "Bob - 24.12.2024: ", BuildTitle("Bob", day, ""))
}

func TestBuildTitle_KeepsLeadingWhitespace(t *testing.T) {
	day := time.Date(2024, 12, 24, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "Bob - 24.12.2024:   hallo", BuildTitle("Bob", day, "  hallo"))

	padded := "   " + strings.Repeat("c", 40)
	want := "Bob - 24.12.2024: " + "   " + strings.Repeat("c", 37) + "..."
	assert.Equal(t, want, BuildTitle("Bob", day, padded))
}

func TestExtractKeywords(t *testing.T) {
	ts := time.Now()
	tests := []struct {
		name string
		msgs []*models.ChatMessage
		want []string
	}{
		{
			name: "short tokens dropped",
			msgs: []*models.ChatMessage{msg(1, "Ich bin da und warte", true, ts)},
			want: []string{"warte", "anna"},
		},
		{
			name: "trailing punctuation stripped and lowercased",
			msgs: []*models.ChatMessage{msg(1, "Rechnung!! RECHNUNG, Danke.", true, ts)},
			want: []string{"rechnung", "danke", "anna"},
		},
		{
			name: "punctuation-only tokens dropped",
			msgs: []*models.ChatMessage{msg(1, ".... ---- Hallo", true, ts)},
			want: []string{"hallo", "anna"},
		},
		{
			name: "first-seen order across messages",
			msgs: []*models.ChatMessage{
				msg(1, "zweite frage", true, ts),
				msg(2, "erste zweite", false, ts),
			},
			want: []string{"zweite", "frage", "erste", "anna"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.msgs, "Anna", ""))
		})
	}
}

func TestExtractKeywords_Cap(t *testing.T) {
	var words []string
	for i := 0; i < 20; i++ {
		words = append(words, "word"+string(rune('a'+i)))
	}
	got := ExtractKeywords([]*models.ChatMessage{msg(1, strings.Join(words, " "), true, time.Now())}, "Anna", "Billing")
	assert.Len(t, got, MaxKeywords)
	assert.Equal(t, "worda", got[0])
	assert.NotContains(t, got, "anna")
}

func TestExtractKeywords_DepartmentAppended(t *testing.T) {
	got := ExtractKeywords([]*models.ChatMessage{msg(1, "billing question", true, time.Now())}, "Anna", "Billing")
	assert.Equal(t, []string{"billing", "question", "anna"}, got)
}
