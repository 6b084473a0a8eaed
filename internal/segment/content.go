package segment

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/kaiwa/internal/models"
)

const (
	// UnknownContact labels chats whose contact cannot be resolved.
	UnknownContact = "Unknown"
	// AssistantLabel is the speaker label for messages not sent by the user.
	AssistantLabel = "AI assistant"
	// MaxKeywords caps the comma-joined keyword list of a segment.
	MaxKeywords = 15

	displayDateLayout  = "02.01.2006"
	titlePreviewLength = 40
	minKeywordLength   = 4
	headerSeparator    = "---"
)

// Content is the synthesized text of a segment.
type Content struct {
	CombinedContent string
	Title           string
	Keywords        string
}

// GenerateSegmentContent renders msgs for contact on date. It is deterministic for a given input.
//
// Messages with IsUser set are labeled with the contact's name and all others with AssistantLabel.
// Downstream consumers and stored segments depend on this labeling.
func GenerateSegmentContent(contact *models.Contact, date time.Time, msgs []*models.ChatMessage) Content {
	name, dept := resolveContact(contact)
	ordered := sortByTimestamp(msgs)

	var b strings.Builder
	b.WriteString("Conversation with: " + name + "\n")
	if dept != "" {
		b.WriteString("Department: " + dept + "\n")
	}
	b.WriteString("Date: " + date.Format(displayDateLayout) + "\n")
	b.WriteString(headerSeparator)
	for _, m := range ordered {
		speaker := AssistantLabel
		if m.IsUser {
			speaker = name
		}
		b.WriteString("\n[" + speaker + "]: " + m.Content)
	}

	first := ""
	if len(ordered) > 0 {
		first = ordered[0].Content
	}
	return Content{
		CombinedContent: b.String(),
		Title:           BuildTitle(name, date, first),
		Keywords:        strings.Join(ExtractKeywords(ordered, name, dept), ","),
	}
}

// BuildTitle returns "{name} - {dd.MM.yyyy}: {preview}" where preview is the first 40
// characters of firstMessage, followed by "..." only when it was truncated.
func BuildTitle(name string, date time.Time, firstMessage string) string {
	preview := firstMessage
	if utf8.RuneCountInString(preview) > titlePreviewLength {
		preview = string([]rune(preview)[:titlePreviewLength]) + "..."
	}
	return name + " - " + date.Format(displayDateLayout) + ": " + preview
}

// ExtractKeywords collects lowercase tokens longer than three characters from msgs in order,
// strips trailing punctuation, drops duplicates, then appends name and department.
// The result holds at most MaxKeywords entries in first-seen order.
func ExtractKeywords(msgs []*models.ChatMessage, name, department string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(k string) {
		if k == "" || len(out) >= MaxKeywords {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	for _, m := range msgs {
		for _, tok := range strings.Fields(m.Content) {
			if utf8.RuneCountInString(tok) < minKeywordLength || allPunct(tok) {
				continue
			}
			add(strings.ToLower(strings.TrimRightFunc(tok, unicode.IsPunct)))
		}
	}
	add(strings.ToLower(strings.TrimSpace(name)))
	add(strings.ToLower(strings.TrimSpace(department)))
	return out
}

func allPunct(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) {
			return false
		}
	}
	return true
}

func resolveContact(c *models.Contact) (name, dept string) {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return UnknownContact, ""
	}
	return c.Name, c.Department
}

// sortByTimestamp returns a copy of msgs ordered by timestamp; equal timestamps keep their order.
func sortByTimestamp(msgs []*models.ChatMessage) []*models.ChatMessage {
	out := make([]*models.ChatMessage, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// nonEmpty returns msgs whose content is not blank, in timestamp order.
func nonEmpty(msgs []*models.ChatMessage) []*models.ChatMessage {
	var out []*models.ChatMessage
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) != "" {
			out = append(out, m)
		}
	}
	return sortByTimestamp(out)
}
