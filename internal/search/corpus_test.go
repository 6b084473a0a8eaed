package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/segment"
	"github.com/hyperjump/kaiwa/internal/storage"
)

const corpusSearchLimit = 10

// corpusChat is one support conversation whose messages share a signature term.
type corpusChat struct {
	contact    string
	department string
	title      string
	signature  string
	messages   []string
}

var supportCorpus = []corpusChat{
	{"Anna", "Billing", "Rechnung", "doppelabbuchung", []string{
		"Meine Rechnung zeigt eine Doppelabbuchung vom Mai", "Ich prüfe die Doppelabbuchung sofort", "Die Gutschrift kommt nächste Woche"}},
	{"Ben", "Logistics", "Lieferung", "paketverfolgung", []string{
		"Die Paketverfolgung zeigt seit Tagen keinen Fortschritt", "Ich habe beim Versanddienst nachgefragt", "Das Paket ist jetzt unterwegs"}},
	{"Clara", "Contracts", "Kündigung", "vertragsende", []string{
		"Ich möchte zum Vertragsende kündigen", "Das Vertragsende ist der 31. Dezember", "Bitte schriftlich bestätigen"}},
	{"David", "IT", "Passwort", "zurücksetzen", []string{
		"Kann ich mein Passwort zurücksetzen lassen?", "Der Link zum Zurücksetzen ist unterwegs", "Hat funktioniert, danke"}},
	{"Eva", "Sales", "Angebot", "mengenrabatt", []string{
		"Gibt es einen Mengenrabatt ab hundert Stück?", "Ab hundert Stück gilt zehn Prozent Mengenrabatt", "Dann bestelle ich zweihundert"}},
	{"Felix", "Support", "Router", "firmware", []string{
		"Nach dem Firmware Update startet der Router ständig neu", "Bitte die Firmware zurückspielen", "Der Router läuft wieder stabil"}},
	{"Greta", "HR", "Urlaub", "resturlaub", []string{
		"Wie viel Resturlaub habe ich noch?", "Sie haben noch zwölf Tage Resturlaub", "Dann plane ich den August"}},
	{"Hannes", "Facilities", "Parkplatz", "tiefgarage", []string{
		"Die Schranke der Tiefgarage öffnet nicht", "Der Hausmeister ist informiert", "Die Tiefgarage ist wieder offen"}},
	{"Ida", "Billing", "Mahnung", "zahlungserinnerung", []string{
		"Ich habe eine Zahlungserinnerung bekommen obwohl ich bezahlt habe", "Die Zahlungserinnerung war ein Fehler", "Danke für die schnelle Klärung"}},
	{"Jonas", "IT", "Drucker", "druckerwarteschlange", []string{
		"Die Druckerwarteschlange hängt seit heute Morgen", "Ich habe den Spooler neu gestartet", "Alles druckt wieder"}},
	{"Klara", "Logistics", "Retoure", "rücksendeetikett", []string{
		"Ich brauche ein Rücksendeetikett für die Jacke", "Das Rücksendeetikett ist per Mail unterwegs", "Angekommen, danke"}},
	{"Lukas", "Security", "Zugang", "zweifaktor", []string{
		"Die Zweifaktor Anmeldung schlägt fehl", "Bitte die Uhrzeit am Handy synchronisieren", "Jetzt klappt die Anmeldung"}},
}

// seedCorpus stores every corpus chat with messages on two days and builds daily segments.
func seedCorpus(t *testing.T, store storage.Store, engine *segment.Engine) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	day := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	chatIDs := make(map[string]int64, len(supportCorpus))
	for _, c := range supportCorpus {
		contact := &models.Contact{Name: c.contact, Department: c.department}
		if _, err := store.SaveContact(ctx, contact); err != nil {
			t.Fatal(err)
		}
		chat := &models.Chat{Title: c.title, ContactID: contact.ID, CreatedAt: day, IsActive: true}
		if _, err := store.SaveChat(ctx, chat); err != nil {
			t.Fatal(err)
		}
		for i, content := range c.messages {
			msg := &models.ChatMessage{
				ChatID:    chat.ID,
				Content:   content,
				IsUser:    i%2 == 0,
				Timestamp: day.AddDate(0, 0, i/2).Add(time.Duration(i) * time.Minute),
			}
			if _, err := store.SaveMessage(ctx, msg); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := engine.CreateDailySegments(ctx, chat.ID); err != nil {
			t.Fatalf("segments for %q: %v", c.title, err)
		}
		chatIDs[c.signature] = chat.ID
	}
	return chatIDs
}

func TestCorpus_SearchReturnsSignatureChat(t *testing.T) {
	store := newTestStore(t)
	text := newTextSearcher(t, store)
	embedder := embedding.NewHashEmbedder(128)
	segments := segment.NewEngine(store, embedder, segment.WithIndexer(text), segment.WithLocation(time.UTC))
	chatIDs := seedCorpus(t, store, segments)

	engine := NewEngine(store, embedder)
	hybrid := NewHybridRanker(engine, store, WithTextSearcher(text))
	ctx := context.Background()

	t.Logf("seeded %d chats; running %d signature queries", len(supportCorpus), len(chatIDs))
	for _, c := range supportCorpus {
		want := chatIDs[c.signature]
		t.Run(fmt.Sprintf("query %q returns chat %q", c.signature, c.title), func(t *testing.T) {
			segs := hybrid.HybridSearchSegments(ctx, c.signature, corpusSearchLimit)
			if len(segs) == 0 || segs[0].Segment.ChatID != want {
				t.Fatalf("segments: top hit should belong to chat %d, got %v", want, segmentChatIDs(segs))
			}
			if segs[0].MatchType != models.MatchHybrid {
				t.Errorf("segments: signature hit should match both signals, got %q", segs[0].MatchType)
			}

			chats := hybrid.HybridSearchChats(ctx, c.signature, corpusSearchLimit)
			if len(chats) == 0 || chats[0].Chat.ID != want {
				t.Fatalf("chats: top hit should be chat %d, got %d results", want, len(chats))
			}
			if chats[0].MatchedMessages == 0 || chats[0].Snippet == "" {
				t.Errorf("chats: expected matched messages and a snippet, got %+v", chats[0])
			}
		})
	}
}

func segmentChatIDs(results []*models.SegmentSimilarityResult) []int64 {
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Segment.ChatID)
	}
	return ids
}
