package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vector"
)

// SQLiteStorage implements Store using SQLite. With WithVectorIndex it also
// implements VectorSearcher through in-process vector indexes.
type SQLiteStorage struct {
	db      *sql.DB
	logger  *zap.Logger
	vectors *vectorIndexes
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	o := buildOptions(opts)
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStorage{db: db, logger: o.logger}
	if o.indexType != "" {
		s.vectors = &vectorIndexes{indexType: o.indexType, dims: o.dims}
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		contact_id INTEGER REFERENCES contacts(id) ON DELETE SET NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		embedding BLOB
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		is_user INTEGER NOT NULL DEFAULT 0,
		embedding BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON chat_messages(chat_id, timestamp);

	CREATE TABLE IF NOT EXISTS chat_segments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		segment_date TEXT NOT NULL,
		message_ids TEXT NOT NULL DEFAULT '[]',
		message_count INTEGER NOT NULL DEFAULT 0,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		combined_content TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '',
		embedding BLOB,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_segments_chat_date ON chat_segments(chat_id, segment_date);
	`
	_, err := db.Exec(schema)
	return err
}

// GetContact returns a contact by ID, or nil if absent.
func (s *SQLiteStorage) GetContact(ctx context.Context, id int64) (*models.Contact, error) {
	var c models.Contact
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, department FROM contacts WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Department)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact %d: %w", id, err)
	}
	return &c, nil
}

// SaveContact inserts or updates a contact.
func (s *SQLiteStorage) SaveContact(ctx context.Context, c *models.Contact) (int64, error) {
	if c.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO contacts (name, department) VALUES (?, ?)`, c.Name, c.Department)
		if err != nil {
			return 0, fmt.Errorf("failed to insert contact: %w", err)
		}
		c.ID, err = res.LastInsertId()
		return c.ID, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET name = ?, department = ? WHERE id = ?`, c.Name, c.Department, c.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to update contact %d: %w", c.ID, err)
	}
	return c.ID, requireRow(res, "contact", c.ID)
}

const chatColumns = `id, title, created_at, contact_id, is_active, embedding`

func scanChat(row interface{ Scan(...any) error }) (*models.Chat, error) {
	var c models.Chat
	var contactID sql.NullInt64
	var emb []byte
	if err := row.Scan(&c.ID, &c.Title, &c.CreatedAt, &contactID, &c.IsActive, &emb); err != nil {
		return nil, err
	}
	c.ContactID = contactID.Int64
	c.Embedding = vector.DecodeFloat32s(emb)
	return &c, nil
}

// GetChat returns a chat with its messages, or nil if absent.
func (s *SQLiteStorage) GetChat(ctx context.Context, id int64) (*models.Chat, error) {
	c, err := scanChat(s.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %d: %w", id, err)
	}
	if c.Messages, err = s.GetMessagesForChat(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

// GetAllChats returns every chat with its messages, ordered by id.
func (s *SQLiteStorage) GetAllChats(ctx context.Context) ([]*models.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chatColumns+` FROM chats ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []*models.Chat
	byID := make(map[int64]*models.Chat)
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	msgs, err := s.GetAllMessages(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if c, ok := byID[m.ChatID]; ok {
			c.Messages = append(c.Messages, m)
		}
	}
	return chats, nil
}

// SaveChat inserts or updates a chat row. Messages are saved separately.
func (s *SQLiteStorage) SaveChat(ctx context.Context, c *models.Chat) (int64, error) {
	var contactID any
	if c.ContactID != 0 {
		contactID = c.ContactID
	}
	emb := vector.EncodeFloat32s(c.Embedding)

	if c.ID == 0 {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO chats (title, created_at, contact_id, is_active, embedding) VALUES (?, ?, ?, ?, ?)`,
			c.Title, c.CreatedAt, contactID, c.IsActive, emb)
		if err != nil {
			return 0, fmt.Errorf("failed to insert chat: %w", err)
		}
		if c.ID, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	} else {
		res, err := s.db.ExecContext(ctx,
			`UPDATE chats SET title = ?, contact_id = ?, is_active = ?, embedding = ? WHERE id = ?`,
			c.Title, contactID, c.IsActive, emb, c.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to update chat %d: %w", c.ID, err)
		}
		if err := requireRow(res, "chat", c.ID); err != nil {
			return 0, err
		}
	}
	s.vectors.sync(ctx, s.logger, kindChat, c.ID, c.Embedding)
	return c.ID, nil
}

// UpdateChatEmbedding stores vec for chat id without touching its other columns.
func (s *SQLiteStorage) UpdateChatEmbedding(ctx context.Context, id int64, vec []float32) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chats SET embedding = ? WHERE id = ?`, vector.EncodeFloat32s(vec), id)
	if err != nil {
		return fmt.Errorf("failed to update chat %d embedding: %w", id, err)
	}
	if err := requireRow(res, "chat", id); err != nil {
		return err
	}
	s.vectors.sync(ctx, s.logger, kindChat, id, vec)
	return nil
}

const messageColumns = `id, chat_id, content, timestamp, is_user, embedding`

func scanMessage(row interface{ Scan(...any) error }) (*models.ChatMessage, error) {
	var m models.ChatMessage
	var emb []byte
	if err := row.Scan(&m.ID, &m.ChatID, &m.Content, &m.Timestamp, &m.IsUser, &emb); err != nil {
		return nil, err
	}
	m.Embedding = vector.DecodeFloat32s(emb)
	return &m, nil
}

func (s *SQLiteStorage) queryMessages(ctx context.Context, query string, args ...any) ([]*models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage returns a message by ID, or nil if absent.
func (s *SQLiteStorage) GetMessage(ctx context.Context, id int64) (*models.ChatMessage, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return m, nil
}

// GetAllMessages returns every message ordered by chat, timestamp and id.
func (s *SQLiteStorage) GetAllMessages(ctx context.Context) ([]*models.ChatMessage, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM chat_messages ORDER BY chat_id, timestamp, id`)
}

// GetMessagesForChat returns a chat's messages ordered by timestamp.
func (s *SQLiteStorage) GetMessagesForChat(ctx context.Context, chatID int64) ([]*models.ChatMessage, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE chat_id = ? ORDER BY timestamp, id`, chatID)
}

// SaveMessage inserts or updates a message.
func (s *SQLiteStorage) SaveMessage(ctx context.Context, m *models.ChatMessage) (int64, error) {
	emb := vector.EncodeFloat32s(m.Embedding)
	if m.ID == 0 {
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now()
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO chat_messages (chat_id, content, timestamp, is_user, embedding) VALUES (?, ?, ?, ?, ?)`,
			m.ChatID, m.Content, m.Timestamp.UTC(), m.IsUser, emb)
		if err != nil {
			return 0, fmt.Errorf("failed to insert message: %w", err)
		}
		if m.ID, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	} else {
		res, err := s.db.ExecContext(ctx,
			`UPDATE chat_messages SET content = ?, timestamp = ?, is_user = ?, embedding = ? WHERE id = ?`,
			m.Content, m.Timestamp.UTC(), m.IsUser, emb, m.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to update message %d: %w", m.ID, err)
		}
		if err := requireRow(res, "message", m.ID); err != nil {
			return 0, err
		}
	}
	s.vectors.sync(ctx, s.logger, kindMessage, m.ID, m.Embedding)
	return m.ID, nil
}

// UpdateMessageEmbedding stores vec for message id without touching its other columns.
func (s *SQLiteStorage) UpdateMessageEmbedding(ctx context.Context, id int64, vec []float32) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chat_messages SET embedding = ? WHERE id = ?`, vector.EncodeFloat32s(vec), id)
	if err != nil {
		return fmt.Errorf("failed to update message %d embedding: %w", id, err)
	}
	if err := requireRow(res, "message", id); err != nil {
		return err
	}
	s.vectors.sync(ctx, s.logger, kindMessage, id, vec)
	return nil
}

const segmentColumns = `id, chat_id, segment_date, message_ids, message_count, start_time, end_time,
	combined_content, title, keywords, embedding, created_at`

// scanSegment returns the segment and its stored message ids.
func scanSegment(row interface{ Scan(...any) error }) (*models.ChatSegment, []int64, error) {
	var seg models.ChatSegment
	var date, idsJSON string
	var emb []byte
	if err := row.Scan(&seg.ID, &seg.ChatID, &date, &idsJSON, &seg.MessageCount, &seg.StartTime, &seg.EndTime,
		&seg.CombinedContent, &seg.Title, &seg.Keywords, &emb, &seg.CreatedAt); err != nil {
		return nil, nil, err
	}
	d, err := time.Parse(models.SegmentDateLayout, date)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid segment date %q: %w", date, err)
	}
	seg.SegmentDate = d
	seg.Embedding = vector.DecodeFloat32s(emb)
	var ids []int64
	if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal message ids: %w", err)
	}
	return &seg, ids, nil
}

func (s *SQLiteStorage) querySegments(ctx context.Context, msgs []*models.ChatMessage, query string, args ...any) ([]*models.ChatSegment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	byID := indexMessages(msgs)
	var segs []*models.ChatSegment
	for rows.Next() {
		seg, ids, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		attachMessages(seg, ids, byID)
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// GetSegmentsForChat returns a chat's segments ordered by date.
func (s *SQLiteStorage) GetSegmentsForChat(ctx context.Context, chatID int64) ([]*models.ChatSegment, error) {
	msgs, err := s.GetMessagesForChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.querySegments(ctx, msgs,
		`SELECT `+segmentColumns+` FROM chat_segments WHERE chat_id = ? ORDER BY segment_date, id`, chatID)
}

// GetChatSegment returns a segment by ID, or nil if absent.
func (s *SQLiteStorage) GetChatSegment(ctx context.Context, id int64) (*models.ChatSegment, error) {
	seg, ids, err := scanSegment(s.db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM chat_segments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment %d: %w", id, err)
	}
	msgs, err := s.GetMessagesForChat(ctx, seg.ChatID)
	if err != nil {
		return nil, err
	}
	attachMessages(seg, ids, indexMessages(msgs))
	return seg, nil
}

// GetAllChatSegments returns every segment ordered by chat and date.
func (s *SQLiteStorage) GetAllChatSegments(ctx context.Context) ([]*models.ChatSegment, error) {
	msgs, err := s.GetAllMessages(ctx)
	if err != nil {
		return nil, err
	}
	return s.querySegments(ctx, msgs,
		`SELECT `+segmentColumns+` FROM chat_segments ORDER BY chat_id, segment_date, id`)
}

// SaveChatSegment inserts or updates a segment, storing its message snapshot as an id list.
func (s *SQLiteStorage) SaveChatSegment(ctx context.Context, seg *models.ChatSegment) (int64, error) {
	idsJSON, err := json.Marshal(seg.MessageIDs())
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message ids: %w", err)
	}
	if seg.CreatedAt.IsZero() {
		seg.CreatedAt = time.Now()
	}
	emb := vector.EncodeFloat32s(seg.Embedding)

	if seg.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO chat_segments (chat_id, segment_date, message_ids, message_count, start_time, end_time,
				combined_content, title, keywords, embedding, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			seg.ChatID, seg.DateKey(), string(idsJSON), seg.MessageCount, seg.StartTime, seg.EndTime,
			seg.CombinedContent, seg.Title, seg.Keywords, emb, seg.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert segment: %w", err)
		}
		if seg.ID, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	} else {
		res, err := s.db.ExecContext(ctx,
			`UPDATE chat_segments SET chat_id = ?, segment_date = ?, message_ids = ?, message_count = ?,
				start_time = ?, end_time = ?, combined_content = ?, title = ?, keywords = ?, embedding = ?, created_at = ?
			 WHERE id = ?`,
			seg.ChatID, seg.DateKey(), string(idsJSON), seg.MessageCount, seg.StartTime, seg.EndTime,
			seg.CombinedContent, seg.Title, seg.Keywords, emb, seg.CreatedAt, seg.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to update segment %d: %w", seg.ID, err)
		}
		if err := requireRow(res, "segment", seg.ID); err != nil {
			return 0, err
		}
	}
	s.vectors.sync(ctx, s.logger, kindSegment, seg.ID, seg.Embedding)
	return seg.ID, nil
}

// UpdateSegmentEmbedding stores vec for segment id if its combined content is still content.
func (s *SQLiteStorage) UpdateSegmentEmbedding(ctx context.Context, id int64, content string, vec []float32) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_segments SET embedding = ? WHERE id = ? AND combined_content = ?`,
		vector.EncodeFloat32s(vec), id, content)
	if err != nil {
		return false, fmt.Errorf("failed to update segment %d embedding: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	s.vectors.sync(ctx, s.logger, kindSegment, id, vec)
	return true, nil
}

// DeleteChatSegment removes a segment. Deleting an absent segment is not an error.
func (s *SQLiteStorage) DeleteChatSegment(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_segments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete segment %d: %w", id, err)
	}
	s.vectors.sync(ctx, s.logger, kindSegment, id, nil)
	return nil
}

// Counts returns row counts per table.
func (s *SQLiteStorage) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM contacts),
		(SELECT COUNT(*) FROM chats),
		(SELECT COUNT(*) FROM chat_messages),
		(SELECT COUNT(*) FROM chat_segments)`,
	).Scan(&c.Contacts, &c.Chats, &c.Messages, &c.Segments)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}

// Close closes the database connection and any vector indexes.
func (s *SQLiteStorage) Close() error {
	s.vectors.close()
	return s.db.Close()
}

func requireRow(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}
