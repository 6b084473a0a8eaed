package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vector"
)

// PostgresStorage implements Store and VectorSearcher on PostgreSQL.
// Canonical vectors live in BYTEA columns; when the pgvector extension is enabled
// they are mirrored into vector(D) columns used for k-NN queries.
type PostgresStorage struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	dims       int
	vecEnabled atomic.Bool
}

var vectorTables = map[entityKind]string{
	kindSegment: "chat_segments",
	kindChat:    "chats",
	kindMessage: "chat_messages",
}

// NewPostgresStorage connects to dsn, creates the schema and checks whether pgvector columns exist.
func NewPostgresStorage(ctx context.Context, dsn string, opts ...Option) (*PostgresStorage, error) {
	o := buildOptions(opts)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStorage{pool: pool, logger: o.logger, dims: o.dims}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.vecEnabled.Store(s.checkVectorSupport(ctx))
	return s, nil
}

func (s *PostgresStorage) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS contacts (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS chats (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		contact_id BIGINT REFERENCES contacts(id) ON DELETE SET NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		embedding BYTEA
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		is_user BOOLEAN NOT NULL DEFAULT FALSE,
		embedding BYTEA
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON chat_messages(chat_id, timestamp);

	CREATE TABLE IF NOT EXISTS chat_segments (
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		segment_date DATE NOT NULL,
		message_ids BIGINT[] NOT NULL DEFAULT '{}',
		message_count INTEGER NOT NULL DEFAULT 0,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		combined_content TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '',
		embedding BYTEA,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_segments_chat_date ON chat_segments(chat_id, segment_date);
	`)
	return err
}

// checkVectorSupport reports whether the extension is installed and every table has its vector column.
func (s *PostgresStorage) checkVectorSupport(ctx context.Context) bool {
	var hasExt bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&hasExt); err != nil || !hasExt {
		return false
	}
	var cols int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM information_schema.columns
		 WHERE column_name = 'embedding_vec' AND table_name IN ('chats', 'chat_messages', 'chat_segments')`).Scan(&cols)
	return err == nil && cols == len(vectorTables)
}

// GetContact returns a contact by ID, or nil if absent.
func (s *PostgresStorage) GetContact(ctx context.Context, id int64) (*models.Contact, error) {
	var c models.Contact
	err := s.pool.QueryRow(ctx, `SELECT id, name, department FROM contacts WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Department)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact %d: %w", id, err)
	}
	return &c, nil
}

// SaveContact inserts or updates a contact.
func (s *PostgresStorage) SaveContact(ctx context.Context, c *models.Contact) (int64, error) {
	if c.ID == 0 {
		err := s.pool.QueryRow(ctx,
			`INSERT INTO contacts (name, department) VALUES ($1, $2) RETURNING id`, c.Name, c.Department).Scan(&c.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert contact: %w", err)
		}
		return c.ID, nil
	}
	tag, err := s.pool.Exec(ctx, `UPDATE contacts SET name = $1, department = $2 WHERE id = $3`, c.Name, c.Department, c.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to update contact %d: %w", c.ID, err)
	}
	return c.ID, requireTag(tag, "contact", c.ID)
}

func scanPgChat(row pgx.Row) (*models.Chat, error) {
	var c models.Chat
	var contactID *int64
	var emb []byte
	if err := row.Scan(&c.ID, &c.Title, &c.CreatedAt, &contactID, &c.IsActive, &emb); err != nil {
		return nil, err
	}
	if contactID != nil {
		c.ContactID = *contactID
	}
	c.Embedding = vector.DecodeFloat32s(emb)
	return &c, nil
}

// GetChat returns a chat with its messages, or nil if absent.
func (s *PostgresStorage) GetChat(ctx context.Context, id int64) (*models.Chat, error) {
	c, err := scanPgChat(s.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStorage) GetAllChats(ctx context.Context) ([]*models.Chat, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+chatColumns+` FROM chats ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	var chats []*models.Chat
	byID := make(map[int64]*models.Chat)
	for rows.Next() {
		c, err := scanPgChat(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		chats = append(chats, c)
		byID[c.ID] = c
	}
	rows.Close()
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

// SaveChat inserts or updates a chat row.
func (s *PostgresStorage) SaveChat(ctx context.Context, c *models.Chat) (int64, error) {
	var contactID *int64
	if c.ContactID != 0 {
		contactID = &c.ContactID
	}
	emb := vector.EncodeFloat32s(c.Embedding)
	if c.ID == 0 {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = time.Now()
		}
		err := s.pool.QueryRow(ctx,
			`INSERT INTO chats (title, created_at, contact_id, is_active, embedding)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			c.Title, c.CreatedAt, contactID, c.IsActive, emb).Scan(&c.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert chat: %w", err)
		}
	} else {
		tag, err := s.pool.Exec(ctx,
			`UPDATE chats SET title = $1, contact_id = $2, is_active = $3, embedding = $4 WHERE id = $5`,
			c.Title, contactID, c.IsActive, emb, c.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to update chat %d: %w", c.ID, err)
		}
		if err := requireTag(tag, "chat", c.ID); err != nil {
			return 0, err
		}
	}
	s.syncVector(ctx, kindChat, c.ID, c.Embedding)
	return c.ID, nil
}

// UpdateChatEmbedding stores vec for chat id without touching its other columns.
func (s *PostgresStorage) UpdateChatEmbedding(ctx context.Context, id int64, vec []float32) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chats SET embedding = $1 WHERE id = $2`, vector.EncodeFloat32s(vec), id)
	if err != nil {
		return fmt.Errorf("failed to update chat %d embedding: %w", id, err)
	}
	if err := requireTag(tag, "chat", id); err != nil {
		return err
	}
	s.syncVector(ctx, kindChat, id, vec)
	return nil
}

func scanPgMessage(row pgx.Row) (*models.ChatMessage, error) {
	var m models.ChatMessage
	var emb []byte
	if err := row.Scan(&m.ID, &m.ChatID, &m.Content, &m.Timestamp, &m.IsUser, &emb); err != nil {
		return nil, err
	}
	m.Embedding = vector.DecodeFloat32s(emb)
	return &m, nil
}

func (s *PostgresStorage) queryMessages(ctx context.Context, query string, args ...any) ([]*models.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.ChatMessage
	for rows.Next() {
		m, err := scanPgMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage returns a message by ID, or nil if absent.
func (s *PostgresStorage) GetMessage(ctx context.Context, id int64) (*models.ChatMessage, error) {
	m, err := scanPgMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return m, nil
}

// GetAllMessages returns every message ordered by chat, timestamp and id.
func (s *PostgresStorage) GetAllMessages(ctx context.Context) ([]*models.ChatMessage, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM chat_messages ORDER BY chat_id, timestamp, id`)
}

// GetMessagesForChat returns a chat's messages ordered by timestamp.
func (s *PostgresStorage) GetMessagesForChat(ctx context.Context, chatID int64) ([]*models.ChatMessage, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE chat_id = $1 ORDER BY timestamp, id`, chatID)
}

// SaveMessage inserts or updates a message.
func (s *PostgresStorage) SaveMessage(ctx context.Context, m *models.ChatMessage) (int64, error) {
	emb := vector.EncodeFloat32s(m.Embedding)
	if m.ID == 0 {
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now()
		}
		err := s.pool.QueryRow(ctx,
			`INSERT INTO chat_messages (chat_id, content, timestamp, is_user, embedding)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			m.ChatID, m.Content, m.Timestamp, m.IsUser, emb).Scan(&m.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert message: %w", err)
		}
	} else {
		tag, err := s.pool.Exec(ctx,
			`UPDATE chat_messages SET content = $1, timestamp = $2, is_user = $3, embedding = $4 WHERE id = $5`,
			m.Content, m.Timestamp, m.IsUser, emb, m.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to update message %d: %w", m.ID, err)
		}
		if err := requireTag(tag, "message", m.ID); err != nil {
			return 0, err
		}
	}
	s.syncVector(ctx, kindMessage, m.ID, m.Embedding)
	return m.ID, nil
}

func scanPgSegment(row pgx.Row) (*models.ChatSegment, []int64, error) {
	var seg models.ChatSegment
	var ids []int64
	var emb []byte
	if err := row.Scan(&seg.ID, &seg.ChatID, &seg.SegmentDate, &ids, &seg.MessageCount, &seg.StartTime, &seg.EndTime,
		&seg.CombinedContent, &seg.Title, &seg.Keywords, &emb, &seg.CreatedAt); err != nil {
		return nil, nil, err
	}
	seg.Embedding = vector.DecodeFloat32s(emb)
	return &seg, ids, nil
}

// UpdateMessageEmbedding stores vec for message id without touching its other columns.
func (s *PostgresStorage) UpdateMessageEmbedding(ctx context.Context, id int64, vec []float32) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chat_messages SET embedding = $1 WHERE id = $2`, vector.EncodeFloat32s(vec), id)
	if err != nil {
		return fmt.Errorf("failed to update message %d embedding: %w", id, err)
	}
	if err := requireTag(tag, "message", id); err != nil {
		return err
	}
	s.syncVector(ctx, kindMessage, id, vec)
	return nil
}

func (s *PostgresStorage) querySegments(ctx context.Context, msgs []*models.ChatMessage, query string, args ...any) ([]*models.ChatSegment, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	byID := indexMessages(msgs)
	var segs []*models.ChatSegment
	for rows.Next() {
		seg, ids, err := scanPgSegment(rows)
		if err != nil {
			return nil, err
		}
		attachMessages(seg, ids, byID)
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// GetSegmentsForChat returns a chat's segments ordered by date.
func (s *PostgresStorage) GetSegmentsForChat(ctx context.Context, chatID int64) ([]*models.ChatSegment, error) {
	msgs, err := s.GetMessagesForChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.querySegments(ctx, msgs,
		`SELECT `+segmentColumns+` FROM chat_segments WHERE chat_id = $1 ORDER BY segment_date, id`, chatID)
}

// GetChatSegment returns a segment by ID, or nil if absent.
func (s *PostgresStorage) GetChatSegment(ctx context.Context, id int64) (*models.ChatSegment, error) {
	seg, ids, err := scanPgSegment(s.pool.QueryRow(ctx, `SELECT `+segmentColumns+` FROM chat_segments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStorage) GetAllChatSegments(ctx context.Context) ([]*models.ChatSegment, error) {
	msgs, err := s.GetAllMessages(ctx)
	if err != nil {
		return nil, err
	}
	return s.querySegments(ctx, msgs, `SELECT `+segmentColumns+` FROM chat_segments ORDER BY chat_id, segment_date, id`)
}

// SaveChatSegment inserts or updates a segment.
func (s *PostgresStorage) SaveChatSegment(ctx context.Context, seg *models.ChatSegment) (int64, error) {
	if seg.CreatedAt.IsZero() {
		seg.CreatedAt = time.Now()
	}
	ids := seg.MessageIDs()
	emb := vector.EncodeFloat32s(seg.Embedding)
	if seg.ID == 0 {
		err := s.pool.QueryRow(ctx,
			`INSERT INTO chat_segments (chat_id, segment_date, message_ids, message_count, start_time, end_time,
				combined_content, title, keywords, embedding, created_at)
			 VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
			seg.ChatID, seg.DateKey(), ids, seg.MessageCount, seg.StartTime, seg.EndTime,
			seg.CombinedContent, seg.Title, seg.Keywords, emb, seg.CreatedAt).Scan(&seg.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert segment: %w", err)
		}
	} else {
		tag, err := s.pool.Exec(ctx,
			`UPDATE chat_segments SET chat_id = $1, segment_date = $2::date, message_ids = $3, message_count = $4,
				start_time = $5, end_time = $6, combined_content = $7, title = $8, keywords = $9, embedding = $10,
				created_at = $11
			 WHERE id = $12`,
			seg.ChatID, seg.DateKey(), ids, seg.MessageCount, seg.StartTime, seg.EndTime,
			seg.CombinedContent, seg.Title, seg.Keywords, emb, seg.CreatedAt, seg.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to update segment %d: %w", seg.ID, err)
		}
		if err := requireTag(tag, "segment", seg.ID); err != nil {
			return 0, err
		}
	}
	s.syncVector(ctx, kindSegment, seg.ID, seg.Embedding)
	return seg.ID, nil
}

// UpdateSegmentEmbedding stores vec for segment id if its combined content is still content.
func (s *PostgresStorage) UpdateSegmentEmbedding(ctx context.Context, id int64, content string, vec []float32) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE chat_segments SET embedding = $1 WHERE id = $2 AND combined_content = $3`,
		vector.EncodeFloat32s(vec), id, content)
	if err != nil {
		return false, fmt.Errorf("failed to update segment %d embedding: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	s.syncVector(ctx, kindSegment, id, vec)
	return true, nil
}

// DeleteChatSegment removes a segment. Deleting an absent segment is not an error.
func (s *PostgresStorage) DeleteChatSegment(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chat_segments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete segment %d: %w", id, err)
	}
	return nil
}

// Counts returns row counts per table.
func (s *PostgresStorage) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.pool.QueryRow(ctx, `SELECT
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

// VectorSearchAvailable reports whether pgvector columns are present and in sync.
func (s *PostgresStorage) VectorSearchAvailable() bool {
	return s.vecEnabled.Load()
}

// EnableVectorSearch installs pgvector, adds vector columns and backfills them from the BYTEA vectors.
func (s *PostgresStorage) EnableVectorSearch(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	for kind, table := range vectorTables {
		ddl := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS embedding_vec vector(%d)`, table, s.dims)
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to add %s vector column: %w", kind, err)
		}
		if err := s.backfill(ctx, table); err != nil {
			return fmt.Errorf("failed to backfill %s vectors: %w", kind, err)
		}
	}
	s.vecEnabled.Store(true)
	s.logger.Info("native vector search enabled", zap.String("backend", "pgvector"), zap.Int("dimensions", s.dims))
	return nil
}

func (s *PostgresStorage) backfill(ctx context.Context, table string) error {
	rows, err := s.pool.Query(ctx, `SELECT id, embedding FROM `+table+` WHERE embedding IS NOT NULL`)
	if err != nil {
		return err
	}
	type pending struct {
		id  int64
		vec []float32
	}
	var todo []pending
	for rows.Next() {
		var p pending
		var emb []byte
		if err := rows.Scan(&p.id, &emb); err != nil {
			rows.Close()
			return err
		}
		p.vec = vector.DecodeFloat32s(emb)
		todo = append(todo, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, p := range todo {
		batch.Queue(`UPDATE `+table+` SET embedding_vec = $1::vector WHERE id = $2`, s.pgVector(p.vec), p.id)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range todo {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// pgVector returns the column value for vec, or nil for vectors that cannot be stored.
func (s *PostgresStorage) pgVector(vec []float32) any {
	if len(vec) != s.dims {
		return nil
	}
	v := pgvector.NewVector(vec)
	return &v
}

func (s *PostgresStorage) syncVector(ctx context.Context, kind entityKind, id int64, vec []float32) {
	if !s.vecEnabled.Load() {
		return
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE `+vectorTables[kind]+` SET embedding_vec = $1::vector WHERE id = $2`, s.pgVector(vec), id)
	if err != nil {
		s.vecEnabled.Store(false)
		s.logger.Warn("pgvector column out of sync, native search disabled",
			zap.String("kind", kind.String()), zap.Int64("id", id), zap.Error(err))
	}
}

func (s *PostgresStorage) nearest(ctx context.Context, kind entityKind, query []float32, k int) ([]int64, error) {
	if !s.vecEnabled.Load() {
		return nil, errVectorSearchDisabled
	}
	if k <= 0 {
		return nil, nil
	}
	q := pgvector.NewVector(query)
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM `+vectorTables[kind]+`
		 WHERE embedding_vec IS NOT NULL
		 ORDER BY embedding_vec <=> $1::vector
		 LIMIT $2`, &q, k)
	if err != nil {
		return nil, fmt.Errorf("%s vector search failed: %w", kind, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NearestSegments returns segment ids closest to query by cosine distance.
func (s *PostgresStorage) NearestSegments(ctx context.Context, query []float32, k int) ([]int64, error) {
	return s.nearest(ctx, kindSegment, query, k)
}

// NearestChats returns chat ids closest to query by cosine distance.
func (s *PostgresStorage) NearestChats(ctx context.Context, query []float32, k int) ([]int64, error) {
	return s.nearest(ctx, kindChat, query, k)
}

// NearestMessages returns message ids closest to query by cosine distance.
func (s *PostgresStorage) NearestMessages(ctx context.Context, query []float32, k int) ([]int64, error) {
	return s.nearest(ctx, kindMessage, query, k)
}

// Close closes the connection pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

func requireTag(tag pgconn.CommandTag, kind string, id int64) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}
