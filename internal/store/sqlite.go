package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/webitel/chat-core/internal/domain/model"
)

// SQLiteStore is the default Store implementation, a pure-Go SQLite
// database opened in WAL mode for concurrent reader access. Grounded on
// ashureev-shsh-labs's SQLiteStore: same DSN shape, same schema-on-boot,
// same busy-timeout discipline.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite database at dbPath and
// ensures its schema exists.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS users (
		user_id       TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		email_hash    TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		is_online     INTEGER NOT NULL DEFAULT 0,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id                   TEXT PRIMARY KEY,
		participant_a        TEXT NOT NULL,
		participant_b        TEXT NOT NULL,
		last_message_id      TEXT NOT NULL DEFAULT '',
		last_message_content TEXT NOT NULL DEFAULT '',
		last_message_time    INTEGER,
		created_at           INTEGER NOT NULL,
		updated_at           INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair
		ON conversations(participant_a, participant_b);

	CREATE TABLE IF NOT EXISTS conversation_unread (
		conversation_id TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		count           INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (conversation_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id       TEXT NOT NULL,
		content         TEXT NOT NULL,
		type            TEXT NOT NULL,
		status          TEXT NOT NULL,
		is_read         INTEGER NOT NULL DEFAULT 0,
		delivered_at    INTEGER,
		read_at         INTEGER,
		created_at      INTEGER NOT NULL,
		client_temp_id  TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(sender_id, status);

	CREATE TABLE IF NOT EXISTS message_reads (
		message_id TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		PRIMARY KEY (message_id, user_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func scanTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

// FindUserByID returns the user or (nil, nil) if not found.
func (s *SQLiteStore) FindUserByID(ctx context.Context, userID string) (*model.User, error) {
	const q = `SELECT user_id, username, email_hash, password_hash, is_online FROM users WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, q, userID)

	var u model.User
	var isOnline int
	if err := row.Scan(&u.ID, &u.Username, &u.EmailHash, &u.PasswordHash, &isOnline); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("find user: %w", err))
	}
	u.IsOnline = isOnline != 0
	return &u, nil
}

// UserExists is the Identity Gate's narrow lookup.
func (s *SQLiteStore) UserExists(ctx context.Context, userID string) (bool, error) {
	const q = `SELECT 1 FROM users WHERE user_id = ?`
	var dummy int
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, classify(fmt.Errorf("check user exists: %w", err))
	}
	return true, nil
}

// FindUsernameByID is the Presence/Lifecycle narrow lookup for display data.
func (s *SQLiteStore) FindUsernameByID(ctx context.Context, userID string) (string, error) {
	const q = `SELECT username FROM users WHERE user_id = ?`
	var username string
	err := s.db.QueryRowContext(ctx, q, userID).Scan(&username)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", classify(fmt.Errorf("find username: %w", err))
	}
	return username, nil
}

// SetUserOnline mirrors the Presence Registry's isOnline transition (I-U1).
func (s *SQLiteStore) SetUserOnline(ctx context.Context, userID string, online bool) error {
	const q = `UPDATE users SET is_online = ?, updated_at = ? WHERE user_id = ?`
	flag := 0
	if online {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx, q, flag, time.Now().Unix(), userID)
	if err != nil {
		return classify(fmt.Errorf("set user online: %w", err))
	}
	return nil
}

func (s *SQLiteStore) scanConversation(row interface {
	Scan(dest ...any) error
}) (*model.Conversation, error) {
	var c model.Conversation
	var lastMessageTime sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.LastMessageID,
		&c.LastMessageContent, &lastMessageTime, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.LastMessageTime = scanTimePtr(lastMessageTime)
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return &c, nil
}

func (s *SQLiteStore) loadUnreadCounts(ctx context.Context, conversationID string) (map[string]int, error) {
	const q = `SELECT user_id, count FROM conversation_unread WHERE conversation_id = ?`
	rows, err := s.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load unread counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var userID string
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts[userID] = count
	}
	return counts, rows.Err()
}

// FindConversationByID returns the conversation with its unread counters,
// or (nil, nil) if not found.
func (s *SQLiteStore) FindConversationByID(ctx context.Context, conversationID string) (*model.Conversation, error) {
	const q = `
		SELECT id, participant_a, participant_b, last_message_id, last_message_content, last_message_time, created_at, updated_at
		FROM conversations WHERE id = ?`
	row := s.db.QueryRowContext(ctx, q, conversationID)
	conv, err := s.scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("find conversation: %w", err))
	}
	conv.UnreadCount, err = s.loadUnreadCounts(ctx, conversationID)
	if err != nil {
		return nil, classify(err)
	}
	return conv, nil
}

// FindOrCreateConversation implements lazy conversation creation (spec §3
// "Conversations are lazily created on first message exchange").
// Participants are stored in a canonical order so the unique pair index
// catches both orderings of the same two users.
func (s *SQLiteStore) FindOrCreateConversation(ctx context.Context, participantA, participantB string) (*model.Conversation, error) {
	if participantA == participantB {
		return nil, ErrSelfConversation
	}

	a, b := participantA, participantB
	if a > b {
		a, b = b, a
	}

	const find = `
		SELECT id, participant_a, participant_b, last_message_id, last_message_content, last_message_time, created_at, updated_at
		FROM conversations WHERE participant_a = ? AND participant_b = ?`
	row := s.db.QueryRowContext(ctx, find, a, b)
	conv, err := s.scanConversation(row)
	if err == nil {
		conv.UnreadCount, err = s.loadUnreadCounts(ctx, conv.ID)
		if err != nil {
			return nil, classify(err)
		}
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return nil, classify(fmt.Errorf("find conversation by pair: %w", err))
	}

	id := newID()
	now := time.Now().Unix()
	const insert = `
		INSERT INTO conversations (id, participant_a, participant_b, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, insert, id, a, b, now, now); err != nil {
		return nil, classify(fmt.Errorf("create conversation: %w", err))
	}

	return &model.Conversation{
		ID:           id,
		ParticipantA: a,
		ParticipantB: b,
		UnreadCount:  map[string]int{},
		CreatedAt:    time.Unix(now, 0),
		UpdatedAt:    time.Unix(now, 0),
	}, nil
}

// ConversationMessages returns up to limit messages newest-first (spec §6
// REST companion: "returns newest-first, limit 50").
func (s *SQLiteStore) ConversationMessages(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	const q = `
		SELECT id, conversation_id, sender_id, content, type, status, is_read, delivered_at, read_at, created_at, client_temp_id
		FROM messages WHERE conversation_id = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, conversationID, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("list conversation messages: %w", err))
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, classify(fmt.Errorf("scan message: %w", err))
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	if err := s.attachReadBy(ctx, messages); err != nil {
		return nil, classify(err)
	}
	return messages, nil
}

func (s *SQLiteStore) scanMessage(row interface{ Scan(dest ...any) error }) (*model.Message, error) {
	var m model.Message
	var status string
	var isRead int
	var deliveredAt, readAt sql.NullInt64
	var createdAt int64
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &status,
		&isRead, &deliveredAt, &readAt, &createdAt, &m.ClientTempID); err != nil {
		return nil, err
	}
	m.Status = model.MessageStatus(status)
	m.IsRead = isRead != 0
	m.DeliveredAt = scanTimePtr(deliveredAt)
	m.ReadAt = scanTimePtr(readAt)
	m.CreatedAt = time.Unix(createdAt, 0)
	m.ReadBy = model.NewReadBySet()
	return &m, nil
}

func (s *SQLiteStore) attachReadBy(ctx context.Context, messages []*model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	byID := make(map[string]*model.Message, len(messages))
	placeholders := make([]any, 0, len(messages))
	query := `SELECT message_id, user_id FROM message_reads WHERE message_id IN (`
	for i, m := range messages {
		byID[m.ID] = m
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders = append(placeholders, m.ID)
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return fmt.Errorf("load read-by sets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, userID string
		if err := rows.Scan(&messageID, &userID); err != nil {
			return fmt.Errorf("scan read-by row: %w", err)
		}
		if m, ok := byID[messageID]; ok {
			m.ReadBy[userID] = struct{}{}
		}
	}
	return rows.Err()
}

// FindMessageByID returns the message with its readBy set populated, or
// (nil, nil) if not found.
func (s *SQLiteStore) FindMessageByID(ctx context.Context, messageID string) (*model.Message, error) {
	const q = `
		SELECT id, conversation_id, sender_id, content, type, status, is_read, delivered_at, read_at, created_at, client_temp_id
		FROM messages WHERE id = ?`
	row := s.db.QueryRowContext(ctx, q, messageID)
	msg, err := s.scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("find message: %w", err))
	}
	if err := s.attachReadBy(ctx, []*model.Message{msg}); err != nil {
		return nil, classify(err)
	}
	return msg, nil
}

// SendMessage persists msg and atomically updates the conversation's
// last-message fields and the recipient's unread counter in one transaction
// (spec §4.5 step 2).
func (s *SQLiteStore) SendMessage(ctx context.Context, msg *model.Message, recipientID string) (*model.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("begin send transaction: %w", err))
	}
	defer tx.Rollback()

	const insertMsg = `
		INSERT INTO messages (id, conversation_id, sender_id, content, type, status, is_read, created_at, client_temp_id)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertMsg, msg.ID, msg.ConversationID, msg.SenderID, msg.Content,
		string(msg.Type), string(msg.Status), msg.CreatedAt.Unix(), msg.ClientTempID); err != nil {
		return nil, classify(fmt.Errorf("insert message: %w", err))
	}

	const updateConv = `
		UPDATE conversations SET last_message_id = ?, last_message_content = ?, last_message_time = ?, updated_at = ?
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, updateConv, msg.ID, msg.Content, msg.CreatedAt.Unix(), msg.CreatedAt.Unix(), msg.ConversationID); err != nil {
		return nil, classify(fmt.Errorf("update conversation meta: %w", err))
	}

	const bumpUnread = `
		INSERT INTO conversation_unread (conversation_id, user_id, count) VALUES (?, ?, 1)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET count = count + 1`
	if _, err := tx.ExecContext(ctx, bumpUnread, msg.ConversationID, recipientID); err != nil {
		return nil, classify(fmt.Errorf("bump unread count: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("commit send transaction: %w", err))
	}

	return s.FindConversationByID(ctx, msg.ConversationID)
}

// TransitionDelivered moves messageID to delivered iff it is still sent.
func (s *SQLiteStore) TransitionDelivered(ctx context.Context, messageID string, at time.Time) (bool, error) {
	const q = `
		UPDATE messages SET status = ?, delivered_at = ?
		WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, q, string(model.MessageStatusDelivered), at.Unix(), messageID, string(model.MessageStatusSent))
	if err != nil {
		return false, classify(fmt.Errorf("transition delivered: %w", err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, classify(fmt.Errorf("rows affected: %w", err))
	}
	return rows > 0, nil
}

// BulkTransitionDelivered marks every message in messageIDs as delivered,
// skipping any already past sent, and returns the ones actually updated.
func (s *SQLiteStore) BulkTransitionDelivered(ctx context.Context, messageIDs []string, at time.Time) ([]*model.Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("begin bulk delivered transaction: %w", err))
	}
	defer tx.Rollback()

	var updated []*model.Message
	for _, id := range messageIDs {
		const q = `UPDATE messages SET status = ?, delivered_at = ? WHERE id = ? AND status = ?`
		res, err := tx.ExecContext(ctx, q, string(model.MessageStatusDelivered), at.Unix(), id, string(model.MessageStatusSent))
		if err != nil {
			return nil, classify(fmt.Errorf("bulk transition delivered: %w", err))
		}
		if n, _ := res.RowsAffected(); n > 0 {
			row := tx.QueryRowContext(ctx, `
				SELECT id, conversation_id, sender_id, content, type, status, is_read, delivered_at, read_at, created_at, client_temp_id
				FROM messages WHERE id = ?`, id)
			msg, err := s.scanMessage(row)
			if err != nil {
				return nil, classify(fmt.Errorf("reload message after bulk delivered: %w", err))
			}
			msg.ReadBy = model.NewReadBySet()
			updated = append(updated, msg)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("commit bulk delivered transaction: %w", err))
	}
	return updated, nil
}

// TransitionRead moves messageID to read on readerID's behalf, decrementing
// their unread counter (spec §4.5 read operation).
func (s *SQLiteStore) TransitionRead(ctx context.Context, messageID, readerID string, at time.Time) (*model.Message, *model.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, classify(fmt.Errorf("begin read transaction: %w", err))
	}
	defer tx.Rollback()

	var conversationID, status string
	var deliveredAt sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT conversation_id, delivered_at, status FROM messages WHERE id = ?`, messageID)
	if err := row.Scan(&conversationID, &deliveredAt, &status); err != nil {
		return nil, nil, classify(fmt.Errorf("locate message for read: %w", err))
	}

	// Mirrors model.Message.CanAdvanceTo(read): read is terminal, so a
	// second read for the same message is a no-op (spec §4.5 idempotence).
	if model.MessageStatus(status) == model.MessageStatusRead {
		if err := tx.Commit(); err != nil {
			return nil, nil, classify(fmt.Errorf("commit read no-op transaction: %w", err))
		}
		msg, err := s.FindMessageByID(ctx, messageID)
		if err != nil {
			return nil, nil, err
		}
		conv, err := s.FindConversationByID(ctx, conversationID)
		if err != nil {
			return nil, nil, err
		}
		return msg, conv, nil
	}

	setDeliveredAt := ""
	if !deliveredAt.Valid {
		setDeliveredAt = fmt.Sprintf(", delivered_at = %d", at.Unix())
	}
	update := `UPDATE messages SET status = ?, is_read = 1, read_at = ?` + setDeliveredAt + ` WHERE id = ? AND status != ?`
	if _, err := tx.ExecContext(ctx, update, string(model.MessageStatusRead), at.Unix(), messageID, string(model.MessageStatusRead)); err != nil {
		return nil, nil, classify(fmt.Errorf("transition read: %w", err))
	}

	const insertRead = `INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`
	if _, err := tx.ExecContext(ctx, insertRead, messageID, readerID); err != nil {
		return nil, nil, classify(fmt.Errorf("record read-by: %w", err))
	}

	const decrement = `
		UPDATE conversation_unread SET count = MAX(count - 1, 0)
		WHERE conversation_id = ? AND user_id = ?`
	if _, err := tx.ExecContext(ctx, decrement, conversationID, readerID); err != nil {
		return nil, nil, classify(fmt.Errorf("decrement unread count: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, classify(fmt.Errorf("commit read transaction: %w", err))
	}

	msg, err := s.FindMessageByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.FindConversationByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

// BulkTransitionRead marks every unread inbound message in conversationID
// as read for readerID in one transaction, zeroing their unread counter
// (spec §4.5 bulk read operation).
func (s *SQLiteStore) BulkTransitionRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]*model.Message, *model.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, classify(fmt.Errorf("begin bulk read transaction: %w", err))
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM messages
		WHERE conversation_id = ? AND sender_id != ? AND status != ?`,
		conversationID, readerID, string(model.MessageStatusRead))
	if err != nil {
		return nil, nil, classify(fmt.Errorf("select unread messages: %w", err))
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, nil, classify(fmt.Errorf("scan unread message id: %w", err))
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, classify(err)
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE messages SET status = ?, is_read = 1, read_at = ?,
				delivered_at = COALESCE(delivered_at, ?)
			WHERE id = ?`, string(model.MessageStatusRead), at.Unix(), at.Unix(), id); err != nil {
			return nil, nil, classify(fmt.Errorf("bulk transition read: %w", err))
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`, id, readerID); err != nil {
			return nil, nil, classify(fmt.Errorf("record bulk read-by: %w", err))
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_unread (conversation_id, user_id, count) VALUES (?, ?, 0)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET count = 0`, conversationID, readerID); err != nil {
		return nil, nil, classify(fmt.Errorf("zero unread count: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, classify(fmt.Errorf("commit bulk read transaction: %w", err))
	}

	messages := make([]*model.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.FindMessageByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, msg)
	}
	conv, err := s.FindConversationByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	return messages, conv, nil
}

// FindPendingInbound returns every message addressed to userID still in
// status=sent (spec §4.5 "On recipient connect").
func (s *SQLiteStore) FindPendingInbound(ctx context.Context, userID string) ([]*model.Message, error) {
	const q = `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.type, m.status, m.is_read,
		       m.delivered_at, m.read_at, m.created_at, m.client_temp_id
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.status = ? AND m.sender_id != ? AND (c.participant_a = ? OR c.participant_b = ?)`
	rows, err := s.db.QueryContext(ctx, q, string(model.MessageStatusSent), userID, userID, userID)
	if err != nil {
		return nil, classify(fmt.Errorf("find pending inbound: %w", err))
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		msg, err := s.scanMessage(rows)
		if err != nil {
			return nil, classify(fmt.Errorf("scan pending inbound: %w", err))
		}
		msg.ReadBy = model.NewReadBySet()
		messages = append(messages, msg)
	}
	return messages, classify(rows.Err())
}
