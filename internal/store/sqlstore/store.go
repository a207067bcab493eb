package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/ipsstech/pairtalk/internal/models"
)

type SQLStore struct {
	db         *sql.DB
	driverName string
}

func New(driverName, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) createTables() error {
	// Simplified for brevity, ideally use migrations
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL REFERENCES users(id),
		recipient_id INTEGER NOT NULL REFERENCES users(id),
		content TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'text',
		encrypted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_sender_recipient
		ON messages (sender_id, recipient_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_recipient_sender
		ON messages (recipient_id, sender_id, created_at);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		participant_low INTEGER NOT NULL REFERENCES users(id),
		participant_high INTEGER NOT NULL REFERENCES users(id),
		last_message_id INTEGER REFERENCES messages(id),
		updated_at DATETIME NOT NULL,
		UNIQUE (participant_low, participant_high)
	);
	`

	if s.driverName == "postgres" {
		// Adjust for Postgres syntax
		query = strings.ReplaceAll(query, "INTEGER PRIMARY KEY AUTOINCREMENT", "SERIAL PRIMARY KEY")
		query = strings.ReplaceAll(query, "DATETIME", "TIMESTAMP")
	}

	_, err := s.db.Exec(query)
	return err
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		// Replace ? with $1, $2, etc.
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

// pairOf normalizes an unordered participant pair to (low, high).
func pairOf(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

func (s *SQLStore) CreateUser(user *models.User) error {
	query := s.rebind("INSERT INTO users (username, email, password) VALUES (?, ?, ?) RETURNING id")
	return s.db.QueryRow(query, user.Username, user.Email, user.Password).Scan(&user.ID)
}

func (s *SQLStore) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT id, username, email, password FROM users WHERE username = ?")
	err := s.db.QueryRow(query, username).Scan(&user.ID, &user.Username, &user.Email, &user.Password)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT id, username, email, password FROM users WHERE email = ?")
	err := s.db.QueryRow(query, email).Scan(&user.ID, &user.Username, &user.Email, &user.Password)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) GetUserByID(id int64) (*models.User, error) {
	var user models.User
	query := s.rebind("SELECT id, username, email, password FROM users WHERE id = ?")
	err := s.db.QueryRow(query, id).Scan(&user.ID, &user.Username, &user.Email, &user.Password)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) SearchUsers(queryStr string, excludeID int64) ([]models.User, error) {
	query := s.rebind(`
		SELECT id, username, email FROM users
		WHERE (username LIKE ? OR email LIKE ?) AND id != ?
		LIMIT 10
	`)
	pattern := "%" + queryStr + "%"
	rows, err := s.db.Query(query, pattern, pattern, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email); err != nil {
			return nil, err
		}
		user.Email = maskEmail(user.Email)
		users = append(users, user)
	}
	return users, rows.Err()
}

// SaveMessage inserts the message and moves the conversation pointer in one
// transaction. The store assigns the id and the creation timestamp; callers
// must treat the returned message as the authoritative copy.
func (s *SQLStore) SaveMessage(msg *models.Message) (*models.Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	saved := *msg
	saved.CreatedAt = time.Now().UTC()

	query := s.rebind(`
		INSERT INTO messages (sender_id, recipient_id, content, type, encrypted, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id
	`)
	err = tx.QueryRow(query, saved.SenderID, saved.RecipientID, saved.Content,
		saved.Type, saved.Encrypted, saved.CreatedAt).Scan(&saved.ID)
	if err != nil {
		return nil, err
	}

	low, high := pairOf(saved.SenderID, saved.RecipientID)
	query = s.rebind("UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE participant_low = ? AND participant_high = ?")
	res, err := tx.Exec(query, saved.ID, saved.CreatedAt, low, high)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		query = s.rebind("INSERT INTO conversations (participant_low, participant_high, last_message_id, updated_at) VALUES (?, ?, ?, ?)")
		if _, err := tx.Exec(query, low, high, saved.ID, saved.CreatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &saved, nil
}

// MessagesBetween returns messages between a and b, most recent first.
// Ordering is by (created_at, id) so repeated reads see one deterministic
// sequence. Offsets themselves shift as new messages arrive; callers paging
// through history dedupe by id across pages.
func (s *SQLStore) MessagesBetween(a, b int64, offset, limit int) ([]models.Message, error) {
	query := s.rebind(`
		SELECT id, sender_id, recipient_id, content, type, encrypted, created_at
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`)
	rows, err := s.db.Query(query, a, b, b, a, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.Type, &m.Encrypted, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLStore) CountMessagesBetween(a, b int64) (int, error) {
	var count int
	query := s.rebind(`
		SELECT COUNT(*) FROM messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
	`)
	err := s.db.QueryRow(query, a, b, b, a).Scan(&count)
	return count, err
}

func (s *SQLStore) ConversationBetween(a, b int64) (*models.Conversation, error) {
	low, high := pairOf(a, b)
	var conv models.Conversation
	var lastMessageID sql.NullInt64
	query := s.rebind("SELECT id, participant_low, participant_high, last_message_id, updated_at FROM conversations WHERE participant_low = ? AND participant_high = ?")
	err := s.db.QueryRow(query, low, high).Scan(&conv.ID, &conv.ParticipantA, &conv.ParticipantB, &lastMessageID, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastMessageID.Valid {
		if conv.LastMessage, err = s.getMessage(lastMessageID.Int64); err != nil {
			return nil, err
		}
	}
	return &conv, nil
}

func (s *SQLStore) ConversationsFor(userID int64) ([]models.Conversation, error) {
	query := s.rebind(`
		SELECT id, participant_low, participant_high, last_message_id, updated_at
		FROM conversations
		WHERE participant_low = ? OR participant_high = ?
		ORDER BY updated_at DESC
	`)
	rows, err := s.db.Query(query, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	var lastIDs []sql.NullInt64
	for rows.Next() {
		var conv models.Conversation
		var lastMessageID sql.NullInt64
		if err := rows.Scan(&conv.ID, &conv.ParticipantA, &conv.ParticipantB, &lastMessageID, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
		lastIDs = append(lastIDs, lastMessageID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range conversations {
		if lastIDs[i].Valid {
			msg, err := s.getMessage(lastIDs[i].Int64)
			if err != nil {
				return nil, err
			}
			conversations[i].LastMessage = msg
		}
	}
	return conversations, nil
}

func (s *SQLStore) getMessage(id int64) (*models.Message, error) {
	var m models.Message
	query := s.rebind("SELECT id, sender_id, recipient_id, content, type, encrypted, created_at FROM messages WHERE id = ?")
	err := s.db.QueryRow(query, id).Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.Type, &m.Encrypted, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func maskEmail(email string) string {
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}
	local, domain := parts[0], parts[1]
	length := len(local)
	visible := 1
	if length > 2 {
		visible = length / 2
		if visible > 3 {
			visible = 3
		}
	}

	maskedLocal := local[:visible] + strings.Repeat("*", length-visible)
	return maskedLocal + "@" + domain
}
