package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ardhifach/lanmsg/internal/domain"
)

// Store backs the gateway's directory queries with sqlite. The CRUD layer
// owns the write paths; the real-time core only reads through the Directory
// interface.
type Store struct {
	db *sql.DB
}

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	nickname TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	user_id INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id INTEGER PRIMARY KEY,
	allow_calls_from TEXT NOT NULL DEFAULT 'friends',
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS blocked_users (
	blocker_id INTEGER NOT NULL,
	blocked_id INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(blocker_id, blocked_id),
	FOREIGN KEY(blocker_id) REFERENCES users(id) ON DELETE CASCADE,
	FOREIGN KEY(blocked_id) REFERENCES users(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS friends (
	user_id INTEGER NOT NULL,
	friend_id INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(user_id, friend_id),
	FOREIGN KEY(user_id) REFERENCES users(id),
	FOREIGN KEY(friend_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS chats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	title TEXT,
	created_by INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY(created_by) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS chat_members (
	chat_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	role TEXT NOT NULL DEFAULT 'member',
	joined_at TEXT NOT NULL,
	UNIQUE(chat_id, user_id),
	FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
`

// Open opens (and initializes) the database at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ==== Directory queries consumed by the real-time core ====

// Authenticate resolves a session token to a user identity
func (s *Store) Authenticate(token string) (int64, bool) {
	if token == "" {
		return 0, false
	}
	var id int64
	err := s.db.QueryRow(`SELECT user_id FROM sessions WHERE token = ?`, token).Scan(&id)
	return id, err == nil
}

// ChatMembers returns the user identities belonging to a chat
func (s *Store) ChatMembers(chatID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT user_id FROM chat_members WHERE chat_id = ?`, chatID)
	if err != nil {
		return nil, fmt.Errorf("chat members: %w", err)
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("chat members: %w", err)
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// ChatKind reports whether a chat is direct or group
func (s *Store) ChatKind(chatID int64) (domain.ChatKind, error) {
	var kind string
	if err := s.db.QueryRow(`SELECT type FROM chats WHERE id = ?`, chatID).Scan(&kind); err != nil {
		return "", fmt.Errorf("chat kind: %w", err)
	}
	return domain.ChatKind(kind), nil
}

// DirectPeer returns the other member of a direct chat
func (s *Store) DirectPeer(chatID, userID int64) (int64, bool) {
	var peer int64
	err := s.db.QueryRow(
		`SELECT user_id FROM chat_members WHERE chat_id = ? AND user_id != ? LIMIT 1`,
		chatID, userID,
	).Scan(&peer)
	return peer, err == nil
}

// IsChatMember reports whether the user belongs to the chat
func (s *Store) IsChatMember(userID, chatID int64) bool {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM chat_members WHERE user_id = ? AND chat_id = ?`,
		userID, chatID,
	).Scan(&one)
	return err == nil
}

// MayCall encodes the callee's block list and call settings: a block in
// either direction denies, then the callee's allow_calls_from policy applies.
func (s *Store) MayCall(caller, callee int64) (bool, string) {
	if s.anyBlock(caller, callee) {
		return false, "call unavailable due to a block"
	}
	switch s.callPolicy(callee) {
	case domain.CallPolicyNobody:
		return false, "user has disabled calls"
	case domain.CallPolicyFriends:
		if !s.isFriend(callee, caller) {
			return false, "user only accepts calls from friends"
		}
	}
	return true, ""
}

func (s *Store) anyBlock(a, b int64) bool {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM blocked_users
		 WHERE (blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)`,
		a, b, b, a,
	).Scan(&one)
	return err == nil
}

func (s *Store) isFriend(a, b int64) bool {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM friends WHERE user_id = ? AND friend_id = ?`, a, b,
	).Scan(&one)
	return err == nil
}

// callPolicy returns the user's allow_calls_from setting; users without a
// settings row get the original default of friends-only.
func (s *Store) callPolicy(userID int64) string {
	var policy string
	err := s.db.QueryRow(
		`SELECT allow_calls_from FROM user_settings WHERE user_id = ?`, userID,
	).Scan(&policy)
	if err != nil {
		return domain.CallPolicyFriends
	}
	return policy
}

// ==== Write paths used by the CRUD layer ====

// CreateUser inserts a user with default settings and returns its identity.
// Password hashing is the CRUD layer's concern; this stores the hash as given.
func (s *Store) CreateUser(username, passwordHash, nickname string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users(username, password_hash, nickname, created_at) VALUES (?, ?, ?, ?)`,
		username, passwordHash, nickname, nowISO(),
	)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO user_settings(user_id, allow_calls_from) VALUES (?, ?)`,
		id, domain.CallPolicyFriends,
	); err != nil {
		return 0, fmt.Errorf("create user settings: %w", err)
	}
	return id, nil
}

// CreateSession issues a fresh session token for the user
func (s *Store) CreateSession(userID int64) (string, error) {
	raw := make([]byte, 32)
	rand.Read(raw)
	token := hex.EncodeToString(raw)

	if _, err := s.db.Exec(
		`INSERT INTO sessions(token, user_id, created_at) VALUES (?, ?, ?)`,
		token, userID, nowISO(),
	); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

// DeleteSessions removes every session for the user
func (s *Store) DeleteSessions(userID int64) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

// CreateDirectChat creates a one-on-one chat between two users
func (s *Store) CreateDirectChat(a, b int64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO chats(type, title, created_by, created_at) VALUES ('direct', NULL, ?, ?)`,
		a, nowISO(),
	)
	if err != nil {
		return 0, fmt.Errorf("create direct chat: %w", err)
	}
	chatID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create direct chat: %w", err)
	}
	for _, uid := range []int64{a, b} {
		if err := s.AddMember(chatID, uid, "member"); err != nil {
			return 0, err
		}
	}
	return chatID, nil
}

// CreateGroupChat creates a group chat owned by ownerID with the given members
func (s *Store) CreateGroupChat(title string, ownerID int64, members ...int64) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO chats(type, title, created_by, created_at) VALUES ('group', ?, ?, ?)`,
		title, ownerID, nowISO(),
	)
	if err != nil {
		return 0, fmt.Errorf("create group chat: %w", err)
	}
	chatID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create group chat: %w", err)
	}
	if err := s.AddMember(chatID, ownerID, "owner"); err != nil {
		return 0, err
	}
	for _, uid := range members {
		if uid == ownerID {
			continue
		}
		if err := s.AddMember(chatID, uid, "member"); err != nil {
			return 0, err
		}
	}
	return chatID, nil
}

// AddMember adds a user to a chat; adding an existing member is a no-op
func (s *Store) AddMember(chatID, userID int64, role string) error {
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO chat_members(chat_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		chatID, userID, role, nowISO(),
	); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// AddFriend records a mutual friendship
func (s *Store) AddFriend(a, b int64) error {
	for _, pair := range [][2]int64{{a, b}, {b, a}} {
		if _, err := s.db.Exec(
			`INSERT OR IGNORE INTO friends(user_id, friend_id, created_at) VALUES (?, ?, ?)`,
			pair[0], pair[1], nowISO(),
		); err != nil {
			return fmt.Errorf("add friend: %w", err)
		}
	}
	return nil
}

// Block records a block and severs any friendship in both directions
func (s *Store) Block(blockerID, blockedID int64) error {
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO blocked_users(blocker_id, blocked_id, created_at) VALUES (?, ?, ?)`,
		blockerID, blockedID, nowISO(),
	); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	if _, err := s.db.Exec(
		`DELETE FROM friends WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
		blockerID, blockedID, blockedID, blockerID,
	); err != nil {
		return fmt.Errorf("block: %w", err)
	}
	return nil
}

// Unblock removes a block if present
func (s *Store) Unblock(blockerID, blockedID int64) error {
	if _, err := s.db.Exec(
		`DELETE FROM blocked_users WHERE blocker_id = ? AND blocked_id = ?`,
		blockerID, blockedID,
	); err != nil {
		return fmt.Errorf("unblock: %w", err)
	}
	return nil
}

// SetCallPolicy updates the user's allow_calls_from setting
func (s *Store) SetCallPolicy(userID int64, policy string) error {
	switch policy {
	case domain.CallPolicyEveryone, domain.CallPolicyFriends, domain.CallPolicyNobody:
	default:
		return fmt.Errorf("set call policy: invalid value %q", policy)
	}
	if _, err := s.db.Exec(
		`INSERT INTO user_settings(user_id, allow_calls_from) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET allow_calls_from = excluded.allow_calls_from`,
		userID, policy,
	); err != nil {
		return fmt.Errorf("set call policy: %w", err)
	}
	return nil
}
