// Package storage provides persistent storage for accounts, addresses,
// outputs, messages, and events using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/klingon-exchange/tangle-wallet-core/internal/walleterr"
)

// Storage provides persistent storage for the wallet core.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New opens (creating if absent) the SQLite-backed store at cfg.DataDir.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("storage: create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "wallet.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // sqlite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Exists reports whether a store is already present at cfg.DataDir,
// without opening it.
func Exists(cfg *Config) bool {
	dbPath := filepath.Join(expandPath(cfg.DataDir), "wallet.db")
	_, err := os.Stat(dbPath)
	return err == nil
}

func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		account_index INTEGER NOT NULL UNIQUE,
		alias TEXT NOT NULL UNIQUE,
		signer_type TEXT NOT NULL,
		client_options TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_synced_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS addresses (
		account_id TEXT NOT NULL,
		bech32 TEXT NOT NULL,
		key_index INTEGER NOT NULL,
		internal INTEGER NOT NULL,
		balance INTEGER NOT NULL DEFAULT 0,

		PRIMARY KEY (account_id, bech32),
		FOREIGN KEY (account_id) REFERENCES accounts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_addresses_account ON addresses(account_id);
	CREATE INDEX IF NOT EXISTS idx_addresses_path ON addresses(account_id, internal, key_index);

	CREATE TABLE IF NOT EXISTS outputs (
		account_id TEXT NOT NULL,
		address TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		output_index INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		kind TEXT NOT NULL,
		is_spent INTEGER NOT NULL DEFAULT 0,
		message_id TEXT,

		PRIMARY KEY (account_id, transaction_id, output_index),
		FOREIGN KEY (account_id, address) REFERENCES addresses(account_id, bech32)
	);

	CREATE INDEX IF NOT EXISTS idx_outputs_address ON outputs(account_id, address);

	CREATE TABLE IF NOT EXISTS messages (
		account_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		payload_kind TEXT NOT NULL,
		confirmed TEXT NOT NULL DEFAULT 'unknown',
		body TEXT NOT NULL,

		PRIMARY KEY (account_id, message_id),
		FOREIGN KEY (account_id) REFERENCES accounts(id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_account ON messages(account_id);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		emitted_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_account ON events(account_id, emitted_at);

	CREATE TABLE IF NOT EXISTS keystore (
		account_id TEXT PRIMARY KEY,
		ciphertext BLOB NOT NULL,
		nonce BLOB NOT NULL,
		version INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// AccountExists reports whether alias is already taken by another account,
// enforcing uniqueness outside the database's own constraint so callers
// get a typed error instead of a raw SQLite one.
func (s *Storage) AccountExists(alias string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM accounts WHERE alias = ?`, alias).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("storage: check account alias: %w", err)
	}
	return count > 0, nil
}

// NextAccountIndex returns one past the highest account_index currently
// stored, enforcing the index-monotonicity invariant for new accounts.
func (s *Storage) NextAccountIndex() (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(account_index) FROM accounts`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("storage: query max account index: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return uint32(max.Int64) + 1, nil
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

// wrapNotFound converts sql.ErrNoRows to the shared sentinel so callers
// can use errors.Is uniformly regardless of storage backend.
func wrapNotFound(err error) error {
	if err == sql.ErrNoRows {
		return walleterr.ErrRecordNotFound
	}
	return err
}
