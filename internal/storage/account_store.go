package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klingon-exchange/tangle-wallet-core/internal/model"
	"github.com/klingon-exchange/tangle-wallet-core/internal/walleterr"
)

// clientOptionsRecord mirrors model.ClientOptions for JSON persistence.
type clientOptionsRecord struct {
	Node      string `json:"node"`
	LocalPoW  bool   `json:"local_pow"`
	NetworkID string `json:"network_id"`
}

// SaveAccount persists an account's top-level row (not its addresses or
// messages, which are saved separately so a partial sync can persist
// incrementally).
func (s *Storage) SaveAccount(a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.RLock()
	opts, _ := json.Marshal(clientOptionsRecord{
		Node:      a.ClientOptions.Node,
		LocalPoW:  a.ClientOptions.LocalPoW,
		NetworkID: a.ClientOptions.NetworkID,
	})
	query := `
		INSERT INTO accounts (id, account_index, alias, signer_type, client_options, created_at, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			alias = excluded.alias,
			client_options = excluded.client_options,
			last_synced_at = excluded.last_synced_at
	`
	_, err := s.db.Exec(query,
		a.ID, a.Index, a.Alias, string(a.SignerType), string(opts),
		a.CreatedAt.Unix(), nullableUnix(a.LastSyncedAt),
	)
	a.RUnlock()
	if err != nil {
		return fmt.Errorf("storage: save account: %w", err)
	}
	return nil
}

// LoadAccount reconstructs an account's top-level row. Addresses and
// messages are loaded separately via LoadAddresses/LoadMessages.
func (s *Storage) LoadAccount(id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, account_index, alias, signer_type, client_options, created_at, last_synced_at
		FROM accounts WHERE id = ?
	`
	var (
		accountID, alias, signerType, optsJSON string
		index                                  uint32
		createdAt                              int64
		lastSynced                             sql.NullInt64
	)
	err := s.db.QueryRow(query, id).Scan(&accountID, &index, &alias, &signerType, &optsJSON, &createdAt, &lastSynced)
	if err != nil {
		return nil, wrapNotFound(err)
	}

	var opts clientOptionsRecord
	if err := json.Unmarshal([]byte(optsJSON), &opts); err != nil {
		return nil, fmt.Errorf("storage: decode client options: %w", err)
	}

	a := model.NewAccount(accountID, index, alias, model.ClientOptions{
		Node:      opts.Node,
		LocalPoW:  opts.LocalPoW,
		NetworkID: opts.NetworkID,
	}, model.SignerType(signerType))
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	if lastSynced.Valid {
		a.LastSyncedAt = time.Unix(lastSynced.Int64, 0).UTC()
	}
	return a, nil
}

// ListAccountIDs returns every stored account id, ordered by index.
func (s *Storage) ListAccountIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id FROM accounts ORDER BY account_index`)
	if err != nil {
		return nil, fmt.Errorf("storage: list accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveAddress upserts one address row, including its output set.
func (s *Storage) SaveAddress(accountID string, addr *model.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: begin address save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO addresses (account_id, bech32, key_index, internal, balance)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, bech32) DO UPDATE SET balance = excluded.balance
	`, accountID, addr.Bech32, addr.Index, boolToInt(addr.Internal), addr.Balance)
	if err != nil {
		return fmt.Errorf("storage: upsert address: %w", err)
	}

	for _, o := range addr.Outputs {
		_, err = tx.Exec(`
			INSERT INTO outputs (account_id, address, transaction_id, output_index, amount, kind, is_spent, message_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(account_id, transaction_id, output_index) DO UPDATE SET
				is_spent = excluded.is_spent
		`, accountID, addr.Bech32, o.ID.TransactionID, o.ID.OutputIndex, o.Amount, string(o.Kind), boolToInt(o.IsSpent), o.MessageID)
		if err != nil {
			return fmt.Errorf("storage: upsert output: %w", err)
		}
	}

	return tx.Commit()
}

// LoadAddresses returns every address (with its outputs) known for an
// account, ordered by internal flag then key index — the account's
// derivation order.
func (s *Storage) LoadAddresses(accountID string) ([]*model.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT bech32, key_index, internal FROM addresses
		WHERE account_id = ? ORDER BY internal, key_index
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("storage: load addresses: %w", err)
	}
	defer rows.Close()

	var addrs []*model.Address
	for rows.Next() {
		var bech32 string
		var keyIndex uint32
		var internal int
		if err := rows.Scan(&bech32, &keyIndex, &internal); err != nil {
			return nil, err
		}
		addrs = append(addrs, model.NewAddress(bech32, keyIndex, internal != 0))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, a := range addrs {
		outputs, err := s.loadOutputs(accountID, a.Bech32)
		if err != nil {
			return nil, err
		}
		for _, o := range outputs {
			a.MergeOutput(o)
		}
	}
	return addrs, nil
}

func (s *Storage) loadOutputs(accountID, address string) ([]*model.Output, error) {
	rows, err := s.db.Query(`
		SELECT transaction_id, output_index, amount, kind, is_spent, message_id
		FROM outputs WHERE account_id = ? AND address = ?
	`, accountID, address)
	if err != nil {
		return nil, fmt.Errorf("storage: load outputs: %w", err)
	}
	defer rows.Close()

	var outputs []*model.Output
	for rows.Next() {
		var o model.Output
		var kind string
		var isSpent int
		var messageID sql.NullString
		if err := rows.Scan(&o.ID.TransactionID, &o.ID.OutputIndex, &o.Amount, &kind, &isSpent, &messageID); err != nil {
			return nil, err
		}
		o.Address = address
		o.Kind = model.OutputKind(kind)
		o.IsSpent = isSpent != 0
		if messageID.Valid {
			o.MessageID = messageID.String
		}
		outputs = append(outputs, &o)
	}
	return outputs, rows.Err()
}

// SaveMessage upserts one message row, JSON-encoding the message body.
func (s *Storage) SaveMessage(accountID string, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("storage: encode message: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO messages (account_id, message_id, payload_kind, confirmed, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_id, message_id) DO UPDATE SET
			confirmed = excluded.confirmed,
			body = excluded.body
	`, accountID, m.ID, string(m.PayloadKind), confirmationString(m.Confirmed), string(body))
	if err != nil {
		return fmt.Errorf("storage: save message: %w", err)
	}
	return nil
}

// LoadMessages returns every stored message for an account, keyed by id.
func (s *Storage) LoadMessages(accountID string) (map[string]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT body FROM messages WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("storage: load messages: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*model.Message)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var m model.Message
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			return nil, fmt.Errorf("storage: decode message: %w", err)
		}
		out[m.ID] = &m
	}
	return out, rows.Err()
}

// GetMessage fetches a single message, returning walleterr.ErrMessageNotFound
// if absent.
func (s *Storage) GetMessage(accountID, messageID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRow(`SELECT body FROM messages WHERE account_id = ? AND message_id = ?`, accountID, messageID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, walleterr.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get message: %w", err)
	}
	var m model.Message
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return nil, fmt.Errorf("storage: decode message: %w", err)
	}
	return &m, nil
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func confirmationString(c model.Confirmation) string {
	switch c {
	case model.ConfirmationTrue:
		return "true"
	case model.ConfirmationFalse:
		return "false"
	default:
		return "unknown"
	}
}
