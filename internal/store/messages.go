package store

import "context"

// AppendMessage writes one chat message. The log is append-only; CreatedTs
// defaults to now (unix milliseconds).
func (s *Store) AppendMessage(ctx context.Context, m MessageRecord) error {
	if m.CreatedTs == 0 {
		m.CreatedTs = s.now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO chat_messages (user_id, role, content, created_ts) VALUES (?, ?, ?, ?)`),
		m.UserID, m.Role, m.Content, m.CreatedTs)
	return err
}

// ListMessages returns every message for userID, oldest first.
func (s *Store) ListMessages(ctx context.Context, userID string) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, user_id, role, content, created_ts FROM chat_messages
		 WHERE user_id = ? ORDER BY created_ts ASC, id ASC`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []MessageRecord
	for rows.Next() {
		var m MessageRecord
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedTs); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
