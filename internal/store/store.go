// Package store is the columnar-store collaborator (spec §6.1): it loads a
// day's chatroom messages, filtered by is_chatroom_msg and optionally by
// chatroom, ordered by create_time ascending. Grounded on the teacher's
// ClickHouse connection/query pattern in internal/agentd/logs_clickhouse.go,
// adapted from log rows to chatroom message rows.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/sqrtqiezi/diting-analyzer/internal/model"
)

// Store is the read-only collaborator the coordinator (C8) loads a day's
// messages from (spec §4.8 step 1, §5 "opened read-only per run").
type Store interface {
	// LoadDay returns every is_chatroom_msg row for date, grouped by
	// chatroom, each group sorted by CreateTime ascending. If chatrooms is
	// non-empty, only those chatrooms are returned.
	LoadDay(ctx context.Context, date time.Time, chatrooms []string) (map[string][]model.Message, error)
	Close() error
}

// Config holds the ClickHouse connection settings.
type Config struct {
	DSN            string
	Table          string
	TimeoutSeconds int
}

// clickHouseStore is the production Store implementation.
type clickHouseStore struct {
	conn    clickhouse.Conn
	table   string
	timeout time.Duration
}

// Open connects to ClickHouse and verifies reachability (spec §5 "opened
// read-only per run").
func Open(ctx context.Context, cfg Config) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open connection: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "chatroom_messages"
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &clickHouseStore{conn: conn, table: table, timeout: timeout}, nil
}

func (s *clickHouseStore) Close() error {
	return s.conn.Close()
}

func (s *clickHouseStore) LoadDay(ctx context.Context, date time.Time, chatrooms []string) (map[string][]model.Message, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.Add(24 * time.Hour)

	query := fmt.Sprintf(`
SELECT
  msg_id, create_time, chatroom, chatroom_sender, from_username,
  content, msg_type, is_chatroom_msg
FROM %s
WHERE create_time >= ? AND create_time < ? AND is_chatroom_msg = 1
`, s.table)

	args := []any{start, end}
	if len(chatrooms) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(chatrooms)), ",")
		query += fmt.Sprintf(" AND chatroom IN (%s)", placeholders)
		for _, c := range chatrooms {
			args = append(args, c)
		}
	}
	query += " ORDER BY create_time ASC"

	execCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rows, err := s.conn.Query(execCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var isChatroomMsg uint8
		if err := rows.Scan(&m.MsgID, &m.CreateTime, &m.Chatroom, &m.ChatroomSender,
			&m.FromUsername, &m.Content, &m.MsgType, &isChatroomMsg); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		m.IsChatroomMsg = isChatroomMsg != 0
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: row iteration: %w", err)
	}

	grouped := groupByChatroomSorted(messages)
	keyRequestedChatrooms(grouped, chatrooms)
	return grouped, nil
}

// keyRequestedChatrooms gives every explicitly requested chatroom with zero
// matching rows a present-but-empty entry in grouped. Such a chatroom is
// legitimately empty (spec §8 boundary: "Empty chatroom (0 messages) ...
// chatroom section present with Messages: 0"), not a missing one, so the
// coordinator doesn't mistake "quiet" for "no data" (spec §7).
func keyRequestedChatrooms(grouped map[string][]model.Message, chatrooms []string) {
	for _, c := range chatrooms {
		if _, ok := grouped[c]; !ok {
			grouped[c] = nil
		}
	}
}

// groupByChatroomSorted groups messages by chatroom and sorts each group by
// CreateTime ascending (spec §4.8 step 1 "sort each chatroom's rows by
// create_time ascending"). Pulled out of LoadDay so it is testable without a
// live ClickHouse connection.
func groupByChatroomSorted(messages []model.Message) map[string][]model.Message {
	out := map[string][]model.Message{}
	for _, m := range messages {
		out[m.Chatroom] = append(out[m.Chatroom], m)
	}
	for room := range out {
		sort.SliceStable(out[room], func(i, j int) bool {
			return out[room][i].CreateTime.Before(out[room][j].CreateTime)
		})
	}
	return out
}
