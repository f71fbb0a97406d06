package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sqrtqiezi/diting-analyzer/internal/store"
)

// Result is the outcome of a full run (spec §4.8 entry point
// `analyze(date, chatrooms?) → report`).
type Result struct {
	Report          string
	ChatroomsOK     int
	ChatroomsFailed int
}

// Run is the spec §4.8 entry point: load(date, chatrooms) via the
// columnar store, analyze each chatroom, rank, and render the combined
// Markdown report. A chatroom whose data load fails is recorded and
// skipped (spec §7 "data-access error... fatal for the affected chatroom");
// the run as a whole only fails if every requested chatroom failed.
func (a *Analyzer) Run(ctx context.Context, s store.Store, date time.Time, chatrooms []string, now time.Time) (Result, error) {
	byChatroom, err := s.LoadDay(ctx, date, chatrooms)
	if err != nil {
		return Result{}, fmt.Errorf("analyzer: loading day %s: %w", date.Format("2006-01-02"), err)
	}

	rooms := chatrooms
	if len(rooms) == 0 {
		for room := range byChatroom {
			rooms = append(rooms, room)
		}
		sort.Strings(rooms)
	}

	var reports []ChatroomReport
	var ok, failed int
	for _, room := range rooms {
		// A present-but-nil/empty slice is a legitimately quiet chatroom
		// (store.LoadDay always keys every explicitly requested chatroom,
		// spec §8); only a genuinely absent key counts as "no data".
		messages, present := byChatroom[room]
		if !present {
			log.Warn().Str("chatroom", room).Msg("no data for chatroom on requested date")
			failed++
			reports = append(reports, ChatroomReport{Chatroom: room, MessageTotal: 0})
			continue
		}
		reports = append(reports, a.AnalyzeChatroom(ctx, room, messages))
		ok++
	}

	if ok == 0 && len(rooms) > 0 {
		return Result{Report: Render(date, now, reports), ChatroomsOK: ok, ChatroomsFailed: failed},
			fmt.Errorf("analyzer: all %d requested chatrooms failed", len(rooms))
	}

	return Result{Report: Render(date, now, reports), ChatroomsOK: ok, ChatroomsFailed: failed}, nil
}
