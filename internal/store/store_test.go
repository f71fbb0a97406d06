package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqrtqiezi/diting-analyzer/internal/model"
)

func TestGroupByChatroomSortedOrdersByCreateTime(t *testing.T) {
	messages := []model.Message{
		{MsgID: "m2", Chatroom: "room1", CreateTime: time.Date(2026, 7, 31, 10, 5, 0, 0, time.UTC)},
		{MsgID: "m1", Chatroom: "room1", CreateTime: time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)},
		{MsgID: "m3", Chatroom: "room2", CreateTime: time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)},
	}

	grouped := groupByChatroomSorted(messages)
	require.Len(t, grouped, 2)
	require.Len(t, grouped["room1"], 2)
	assert.Equal(t, "m1", grouped["room1"][0].MsgID)
	assert.Equal(t, "m2", grouped["room1"][1].MsgID)
	assert.Len(t, grouped["room2"], 1)
}

func TestGroupByChatroomSortedEmpty(t *testing.T) {
	grouped := groupByChatroomSorted(nil)
	assert.Empty(t, grouped)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}

// TestLoadDayKeysRequestedQuietChatrooms locks in that a chatroom explicitly
// requested but with zero matching rows still gets a present map entry
// (spec §8 boundary: a legitimately empty chatroom is not "no data").
func TestLoadDayKeysRequestedQuietChatrooms(t *testing.T) {
	messages := []model.Message{
		{MsgID: "m1", Chatroom: "room1", CreateTime: time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)},
	}
	grouped := groupByChatroomSorted(messages)
	keyRequestedChatrooms(grouped, []string{"room1", "room-quiet"})

	room1, present := grouped["room1"]
	require.True(t, present)
	assert.Len(t, room1, 1)

	quiet, present := grouped["room-quiet"]
	require.True(t, present)
	assert.Empty(t, quiet)
}
