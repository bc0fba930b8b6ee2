package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundtableai/roundtable/dialogue"
	"github.com/roundtableai/roundtable/types"
)

func seedState(t *testing.T, sessionID, configID string) *dialogue.State {
	t.Helper()
	state := dialogue.NewState(sessionID, configID, []string{"a", "b"})
	require.NoError(t, state.SetTopic("topic for "+sessionID))
	require.NoError(t, state.AddUserMessage("m1", "hello"))
	require.NoError(t, state.AddAgentMessage("m2", "a", "A", "hi there"))
	return state
}

func testMeta(configID string) ConversationMeta {
	return ConversationMeta{ConfigID: configID, ConfigName: "Test Config", Participants: []string{"A", "B"}}
}

// storeCRUDSuite exercises the ConversationStore contract shared by every
// backend.
func storeCRUDSuite(t *testing.T, st ConversationStore) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := st.GetBySessionID(ctx, "missing")
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrNotFound))
	})

	t.Run("upsert and get", func(t *testing.T) {
		state := seedState(t, "s1", "cfg-a")
		require.NoError(t, st.Upsert(ctx, state, testMeta("cfg-a")))

		record, err := st.GetBySessionID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "s1", record.SessionID)
		assert.Equal(t, "cfg-a", record.ConfigID)
		assert.Equal(t, "topic for s1", record.Topic)
		assert.Equal(t, types.StatusInProgress, record.Status)
		assert.Equal(t, []string{"A", "B"}, record.Participants)
		assert.Equal(t, 3, record.Stats.TotalMessages)
		assert.Equal(t, 1, record.Stats.UserMessages)
		assert.Equal(t, 1, record.Stats.AgentMessages)
		require.NotNil(t, record.State)
		assert.Len(t, record.State.Messages, 3)
	})

	t.Run("upsert replaces", func(t *testing.T) {
		state := seedState(t, "s1", "cfg-a")
		require.NoError(t, state.AddUserMessage("m3", "more"))
		require.NoError(t, st.Upsert(ctx, state, testMeta("cfg-a")))

		record, err := st.GetBySessionID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 4, record.Stats.TotalMessages)
	})

	t.Run("ended_at stamped on completion", func(t *testing.T) {
		state := seedState(t, "s2", "cfg-a")
		require.NoError(t, state.EndConversation())
		require.NoError(t, st.Upsert(ctx, state, testMeta("cfg-a")))

		record, err := st.GetBySessionID(ctx, "s2")
		require.NoError(t, err)
		require.NotNil(t, record.EndedAt)
		assert.WithinDuration(t, time.Now(), *record.EndedAt, time.Minute)
	})

	t.Run("list with filters", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			state := seedState(t, fmt.Sprintf("other-%d", i), "cfg-b")
			require.NoError(t, st.Upsert(ctx, state, testMeta("cfg-b")))
		}

		all, err := st.List(ctx, ListFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 5)

		byConfig, err := st.List(ctx, ListFilter{ConfigID: "cfg-b"})
		require.NoError(t, err)
		assert.Len(t, byConfig, 3)

		completed, err := st.List(ctx, ListFilter{Status: types.StatusCompleted})
		require.NoError(t, err)
		require.Len(t, completed, 1)
		assert.Equal(t, "s2", completed[0].SessionID)

		limited, err := st.List(ctx, ListFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("list sorted by updated_at desc by default", func(t *testing.T) {
		summaries, err := st.List(ctx, ListFilter{})
		require.NoError(t, err)
		for i := 1; i < len(summaries); i++ {
			assert.False(t, summaries[i-1].UpdatedAt.Before(summaries[i].UpdatedAt))
		}
	})

	t.Run("count", func(t *testing.T) {
		total, err := st.Count(ctx, "")
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)

		byConfig, err := st.Count(ctx, "cfg-b")
		require.NoError(t, err)
		assert.EqualValues(t, 3, byConfig)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, st.Delete(ctx, "s2"))
		_, err := st.GetBySessionID(ctx, "s2")
		assert.True(t, types.IsCode(err, types.ErrNotFound))

		err = st.Delete(ctx, "s2")
		assert.True(t, types.IsCode(err, types.ErrNotFound))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, st.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	st := NewMemoryStore(nil)
	defer st.Close()
	storeCRUDSuite(t, st)
}

func TestMemoryStoreClosed(t *testing.T) {
	st := NewMemoryStore(nil)
	require.NoError(t, st.Close())

	ctx := context.Background()
	err := st.Upsert(ctx, seedState(t, "s1", "cfg"), testMeta("cfg"))
	assert.True(t, types.IsCode(err, types.ErrStoreClosed))
	_, err = st.GetBySessionID(ctx, "s1")
	assert.True(t, types.IsCode(err, types.ErrStoreClosed))
	assert.True(t, types.IsCode(st.Ping(ctx), types.ErrStoreClosed))
}

func TestMemoryStoreIsolation(t *testing.T) {
	st := NewMemoryStore(nil)
	defer st.Close()
	ctx := context.Background()

	state := seedState(t, "s1", "cfg")
	require.NoError(t, st.Upsert(ctx, state, testMeta("cfg")))

	// Mutating the caller's state after upsert must not leak into the store.
	require.NoError(t, state.AddUserMessage("m9", "after upsert"))

	record, err := st.GetBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, record.State.Messages, 3)

	// Mutating a returned record must not leak back either.
	require.NoError(t, record.State.AddUserMessage("m10", "after get"))
	again, err := st.GetBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, again.State.Messages, 3)
}

func TestGenerateTitle(t *testing.T) {
	t.Run("topic", func(t *testing.T) {
		assert.Equal(t, "short topic", generateTitle("short topic", "Config"))
	})

	t.Run("falls back to config name", func(t *testing.T) {
		assert.Equal(t, "Config", generateTitle("", "Config"))
	})

	t.Run("untitled", func(t *testing.T) {
		assert.Equal(t, "Untitled conversation", generateTitle("", ""))
	})

	t.Run("long topic truncated", func(t *testing.T) {
		long := ""
		for i := 0; i < 20; i++ {
			long += "abcdefghij"
		}
		title := generateTitle(long, "")
		assert.Len(t, title, maxTitleLen)
		assert.Equal(t, "...", title[len(title)-3:])
	})

	t.Run("long multi-byte topic stays valid UTF-8", func(t *testing.T) {
		title := generateTitle(strings.Repeat("ä", 100), "")
		assert.True(t, utf8.ValidString(title))
		assert.Equal(t, maxTitleLen, len([]rune(title)))
		assert.Equal(t, strings.Repeat("ä", maxTitleLen-3)+"...", title)
	})
}

func TestListFilterNormalize(t *testing.T) {
	f := ListFilter{}
	f.Normalize()
	assert.Equal(t, 20, f.Limit)
	assert.Equal(t, SortByUpdatedAt, f.SortBy)
	assert.Equal(t, "desc", f.SortOrder)

	f = ListFilter{Limit: 5, SortBy: SortByCreatedAt, SortOrder: "asc"}
	f.Normalize()
	assert.Equal(t, 5, f.Limit)
	assert.Equal(t, SortByCreatedAt, f.SortBy)
	assert.Equal(t, "asc", f.SortOrder)
}
