package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roundtableai/roundtable/config"
	"github.com/roundtableai/roundtable/types"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := NewRedisStore(context.Background(), config.StoreConfig{
		RedisAddr:      mr.Addr(),
		RedisKeyPrefix: "test:",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRedisStore(t *testing.T) {
	storeCRUDSuite(t, newTestRedisStore(t))
}

func TestRedisStoreKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	st, err := NewRedisStore(context.Background(), config.StoreConfig{
		RedisAddr:      mr.Addr(),
		RedisKeyPrefix: "rt:",
	}, nil)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, seedState(t, "s1", "cfg"), testMeta("cfg")))

	assert.True(t, mr.Exists("rt:conversation:s1"))
	members, err := mr.SMembers("rt:sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, members)

	require.NoError(t, st.Delete(ctx, "s1"))
	assert.False(t, mr.Exists("rt:conversation:s1"))
}

func TestRedisStoreConnectFailure(t *testing.T) {
	_, err := NewRedisStore(context.Background(), config.StoreConfig{
		RedisAddr: "127.0.0.1:1",
	}, nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrPersistenceFailure))
}
