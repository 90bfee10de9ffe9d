package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollateralCacheMarkAndMatured(t *testing.T) {
	cache := NewCollateralCache(NewMemDB())
	var txid [32]byte
	txid[0] = 0x01

	_, ok := cache.Matured(txid)
	require.False(t, ok, "an unrecorded txid must not report matured")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, cache.MarkMatured(txid, at))

	got, ok := cache.Matured(txid)
	require.True(t, ok)
	require.Equal(t, at.Unix(), got.Unix())
}

func TestCollateralCacheDistinctTxids(t *testing.T) {
	cache := NewCollateralCache(NewMemDB())
	var a, b [32]byte
	a[0] = 0x01
	b[0] = 0x02

	require.NoError(t, cache.MarkMatured(a, time.Unix(1000, 0)))
	_, ok := cache.Matured(b)
	require.False(t, ok)
}
