package storage

import (
	"encoding/binary"
	"time"
)

// CollateralCache remembers collateral transactions that have already
// reached the required confirmation depth once, so that periodic
// revalidation of an already-active proposal or finalized budget does not
// get spuriously flagged as immature again if a lagging or pruned
// ChainReader implementation temporarily under-reports confirmation depth
// (e.g. during a resync).
type CollateralCache struct {
	db Database
}

// NewCollateralCache wraps db for collateral-maturity bookkeeping.
func NewCollateralCache(db Database) *CollateralCache {
	return &CollateralCache{db: db}
}

func collateralCacheKey(txid [32]byte) []byte {
	key := make([]byte, 0, 19+32)
	key = append(key, []byte("collateral-mature:")...)
	key = append(key, txid[:]...)
	return key
}

// MarkMatured records that txid had reached the required confirmation depth
// as of at.
func (c *CollateralCache) MarkMatured(txid [32]byte, at time.Time) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(at.Unix()))
	return c.db.Put(collateralCacheKey(txid), buf)
}

// Matured reports whether txid was previously recorded as matured, and when.
func (c *CollateralCache) Matured(txid [32]byte) (time.Time, bool) {
	buf, err := c.db.Get(collateralCacheKey(txid))
	if err != nil || len(buf) != 8 {
		return time.Time{}, false
	}
	sec := int64(binary.LittleEndian.Uint64(buf))
	return time.Unix(sec, 0), true
}
