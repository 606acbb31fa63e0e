package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEncodeDecode(t *testing.T) {
	record := ledgerRecord{Expiration: 28333343, TTL: 10}

	encoded := encodeRecord(record)
	assert.Equal(t, "28333343|10", encoded)

	decoded, ok := decodeRecord(encoded)
	require.True(t, ok)
	assert.Equal(t, record, decoded)
}

func TestDecodeRecordMalformed(t *testing.T) {
	for _, payload := range []string{"", "123", "a|b", "123|", "|10", "1|2|3"} {
		_, ok := decodeRecord(payload)
		assert.False(t, ok, "payload %q should not decode", payload)
	}
}

func TestLedgerDropsUndecodableRecord(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	medium := newTestMedium(t, -1)
	c := newTestCache(t, medium, "b", clock)

	require.NoError(t, medium.Set("t-bkey"+ledgerSuffix, "garbage"))

	_, ok := c.ledger.Read("key")
	assert.False(t, ok)

	// The broken record was removed, not just skipped.
	_, err := medium.Get("t-bkey" + ledgerSuffix)
	require.Error(t, err)
}
