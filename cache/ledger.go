package cache

import (
	"strconv"
	"strings"
)

// ledgerRecord pairs an entry's absolute expiration with the TTL that
// produced it, both in whole resolution units. The two travel as one
// atomic record, never independently.
type ledgerRecord struct {
	Expiration int64
	TTL        int64
}

// expirationLedger persists ledger records through the adapter under
// key + ledgerSuffix. Writes go through the medium and can themselves
// fail with a capacity error; the façade owns the reclaim path.
type expirationLedger struct {
	adapter *storeAdapter
}

func newExpirationLedger(adapter *storeAdapter) *expirationLedger {
	return &expirationLedger{adapter: adapter}
}

func (l *expirationLedger) Read(key string) (ledgerRecord, bool) {
	payload, err := l.adapter.Get(key + ledgerSuffix)
	if err != nil {
		return ledgerRecord{}, false
	}

	record, ok := decodeRecord(payload)
	if !ok {
		// A record that cannot be decoded is useless; drop it.
		_ = l.adapter.Remove(key + ledgerSuffix)
		return ledgerRecord{}, false
	}
	return record, true
}

func (l *expirationLedger) Write(key string, record ledgerRecord) error {
	return l.adapter.Set(key+ledgerSuffix, encodeRecord(record))
}

func (l *expirationLedger) Clear(key string) {
	_ = l.adapter.Remove(key + ledgerSuffix)
}

func (l *expirationLedger) RecordSize(record ledgerRecord) int {
	return len(encodeRecord(record))
}

func encodeRecord(record ledgerRecord) string {
	return strconv.FormatInt(record.Expiration, 10) + "|" + strconv.FormatInt(record.TTL, 10)
}

func decodeRecord(payload string) (ledgerRecord, bool) {
	expPart, ttlPart, found := strings.Cut(payload, "|")
	if !found {
		return ledgerRecord{}, false
	}

	expiration, err := strconv.ParseInt(expPart, 10, 64)
	if err != nil {
		return ledgerRecord{}, false
	}

	ttl, err := strconv.ParseInt(ttlPart, 10, 64)
	if err != nil {
		return ledgerRecord{}, false
	}

	return ledgerRecord{Expiration: expiration, TTL: ttl}, true
}
