package security

import "time"

// IPRecord is the per-IP intelligence record. It is owned exclusively by the
// Guard: all mutation happens inside guard methods under the guard mutex, and
// a record is only ever updated atomically within one call.
type IPRecord struct {
	FirstSeen       time.Time
	LastSeen        time.Time
	RequestCount    uint64
	Users           map[string]struct{} // distinct user IDs seen on this IP
	IPChangesByUser map[string]int
	FailedLogins    []time.Time // pruned lazily to the login window
	BlockedUntil    time.Time   // zero when not blocked
	RateBuckets     map[string][]time.Time
}

func (r *IPRecord) blockedAt(now time.Time) bool {
	return !r.BlockedUntil.IsZero() && r.BlockedUntil.After(now)
}

// ipStore holds the tracked IP records. Not safe for concurrent use on its
// own; the guard serializes access.
type ipStore struct {
	records map[string]*IPRecord
}

func newIPStore() *ipStore {
	return &ipStore{records: make(map[string]*IPRecord)}
}

// get returns the record for ip, creating it on first observation.
func (s *ipStore) get(ip string, now time.Time) *IPRecord {
	record, ok := s.records[ip]
	if !ok {
		record = &IPRecord{
			FirstSeen:       now,
			LastSeen:        now,
			Users:           make(map[string]struct{}),
			IPChangesByUser: make(map[string]int),
			RateBuckets:     make(map[string][]time.Time),
		}
		s.records[ip] = record
	}
	return record
}

func (s *ipStore) lookup(ip string) (*IPRecord, bool) {
	record, ok := s.records[ip]
	return record, ok
}

func (s *ipStore) ips() []string {
	out := make([]string, 0, len(s.records))
	for ip := range s.records {
		out = append(out, ip)
	}
	return out
}

// sweep drops records idle past the retention horizon. A record whose block
// has not expired is never dropped, regardless of idle time. Returns the
// number of evicted records.
func (s *ipStore) sweep(now time.Time, retention time.Duration) int {
	evicted := 0
	horizon := now.Add(-retention)
	for ip, record := range s.records {
		if record.blockedAt(now) {
			continue
		}
		if record.LastSeen.Before(horizon) {
			delete(s.records, ip)
			evicted++
		}
	}
	return evicted
}
