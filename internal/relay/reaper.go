package relay

// Reap implements the TTL reaper (spec.md section 4.4): called once per
// TIMETICK, it tears down every primary session whose TTL is already zero
// and decrements the TTL of the rest. Twins are never visited directly;
// teardown is always primary-driven.
func (t *Table) Reap() {
	var expired []*Session

	for _, s := range t.sessions {
		if s.TTL == 0 {
			expired = append(expired, s)
			continue
		}
		s.TTL--
	}

	for _, s := range expired {
		t.logger.Info("session timed out", "call_id", s.CallID, "from_tag", s.FromTag)
		if t.metrics != nil {
			t.metrics.SessionExpired()
		}
		t.Destroy(s, "ttl expired")
	}
}
