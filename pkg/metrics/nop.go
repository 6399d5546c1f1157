package metrics

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordSync(string, string, float64)  {}
func (Nop) RecordFetch(string, string, float64) {}
func (Nop) RecordLeaseRenewal(string)           {}
func (Nop) RecordDataset(string, int, int)      {}
func (Nop) RecordConsecutiveFailures(int64)     {}
func (Nop) RecordRetry(string, string)          {}
func (Nop) RecordError(string)                  {}
