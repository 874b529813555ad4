package tracker

import "time"

const (
	ReconcileKey = "maintenance:reconcile"
	AuditKey     = "maintenance:audit"
	RepairKey    = "maintenance:repair"
)

// ReconcileRecord is the last successful schema reconciliation.
type ReconcileRecord struct {
	Fingerprint string        `json:"fingerprint" msgpack:"fingerprint"`
	Completed   time.Time     `json:"completed" msgpack:"completed"`
	Applied     int           `json:"applied" msgpack:"applied"`
	Skipped     int           `json:"skipped" msgpack:"skipped"`
	Advisories  []string      `json:"advisories" msgpack:"advisories"`
	Duration    time.Duration `json:"duration" msgpack:"duration"`
}

// Changed returns true if the catalog fingerprint differs from the recorded one.
func (r *ReconcileRecord) Changed(fingerprint string) bool {
	return r == nil || r.Fingerprint != fingerprint
}
