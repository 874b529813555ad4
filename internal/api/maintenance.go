package api

import (
	"net/http"

	"github.com/shopmonkeyus/procure/internal"
	"github.com/shopmonkeyus/procure/internal/auditor"
	"github.com/shopmonkeyus/procure/internal/repair"
	"github.com/shopmonkeyus/procure/internal/tracker"
)

// MaintenanceStatus is the last recorded outcome of each maintenance task.
type MaintenanceStatus struct {
	Version   string                   `json:"version"`
	Reconcile *tracker.ReconcileRecord `json:"reconcile"`
	Audit     *auditor.Report          `json:"audit"`
	Repair    *repair.Report           `json:"repair"`
	System    *internal.SystemStats    `json:"system"`
}

// LoadMaintenanceStatus reads the maintenance records from the tracker. The tracker may be nil.
func LoadMaintenanceStatus(t *tracker.Tracker) (*MaintenanceStatus, error) {
	var status MaintenanceStatus
	if t == nil {
		return &status, nil
	}
	var rec tracker.ReconcileRecord
	if found, err := t.GetRecord(tracker.ReconcileKey, &rec); err != nil {
		return nil, err
	} else if found {
		status.Reconcile = &rec
	}
	var audit auditor.Report
	if found, err := t.GetRecord(tracker.AuditKey, &audit); err != nil {
		return nil, err
	} else if found {
		status.Audit = &audit
	}
	var rep repair.Report
	if found, err := t.GetRecord(tracker.RepairKey, &rep); err != nil {
		return nil, err
	} else if found {
		status.Repair = &rep
	}
	return &status, nil
}

func (a *API) handleMaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := LoadMaintenanceStatus(a.tracker)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status.Version = a.version
	stats, err := internal.GetSystemStats()
	if err != nil {
		a.logger.Warn("error getting system stats: %s", err)
	} else {
		status.System = stats
	}
	sendSuccess(w, http.StatusOK, "", status)
}
