package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/kalambet/basedpeople/internal/storage"
)

// ReconcileStore finds stuck slugs and queues refetch jobs for them.
type ReconcileStore interface {
	LatestStatuses(statuses ...string) ([]storage.Status, error)
	EnqueueJobOnce(job storage.Job) (bool, error)
}

// Queued describes one refetch job added by Reconcile.
type Queued struct {
	Slug   string `json:"slug"`
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// Reconcile queues a refetch job for every slug whose latest status is
// fetch_failed or fetch_error. Slugs that already have a pending job are
// skipped. Nothing calls this automatically.
func Reconcile(store ReconcileStore) ([]Queued, error) {
	stuck, err := store.LatestStatuses(storage.StatusFetchFailed, storage.StatusFetchError)
	if err != nil {
		return nil, fmt.Errorf("listing stuck slugs: %w", err)
	}

	queued := []Queued{}
	for _, st := range stuck {
		if st.RunID == "" {
			continue
		}
		payload, err := json.Marshal(refetchPayload{Slug: st.Slug, Name: st.Name, RunID: st.RunID})
		if err != nil {
			return queued, fmt.Errorf("encoding payload: %w", err)
		}
		added, err := store.EnqueueJobOnce(storage.Job{
			Type:        JobTypeRefetch,
			PayloadJSON: string(payload),
		})
		if err != nil {
			return queued, fmt.Errorf("enqueueing refetch for %s: %w", st.Slug, err)
		}
		if added {
			queued = append(queued, Queued{Slug: st.Slug, RunID: st.RunID, Status: st.Status})
		}
	}
	return queued, nil
}
