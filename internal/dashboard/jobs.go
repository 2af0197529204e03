package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"positioning-lab/internal/ingestion"
)

// Job is a scheduled collector that can report its state and be run on demand.
type Job interface {
	Status() ingestion.JobStatus
	Trigger(ctx context.Context) bool
}

var _ Job = (*ingestion.Scheduler)(nil)

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status string          `json:"status"`
	Jobs   []JobStatusJSON `json:"jobs,omitempty"`
}

// JobStatusJSON is one scheduler's state.
type JobStatusJSON struct {
	Name      string     `json:"name"`
	Interval  string     `json:"interval"`
	Running   bool       `json:"running"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// JobRunResponse acknowledges a manual run.
type JobRunResponse struct {
	Name    string `json:"name"`
	Started bool   `json:"started"`
}

func newJobStatusJSON(st ingestion.JobStatus) JobStatusJSON {
	out := JobStatusJSON{
		Name:     st.Name,
		Interval: st.Interval.String(),
		Running:  st.Running,
	}
	if !st.LastRun.IsZero() {
		last := st.LastRun.UTC()
		out.LastRun = &last
	}
	if st.LastErr != nil {
		out.LastError = st.LastErr.Error()
	}
	return out
}

// handleHealth stays 200 when a collector failed; the failure is reported per job.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	for _, j := range s.deps.Jobs {
		resp.Jobs = append(resp.Jobs, newJobStatusJSON(j.Status()))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobRun(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, j := range s.deps.Jobs {
		if j.Status().Name != name {
			continue
		}
		if !j.Trigger(s.jobCtx) {
			writeError(w, r, http.StatusConflict, "Job "+name+" is already running")
			return
		}
		s.log.Info().Str("job", name).Str("request_id", requestIDFrom(r.Context())).Msg("manual run started")
		writeJSON(w, http.StatusAccepted, JobRunResponse{Name: name, Started: true})
		return
	}
	writeError(w, r, http.StatusNotFound, "Unknown job "+name)
}
