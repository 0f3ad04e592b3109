package service

import (
	"context"
	"os"
	"time"

	"github.com/Aman-CERP/amandocs/internal/ingest"
	"github.com/Aman-CERP/amandocs/internal/monitor"
	"github.com/Aman-CERP/amandocs/internal/queue"
	"github.com/Aman-CERP/amandocs/internal/telemetry"
	"github.com/Aman-CERP/amandocs/pkg/version"
)

// CollectionStatus summarizes one opened collection.
type CollectionStatus struct {
	Name           string `json:"name"`
	Documents      int    `json:"documents"`
	Chunks         int    `json:"chunks"`
	EstimatedBytes int64  `json:"estimated_bytes"`
	Dirty          bool   `json:"dirty"`
	Error          string `json:"error,omitempty"`
}

// MonitorStatus summarizes the change monitor.
type MonitorStatus struct {
	State    monitor.State        `json:"state"`
	Paused   bool                 `json:"paused"`
	Holds    int                  `json:"holds"`
	LastTick *monitor.TickSummary `json:"last_tick,omitempty"`
}

// Status is the full service status.
type Status struct {
	PID         int                      `json:"pid"`
	Version     string                   `json:"version"`
	Uptime      string                   `json:"uptime"`
	DataDir     string                   `json:"data_dir"`
	Embedder    string                   `json:"embedder"`
	Dimensions  int                      `json:"dimensions"`
	Collections []CollectionStatus       `json:"collections"`
	Queue       queue.Snapshot           `json:"queue"`
	Monitor     MonitorStatus            `json:"monitor"`
	Searches    telemetry.SearchSnapshot `json:"searches"`
}

// Status reports on every opened collection, the queue and the monitor.
func (s *Service) Status(ctx context.Context) *Status {
	st := &Status{
		PID:        os.Getpid(),
		Version:    version.Version,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		DataDir:    s.cfg.Store.DataDir,
		Embedder:   s.embedder.ModelName(),
		Dimensions: s.embedder.Dimensions(),
		Queue:      s.queue.Snapshot(),
		Monitor: MonitorStatus{
			State:  s.monitor.State(),
			Paused: s.monitor.Paused(),
			Holds:  s.monitor.Holds(),
		},
		Searches:    s.searches.Snapshot(),
		Collections: []CollectionStatus{},
	}
	if ticks := s.monitor.Summaries(); len(ticks) > 0 {
		last := ticks[len(ticks)-1]
		st.Monitor.LastTick = &last
	}

	for _, name := range s.collections.Names() {
		cs := CollectionStatus{Name: name}
		f, err := s.collections.Get(name)
		if err != nil {
			cs.Error = err.Error()
			st.Collections = append(st.Collections, cs)
			continue
		}
		idx := f.Index()
		cs.Chunks = idx.Count()
		cs.EstimatedBytes = idx.EstimateSize()
		cs.Dirty = f.Dirty()
		if docs, err := f.Documents(ctx); err == nil {
			cs.Documents = len(docs)
		} else {
			cs.Error = err.Error()
		}
		st.Collections = append(st.Collections, cs)
	}
	return st
}

// PauseMonitor suppresses monitor ticks until ResumeMonitor.
func (s *Service) PauseMonitor() { s.monitor.Pause() }

// ResumeMonitor re-enables monitor ticks.
func (s *Service) ResumeMonitor() { s.monitor.Resume() }

// MonitorSummaries returns the recent tick summaries, oldest first.
func (s *Service) MonitorSummaries() []monitor.TickSummary {
	return s.monitor.Summaries()
}

func validateCollection(name string) error {
	return ingest.ValidateName(name)
}
