package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/steveyegge/projsync/internal/filewatch"
	"github.com/steveyegge/projsync/internal/workspace"
)

// WorkspaceChangedData describes one committed change.
type WorkspaceChangedData struct {
	Kind       string `json:"kind"`
	ProjectID  string `json:"project_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	Version    int64  `json:"version"`
}

// ReferenceChangedData names a referenced file that changed on disk.
type ReferenceChangedData struct {
	Path string `json:"path"`
}

// StatsData summarizes the workspace.
type StatsData struct {
	Version          int64          `json:"version"`
	Projects         int            `json:"projects"`
	Documents        int            `json:"documents"`
	EventsByKind     map[string]int `json:"events_by_kind"`
	ReferenceChanges int            `json:"reference_changes"`
}

// Handler turns workspace and file-watch notifications into dashboard
// messages.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a handler that broadcasts through server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = server.logger
	}
	return &Handler{
		server: server,
		logger: logger,
		stats:  StatsData{EventsByKind: make(map[string]int)},
	}
}

// Attach broadcasts every event the store publishes from now on. The
// returned function stops broadcasting.
func (h *Handler) Attach(store *workspace.Store) (detach func()) {
	return store.Subscribe(h.OnWorkspaceChanged)
}

// AttachWatches broadcasts every reference-change notification of registry.
func (h *Handler) AttachWatches(registry *filewatch.Registry) {
	registry.Subscribe(h.OnReferenceChanged)
}

// OnWorkspaceChanged handles a committed change event.
func (h *Handler) OnWorkspaceChanged(e workspace.ChangeEvent) {
	data := WorkspaceChangedData{Kind: e.Kind.String()}
	if !e.ProjectID.IsZero() {
		data.ProjectID = e.ProjectID.String()
	}
	if !e.DocumentID.IsZero() {
		data.DocumentID = e.DocumentID.String()
	}

	h.mu.Lock()
	h.stats.EventsByKind[data.Kind]++
	if sol := e.NewSolution; sol != nil {
		data.Version = sol.Version()
		h.stats.Version = sol.Version()
		h.stats.Projects = sol.ProjectCount()
		h.stats.Documents = countDocuments(sol)
	}
	h.mu.Unlock()

	h.send(MessageTypeWorkspaceChanged, data)
	h.broadcastStats()
}

// OnReferenceChanged handles a change to a referenced file.
func (h *Handler) OnReferenceChanged(path string) {
	h.mu.Lock()
	h.stats.ReferenceChanges++
	h.mu.Unlock()

	h.send(MessageTypeReferenceChanged, ReferenceChangedData{Path: path})
	h.broadcastStats()
}

// Stats returns a copy of the current statistics.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.stats
	out.EventsByKind = make(map[string]int, len(h.stats.EventsByKind))
	for k, v := range h.stats.EventsByKind {
		out.EventsByKind[k] = v
	}
	return out
}

func (h *Handler) broadcastStats() {
	msg, ok := h.message(MessageTypeStats, h.Stats())
	if !ok {
		return
	}
	h.server.SetWelcome(msg)
	h.server.Broadcast(msg)
}

func (h *Handler) send(typ MessageType, data any) {
	if msg, ok := h.message(typ, data); ok {
		h.server.Broadcast(msg)
	}
}

func (h *Handler) message(typ MessageType, data any) (Message, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("failed to marshal %s data: %v", typ, err)
		return Message{}, false
	}
	return Message{Type: typ, Timestamp: time.Now(), Data: raw}, true
}

func countDocuments(sol *workspace.Solution) int {
	n := 0
	for _, p := range sol.Projects() {
		for _, kind := range []workspace.DocumentKind{workspace.KindSource, workspace.KindAdditional, workspace.KindAnalyzerConfig} {
			n += len(p.DocumentIDs(kind))
		}
	}
	return n
}
