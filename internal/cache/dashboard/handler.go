package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/db"
	"github.com/Mschirtzinger/arkhamdb-sync/internal/cache/pipeline"
)

// StatsSource reports cache row counts. *db.DB implements it.
type StatsSource interface {
	Stats(ctx context.Context) (*db.Stats, error)
}

// SyncStartedData announces a run.
type SyncStartedData struct {
	Kind string `json:"kind"`
}

// SyncCompleteData summarizes a finished run.
type SyncCompleteData struct {
	Kind               string `json:"kind"`
	Target             string `json:"target,omitempty"`
	CardsInserted      int    `json:"cards_inserted"`
	TabooCardsInserted int    `json:"taboo_cards_inserted"`
	NotModified        bool   `json:"not_modified"`
	RulesRefreshed     bool   `json:"rules_refreshed,omitempty"`
	Unresolved         int    `json:"unresolved_taboo_codes,omitempty"`
	Failures           int    `json:"failures,omitempty"`
	DurationMS         int64  `json:"duration_ms"`
}

// SyncFailedData reports a failed run.
type SyncFailedData struct {
	Kind      string `json:"kind"`
	Error     string `json:"error"`
	RetryInMS int64  `json:"retry_in_ms,omitempty"`
}

// Handler turns daemon events into dashboard messages. It implements
// daemon.Sink.
type Handler struct {
	server *Server
	stats  StatsSource
	logger *log.Logger
}

// NewHandler creates a handler broadcasting through server. A nil stats
// source disables stats messages.
func NewHandler(server *Server, stats StatsSource, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{
		server: server,
		stats:  stats,
		logger: logger,
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// SyncStarted handles the start of a pass or rules refresh.
func (h *Handler) SyncStarted(kind string) {
	h.send(MessageTypeSyncStarted, SyncStartedData{Kind: kind})
}

// SyncCompleted handles a finished run and follows it with fresh stats.
func (h *Handler) SyncCompleted(kind string, sum *pipeline.Summary) {
	data := SyncCompleteData{Kind: kind}
	if sum != nil {
		data.Target = string(sum.Target)
		data.NotModified = sum.NotModified()
		data.RulesRefreshed = sum.RulesRefreshed
		data.DurationMS = sum.Duration.Milliseconds()
		if sum.Cards != nil {
			data.CardsInserted = sum.Cards.Inserted
			data.Failures += len(sum.Cards.Failures)
		}
		if sum.Taboos != nil {
			data.TabooCardsInserted = sum.Taboos.Inserted
			data.Unresolved = len(sum.Taboos.Unresolved)
			data.Failures += len(sum.Taboos.Failures)
		}
	}
	h.send(MessageTypeSyncComplete, data)
	h.broadcastStats()
}

// SyncFailed handles a failed run.
func (h *Handler) SyncFailed(kind string, err error, retryIn time.Duration) {
	h.send(MessageTypeSyncFailed, SyncFailedData{
		Kind:      kind,
		Error:     err.Error(),
		RetryInMS: retryIn.Milliseconds(),
	})
}

func (h *Handler) send(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

func (h *Handler) broadcastStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if msg, ok := h.statsMessage(ctx); ok {
		h.server.Broadcast(msg)
	}
}

func (h *Handler) statsMessage(ctx context.Context) (Message, bool) {
	if h.stats == nil {
		return Message{}, false
	}
	stats, err := h.stats.Stats(ctx)
	if err != nil {
		h.logger.Printf("Failed to read stats: %v", err)
		return Message{}, false
	}
	dataJSON, err := json.Marshal(stats)
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return Message{}, false
	}
	return Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	}, true
}
