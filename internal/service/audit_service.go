package service

import (
	"context"
	"sync"
	"time"

	"crm/internal/metrics"
	"crm/internal/model"
	"crm/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditEntry is one recorded change. Field, OldValue and NewValue are
// optional.
type AuditEntry struct {
	OrganizationID uuid.UUID
	Entity         string
	EntityID       string
	Action         string
	Field          string
	OldValue       string
	NewValue       string
	UserID         uuid.UUID
}

// AuditSink accepts audit entries. Record never blocks and never fails
// the caller's operation.
type AuditSink interface {
	Record(entry AuditEntry)
}

// AsyncAuditSink buffers entries and writes them from a single goroutine.
// Entries arriving while the buffer is full are dropped and counted.
type AsyncAuditSink struct {
	repo    repository.AuditRepository
	entries chan AuditEntry
	log     *zap.Logger
	metrics *metrics.Recorder

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncAuditSink(repo repository.AuditRepository, buffer int, log *zap.Logger, rec *metrics.Recorder) *AsyncAuditSink {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AsyncAuditSink{
		repo:    repo,
		entries: make(chan AuditEntry, buffer),
		log:     log.Named("audit"),
		metrics: rec,
	}
}

// Start launches the writer goroutine.
func (s *AsyncAuditSink) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for entry := range s.entries {
			s.write(entry)
		}
	}()
}

// Stop rejects further entries and waits until the buffer is drained.
func (s *AsyncAuditSink) Stop() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.entries)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *AsyncAuditSink) Record(entry AuditEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.entries <- entry:
	default:
		s.log.Warn("audit entry dropped: buffer full",
			zap.String("entity", entry.Entity),
			zap.String("entity_id", entry.EntityID),
			zap.String("action", entry.Action))
		s.metrics.SinkDropped("audit")
	}
}

func (s *AsyncAuditSink) write(entry AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := &model.AuditLog{
		OrganizationID: entry.OrganizationID,
		Entity:         entry.Entity,
		EntityID:       entry.EntityID,
		Action:         entry.Action,
		Field:          entry.Field,
		OldValue:       entry.OldValue,
		NewValue:       entry.NewValue,
	}
	if entry.UserID != uuid.Nil {
		userID := entry.UserID
		row.UserID = &userID
	}
	if err := s.repo.Log(ctx, row); err != nil {
		s.log.Warn("failed to write audit entry",
			zap.String("entity", entry.Entity),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

// --- Read side ---

type AuditLogResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Entity    string `json:"entity"`
	EntityID  string `json:"entity_id"`
	Action    string `json:"action"`
	Field     string `json:"field,omitempty"`
	OldValue  string `json:"old_value,omitempty"`
	NewValue  string `json:"new_value,omitempty"`
	CreatedAt string `json:"created_at"`
}

// AuditQuery narrows GetAuditLogs. Empty fields are ignored.
type AuditQuery struct {
	Entity   string
	EntityID string
	Page     int
	Limit    int
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, actor Identity, q AuditQuery) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs returns the actor's organization's entries, newest first.
func (s *auditService) GetAuditLogs(ctx context.Context, actor Identity, q AuditQuery) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		OrganizationID: actor.OrganizationID,
		Entity:         q.Entity,
		EntityID:       q.EntityID,
		Page:           q.Page,
		Limit:          q.Limit,
	})
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:        l.ID.String(),
			UserID:    userID,
			Username:  username,
			Entity:    l.Entity,
			EntityID:  l.EntityID,
			Action:    l.Action,
			Field:     l.Field,
			OldValue:  l.OldValue,
			NewValue:  l.NewValue,
			CreatedAt: l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return res, total, nil
}
