package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/events"
	"github.com/phrazzld/companion-api/internal/metrics"
	"github.com/phrazzld/companion-api/internal/platform/flags"
	"github.com/phrazzld/companion-api/internal/platform/logger"
	"github.com/phrazzld/companion-api/internal/store"
)

// Dispatcher-note identity. The kind is what the synchronizer filters
// on, so exactly one companion note can exist per care request.
const (
	noteKindCompanionTasks  = "companion_tasks"
	noteTitleCompanionTasks = "Companion Tasks"
)

// noteTaskLabels are the names dispatchers see in the note metadata.
// Only these four task types are ever surfaced in the note.
var noteTaskLabels = map[domain.TaskType]string{
	domain.TaskTypeIdentificationImage: "ID",
	domain.TaskTypeInsuranceCardImages: "Insurance",
	domain.TaskTypePrimaryCareProvider: "PCP",
	domain.TaskTypeDefaultPharmacy:     "Pharmacy",
}

// noteMetadata is the structured payload attached to the companion
// note.
type noteMetadata struct {
	CompanionTasks         []string `json:"companionTasks"`
	CompleteCompanionTasks []string `json:"completeCompanionTasks"`
}

// NoteSynchronizer keeps the dispatcher-facing note for a care request
// in step with the link's task progress. It enforces the invariant
// that at most one companion note exists per care request.
type NoteSynchronizer struct {
	taskStore store.TaskStore
	gateway   CareRequestGateway
	flags     flags.Provider
	logger    *slog.Logger
}

// NewNoteSynchronizer creates a new NoteSynchronizer.
func NewNoteSynchronizer(
	taskStore store.TaskStore,
	gateway CareRequestGateway,
	flagProvider flags.Provider,
	log *slog.Logger,
) (*NoteSynchronizer, error) {
	if taskStore == nil {
		return nil, errors.New("taskStore cannot be nil")
	}
	if gateway == nil {
		return nil, errors.New("gateway cannot be nil")
	}
	if flagProvider == nil {
		return nil, errors.New("flagProvider cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &NoteSynchronizer{
		taskStore: taskStore,
		gateway:   gateway,
		flags:     flagProvider,
		logger:    log.With(slog.String("component", "note_sync")),
	}, nil
}

// Sync upserts the companion note on the link's care request. Zero
// existing notes get a create, one gets an update, and more than one
// means a previous writer broke the invariant: the sync fails with
// ErrNoteInvariant rather than guessing which note to touch.
func (n *NoteSynchronizer) Sync(ctx context.Context, linkID uuid.UUID, snapshot *domain.CareRequestSnapshot) error {
	log := logger.FromContextOrDefault(ctx, n.logger)

	metadata, err := n.buildNoteMetadata(ctx, linkID)
	if err != nil {
		metrics.NoteSyncs.WithLabelValues("error").Inc()
		return err
	}

	rawMetadata, err := json.Marshal(metadata)
	if err != nil {
		metrics.NoteSyncs.WithLabelValues("error").Inc()
		return fmt.Errorf("marshal note metadata: %w", err)
	}

	existing, err := n.gateway.ListNotes(ctx, snapshot.ID, noteKindCompanionTasks)
	if err != nil {
		metrics.NoteSyncs.WithLabelValues("error").Inc()
		return fmt.Errorf("list notes for care request %d: %w", snapshot.ID, err)
	}

	note := domain.CareRequestNote{
		Kind:       noteKindCompanionTasks,
		Body:       noteTitleCompanionTasks,
		InTimeline: true,
		Metadata:   rawMetadata,
	}

	switch len(existing) {
	case 0:
		log.Debug("no companion note found, creating one",
			slog.Int64("care_request_id", snapshot.ID),
			slog.String("link_id", linkID.String()))
		if err := n.gateway.CreateNote(ctx, snapshot.ID, note); err != nil {
			metrics.NoteSyncs.WithLabelValues("error").Inc()
			return fmt.Errorf("create note for care request %d: %w", snapshot.ID, err)
		}
	case 1:
		log.Debug("updating existing companion note",
			slog.Int64("care_request_id", snapshot.ID),
			slog.Int64("note_id", existing[0].ID))
		note.ID = existing[0].ID
		if err := n.gateway.UpdateNote(ctx, snapshot.ID, note); err != nil {
			metrics.NoteSyncs.WithLabelValues("error").Inc()
			return fmt.Errorf("update note %d for care request %d: %w", note.ID, snapshot.ID, err)
		}
	default:
		log.Error("companion note invariant violated",
			slog.Int64("care_request_id", snapshot.ID),
			slog.Int("notes_found", len(existing)))
		metrics.NoteSyncs.WithLabelValues("conflict").Inc()
		return fmt.Errorf("%w, %d found", ErrNoteInvariant, len(existing))
	}

	metrics.NoteSyncs.WithLabelValues("success").Inc()
	return nil
}

// buildNoteMetadata derives the note payload from the displayed-tasks
// flag and the link's task history. A task counts as complete if any
// entry in its status history is COMPLETED, even when a later change
// moved it back.
func (n *NoteSynchronizer) buildNoteMetadata(ctx context.Context, linkID uuid.UUID) (noteMetadata, error) {
	displayed := n.flags.GetStringList(flags.KeyDisplayedNoteTasks, nil)

	displayedLabels := make(map[domain.TaskType]string, len(displayed))
	metadata := noteMetadata{
		CompanionTasks:         []string{},
		CompleteCompanionTasks: []string{},
	}
	for _, name := range displayed {
		taskType := domain.TaskType(name)
		label, approved := noteTaskLabels[taskType]
		if !approved {
			continue
		}
		if _, seen := displayedLabels[taskType]; seen {
			continue
		}
		displayedLabels[taskType] = label
		metadata.CompanionTasks = append(metadata.CompanionTasks, label)
	}

	tasks, err := n.taskStore.GetByLinkID(ctx, linkID)
	if err != nil {
		return noteMetadata{}, fmt.Errorf("load tasks for link %s: %w", linkID, err)
	}

	for _, task := range tasks {
		label, ok := displayedLabels[task.Type]
		if !ok {
			continue
		}
		for _, status := range task.Statuses {
			if status.Name == domain.TaskStatusCompleted {
				metadata.CompleteCompanionTasks = append(metadata.CompleteCompanionTasks, label)
				break
			}
		}
	}

	return metadata, nil
}

// NoteSyncHandler reacts to task status changes by re-synchronizing
// the companion note while the care team is on route. Failures are
// logged, not surfaced: a note problem must never fail the task update
// that triggered it.
type NoteSyncHandler struct {
	sync    *NoteSynchronizer
	gateway CareRequestGateway
	logger  *slog.Logger
}

var _ events.EventHandler = (*NoteSyncHandler)(nil)

// NewNoteSyncHandler creates a new NoteSyncHandler.
func NewNoteSyncHandler(sync *NoteSynchronizer, gateway CareRequestGateway, log *slog.Logger) (*NoteSyncHandler, error) {
	if sync == nil {
		return nil, errors.New("sync cannot be nil")
	}
	if gateway == nil {
		return nil, errors.New("gateway cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &NoteSyncHandler{
		sync:    sync,
		gateway: gateway,
		logger:  log.With(slog.String("component", "note_sync_handler")),
	}, nil
}

// HandleEvent implements events.EventHandler.
func (h *NoteSyncHandler) HandleEvent(ctx context.Context, event *events.CompanionEvent) error {
	if event.Type != events.TypeTaskStatusChanged {
		return nil
	}

	log := logger.FromContextOrDefault(ctx, h.logger)

	var payload events.TaskStatusChangedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		log.Error("failed to decode task status change event",
			slog.String("event_id", event.ID.String()),
			slog.String("error", err.Error()))
		return nil
	}

	snapshot, err := h.gateway.GetCareRequest(ctx, payload.CareRequestID)
	if err != nil {
		log.Error("failed to load care request for note sync",
			slog.Int64("care_request_id", payload.CareRequestID),
			slog.String("error", err.Error()))
		return nil
	}
	if snapshot.Status != domain.RequestStatusOnRoute {
		return nil
	}

	if err := h.sync.Sync(ctx, payload.LinkID, snapshot); err != nil {
		log.Error("failed to upsert note for care request",
			slog.Int64("care_request_id", payload.CareRequestID),
			slog.String("error", err.Error()))
	}
	return nil
}
