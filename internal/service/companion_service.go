package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/companion-api/internal/config"
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/domain/taskstatus"
	"github.com/phrazzld/companion-api/internal/events"
	"github.com/phrazzld/companion-api/internal/metrics"
	"github.com/phrazzld/companion-api/internal/platform/flags"
	"github.com/phrazzld/companion-api/internal/platform/logger"
	"github.com/phrazzld/companion-api/internal/store"
)

// Message types passed to the SMS flow so it can pick the right script.
const (
	messageTypeLinkCreated = "companion_link"
	messageTypeOnRoute     = "on_route"
)

// CompanionServiceError is a custom error type for companion service errors.
type CompanionServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for CompanionServiceError.
func (e *CompanionServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("companion service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("companion service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *CompanionServiceError) Unwrap() error {
	return e.Err
}

// NewCompanionServiceError creates a new CompanionServiceError.
func NewCompanionServiceError(operation, message string, err error) *CompanionServiceError {
	return &CompanionServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// CompanionInfo is the data the companion experience needs to render.
type CompanionInfo struct {
	LinkID         uuid.UUID
	CareRequestID  int64
	RequestStatus  domain.RequestStatus
	ChiefComplaint string
	Providers      []domain.SnapshotProvider
	Tasks          []*domain.Task
}

// CareTeamEta is the current arrival-estimate window for a visit.
type CareTeamEta struct {
	StartsAt time.Time
	EndsAt   time.Time
}

// CompanionService manages the companion link lifecycle and task
// operations.
type CompanionService struct {
	db        *sql.DB
	linkStore store.LinkStore
	taskStore store.TaskStore
	gateway   CareRequestGateway
	sms       SmsSender
	scheduler ReminderScheduler
	noteSync  *NoteSynchronizer
	flags     flags.Provider
	emitter   events.EventEmitter
	cfg       config.CompanionConfig
	flowSID   string
	logger    *slog.Logger
}

// NewCompanionService creates a new CompanionService.
// It returns an error if any of the required dependencies are nil.
func NewCompanionService(
	db *sql.DB,
	linkStore store.LinkStore,
	taskStore store.TaskStore,
	gateway CareRequestGateway,
	sms SmsSender,
	scheduler ReminderScheduler,
	noteSync *NoteSynchronizer,
	flagProvider flags.Provider,
	emitter events.EventEmitter,
	cfg config.CompanionConfig,
	flowSID string,
	log *slog.Logger,
) (*CompanionService, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if linkStore == nil {
		return nil, errors.New("linkStore cannot be nil")
	}
	if taskStore == nil {
		return nil, errors.New("taskStore cannot be nil")
	}
	if gateway == nil {
		return nil, errors.New("gateway cannot be nil")
	}
	if sms == nil {
		return nil, errors.New("sms cannot be nil")
	}
	if scheduler == nil {
		return nil, errors.New("scheduler cannot be nil")
	}
	if noteSync == nil {
		return nil, errors.New("noteSync cannot be nil")
	}
	if flagProvider == nil {
		return nil, errors.New("flagProvider cannot be nil")
	}
	if emitter == nil {
		return nil, errors.New("emitter cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &CompanionService{
		db:        db,
		linkStore: linkStore,
		taskStore: taskStore,
		gateway:   gateway,
		sms:       sms,
		scheduler: scheduler,
		noteSync:  noteSync,
		flags:     flagProvider,
		emitter:   emitter,
		cfg:       cfg,
		flowSID:   flowSID,
		logger:    log.With(slog.String("component", "companion_service")),
	}, nil
}

// CreateOrGetLink returns the id of the companion link for a care
// request, creating the link with its full task list if it does not
// exist yet. The call is idempotent: repeated invocations return the
// same link id and never duplicate tasks or the first notification.
//
// Each task's initial status comes from a collaborator lookup that is
// individually fault-tolerant: a failing check degrades to NOT_STARTED
// instead of aborting link creation. Only the persistence write itself
// can fail the call.
func (s *CompanionService) CreateOrGetLink(ctx context.Context, careRequestID int64) (uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	existing, err := s.linkStore.GetByCareRequestID(ctx, careRequestID)
	if err == nil {
		log.Debug("companion link already exists for care request",
			slog.Int64("care_request_id", careRequestID),
			slog.String("link_id", existing.ID.String()))
		return existing.ID, nil
	}
	if !errors.Is(err, store.ErrLinkNotFound) {
		return uuid.Nil, NewCompanionServiceError("create_link", "failed to look up existing link", err)
	}

	log.Debug("creating companion link for care request",
		slog.Int64("care_request_id", careRequestID))

	link, err := domain.NewCompanionLink(careRequestID)
	if err != nil {
		return uuid.Nil, NewCompanionServiceError("create_link", "invalid care request id", err)
	}

	tasks, err := s.buildInitialTasks(ctx, link)
	if err != nil {
		return uuid.Nil, NewCompanionServiceError("create_link", "failed to build initial tasks", err)
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.linkStore.WithTx(tx).Create(ctx, link); err != nil {
			return err
		}
		return s.taskStore.WithTx(tx).CreateBatch(ctx, tasks)
	})
	if err != nil {
		// A concurrent creation between our existence check and the
		// insert loses the race; return the winner's link.
		if errors.Is(err, store.ErrLinkExists) {
			winner, lookupErr := s.linkStore.GetByCareRequestID(ctx, careRequestID)
			if lookupErr != nil {
				return uuid.Nil, NewCompanionServiceError("create_link", "failed to re-read link after conflict", lookupErr)
			}
			return winner.ID, nil
		}
		return uuid.Nil, NewCompanionServiceError("create_link", "failed to persist link", err)
	}

	metrics.LinksCreated.Inc()

	if event, eventErr := events.NewCompanionEvent(events.TypeLinkCreated, events.LinkCreatedPayload{
		LinkID:        link.ID,
		CareRequestID: careRequestID,
	}); eventErr == nil {
		if emitErr := s.emitter.EmitEvent(ctx, event); emitErr != nil {
			log.Warn("link created event emission failed",
				slog.String("error", emitErr.Error()))
		}
	}

	if err := s.SendCreatedNotification(ctx, careRequestID, link.ID); err != nil {
		return uuid.Nil, err
	}

	if s.flags.GetBool(flags.KeyRunningLateSMS, false) {
		if err := s.scheduler.Enqueue(ctx, careRequestID); err != nil {
			log.Error("failed to enqueue reminder on link creation",
				slog.Int64("care_request_id", careRequestID),
				slog.String("error", err.Error()))
		}
	}

	return link.ID, nil
}

// buildInitialTasks evaluates every task type's initial status. Each
// lookup degrades to the type's NOT_STARTED default on failure.
func (s *CompanionService) buildInitialTasks(ctx context.Context, link *domain.CompanionLink) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	careRequestID := link.CareRequestID

	now := time.Now().UTC()
	newTask := func(taskType domain.TaskType, metadata domain.TaskMetadata, status domain.TaskStatusName) (*domain.Task, error) {
		task, err := domain.NewTask(link.ID, taskType, metadata)
		if err != nil {
			return nil, err
		}
		task.Statuses = []domain.TaskStatus{{TaskID: task.ID, Name: status, CreatedAt: now}}
		return task, nil
	}

	hasIdentification, err := s.gateway.HasIdentificationImage(ctx, careRequestID)
	if err != nil {
		log.Warn("identification lookup failed, defaulting to not started",
			slog.Int64("care_request_id", careRequestID),
			slog.String("error", err.Error()))
		hasIdentification = false
	}

	insuranceMeta, insuranceStatus := s.initialInsuranceState(ctx, careRequestID)

	hasPharmacy, err := s.gateway.HasDefaultPharmacy(ctx, careRequestID)
	if err != nil {
		log.Warn("pharmacy lookup failed, defaulting to not started",
			slog.Int64("care_request_id", careRequestID),
			slog.String("error", err.Error()))
		hasPharmacy = false
	}

	hasMedicationConsent, err := s.gateway.HasMedicationHistoryConsent(ctx, careRequestID)
	if err != nil {
		log.Warn("medication consent lookup failed, defaulting to not started",
			slog.Int64("care_request_id", careRequestID),
			slog.String("error", err.Error()))
		hasMedicationConsent = false
	}

	type seed struct {
		taskType domain.TaskType
		metadata domain.TaskMetadata
		status   domain.TaskStatusName
	}
	seeds := []seed{
		{domain.TaskTypeIdentificationImage, nil, taskstatus.Identification(hasIdentification)},
		{domain.TaskTypeInsuranceCardImages, insuranceMeta, insuranceStatus},
		{domain.TaskTypeDefaultPharmacy, nil, taskstatus.Pharmacy(hasPharmacy)},
		{domain.TaskTypePrimaryCareProvider, (*domain.PCPMetadata)(nil), domain.TaskStatusNotStarted},
		{domain.TaskTypeMedicationConsent, nil, taskstatus.MedicationConsent(hasMedicationConsent)},
		{domain.TaskTypeConsents, domain.ConsentsMetadata{CompletedDefinitionIDs: []int{}}, domain.TaskStatusNotStarted},
	}

	tasks := make([]*domain.Task, 0, len(seeds))
	for _, sd := range seeds {
		task, err := newTask(sd.taskType, sd.metadata, sd.status)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// initialInsuranceState derives the insurance task's starting metadata
// and status from the insurances currently on file.
func (s *CompanionService) initialInsuranceState(ctx context.Context, careRequestID int64) (domain.InsuranceMetadata, domain.TaskStatusName) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	meta := domain.InsuranceMetadata{Statuses: map[domain.InsurancePriority]domain.TaskStatusName{}}

	records, err := s.gateway.ListInsurances(ctx, careRequestID)
	if err != nil {
		log.Warn("insurance lookup failed, defaulting to not started",
			slog.Int64("care_request_id", careRequestID),
			slog.String("error", err.Error()))
		meta.Statuses[domain.InsurancePriorityPrimary] = domain.TaskStatusNotStarted
		return meta, domain.TaskStatusNotStarted
	}

	for _, record := range records {
		priority := domain.InsurancePriority(record.Priority)
		if priority != domain.InsurancePriorityPrimary && priority != domain.InsurancePrioritySecondary {
			continue
		}
		if record.HasImages {
			meta.Statuses[priority] = domain.TaskStatusCompleted
		} else {
			meta.Statuses[priority] = domain.TaskStatusNotStarted
		}
	}

	return meta, taskstatus.InsuranceOverall(meta.Statuses)
}

// SendCreatedNotification sends the initial companion link SMS, gated
// by the link's createdNotificationSent flag so it fires at most once.
func (s *CompanionService) SendCreatedNotification(ctx context.Context, careRequestID int64, linkID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	link, err := s.linkStore.GetByID(ctx, linkID)
	if err != nil {
		return NewCompanionServiceError("created_notification", "failed to load link", err)
	}
	if link.CreatedNotificationSent {
		log.Debug("created notification already sent",
			slog.String("link_id", linkID.String()))
		return nil
	}

	snapshot, err := s.gateway.GetCareRequest(ctx, careRequestID)
	if err != nil {
		return NewCompanionServiceError("created_notification", "failed to load care request", err)
	}

	params := map[string]string{
		"url":         s.buildLinkURL(linkID),
		"status":      string(domain.RequestStatusAccepted),
		"messageType": messageTypeLinkCreated,
	}
	if eta := snapshot.LatestEtaRange(); eta != nil {
		// Friday, September 22
		params["date"] = eta.StartsAt.Format("Monday, January 2")
	} else {
		log.Error("sending created notification without an appointment window",
			slog.Int64("care_request_id", careRequestID))
	}

	if err := s.sms.ExecuteFlow(ctx, s.flowSID, snapshot.Patient.MobileNumber, params); err != nil {
		return NewCompanionServiceError("created_notification", "failed to execute sms flow", err)
	}
	s.emitSmsSent(ctx, careRequestID, "link_created")

	link.CreatedNotificationSent = true
	if err := s.linkStore.Update(ctx, link); err != nil {
		return NewCompanionServiceError("created_notification", "failed to record notification flag", err)
	}

	log.Debug("created notification sent",
		slog.String("link_id", linkID.String()),
		slog.Int64("care_request_id", careRequestID))
	return nil
}

// ResolveActiveLink loads a link by id and verifies it is still
// serviceable. Returns store.ErrLinkNotFound for unknown ids,
// ErrLinkGone once the visit is over or the link has aged out, and
// ErrLinkBlocked for blocked links.
func (s *CompanionService) ResolveActiveLink(ctx context.Context, linkID uuid.UUID) (*domain.CompanionLink, *domain.CareRequestSnapshot, error) {
	link, err := s.linkStore.GetByID(ctx, linkID)
	if err != nil {
		return nil, nil, err
	}
	if link.IsBlocked {
		return nil, nil, ErrLinkBlocked
	}

	snapshot, err := s.gateway.GetCareRequest(ctx, link.CareRequestID)
	if err != nil {
		if errors.Is(err, domain.ErrCareRequestNotFound) {
			return nil, nil, ErrLinkGone
		}
		return nil, nil, NewCompanionServiceError("resolve_link", "failed to load care request", err)
	}

	expiry := time.Duration(s.cfg.LinkExpiryHours) * time.Hour
	switch snapshot.Status {
	case domain.RequestStatusComplete, domain.RequestStatusArchived:
		if time.Since(link.UpdatedAt) > expiry {
			return nil, nil, ErrLinkGone
		}
	}

	return link, snapshot, nil
}

// Authenticate answers the link's identity challenge with the
// patient's date of birth. On a mismatch the failed attempt is
// recorded and the link is blocked once the allowed attempts are used up.
func (s *CompanionService) Authenticate(ctx context.Context, linkID uuid.UUID, dateOfBirth string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	link, snapshot, err := s.ResolveActiveLink(ctx, linkID)
	if err != nil {
		return err
	}

	if snapshot.Patient.DateOfBirth == "" || snapshot.Patient.DateOfBirth != dateOfBirth {
		if regErr := s.RegisterInvalidAuth(ctx, link); regErr != nil {
			log.Error("failed to record invalid auth attempt",
				slog.String("link_id", linkID.String()),
				slog.String("error", regErr.Error()))
		}
		return ErrAuthFailed
	}

	// A successful challenge resets the attempt counter.
	if link.InvalidAuthCount > 0 {
		link.InvalidAuthCount = 0
		link.LastInvalidAuth = nil
		if err := s.linkStore.Update(ctx, link); err != nil {
			log.Error("failed to reset invalid auth count",
				slog.String("link_id", linkID.String()),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

// RegisterInvalidAuth increments the link's failed-attempt counter and
// blocks the link once the configured attempt limit is reached.
func (s *CompanionService) RegisterInvalidAuth(ctx context.Context, link *domain.CompanionLink) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	link.InvalidAuthCount++
	link.LastInvalidAuth = &now
	if link.InvalidAuthCount >= s.cfg.MaxAuthAttempts {
		link.IsBlocked = true
		log.Warn("companion link blocked after repeated failed auth",
			slog.String("link_id", link.ID.String()),
			slog.Int("attempts", link.InvalidAuthCount))
	}

	return s.linkStore.Update(ctx, link)
}

// GetCompanionInfo assembles everything the companion experience needs
// to render for a link.
func (s *CompanionService) GetCompanionInfo(ctx context.Context, linkID uuid.UUID) (*CompanionInfo, error) {
	link, snapshot, err := s.ResolveActiveLink(ctx, linkID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.taskStore.GetByLinkID(ctx, link.ID)
	if err != nil {
		return nil, NewCompanionServiceError("companion_info", "failed to load tasks", err)
	}

	if !s.flags.GetBool(flags.KeyConsentsModule, false) {
		tasks = filterOutTaskType(tasks, domain.TaskTypeConsents)
	} else {
		tasks = filterOutTaskType(tasks, domain.TaskTypeMedicationConsent)
	}

	return &CompanionInfo{
		LinkID:         link.ID,
		CareRequestID:  link.CareRequestID,
		RequestStatus:  snapshot.Status,
		ChiefComplaint: snapshot.ChiefComplaint,
		Providers:      snapshot.Providers,
		Tasks:          tasks,
	}, nil
}

// GetCareTeamEta returns the latest arrival-estimate window for the
// link's care request. Returns store.ErrNotFound when no window exists.
func (s *CompanionService) GetCareTeamEta(ctx context.Context, linkID uuid.UUID) (*CareTeamEta, error) {
	_, snapshot, err := s.ResolveActiveLink(ctx, linkID)
	if err != nil {
		return nil, err
	}

	eta := snapshot.LatestEtaRange()
	if eta == nil {
		return nil, fmt.Errorf("%w: eta range", store.ErrNotFound)
	}
	return &CareTeamEta{StartsAt: eta.StartsAt, EndsAt: eta.EndsAt}, nil
}

// UpdateTaskStatus appends a status entry if the new status differs
// from the task's current active status, then emits the change for
// downstream reactions (note sync, analytics).
func (s *CompanionService) UpdateTaskStatus(ctx context.Context, task *domain.Task, newStatus domain.TaskStatusName) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if task.ActiveStatus().Name == newStatus {
		log.Debug("task already in target status",
			slog.String("task_id", task.ID.String()),
			slog.String("status", string(newStatus)))
		return nil
	}

	appended, err := s.taskStore.AppendStatus(ctx, task.ID, newStatus)
	if err != nil {
		return NewCompanionServiceError("update_task_status", "failed to append status", err)
	}
	task.Statuses = append(task.Statuses, *appended)

	metrics.TaskStatusChanges.WithLabelValues(string(task.Type), string(newStatus)).Inc()

	link, err := s.linkStore.GetByID(ctx, task.LinkID)
	if err != nil {
		return NewCompanionServiceError("update_task_status", "failed to load link for event", err)
	}

	event, err := events.NewCompanionEvent(events.TypeTaskStatusChanged, events.TaskStatusChangedPayload{
		LinkID:        task.LinkID,
		CareRequestID: link.CareRequestID,
		TaskType:      string(task.Type),
		Status:        string(newStatus),
	})
	if err != nil {
		return NewCompanionServiceError("update_task_status", "failed to build event", err)
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		// The status append is already committed; the emitter's
		// handlers surface their own failures.
		return NewCompanionServiceError("update_task_status", "event handling failed", err)
	}

	return nil
}

// MarkIdentificationUploaded completes the identification task after
// the patient uploads their id image.
func (s *CompanionService) MarkIdentificationUploaded(ctx context.Context, linkID uuid.UUID) error {
	task, err := s.taskStore.GetByLinkAndType(ctx, linkID, domain.TaskTypeIdentificationImage)
	if err != nil {
		return err
	}
	return s.UpdateTaskStatus(ctx, task, domain.TaskStatusCompleted)
}

// ApplyInsuranceImageUploaded marks one insurance slot complete and
// re-derives the insurance task's overall status.
func (s *CompanionService) ApplyInsuranceImageUploaded(ctx context.Context, linkID uuid.UUID, priority domain.InsurancePriority) error {
	task, err := s.taskStore.GetByLinkAndType(ctx, linkID, domain.TaskTypeInsuranceCardImages)
	if err != nil {
		return err
	}

	meta, ok := task.Metadata.(domain.InsuranceMetadata)
	if !ok {
		return fmt.Errorf("%w: insurance task %s", domain.ErrMetadataMismatch, task.ID)
	}

	updated, overall := taskstatus.ApplyInsuranceUpload(meta, priority)
	if err := s.taskStore.UpdateMetadata(ctx, task.ID, updated); err != nil {
		return NewCompanionServiceError("insurance_upload", "failed to persist metadata", err)
	}
	task.Metadata = updated

	return s.UpdateTaskStatus(ctx, task, overall)
}

// MarkPharmacySet records the patient's default pharmacy with the
// dispatch system and completes the pharmacy task.
func (s *CompanionService) MarkPharmacySet(ctx context.Context, linkID uuid.UUID, clinicalProviderID string) error {
	task, err := s.taskStore.GetByLinkAndType(ctx, linkID, domain.TaskTypeDefaultPharmacy)
	if err != nil {
		return err
	}

	link, err := s.linkStore.GetByID(ctx, linkID)
	if err != nil {
		return err
	}
	if err := s.gateway.SetDefaultPharmacy(ctx, link.CareRequestID, clinicalProviderID); err != nil {
		return NewCompanionServiceError("pharmacy_set", "failed to record pharmacy", err)
	}

	return s.UpdateTaskStatus(ctx, task, domain.TaskStatusCompleted)
}

// ApplySocialHistoryAnswer records one PCP social-history answer and
// re-derives the PCP task status from the funnel.
func (s *CompanionService) ApplySocialHistoryAnswer(ctx context.Context, linkID uuid.UUID, questionTag string, answer bool) error {
	task, err := s.taskStore.GetByLinkAndType(ctx, linkID, domain.TaskTypePrimaryCareProvider)
	if err != nil {
		return err
	}

	meta, _ := task.Metadata.(*domain.PCPMetadata)
	updated, status, err := taskstatus.ApplyPCPAnswer(meta, questionTag, answer)
	if err != nil {
		return err
	}

	if err := s.taskStore.UpdateMetadata(ctx, task.ID, updated); err != nil {
		return NewCompanionServiceError("social_history", "failed to persist metadata", err)
	}
	task.Metadata = updated

	return s.UpdateTaskStatus(ctx, task, status)
}

// MarkPrimaryCareProviderSet records the patient's chosen provider
// with the dispatch system and re-derives the PCP task status.
func (s *CompanionService) MarkPrimaryCareProviderSet(ctx context.Context, linkID uuid.UUID, clinicalProviderID string) error {
	task, err := s.taskStore.GetByLinkAndType(ctx, linkID, domain.TaskTypePrimaryCareProvider)
	if err != nil {
		return err
	}

	link, err := s.linkStore.GetByID(ctx, linkID)
	if err != nil {
		return err
	}
	if err := s.gateway.SetPrimaryCareProvider(ctx, link.CareRequestID, clinicalProviderID); err != nil {
		return NewCompanionServiceError("pcp_set", "failed to record provider", err)
	}

	meta, _ := task.Metadata.(*domain.PCPMetadata)
	updated, status := taskstatus.SetClinicalProvider(meta, clinicalProviderID)
	if err := s.taskStore.UpdateMetadata(ctx, task.ID, updated); err != nil {
		return NewCompanionServiceError("pcp_set", "failed to persist metadata", err)
	}
	task.Metadata = updated

	return s.UpdateTaskStatus(ctx, task, status)
}

// MarkMedicationConsentApplied records the medication history
// authority consent and completes its task.
func (s *CompanionService) MarkMedicationConsentApplied(ctx context.Context, linkID uuid.UUID) error {
	task, err := s.taskStore.GetByLinkAndType(ctx, linkID, domain.TaskTypeMedicationConsent)
	if err != nil {
		return err
	}

	link, err := s.linkStore.GetByID(ctx, linkID)
	if err != nil {
		return err
	}
	if err := s.gateway.GrantMedicationHistoryConsent(ctx, link.CareRequestID); err != nil {
		return NewCompanionServiceError("medication_consent", "failed to record consent", err)
	}

	return s.UpdateTaskStatus(ctx, task, domain.TaskStatusCompleted)
}

// ApplyConsentCompleted records one completed consent definition and
// completes the consents task once every required definition is done.
func (s *CompanionService) ApplyConsentCompleted(ctx context.Context, linkID uuid.UUID, definitionID int) error {
	task, err := s.taskStore.GetByLinkAndType(ctx, linkID, domain.TaskTypeConsents)
	if err != nil {
		return err
	}

	meta, ok := task.Metadata.(domain.ConsentsMetadata)
	if !ok {
		return fmt.Errorf("%w: consents task %s", domain.ErrMetadataMismatch, task.ID)
	}

	completed := false
	for _, id := range meta.CompletedDefinitionIDs {
		if id == definitionID {
			completed = true
			break
		}
	}
	if !completed {
		meta.CompletedDefinitionIDs = append(meta.CompletedDefinitionIDs, definitionID)
		if err := s.taskStore.UpdateMetadata(ctx, task.ID, meta); err != nil {
			return NewCompanionServiceError("consent_completed", "failed to persist metadata", err)
		}
		task.Metadata = meta
	}

	link, err := s.linkStore.GetByID(ctx, linkID)
	if err != nil {
		return err
	}

	allComplete, err := s.allRequiredConsentsComplete(ctx, link.CareRequestID, meta)
	if err != nil {
		return err
	}

	status := taskstatus.ConsentsCompletion(allComplete)
	if !allComplete && len(meta.CompletedDefinitionIDs) > 0 {
		status = domain.TaskStatusStarted
	}
	return s.UpdateTaskStatus(ctx, task, status)
}

func (s *CompanionService) allRequiredConsentsComplete(ctx context.Context, careRequestID int64, meta domain.ConsentsMetadata) (bool, error) {
	definitions, err := s.gateway.ListConsentDefinitions(ctx, careRequestID)
	if err != nil {
		return false, NewCompanionServiceError("consent_completed", "failed to list definitions", err)
	}

	done := make(map[int64]bool, len(meta.CompletedDefinitionIDs))
	for _, id := range meta.CompletedDefinitionIDs {
		done[int64(id)] = true
	}
	for _, def := range definitions {
		if def.Required && !done[def.ID] {
			return false, nil
		}
	}
	return true, nil
}

// OnCareRequestOnScene records task-completion metrics for the visit.
// Failures are swallowed and logged; arrival handling must never fail
// because telemetry did.
func (s *CompanionService) OnCareRequestOnScene(ctx context.Context, careRequestID int64) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	link, err := s.linkStore.GetByCareRequestID(ctx, careRequestID)
	if err != nil {
		log.Error("unable to log task completion metrics",
			slog.Int64("care_request_id", careRequestID),
			slog.String("error", err.Error()))
		s.emitArrivalCompletion(ctx, events.TaskCompletionOnArrivalPayload{CareRequestID: careRequestID})
		return
	}

	tasks, err := s.taskStore.GetByLinkID(ctx, link.ID)
	if err != nil {
		log.Error("unable to log task completion metrics",
			slog.Int64("care_request_id", careRequestID),
			slog.String("error", err.Error()))
		s.emitArrivalCompletion(ctx, events.TaskCompletionOnArrivalPayload{CareRequestID: careRequestID})
		return
	}

	completed := 0
	for _, task := range tasks {
		if task.IsCompleted() {
			completed++
		}
	}
	metrics.TasksCompletedAtOnScene.Observe(float64(completed))
	s.emitArrivalCompletion(ctx, events.TaskCompletionOnArrivalPayload{
		CareRequestID: careRequestID,
		Completed:     completed,
		Total:         len(tasks),
		Available:     true,
	})

	log.Info("task completion at on-scene",
		slog.Int64("care_request_id", careRequestID),
		slog.Int("completed", completed),
		slog.Int("total", len(tasks)))
}

// emitSmsSent publishes the sms_sent analytics event. Emission
// problems are logged only.
func (s *CompanionService) emitSmsSent(ctx context.Context, careRequestID int64, trigger string) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	event, err := events.NewCompanionEvent(events.TypeSmsSent, events.SmsSentPayload{
		CareRequestID: careRequestID,
		Trigger:       trigger,
	})
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		log.Warn("sms sent event emission failed",
			slog.Int64("care_request_id", careRequestID),
			slog.String("error", err.Error()))
	}
}

func (s *CompanionService) emitArrivalCompletion(ctx context.Context, payload events.TaskCompletionOnArrivalPayload) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	event, err := events.NewCompanionEvent(events.TypeTaskCompletionOnArrival, payload)
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		log.Warn("arrival completion event emission failed",
			slog.Int64("care_request_id", payload.CareRequestID),
			slog.String("error", err.Error()))
	}
}

// OnCareRequestOnRoute handles the care team's departure: cancel the
// running-late reminder, send the on-route SMS, and synchronize the
// dispatcher note. SMS and note failures surface to the caller so the
// webhook can be retried.
func (s *CompanionService) OnCareRequestOnRoute(ctx context.Context, careRequestID int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := s.scheduler.Cancel(ctx, careRequestID); err != nil {
		log.Error("failed to cancel reminder during on-route handling",
			slog.Int64("care_request_id", careRequestID),
			slog.String("error", err.Error()))
	}

	if err := s.sendOnRouteNotification(ctx, careRequestID); err != nil {
		return err
	}

	link, err := s.linkStore.GetByCareRequestID(ctx, careRequestID)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			log.Debug("no companion link for care request, skipping note",
				slog.Int64("care_request_id", careRequestID))
			return nil
		}
		return NewCompanionServiceError("on_route", "failed to load link for note sync", err)
	}

	snapshot, err := s.gateway.GetCareRequest(ctx, careRequestID)
	if err != nil {
		return NewCompanionServiceError("on_route", "failed to load care request", err)
	}

	if err := s.noteSync.Sync(ctx, link.ID, snapshot); err != nil {
		return err
	}
	return nil
}

// sendOnRouteNotification sends the on-route SMS at most once per
// link, only with the patient's consent to be contacted.
func (s *CompanionService) sendOnRouteNotification(ctx context.Context, careRequestID int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	link, err := s.linkStore.GetByCareRequestID(ctx, careRequestID)
	if err != nil {
		return NewCompanionServiceError("on_route", "could not find an existing link for that care request", err)
	}
	if link.OnRouteNotificationSent {
		log.Debug("on-route notification already sent",
			slog.String("link_id", link.ID.String()))
		return nil
	}

	snapshot, err := s.gateway.GetCareRequest(ctx, careRequestID)
	if err != nil {
		return NewCompanionServiceError("on_route", "failed to load care request", err)
	}
	if !snapshot.Patient.VoicemailConsent {
		log.Debug("patient has not consented to contact",
			slog.String("link_id", link.ID.String()))
		return nil
	}

	tasks, err := s.taskStore.GetByLinkID(ctx, link.ID)
	if err != nil {
		return NewCompanionServiceError("on_route", "failed to load tasks", err)
	}

	params := map[string]string{
		"status":          string(domain.RequestStatusOnRoute),
		"url":             s.buildLinkURL(link.ID),
		"pendingTaskText": s.pendingTaskText(tasks),
		"messageType":     messageTypeOnRoute,
	}
	if err := s.sms.ExecuteFlow(ctx, s.flowSID, snapshot.Patient.MobileNumber, params); err != nil {
		return NewCompanionServiceError("on_route", "failed to execute sms flow", err)
	}
	s.emitSmsSent(ctx, careRequestID, "on_route")

	link.OnRouteNotificationSent = true
	if err := s.linkStore.Update(ctx, link); err != nil {
		return NewCompanionServiceError("on_route", "failed to record notification flag", err)
	}

	log.Debug("on-route notification sent",
		slog.String("link_id", link.ID.String()))
	return nil
}

func (s *CompanionService) buildLinkURL(linkID uuid.UUID) string {
	return s.cfg.BaseURL + "/" + linkID.String()
}

func filterOutTaskType(tasks []*domain.Task, taskType domain.TaskType) []*domain.Task {
	filtered := tasks[:0]
	for _, task := range tasks {
		if task.Type != taskType {
			filtered = append(filtered, task)
		}
	}
	return filtered
}
