package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/brconnect/leadintake/internal/models"
)

// DefaultNotifyRetryDelay is the fixed wait before the single completion
// notice retry.
const DefaultNotifyRetryDelay = 30 * time.Second

// LeadStore is the external record store consumed by the orchestrator.
// Create is not idempotent on the collaborator side; the orchestrator's
// one-create-per-session gate is the only duplicate protection.
type LeadStore interface {
	CreateLead(lead models.Lead) (string, error)
	UpdateLead(id string, upd models.LeadUpdate) error
}

// Notifier sends the completion notice for a finished lead. An ordinary
// negative outcome returns (false, nil); transport failures return an error
// and are treated the same way for retry purposes.
type Notifier interface {
	SendCompletionNotice(ctx context.Context, recordID string) (bool, error)
}

// Orchestrator decides when to create, update and finalize the persisted
// lead as the conversation progresses. All of its work is fire-and-forget
// with respect to the conversation: failures surface as notices and never
// block the next prompt.
type Orchestrator struct {
	store      LeadStore
	notifier   Notifier
	timer      Timer
	retryDelay time.Duration
}

// NewOrchestrator creates an orchestrator. A non-positive retryDelay falls
// back to DefaultNotifyRetryDelay.
func NewOrchestrator(store LeadStore, notifier Notifier, timer Timer, retryDelay time.Duration) *Orchestrator {
	if retryDelay <= 0 {
		retryDelay = DefaultNotifyRetryDelay
	}
	return &Orchestrator{store: store, notifier: notifier, timer: timer, retryDelay: retryDelay}
}

// HandleCommit runs the persistence step for one committed answer. committed
// is the step that just got answered, next the step the session advanced to,
// and data the full collected snapshot after the commit.
func (o *Orchestrator) HandleCommit(ctx context.Context, sess *Session, committed, next models.Step, data models.CollectedData) {
	slog.Debug("Orchestrator.HandleCommit: dispatching", "sessionID", sess.ID(), "committed", committed, "next", next)

	// The record is created exactly once, at the transition out of the phone
	// step, when name and phone are both known.
	if committed == models.StepPhone {
		if sess.RecordID() != "" {
			slog.Debug("Orchestrator.HandleCommit: record already exists, skipping create", "sessionID", sess.ID())
			return
		}
		o.createRecord(sess, data)
		return
	}

	recordID := sess.RecordID()
	if recordID == "" {
		// Normal before the phone step; after it, a failed create already
		// produced a notice.
		slog.Debug("Orchestrator.HandleCommit: no record yet, skipping update", "sessionID", sess.ID(), "committed", committed)
		return
	}

	if next == models.StepDone {
		o.finalizeAndNotify(sess, recordID, data)
		return
	}

	status := models.LeadStatusInProgress
	if err := o.store.UpdateLead(recordID, leadUpdateFrom(data, status)); err != nil {
		slog.Error("Orchestrator.HandleCommit: update failed", "sessionID", sess.ID(), "recordID", recordID, "error", err)
		sess.AddNotice(NoticePersistence, noticeTextPersistence)
	}
}

func (o *Orchestrator) createRecord(sess *Session, data models.CollectedData) {
	lead := models.Lead{
		Name:   data.Name,
		Phone:  data.Phone,
		Email:  PlaceholderContactKey(data.Phone),
		Status: models.LeadStatusInProgress,
	}
	id, err := o.store.CreateLead(lead)
	if err != nil {
		slog.Error("Orchestrator.createRecord: create failed", "sessionID", sess.ID(), "error", err)
		sess.AddNotice(NoticePersistence, noticeTextPersistence)
		return
	}
	sess.SetRecordID(id)
	slog.Info("Orchestrator.createRecord: lead created", "sessionID", sess.ID(), "recordID", id)
}

// finalizeAndNotify issues the final complete update and the completion
// notice, retrying the notice exactly once after the fixed delay. The retry
// captures the record id by value so it stays correct if the session is torn
// down in the interim.
func (o *Orchestrator) finalizeAndNotify(sess *Session, recordID string, data models.CollectedData) {
	status := models.LeadStatusComplete
	if err := o.store.UpdateLead(recordID, leadUpdateFrom(data, status)); err != nil {
		slog.Error("Orchestrator.finalizeAndNotify: final update failed", "recordID", recordID, "error", err)
		sess.AddNotice(NoticePersistence, noticeTextPersistence)
	}

	if o.sendNotice(recordID) {
		return
	}

	slog.Warn("Orchestrator.finalizeAndNotify: notice failed, scheduling single retry", "recordID", recordID, "delay", o.retryDelay)
	retryID := recordID
	if _, err := o.timer.ScheduleAfter(o.retryDelay, func() {
		if o.sendNotice(retryID) {
			return
		}
		slog.Error("Orchestrator.finalizeAndNotify: retry failed, giving up", "recordID", retryID)
		sess.AddNotice(NoticeNotification, noticeTextNotification)
	}); err != nil {
		slog.Error("Orchestrator.finalizeAndNotify: could not schedule retry", "recordID", recordID, "error", err)
		sess.AddNotice(NoticeNotification, noticeTextNotification)
	}
}

func (o *Orchestrator) sendNotice(recordID string) bool {
	ok, err := o.notifier.SendCompletionNotice(context.Background(), recordID)
	if err != nil {
		slog.Error("Orchestrator.sendNotice: transport failure", "recordID", recordID, "error", err)
		return false
	}
	if !ok {
		slog.Warn("Orchestrator.sendNotice: send reported failure", "recordID", recordID)
	}
	return ok
}

// PlaceholderContactKey derives the deterministic contact address used when
// no explicit one exists: the same phone always yields the same key, so a
// retried create is idempotent from the caller's point of view.
func PlaceholderContactKey(phone string) string {
	return capDigits(phone, MaxPhoneDigits) + "@leads.invalid"
}

// leadUpdateFrom maps a full collected snapshot onto a partial update. Only
// fields that have been collected are sent, so untouched columns keep their
// server-side values.
func leadUpdateFrom(data models.CollectedData, status models.LeadStatus) models.LeadUpdate {
	upd := models.LeadUpdate{Status: &status}
	if data.Name != "" {
		upd.Name = &data.Name
	}
	if data.Phone != "" {
		upd.Phone = &data.Phone
	}
	if data.TaxID != "" {
		upd.TaxID = &data.TaxID
	}
	if data.HasExistingPlan != nil {
		upd.HasExistingPlan = data.HasExistingPlan
	}
	if data.CurrentPlanName != "" {
		upd.CurrentPlanName = &data.CurrentPlanName
	}
	if data.CurrentPlanCost != "" {
		upd.CurrentPlanCost = &data.CurrentPlanCost
	}
	if data.MainDifficulty != "" {
		upd.MainDifficulty = &data.MainDifficulty
	}
	if data.Enrichment != nil {
		upd.Enrichment = data.Enrichment
	}
	return upd
}
