package flow

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/brconnect/leadintake/internal/models"
)

func TestNewSessionSeedsOpeningPrompt(t *testing.T) {
	s := newTestSession(&mockVerifier{}, &mockLeadStore{}, &mockNotifier{}, 0)
	view := s.Snapshot()
	if view.CurrentStep != models.StepName {
		t.Errorf("expected first step name, got %s", view.CurrentStep)
	}
	if len(view.Transcript) != 1 || view.Transcript[0].Origin != models.MessageOriginSystem {
		t.Fatalf("expected a single seeded system message, got %v", view.Transcript)
	}
	if view.Progress != 0 {
		t.Errorf("expected zero progress, got %f", view.Progress)
	}
	if !view.InputEnabled {
		t.Error("input should be enabled at the first step")
	}
}

func TestSubmitNameAdvancesToPhone(t *testing.T) {
	s := newTestSession(&mockVerifier{}, &mockLeadStore{}, &mockNotifier{}, 0)
	if err := submitText(t, s, "Ana"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	view := s.Snapshot()
	if view.CurrentStep != models.StepPhone {
		t.Errorf("expected step phone, got %s", view.CurrentStep)
	}
	if view.Data.Name != "Ana" {
		t.Errorf("expected name committed, got %q", view.Data.Name)
	}
	if view.DraftInput != "" {
		t.Errorf("draft should be cleared after commit, got %q", view.DraftInput)
	}
	// seeded prompt, user answer, next prompt
	if len(view.Transcript) != 3 {
		t.Fatalf("expected 3 transcript entries, got %d", len(view.Transcript))
	}
	if view.Transcript[1].Origin != models.MessageOriginUser || view.Transcript[1].Text != "Ana" {
		t.Errorf("unexpected user message: %+v", view.Transcript[1])
	}
	if !strings.Contains(view.Transcript[2].Text, "Ana") {
		t.Errorf("next prompt should greet by name, got %q", view.Transcript[2].Text)
	}
}

func TestSubmitBlankRejectedWithoutTranscriptEntry(t *testing.T) {
	s := newTestSession(&mockVerifier{}, &mockLeadStore{}, &mockNotifier{}, 0)
	for _, input := range []string{"", "   ", "\t"} {
		before := s.Snapshot()
		if _, err := s.SetDraftInput(input); err != nil {
			t.Fatalf("SetDraftInput failed: %v", err)
		}
		err := s.Submit(context.Background(), "")
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected ValidationError for %q, got %v", input, err)
		}
		after := s.Snapshot()
		if len(after.Transcript) != len(before.Transcript) {
			t.Errorf("blank submit must not append transcript entries")
		}
		if after.CurrentStep != before.CurrentStep {
			t.Errorf("blank submit must not advance the step")
		}
	}
	if len(s.Snapshot().Notices) == 0 {
		t.Error("expected validation notices to be surfaced")
	}
}

func TestSubmitInvalidValueRejected(t *testing.T) {
	s := newTestSession(&mockVerifier{}, &mockLeadStore{}, &mockNotifier{}, 0)
	err := submitText(t, s, "A") // single rune name
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validationErr.Step != models.StepName {
		t.Errorf("expected error at step name, got %s", validationErr.Step)
	}
	if s.Snapshot().CurrentStep != models.StepName {
		t.Error("invalid submit must not advance")
	}
}

func TestPhoneCommitCreatesLeadOnce(t *testing.T) {
	st := &mockLeadStore{nextID: "rec_1"}
	s := newTestSession(&mockVerifier{}, st, &mockNotifier{}, 0)

	if err := submitText(t, s, "Ana"); err != nil {
		t.Fatalf("name submit failed: %v", err)
	}
	waitFor(t, func() bool { return !s.Snapshot().AwaitingAsync }, "persistence settled")
	if err := submitText(t, s, "11999998888"); err != nil {
		t.Fatalf("phone submit failed: %v", err)
	}

	view := s.Snapshot()
	if view.CurrentStep != models.StepTaxID {
		t.Errorf("expected step taxId, got %s", view.CurrentStep)
	}
	// The committed user message shows the display-formatted phone.
	var userMsgs []string
	for _, msg := range view.Transcript {
		if msg.Origin == models.MessageOriginUser {
			userMsgs = append(userMsgs, msg.Text)
		}
	}
	if len(userMsgs) != 2 || userMsgs[1] != "(11) 99999-8888" {
		t.Errorf("expected formatted phone in transcript, got %v", userMsgs)
	}

	waitFor(t, func() bool { return st.createCount() == 1 }, "lead created")
	created := st.creates[0]
	if created.Name != "Ana" {
		t.Errorf("create should carry the name, got %q", created.Name)
	}
	if created.Phone != "11999998888" {
		t.Errorf("create should carry normalized phone digits, got %q", created.Phone)
	}
	if created.Email != "11999998888@leads.invalid" {
		t.Errorf("unexpected derived contact key %q", created.Email)
	}
	waitFor(t, func() bool { return s.RecordID() == "rec_1" }, "record id set")
}

func TestTaxIDVerificationSuccessEnriches(t *testing.T) {
	st := &mockLeadStore{}
	verifier := &mockVerifier{result: &models.VerificationResult{
		Valid:      true,
		Enrichment: map[string]any{"legalName": "Acme"},
	}}
	s := newTestSession(verifier, st, &mockNotifier{}, 0)
	driveToStep(t, s, models.StepTaxID)

	if err := submitText(t, s, "11111111111111"); err != nil {
		t.Fatalf("tax id submit failed: %v", err)
	}

	view := s.Snapshot()
	if view.CurrentStep != models.StepHasExistingPlan {
		t.Errorf("expected step hasExistingPlan, got %s", view.CurrentStep)
	}
	found := false
	for _, msg := range view.Transcript {
		if msg.Origin == models.MessageOriginSystem && strings.Contains(msg.Text, "Acme") {
			found = true
		}
	}
	if !found {
		t.Error("expected a system message summarizing the enrichment")
	}
	if view.Data.Enrichment["legalName"] != "Acme" {
		t.Errorf("enrichment not merged into collected data: %v", view.Data.Enrichment)
	}

	waitFor(t, func() bool { return st.updateCount() >= 1 }, "update dispatched")
	upd := st.update(0)
	if upd.Upd.Enrichment == nil || upd.Upd.Enrichment["legalName"] != "Acme" {
		t.Errorf("update should include enrichment, got %+v", upd.Upd.Enrichment)
	}
	if upd.Upd.Status == nil || *upd.Upd.Status != models.LeadStatusInProgress {
		t.Errorf("mid-conversation update should be in_progress, got %v", upd.Upd.Status)
	}
}

func TestTaxIDVerificationRejectedIsNoOp(t *testing.T) {
	verifier := &mockVerifier{result: &models.VerificationResult{Valid: false}}
	s := newTestSession(verifier, &mockLeadStore{}, &mockNotifier{}, 0)
	driveToStep(t, s, models.StepTaxID)

	if _, err := s.SetDraftInput("11.111.111/1111-11"); err != nil {
		t.Fatalf("SetDraftInput failed: %v", err)
	}
	before := s.Snapshot()

	err := s.Submit(context.Background(), "")
	if !errors.Is(err, ErrVerificationRejected) {
		t.Fatalf("expected ErrVerificationRejected, got %v", err)
	}

	after := s.Snapshot()
	if after.CurrentStep != models.StepTaxID {
		t.Errorf("step must stay at taxId, got %s", after.CurrentStep)
	}
	if len(after.Transcript) != len(before.Transcript) {
		t.Errorf("transcript must be unchanged: %d then %d entries", len(before.Transcript), len(after.Transcript))
	}
	if !reflect.DeepEqual(after.Data, before.Data) {
		t.Errorf("collected data must be unchanged: %+v then %+v", before.Data, after.Data)
	}
	if after.DraftInput != before.DraftInput {
		t.Errorf("draft must be unchanged: %q then %q", before.DraftInput, after.DraftInput)
	}
	if after.AwaitingAsync {
		t.Error("awaitingAsync must be cleared after the rejection")
	}

	noticed := false
	for _, n := range after.Notices {
		if n.Kind == NoticeVerificationRejected {
			noticed = true
		}
	}
	if !noticed {
		t.Error("expected a verification rejection notice")
	}
}

func TestTaxIDVerificationUnavailableIsDistinct(t *testing.T) {
	verifier := &mockVerifier{err: errors.New("connection reset")}
	s := newTestSession(verifier, &mockLeadStore{}, &mockNotifier{}, 0)
	driveToStep(t, s, models.StepTaxID)
	before := s.Snapshot()

	err := submitText(t, s, "11111111111111")
	if !errors.Is(err, ErrVerificationUnavailable) {
		t.Fatalf("expected ErrVerificationUnavailable, got %v", err)
	}
	after := s.Snapshot()
	if after.CurrentStep != models.StepTaxID || len(after.Transcript) != len(before.Transcript) {
		t.Error("transport failure must leave the session unchanged")
	}
	var kinds []NoticeKind
	for _, n := range after.Notices {
		kinds = append(kinds, n.Kind)
	}
	if len(kinds) == 0 || kinds[len(kinds)-1] != NoticeVerificationUnavailable {
		t.Errorf("expected an unavailability notice, got %v", kinds)
	}
}

func TestOptionClickSkipsPlanBranch(t *testing.T) {
	st := &mockLeadStore{}
	s := newTestSession(&mockVerifier{}, st, &mockNotifier{}, 0)
	driveToStep(t, s, models.StepHasExistingPlan)

	if err := s.Submit(context.Background(), "Não"); err != nil {
		t.Fatalf("option submit failed: %v", err)
	}
	view := s.Snapshot()
	if view.CurrentStep != models.StepMainDifficulty {
		t.Errorf("expected jump to mainDifficulty, got %s", view.CurrentStep)
	}
	if view.Data.HasExistingPlan == nil || *view.Data.HasExistingPlan {
		t.Errorf("expected hasExistingPlan=false, got %v", view.Data.HasExistingPlan)
	}
	if view.Data.CurrentPlanName != "" || view.Data.CurrentPlanCost != "" {
		t.Error("skipped branch fields must remain unset")
	}
}

func TestSubmitRejectedWhileVerificationInFlight(t *testing.T) {
	block := make(chan struct{})
	verifier := &mockVerifier{block: block}
	s := newTestSession(verifier, &mockLeadStore{}, &mockNotifier{}, 0)
	driveToStep(t, s, models.StepTaxID)

	done := make(chan error, 1)
	go func() {
		done <- submitText(t, s, "11111111111111")
	}()
	waitFor(t, func() bool { return s.Snapshot().AwaitingAsync }, "verification in flight")

	if err := s.Submit(context.Background(), "Sim"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("expected ErrSessionBusy, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("blocked submit failed: %v", err)
	}
}

func TestClosedSessionActionsAreNoOps(t *testing.T) {
	s := newTestSession(&mockVerifier{}, &mockLeadStore{}, &mockNotifier{}, 0)
	s.Close()

	if err := s.Submit(context.Background(), "Ana"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed from Submit, got %v", err)
	}
	if _, err := s.SetDraftInput("Ana"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed from SetDraftInput, got %v", err)
	}
	s.SetRecordID("rec_9")
	if s.RecordID() != "" {
		t.Error("SetRecordID must be a no-op after close")
	}
	s.AddNotice(NoticePersistence, "late notice")
	if len(s.Snapshot().Notices) != 0 {
		t.Error("AddNotice must be a no-op after close")
	}
}

func TestFullConversationWithPlanBranch(t *testing.T) {
	st := &mockLeadStore{nextID: "rec_full"}
	notifier := &mockNotifier{}
	verifier := &mockVerifier{result: &models.VerificationResult{
		Valid:      true,
		Enrichment: map[string]any{"razao_social": "Acme LTDA"},
	}}
	s := newTestSession(verifier, st, notifier, 0)

	driveToStep(t, s, models.StepDone)
	view := s.Snapshot()

	if view.InputEnabled {
		t.Error("input must be disabled at done")
	}
	if view.Progress != 1 {
		t.Errorf("expected full progress, got %f", view.Progress)
	}
	if !strings.Contains(view.Transcript[len(view.Transcript)-1].Text, "Ana") {
		t.Error("closing message should reference the collected name")
	}
	if view.Data.CurrentPlanName != "Unimed" || view.Data.CurrentPlanCost != "1234.56" {
		t.Errorf("plan branch data not committed: %+v", view.Data)
	}

	if err := s.Submit(context.Background(), "anything"); !errors.Is(err, ErrConversationDone) {
		t.Errorf("expected ErrConversationDone after completion, got %v", err)
	}

	waitFor(t, func() bool { return notifier.callCount() == 1 }, "completion notice sent")
	if notifier.call(0) != "rec_full" {
		t.Errorf("notice should use the record id, got %q", notifier.call(0))
	}

	waitFor(t, func() bool { return st.updateCount() >= 1 }, "updates dispatched")
	last := st.update(st.updateCount() - 1)
	if last.Upd.Status == nil || *last.Upd.Status != models.LeadStatusComplete {
		t.Errorf("final update should be complete, got %v", last.Upd.Status)
	}
	if st.createCount() != 1 {
		t.Errorf("expected exactly one create over the whole session, got %d", st.createCount())
	}
}

func TestPersistenceFailureDoesNotBlockAdvance(t *testing.T) {
	st := &mockLeadStore{createErr: errors.New("store down")}
	s := newTestSession(&mockVerifier{}, st, &mockNotifier{}, 0)

	if err := submitText(t, s, "Ana"); err != nil {
		t.Fatalf("name submit failed: %v", err)
	}
	waitFor(t, func() bool { return !s.Snapshot().AwaitingAsync }, "persistence settled")
	if err := submitText(t, s, "11999998888"); err != nil {
		t.Fatalf("phone submit failed: %v", err)
	}
	if got := s.Snapshot().CurrentStep; got != models.StepTaxID {
		t.Errorf("conversation must advance despite create failure, got %s", got)
	}
	waitFor(t, func() bool {
		for _, n := range s.Snapshot().Notices {
			if n.Kind == NoticePersistence {
				return true
			}
		}
		return false
	}, "persistence notice surfaced")
}

func TestSetDraftInputFormatsForDisplay(t *testing.T) {
	s := newTestSession(&mockVerifier{}, &mockLeadStore{}, &mockNotifier{}, 0)
	if err := submitText(t, s, "Ana"); err != nil {
		t.Fatalf("name submit failed: %v", err)
	}
	got, err := s.SetDraftInput("11999998888")
	if err != nil {
		t.Fatalf("SetDraftInput failed: %v", err)
	}
	if got != "(11) 99999-8888" {
		t.Errorf("expected formatted draft, got %q", got)
	}
	if s.Snapshot().DraftInput != got {
		t.Error("snapshot should expose the formatted draft")
	}
}
