package flow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brconnect/leadintake/internal/models"
)

// Shared fakes for session and orchestrator tests.

type mockVerifier struct {
	mu     sync.Mutex
	result *models.VerificationResult
	err    error
	calls  int
	last   string
	block  chan struct{} // when set, Verify waits until the channel closes
}

func (m *mockVerifier) Verify(ctx context.Context, taxID string) (*models.VerificationResult, error) {
	m.mu.Lock()
	m.calls++
	m.last = taxID
	block := m.block
	m.mu.Unlock()
	if block != nil {
		<-block
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &models.VerificationResult{Valid: true}, nil
}

func (m *mockVerifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordedUpdate struct {
	ID  string
	Upd models.LeadUpdate
}

type mockLeadStore struct {
	mu        sync.Mutex
	creates   []models.Lead
	updates   []recordedUpdate
	createErr error
	updateErr error
	nextID    string
}

func (m *mockLeadStore) CreateLead(lead models.Lead) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.creates = append(m.creates, lead)
	id := m.nextID
	if id == "" {
		id = fmt.Sprintf("lead_%d", len(m.creates))
	}
	return id, nil
}

func (m *mockLeadStore) UpdateLead(id string, upd models.LeadUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, recordedUpdate{ID: id, Upd: upd})
	return nil
}

func (m *mockLeadStore) createCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creates)
}

func (m *mockLeadStore) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

func (m *mockLeadStore) update(i int) recordedUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates[i]
}

type mockNotifier struct {
	mu       sync.Mutex
	calls    []string
	outcomes []error // nil means success; io errors mean transport failure
	negative []bool  // true means (false, nil) outcome at that call index
}

func (m *mockNotifier) SendCompletionNotice(ctx context.Context, recordID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.calls)
	m.calls = append(m.calls, recordID)
	if idx < len(m.outcomes) && m.outcomes[idx] != nil {
		return false, m.outcomes[idx]
	}
	if idx < len(m.negative) && m.negative[idx] {
		return false, nil
	}
	return true, nil
}

func (m *mockNotifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockNotifier) call(i int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never met: %s", msg)
}

// newTestSession builds a session with standard fakes and no typing delay.
func newTestSession(verifier *mockVerifier, st *mockLeadStore, notifier *mockNotifier, retryDelay time.Duration) *Session {
	timer := NewSimpleTimer()
	orch := NewOrchestrator(st, notifier, timer, retryDelay)
	return NewSession("sess_test", verifier, orch, timer, 0)
}

// submitText sets the draft from raw text and submits it.
func submitText(t *testing.T, s *Session, text string) error {
	t.Helper()
	if _, err := s.SetDraftInput(text); err != nil {
		t.Fatalf("SetDraftInput(%q) failed: %v", text, err)
	}
	return s.Submit(context.Background(), "")
}

// driveToStep submits canned answers until the session reaches the target step.
func driveToStep(t *testing.T, s *Session, target models.Step) {
	t.Helper()
	answers := map[models.Step]string{
		models.StepName:            "Ana",
		models.StepPhone:           "11999998888",
		models.StepTaxID:           "11111111111111",
		models.StepHasExistingPlan: "Sim",
		models.StepCurrentPlanName: "Unimed",
		models.StepCurrentPlanCost: "123456",
		models.StepMainDifficulty:  "Preço alto",
	}
	for i := 0; i < TotalSteps(); i++ {
		view := s.Snapshot()
		if view.CurrentStep == target {
			return
		}
		answer, ok := answers[view.CurrentStep]
		if !ok {
			t.Fatalf("no canned answer for step %s", view.CurrentStep)
		}
		if err := submitText(t, s, answer); err != nil {
			t.Fatalf("submit at step %s failed: %v", view.CurrentStep, err)
		}
		waitFor(t, func() bool { return !s.Snapshot().AwaitingAsync }, "persistence settled")
	}
	if s.Snapshot().CurrentStep != target {
		t.Fatalf("never reached step %s, stuck at %s", target, s.Snapshot().CurrentStep)
	}
}
