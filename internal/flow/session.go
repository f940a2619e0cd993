package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/brconnect/leadintake/internal/models"
)

// Phase tags what the session is currently waiting on. It is the single
// concurrency guard against overlapping submissions.
type Phase int

const (
	// PhaseIdle means the session accepts a new submission.
	PhaseIdle Phase = iota
	// PhaseValidating means an external verification call is in flight.
	PhaseValidating
	// PhasePersisting means the background persistence for the last commit
	// has not finished yet.
	PhasePersisting
)

// NoticeKind classifies a user-visible, non-transcript notice.
type NoticeKind string

const (
	NoticeValidation              NoticeKind = "validation"
	NoticeVerificationRejected    NoticeKind = "verification_rejected"
	NoticeVerificationUnavailable NoticeKind = "verification_unavailable"
	NoticePersistence             NoticeKind = "persistence"
	NoticeNotification            NoticeKind = "notification"
)

// Notice texts shown to the participant. Notices are surfaced out of band
// (toasts) and never enter the transcript.
const (
	noticeTextValidation   = "Hmm, esse valor não parece válido. Pode conferir e tentar de novo?"
	noticeTextRejected     = "Não encontramos esse CNPJ. Confira os números e tente novamente."
	noticeTextUnavailable  = "Não conseguimos consultar o CNPJ agora. Tente novamente em instantes."
	noticeTextPersistence  = "Não foi possível salvar os seus dados agora, mas podemos continuar."
	noticeTextNotification = "Os seus dados foram salvos, mas o aviso à nossa equipe falhou. Vamos entrar em contato assim mesmo."
)

// Notice is one user-visible out-of-band message.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
	Time time.Time  `json:"time"`
}

// Verifier is the external tax id lookup consumed at the StepTaxID commit.
type Verifier interface {
	Verify(ctx context.Context, taxID string) (*models.VerificationResult, error)
}

// Session owns the authoritative state of one intake conversation. All
// mutations go through its methods; once Close has been called every action
// becomes a safe no-op.
type Session struct {
	mu          sync.Mutex
	id          string
	currentStep models.Step
	draftInput  string
	recordID    string
	data        models.CollectedData
	transcript  []models.Message
	notices     []Notice
	phase       Phase
	closed      bool

	verifier     Verifier
	orchestrator *Orchestrator
	timer        Timer
	typingDelay  time.Duration
}

// View is an immutable snapshot of a session for the presentation sink.
type View struct {
	ID            string               `json:"id"`
	CurrentStep   models.Step          `json:"current_step"`
	DraftInput    string               `json:"draft_input,omitempty"`
	RecordID      string               `json:"record_id,omitempty"`
	Data          models.CollectedData `json:"data"`
	Transcript    []models.Message     `json:"transcript"`
	Notices       []Notice             `json:"notices,omitempty"`
	AwaitingAsync bool                 `json:"awaiting_async"`
	Progress      float64              `json:"progress"`
	InputEnabled  bool                 `json:"input_enabled"`
}

// NewSession creates a session at the first step with the opening prompt
// already in the transcript.
func NewSession(id string, verifier Verifier, orchestrator *Orchestrator, timer Timer, typingDelay time.Duration) *Session {
	s := &Session{
		id:           id,
		currentStep:  models.StepName,
		verifier:     verifier,
		orchestrator: orchestrator,
		timer:        timer,
		typingDelay:  typingDelay,
	}
	text, choices := Prompt(models.StepName, s.data)
	s.transcript = append(s.transcript, models.Message{
		Origin:  models.MessageOriginSystem,
		Text:    text,
		Choices: choices,
		Time:    time.Now(),
	})
	slog.Debug("Session.NewSession: session created", "sessionID", id)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// SetDraftInput formats raw keystroke text for display and stores it as the
// current draft. No validation happens here.
func (s *Session) SetDraftInput(raw string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	if s.currentStep == models.StepDone {
		return "", ErrConversationDone
	}
	s.draftInput = Format(s.currentStep, raw)
	return s.draftInput, nil
}

// RecordID returns the external persistence handle, empty until the record
// was created.
func (s *Session) RecordID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordID
}

// SetRecordID stores the external persistence handle. Later calls overwrite,
// covering the case where the record did not exist on the first attempt.
func (s *Session) SetRecordID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.recordID = id
}

// Close tears the session down. In-flight persistence and notification work
// keeps running detached but can no longer mutate the session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	slog.Debug("Session.Close: session closed", "sessionID", s.id)
}

// Snapshot returns a copy of the session state for rendering.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID:            s.id,
		CurrentStep:   s.currentStep,
		DraftInput:    s.draftInput,
		RecordID:      s.recordID,
		Data:          s.data.Clone(),
		Transcript:    append([]models.Message(nil), s.transcript...),
		Notices:       append([]Notice(nil), s.notices...),
		AwaitingAsync: s.phase != PhaseIdle,
		Progress:      Progress(s.currentStep),
		InputEnabled:  s.currentStep != models.StepDone,
	}
}

// Submit commits the clicked option, or the current draft when option is
// empty, and advances the conversation. Rejections of any kind leave the
// session unchanged apart from an appended notice.
func (s *Session) Submit(ctx context.Context, option string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.currentStep == models.StepDone {
		s.mu.Unlock()
		return ErrConversationDone
	}
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		slog.Debug("Session.Submit: rejected, submission in flight", "sessionID", s.id, "step", s.currentStep)
		return ErrSessionBusy
	}

	value := option
	if value == "" {
		value = s.draftInput
	}
	step := s.currentStep
	if strings.TrimSpace(value) == "" || !IsValid(step, value) {
		s.appendNoticeLocked(NoticeValidation, noticeTextValidation)
		s.mu.Unlock()
		slog.Debug("Session.Submit: value failed local validation", "sessionID", s.id, "step", step)
		return &ValidationError{Step: step, Value: value}
	}

	var enrichment map[string]any
	if step == models.StepTaxID {
		s.phase = PhaseValidating
		s.mu.Unlock()

		result, err := s.verifier.Verify(ctx, value)

		s.mu.Lock()
		s.phase = PhaseIdle
		if s.closed {
			s.mu.Unlock()
			return ErrSessionClosed
		}
		if err != nil {
			s.appendNoticeLocked(NoticeVerificationUnavailable, noticeTextUnavailable)
			s.mu.Unlock()
			slog.Warn("Session.Submit: tax id lookup unavailable", "sessionID", s.id, "error", err)
			return fmt.Errorf("%w: %w", ErrVerificationUnavailable, err)
		}
		if !result.Valid {
			s.appendNoticeLocked(NoticeVerificationRejected, noticeTextRejected)
			s.mu.Unlock()
			slog.Debug("Session.Submit: tax id rejected by lookup", "sessionID", s.id)
			return ErrVerificationRejected
		}
		enrichment = result.Enrichment
	}

	newData := s.data.Clone()
	if enrichment != nil {
		newData.Enrichment = enrichment
		s.appendMessageLocked(models.Message{
			Origin: models.MessageOriginSystem,
			Text:   enrichmentSummary(enrichment),
			Time:   time.Now(),
		})
	}

	display := Format(step, value)
	s.appendMessageLocked(models.Message{
		Origin: models.MessageOriginUser,
		Text:   display,
		Time:   time.Now(),
	})
	commitValue(&newData, step, value)

	nextStep := Next(step, newData)
	s.advanceLocked(nextStep, newData)
	slog.Info("Session.Submit: step committed", "sessionID", s.id, "step", step, "next", nextStep)

	// Persistence runs detached; the prompt below must not wait for it.
	s.phase = PhasePersisting
	snapshot := newData.Clone()
	go func() {
		s.orchestrator.HandleCommit(context.Background(), s, step, nextStep, snapshot)
		s.mu.Lock()
		s.phase = PhaseIdle
		s.mu.Unlock()
	}()

	if s.typingDelay > 0 {
		// Synthetic thinking delay, purely presentational.
		if _, err := s.timer.ScheduleAfter(s.typingDelay, func() {
			s.appendPrompt(nextStep)
		}); err != nil {
			slog.Warn("Session.Submit: could not schedule prompt, appending now", "sessionID", s.id, "error", err)
			s.appendPromptLocked(nextStep)
		}
		s.mu.Unlock()
		return nil
	}
	s.appendPromptLocked(nextStep)
	s.mu.Unlock()
	return nil
}

// AddNotice records a user-visible out-of-band notice. Safe no-op after Close.
func (s *Session) AddNotice(kind NoticeKind, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendNoticeLocked(kind, text)
}

func (s *Session) appendNoticeLocked(kind NoticeKind, text string) {
	if s.closed {
		return
	}
	s.notices = append(s.notices, Notice{Kind: kind, Text: text, Time: time.Now()})
}

func (s *Session) appendMessageLocked(msg models.Message) {
	if s.closed {
		return
	}
	s.transcript = append(s.transcript, msg)
}

// advanceLocked atomically sets the current step, replaces the collected data
// and clears the draft.
func (s *Session) advanceLocked(next models.Step, data models.CollectedData) {
	if s.closed {
		return
	}
	s.currentStep = next
	s.data = data
	s.draftInput = ""
}

// appendPrompt appends the system prompt for a step, taking the lock first.
// Used by the scheduled typing-delay path.
func (s *Session) appendPrompt(step models.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendPromptLocked(step)
}

func (s *Session) appendPromptLocked(step models.Step) {
	text, choices := Prompt(step, s.data)
	s.appendMessageLocked(models.Message{
		Origin:  models.MessageOriginSystem,
		Text:    text,
		Choices: choices,
		Time:    time.Now(),
	})
}

// commitValue writes the submitted value into the field owned by the step.
func commitValue(data *models.CollectedData, step models.Step, value string) {
	switch step {
	case models.StepName:
		data.Name = strings.TrimSpace(value)
	case models.StepPhone:
		data.Phone = capDigits(value, MaxPhoneDigits)
	case models.StepTaxID:
		data.TaxID = capDigits(value, MaxTaxIDDigits)
	case models.StepHasExistingPlan:
		v := isAffirmative(value)
		data.HasExistingPlan = &v
	case models.StepCurrentPlanName:
		data.CurrentPlanName = strings.TrimSpace(value)
	case models.StepCurrentPlanCost:
		data.CurrentPlanCost = CostDecimal(value)
	case models.StepMainDifficulty:
		data.MainDifficulty = strings.TrimSpace(value)
	}
}

func isAffirmative(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "sim")
}

// enrichmentKeys are the provider fields worth echoing back to the user, in
// display order. The payload itself stays opaque.
var enrichmentKeys = []string{"legalName", "razao_social", "nome_fantasia", "fantasia", "municipio", "uf"}

// enrichmentSummary builds the system message confirming the verified company.
func enrichmentSummary(enrichment map[string]any) string {
	var parts []string
	for _, key := range enrichmentKeys {
		if v, ok := enrichment[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "CNPJ verificado com sucesso. Vamos continuar!"
	}
	return "Encontramos os dados da empresa: " + strings.Join(parts, " · ") + ". Vamos continuar!"
}
