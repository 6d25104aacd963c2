package lifecycle

import "time"

// WorkflowKind identifies the active sub-state machine.
type WorkflowKind string

const (
	WorkflowNone              WorkflowKind = "none"
	WorkflowEmailVerification WorkflowKind = "email_verification"
	WorkflowPasswordReset     WorkflowKind = "password_reset"
	WorkflowPasswordChange    WorkflowKind = "password_change"
	WorkflowAccountDeletion   WorkflowKind = "account_deletion"
)

// WorkflowStep is the position inside a workflow.
type WorkflowStep string

const (
	StepIdle WorkflowStep = ""

	// email verification
	StepAwaitingCode WorkflowStep = "awaiting_code"
	StepVerified     WorkflowStep = "verified"

	// password reset
	StepRequestSent    WorkflowStep = "request_sent"
	StepTokenValidated WorkflowStep = "token_validated"

	// password change
	StepPending WorkflowStep = "pending"

	// account deletion
	StepAwaitingConfirmation WorkflowStep = "awaiting_confirmation"

	StepCompleted WorkflowStep = "completed"
	StepExhausted WorkflowStep = "exhausted"
	StepExpired   WorkflowStep = "expired"
)

// WorkflowState describes the single active workflow.
type WorkflowState struct {
	Kind              WorkflowKind `json:"kind"`
	Step              WorkflowStep `json:"step,omitempty"`
	AttemptsRemaining int          `json:"attempts_remaining,omitempty"`
	ExpiresAt         time.Time    `json:"expires_at,omitempty"`
	LastError         error        `json:"-"`
}

// Active reports whether a workflow is in progress or was left in a terminal step.
func (w WorkflowState) Active() bool {
	return w.Kind != "" && w.Kind != WorkflowNone
}

// Terminal reports whether the workflow cannot make progress without a restart.
func (w WorkflowState) Terminal() bool {
	switch w.Step {
	case StepVerified, StepCompleted, StepExhausted, StepExpired:
		return true
	default:
		return false
	}
}

// ExpiredAt reports whether the workflow deadline has passed at now.
func (w WorkflowState) ExpiredAt(now time.Time) bool {
	return !w.ExpiresAt.IsZero() && !now.Before(w.ExpiresAt)
}

func noWorkflow() WorkflowState {
	return WorkflowState{Kind: WorkflowNone}
}

func (st *state) clearWorkflow() {
	st.workflow = noWorkflow()
	st.resetToken = ""
}

func (st *state) clearPending() {
	st.pendingEmail = ""
	st.pendingID = ""
}

func (st *state) fail(err error) {
	st.workflow.LastError = err
}

// consumeAttempt decrements the remaining attempts and moves the workflow to
// exhausted once none are left.
func (st *state) consumeAttempt() {
	if st.workflow.AttemptsRemaining > 0 {
		st.workflow.AttemptsRemaining--
	}
	if st.workflow.AttemptsRemaining == 0 {
		st.workflow.Step = StepExhausted
	}
}
