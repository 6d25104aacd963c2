package lifecycle

import (
	"fmt"
	"strings"
)

// Status is the session trust level.
type Status string

const (
	StatusAnonymous           Status = "anonymous"
	StatusPendingVerification Status = "pending_verification"
	StatusAuthenticated       Status = "authenticated"
	StatusAuthenticatedAdmin  Status = "authenticated_admin"
)

// IsAuthenticated reports whether the status carries a confirmed identity.
func (s Status) IsAuthenticated() bool {
	return s == StatusAuthenticated || s == StatusAuthenticatedAdmin
}

// IsAdmin reports whether the status unlocks the admin area.
func (s Status) IsAdmin() bool {
	return s == StatusAuthenticatedAdmin
}

func (s Status) String() string {
	return string(s)
}

// Identity is the confirmed user behind an authenticated session.
type Identity struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name,omitempty"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles,omitempty"`
}

// HasRole reports whether the identity carries role, ignoring case.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// IsAtLeast checks whether any of the identity roles meets minRole.
func (i Identity) IsAtLeast(minRole Role) bool {
	for _, r := range i.Roles {
		if role, ok := ParseRole(r); ok && role.IsAtLeast(minRole) {
			return true
		}
	}
	return false
}

// Name returns the display name, falling back to the username.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}

func (i Identity) clone() *Identity {
	out := i
	if len(i.Roles) > 0 {
		out.Roles = append([]string(nil), i.Roles...)
	}
	return &out
}

// statusFor picks the authenticated status matching the identity roles.
func statusFor(identity Identity) Status {
	if identity.IsAtLeast(RoleAdmin) {
		return StatusAuthenticatedAdmin
	}
	return StatusAuthenticated
}

// Session is an immutable snapshot of the lifecycle state.
type Session struct {
	Status        Status        `json:"status"`
	Identity      *Identity     `json:"identity,omitempty"`
	PendingEmail  string        `json:"pending_email,omitempty"`
	HasCredential bool          `json:"has_credential"`
	Workflow      WorkflowState `json:"workflow"`
}

// IsAuthenticated reports whether the snapshot has a confirmed identity.
func (s Session) IsAuthenticated() bool {
	return s.Status.IsAuthenticated()
}

// Validate checks the session invariants: identity and credential exist only
// in authenticated states and a pending email only while verification is pending.
func (s Session) Validate() error {
	switch s.Status {
	case StatusAnonymous, StatusPendingVerification, StatusAuthenticated, StatusAuthenticatedAdmin:
	default:
		return fmt.Errorf("unknown session status %q", s.Status)
	}

	if s.Status.IsAuthenticated() != (s.Identity != nil) {
		return fmt.Errorf("identity presence does not match status %s", s.Status)
	}

	if s.HasCredential && !s.Status.IsAuthenticated() {
		return fmt.Errorf("credential held while %s", s.Status)
	}

	if (s.Status == StatusPendingVerification) != (s.PendingEmail != "") {
		return fmt.Errorf("pending email does not match status %s", s.Status)
	}

	return nil
}

// state is the mutable form of Session plus transient workflow data that is
// never exposed to consumers.
type state struct {
	status        Status
	identity      *Identity
	pendingEmail  string
	pendingID     string
	hasCredential bool
	workflow      WorkflowState
	resetToken    string
}

func anonymousState() state {
	return state{status: StatusAnonymous, workflow: noWorkflow()}
}

func (st state) clone() state {
	out := st
	if st.identity != nil {
		out.identity = st.identity.clone()
	}
	return out
}

// ownedBy reports whether st is anonymous or signed in as userID.
func (st state) ownedBy(userID string) bool {
	if st.identity == nil {
		return st.status == StatusAnonymous
	}
	return st.identity.ID == userID
}

func (st state) session() Session {
	out := Session{
		Status:        st.status,
		PendingEmail:  st.pendingEmail,
		HasCredential: st.hasCredential,
		Workflow:      st.workflow,
	}
	if st.identity != nil {
		out.Identity = st.identity.clone()
	}
	return out
}
