package lifecycle

// NotificationKind is the severity of a user-facing outcome.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
	NotificationWarning NotificationKind = "warning"
)

// Notification is a human readable outcome, rendered as a toast or banner.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Summary string           `json:"summary"`
	Detail  string           `json:"detail,omitempty"`
}

// NotificationSink receives outcomes. It is fire-and-forget: the manager
// never looks at what the sink does with them.
type NotificationSink interface {
	Notify(Notification)
}

// NotificationSinkFunc adapts a function to the NotificationSink interface.
type NotificationSinkFunc func(Notification)

// Notify implements NotificationSink.
func (f NotificationSinkFunc) Notify(n Notification) {
	if f != nil {
		f(n)
	}
}

type noopNotificationSink struct{}

func (noopNotificationSink) Notify(Notification) {}

func normalizeNotificationSink(s NotificationSink) NotificationSink {
	if s == nil {
		return noopNotificationSink{}
	}
	return s
}

func success(summary, detail string) Notification {
	return Notification{Kind: NotificationSuccess, Summary: summary, Detail: detail}
}

func warning(summary, detail string) Notification {
	return Notification{Kind: NotificationWarning, Summary: summary, Detail: detail}
}

func failure(summary string, err error) Notification {
	return Notification{Kind: NotificationError, Summary: summary, Detail: errorMessage(err)}
}
