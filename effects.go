package lifecycle

// EffectKind is a side effect the caller executes after a transition.
type EffectKind string

const (
	EffectNavigate EffectKind = "navigate"
	EffectReload   EffectKind = "reload"
)

// Effect is one post-transition instruction. Path is set for navigation.
type Effect struct {
	Kind EffectKind `json:"kind"`
	Path string     `json:"path,omitempty"`
}

// Navigate builds a navigation effect.
func Navigate(path string) Effect {
	return Effect{Kind: EffectNavigate, Path: path}
}

// Reload builds a full reload effect.
func Reload() Effect {
	return Effect{Kind: EffectReload}
}

// Result is what every mutating operation hands back: the session after the
// operation and the effects to execute, in order.
type Result struct {
	Session Session  `json:"session"`
	Effects []Effect `json:"effects,omitempty"`
}

// NavigateTo returns the path of the last navigation effect, if any.
func (r Result) NavigateTo() (string, bool) {
	for i := len(r.Effects) - 1; i >= 0; i-- {
		if r.Effects[i].Kind == EffectNavigate {
			return r.Effects[i].Path, true
		}
	}
	return "", false
}

// changeSet collects everything a committed mutation publishes.
type changeSet struct {
	changed       bool
	notifications []Notification
	events        []ActivityEvent
	effects       []Effect
}

func (cs *changeSet) notify(n Notification) {
	cs.notifications = append(cs.notifications, n)
}

func (cs *changeSet) record(event ActivityEvent) {
	cs.events = append(cs.events, event)
}

func (cs *changeSet) effect(e ...Effect) {
	cs.effects = append(cs.effects, e...)
}
