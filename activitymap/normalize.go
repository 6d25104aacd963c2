package activitymap

import (
	"context"
	"strings"
	"time"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
)

const (
	// MetadataKeyActorType stores the actor type derived from lifecycle.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStatus stores the session status before a transition.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the session status after a transition.
	MetadataKeyToStatus = "to_status"
	// MetadataKeyOperation stores the manager operation that produced the event.
	MetadataKeyOperation = "operation"
	// MetadataKeyOperationID stores the id of that operation.
	MetadataKeyOperationID = "operation_id"
	// MetadataKeyErrorKind stores the failure kind of a failed operation.
	MetadataKeyErrorKind = "error_kind"
)

const (
	defaultChannel    = "session"
	defaultObjectType = "session"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(lifecycle.ActivityEvent) string
}

// Normalize converts a lifecycle.ActivityEvent into a generic normalized shape.
func Normalize(event lifecycle.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(event.UserID),
		strings.TrimSpace(options.actorFallback),
	)

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: strings.TrimSpace(options.objectType),
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    strings.TrimSpace(options.channel),
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// Sink returns an ActivitySink that normalizes every event and hands it to fn.
func Sink(fn func(Normalized), opts ...Option) lifecycle.ActivitySink {
	return lifecycle.ActivitySinkFunc(func(_ context.Context, event lifecycle.ActivityEvent) error {
		if fn != nil {
			fn(Normalize(event, opts...))
		}
		return nil
	})
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from ActivityEvent.
// By default the operation id is used, so all events of one call group together.
func WithObjectIDResolver(resolver func(lifecycle.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the final actor-id fallback when actor/user ids are empty.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(event lifecycle.ActivityEvent, resolver func(lifecycle.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(event.OperationID)
}

func normalizeMetadata(event lifecycle.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)
	set := func(key string, value any, override bool) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; exists && !override {
			return
		}
		metadata[key] = value
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		set(MetadataKeyActorType, actorType, false)
	}
	if event.Operation != "" {
		set(MetadataKeyOperation, event.Operation, false)
	}
	if event.OperationID != "" {
		set(MetadataKeyOperationID, event.OperationID, false)
	}
	if event.FromStatus != "" {
		set(MetadataKeyFromStatus, string(event.FromStatus), true)
	}
	if event.ToStatus != "" {
		set(MetadataKeyToStatus, string(event.ToStatus), true)
	}
	if event.ErrorKind != lifecycle.KindNone {
		set(MetadataKeyErrorKind, string(event.ErrorKind), true)
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
