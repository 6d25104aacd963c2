// Package lifecycle provides the client side identity and session lifecycle:
// who is signed in, at what trust level, through which pending workflow, and
// which views are reachable from there.
//
// Session lifecycle:
//   - Manager is the single source of truth. It starts anonymous, hydrates from
//     a TokenStore, and moves between anonymous, pending_verification,
//     authenticated and authenticated_admin through a fixed transition graph.
//   - Every mutating operation holds a single in-flight slot. A second
//     operation issued while one is pending fails with a conflict error. Logout,
//     session expiry and AbandonWorkflow bypass the slot and discard any late
//     backend result.
//   - Consumers observe changes with Subscribe instead of keeping their own
//     copy of "logged in".
//
// Workflows:
//   - Email verification, password reset, password change and account deletion
//     are short state machines layered on the session. Only one is active at a
//     time and starting one discards the previous one.
//
// Effects and sinks:
//   - Operations return a Result with the new Session snapshot and an ordered
//     list of effects (navigate, reload) the caller executes. The manager never
//     touches the environment itself.
//   - NotificationSink receives human readable outcomes (toasts). ActivitySink
//     receives audit friendly events. Both run best-effort.
//
// Route access:
//   - RouteAccessController maps a requested path and a Session to an allow or
//     redirect Decision. Manager.Guard applies it to the live session and
//     remembers the original path for post-login resumption.
package lifecycle
