// Package httpapi implements lifecycle.Backend against a JSON identity
// service over HTTP.
//
// Use NewClient with lifecycle.NewManager to drive the session lifecycle
// against a remote service. Error bodies of the form
// {"error":{"code":"...","message":"..."}} are mapped onto the lifecycle
// error taxonomy; transport failures and 5xx answers become network errors.
package httpapi
