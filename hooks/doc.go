// Package hooks is a small synchronous event bus standing in for a host
// platform's callback registration. Handlers for login, logout, per-request
// session validation and signup validation are registered once at startup and
// fired by the host's request pipeline in registration order.
package hooks
