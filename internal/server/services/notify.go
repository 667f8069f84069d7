// Package services contains server-side business logic. BankService answers
// the client-facing commands, AdminService the administrative ones. Both sit
// on top of the account store and the session manager and know nothing about
// frames or links.
package services

import "context"

// Notifier announces account events to connected endpoints.
type Notifier interface {
	Notify(ctx context.Context, event, account string, audience []string)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, []string) {}
