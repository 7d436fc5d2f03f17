// Package link manages provider account links per tenant. A link flow
// starts with a short-lived single-use signed token and completes by
// redeeming it atomically, so a replayed callback can never link
// twice. Each tenant holds at most one account per provider, with an
// optional active-account pointer.
package link
