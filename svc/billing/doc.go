// Package billing orchestrates the merchant's billing flows: choosing a plan,
// confirming the charge, reacting to provider webhooks, billing per-order
// usage fees and cleaning up on uninstall.
//
// It composes pkg/subscription, pkg/billing and pkg/downgrade and owns no
// storage of its own.
package billing
