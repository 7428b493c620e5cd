// Package email sends merchant notifications.
//
// EmailSender has three implementations: Postmark for production, DevSender
// which writes .html and .json files for local inspection, and NopSender.
// NewSender picks one from Config.
//
// Notifier renders the downgrade messages (grace period started, products
// unpublished) and hands them to an EmailSender. It satisfies
// downgrade.Notifier.
package email
