// Package notify groups the Sender implementations used to deliver match
// notifications: console output, a Telegram bot, Google Cloud Pub/Sub and an
// in-memory recorder for tests.
package notify
