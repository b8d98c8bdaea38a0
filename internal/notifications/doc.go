// Package notifications pushes sync health alerts to a phone or desktop.
//
// The default implementation publishes to ntfy using the topic URL configured
// in config.toml and degrades to a no-op when no topic is set. Each alert
// kind can be switched off individually.
package notifications
