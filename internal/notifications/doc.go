// Package notifications delivers workflow events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. One method per workflow milestone keeps message formatting in one
// place so callers never duplicate HTTP glue.
//
// Delivery is best effort: the workflow treats a failed notification as a
// logged warning, never as a processing failure.
package notifications
