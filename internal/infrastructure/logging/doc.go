// Package logging is the structured logging layer for Dwellio Core,
// a thin wrapper over log/slog.
//
// Every record carries service and version fields so a property
// gateway shipping logs from several services can attribute them.
// Components receive child loggers tagged with their name:
//
//	log := logging.New(cfg.Logging, version)
//	syncLog := log.With("component", "statesync")
//	syncLog.Warn("poll failed", "device_id", id, "error", err)
//
// Format and level come from the logging section of config.yaml
// (json or text; debug, info, warn, error). JSON is the production
// default; text is for watching a dev gateway by hand.
//
// Credentials never belong in log fields: vendor tokens, JWT secrets,
// and MQTT passwords are logged as presence booleans or prefixes only.
package logging
