// Package logger provides component-scoped structured logging for biliurl.
//
// Every package logs through a ComponentLogger. Entries below the configured
// level, or for a disabled component, are dropped before formatting:
//
//	log := logger.WithComponent(logger.ComponentResolver)
//	log.Info("resolved", map[string]interface{}{"bvid": bvid, "qn": qn})
//
// The binaries configure the global logger from the environment:
//
//	s, err := logger.SettingsFromEnv(nil)
//	lg, closeFn, err := s.Build()
//	logger.SetGlobalLogger(lg)
//
// BILIURL_LOG_COMPONENTS takes a comma separated list (or "all") of app,
// server, resolver, wbi, api, link and client. BILIURL_LOG_OUTPUT accepts
// stdout, stderr, null or file:<path>; file output rotates at
// BILIURL_LOG_MAX_SIZE keeping BILIURL_LOG_MAX_BACKUPS numbered backups.
//
// Session credentials must never be passed as field values.
package logger
