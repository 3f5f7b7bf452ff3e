// Package logging is skysync's log/slog setup.
//
// One Logger is built from the logging config section at startup and
// handed down; packages narrow it with Component. Output is JSON unless
// format is "text".
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Attributes keyed password, token, cookie, secret or authorization are
// replaced with Redacted before they are written. That is a backstop:
// callers still should not pass credentials to the logger.
package logging
