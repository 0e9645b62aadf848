// Package logger wraps zap for the make-manifest tool:
//   - a global sugared logger with a console encoder writing to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and configuration,
//   - leveled convenience functions (Info, WarnKV, Debugf, etc.).
//
// Services receive a context and extract the logger from it, so every
// message carries the component name and the parcel being processed.
package logger
