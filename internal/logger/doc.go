// Package logger wraps zap for the agent:
//   - a global sugared logger with a console or JSON encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and a per-logger level option,
//   - context-first convenience functions (Infof, ErrorKV, etc.).
//
// Every pipeline stage receives a context and logs through the logger stored in it,
// so the stage name and cycle identifiers follow each message.
package logger
