// Package logger wraps zap for the modsync binary.
//
// A global sugared logger is configured once at startup. Services carry a
// scoped copy in their context (WithName/WithKV) and log through the
// package-level helpers, so every line about a module carries its name.
package logger
