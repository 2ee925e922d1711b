// Package version holds the modsync build metadata.
//
// Version, Commit and BuildTime are set with -ldflags at release time.
// The version subcommand prints them through Full.
package version
