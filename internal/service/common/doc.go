// Package common holds host helpers shared by the services.
//
// It detects the current system actor (hostname, username, elevation) for
// logging and the AllUsers privilege check, and inspects running processes
// to find PowerShell sessions and stale run markers.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
