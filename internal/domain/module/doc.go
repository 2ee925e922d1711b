// Package module contains the core domain types for module synchronization.
//
// It defines the install Scope, the per-module Request, snapshots of the
// Installed and Remote versions, the planned Action, and the tagged Error
// reported for every module that could not be synchronized.
package module
