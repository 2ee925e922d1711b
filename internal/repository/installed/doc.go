// Package installed implements the local module registry.
//
// The FileRegistry scans the module roots of both install scopes for
// <Name>/<Version> directories and reads the YAML install receipt that the
// installer leaves in each version directory. The receipt records where
// the module came from, which is what the origin check relies on.
package installed
