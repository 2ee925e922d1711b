// Package config defines modsync settings and provides helpers to load,
// validate and save them in YAML format.
//
// The Config type names the trusted repository, the module roots for both
// install scopes, the package cache and the default module list.
package config
