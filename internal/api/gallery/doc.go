// Package gallery talks to the PowerShell Gallery.
//
// Client queries the NuGet v2 OData feed for the latest stable version of a
// module and downloads its package. Installer turns a downloaded package
// into an installed module: the archive is written to the cache with its
// SHA512 digest verified, extracted into the module root of the requested
// scope, and an install receipt is recorded for later origin checks.
package gallery
