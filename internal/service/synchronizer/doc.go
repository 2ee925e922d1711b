// Package synchronizer checks, installs and updates modules from the trusted repository.
//
// Modules are processed one at a time. Every module goes through the same
// steps: list local versions, then either plan an install or check the
// origin and plan an update against the latest repository version. A
// planned change is applied only after confirmation, which the force mode
// grants and the dry-run mode withholds. A failed module never stops the
// ones after it.
package synchronizer
