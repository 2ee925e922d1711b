// Package prompt asks the user to confirm mutating actions.
//
// The Terminal confirmer offers Yes, Yes to All, No and No to All. The
// "to All" answers stick for the rest of the run. When stdin is not a
// terminal nothing is read and every question is declined.
package prompt
