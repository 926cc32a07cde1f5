// Package buildinfo carries the version stamped into the binary with
// -ldflags "-X ember/internal/buildinfo.Version=...".
package buildinfo

// Version is set at build time via -ldflags.
var Version = "dev"

// Commit is set at build time via -ldflags.
var Commit = "unknown"

// Date is set at build time via -ldflags.
var Date = "unknown"

// Short returns a compact build identifier for the window title.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// Long returns the identifier printed in the boot banner.
func Long() string {
	s := Short()
	if Commit != "" && Commit != "unknown" && s != Commit {
		s += " " + Commit
	}
	if Date != "" && Date != "unknown" {
		s += ", built " + Date
	}
	return s
}
