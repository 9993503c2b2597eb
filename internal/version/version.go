// Package version carries the build version stamped via ldflags.
package version

// Version is overridden at release build time with
// -ldflags "-X github.com/upcall/upcall-cli/internal/version.Version=x.y.z".
var Version = "dev"
