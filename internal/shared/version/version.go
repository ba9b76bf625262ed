// Package version carries the build version, set with
// -ldflags "-X pyscan/internal/shared/version.Version=...".
package version

var Version = "dev"
