// Package common holds shared service identity and logging setup used by
// every binary in this repository.
package common

// PackageName identifies this service in metrics and log output.
const PackageName = "media-storage-backend"

// Version is set at build time via -ldflags.
var Version = "dev"
