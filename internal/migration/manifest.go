// Package migration implements the Migration Persistence subsystem
// (C11): snapshotting user-changed files and newly installed OS/
// language packages to an external K/V store when the platform
// signals a live migration, and restoring them on the next start
// (spec §4.11). Grounded in the teacher's file_storage.go Redis
// usage, generalized from "generated file artifacts" to "whole-sandbox
// checkpoint".
package migration

import "time"

// ManifestVersion is the schema version of Manifest (spec §3).
const ManifestVersion = 1

// Fixed K/V keys (spec §6.4).
const (
	KeyManifest = "migration-manifest"
	KeyTarball  = "migration-tarball"
)

// Manifest is the versioned record of what a checkpoint captured
// (spec §3).
type Manifest struct {
	Version          int              `json:"version"`
	CreatedAt        time.Time        `json:"createdAt"`
	RunID            string           `json:"runId,omitempty"`
	StartupTimestamp time.Time        `json:"startupTimestamp"`
	Packages         PackageManifest  `json:"packages"`
	ChangedFiles     ChangedManifest  `json:"changedFiles"`
}

// PackageManifest records OS and Python packages installed by the
// user since the base image (spec §4.11 — Node packages are
// deliberately not listed here; they ride along as a changed file,
// package.json, and are reinstalled from it).
type PackageManifest struct {
	Apt []string `json:"apt"`
	Pip []string `json:"pip"`
}

// ChangedManifest records which regular files changed since startup.
type ChangedManifest struct {
	Count     int      `json:"count"`
	TotalSize int64    `json:"totalSize"`
	Paths     []string `json:"paths"`
}
