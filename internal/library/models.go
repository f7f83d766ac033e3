// Package library owns the installed-game catalog: the persistent store,
// the install-root scanner, and the post-install verifier.
package library

import "time"

// InstalledGameRecord is one game known to the library.
type InstalledGameRecord struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	InstallDir  string    `json:"installDir"`
	Executable  string    `json:"executable,omitempty"`
	Platform    string    `json:"platform"`
	SizeBytes   int64     `json:"sizeBytes"`
	RepackerTag string    `json:"repackerTag"`
	InstalledAt time.Time `json:"installedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// AcquisitionRecord is one finished acquisition kept for history.
type AcquisitionRecord struct {
	ID           int64     `json:"id"`
	JobID        string    `json:"jobId"`
	GameName     string    `json:"gameName"`
	SourceName   string    `json:"sourceName"`
	RepackerTag  string    `json:"repackerTag"`
	FinalStatus  string    `json:"finalStatus"`
	ErrorKind    string    `json:"errorKind,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	SizeBytes    int64     `json:"sizeBytes"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
}
