// Package acquisition drives a chosen search candidate through download,
// extraction, installation, and verification as an explicit state machine.
package acquisition

import (
	"sync"
	"time"

	"github.com/gamedock/gamedock/internal/search/types"
)

// Status is the closed set of acquisition states.
type Status string

const (
	StatusPreparing             Status = "Preparing"
	StatusDownloading           Status = "Downloading"
	StatusExtracting            Status = "Extracting"
	StatusReadyToInstall        Status = "ReadyToInstall"
	StatusMountingISO           Status = "MountingISO"
	StatusMountedISO            Status = "MountedISO"
	StatusInstallingFromISO     Status = "InstallingFromISO"
	StatusInstalling            Status = "Installing"
	StatusVerifyingInstallation Status = "VerifyingInstallation"
	StatusCompleted             Status = "Completed"
	StatusError                 Status = "Error"
	StatusCancelled             Status = "Cancelled"
)

// validTransitions is the state machine's transition table. Cancelled and
// Error are reachable from any non-terminal state and are handled in
// canTransition rather than listed per state.
var validTransitions = map[Status][]Status{
	StatusPreparing:             {StatusDownloading},
	StatusDownloading:           {StatusExtracting},
	StatusExtracting:            {StatusReadyToInstall},
	StatusReadyToInstall:        {StatusMountingISO, StatusInstalling},
	StatusMountingISO:           {StatusMountedISO},
	StatusMountedISO:            {StatusInstallingFromISO},
	StatusInstallingFromISO:     {StatusVerifyingInstallation},
	StatusInstalling:            {StatusVerifyingInstallation},
	StatusVerifyingInstallation: {StatusCompleted, StatusReadyToInstall},
	StatusError:                 {StatusPreparing},
	StatusCancelled:             {StatusPreparing},
	StatusCompleted:             {},
}

// IsTerminal reports whether no further automatic progress happens from
// this state. Error and Cancelled are terminal for the pipeline but the job
// remains retryable.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// canTransition reports whether from -> to is a legal state change.
func canTransition(from, to Status) bool {
	if to == StatusCancelled || to == StatusError {
		return !from.IsTerminal()
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job is the unit of state for one in-flight acquisition. Mutable fields
// are guarded by mu; Snapshot returns a copy safe to serialize.
type Job struct {
	mu sync.Mutex

	ID          string
	GameName    string
	MagnetLink  string
	DirectLink  string
	SourceName  string
	RepackerTag types.RepackerTag

	Status              Status
	DownloadedFilePaths []string
	ExtractedDir        string
	IsoPath             string
	IsoMountPoint       string
	InstallerPath       string
	ProgressPercent     int
	ProgressLabel       string
	LastError           string
	LastErrorKind       ErrorKind

	// RiskWarning is set when the reputation check flagged the torrent;
	// the pipeline halts until the user confirms or declines.
	RiskWarning *RiskWarning

	CreatedAt time.Time
	UpdatedAt time.Time

	cancel   func()
	riskAnsw chan bool
}

// RiskWarning describes a positive malware-reputation hit awaiting an
// explicit user decision.
type RiskWarning struct {
	Hash       string `json:"hash"`
	Detections int    `json:"detections"`
}

// JobView is the JSON projection of a job.
type JobView struct {
	ID                  string            `json:"id"`
	GameName            string            `json:"gameName"`
	MagnetLink          string            `json:"magnetLink,omitempty"`
	DirectLink          string            `json:"directLink,omitempty"`
	SourceName          string            `json:"sourceName,omitempty"`
	RepackerTag         types.RepackerTag `json:"repackerTag,omitempty"`
	Status              Status            `json:"status"`
	DownloadedFilePaths []string          `json:"downloadedFilePaths,omitempty"`
	ExtractedDir        string            `json:"extractedDir,omitempty"`
	IsoPath             string            `json:"isoPath,omitempty"`
	IsoMountPoint       string            `json:"isoMountPoint,omitempty"`
	InstallerPath       string            `json:"installerPath,omitempty"`
	ProgressPercent     int               `json:"progressPercent"`
	ProgressLabel       string            `json:"progressLabel,omitempty"`
	LastError           string            `json:"lastError,omitempty"`
	LastErrorKind       ErrorKind         `json:"lastErrorKind,omitempty"`
	RiskWarning         *RiskWarning      `json:"riskWarning,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// Snapshot returns a copy of the job's current state.
func (j *Job) Snapshot() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()

	paths := make([]string, len(j.DownloadedFilePaths))
	copy(paths, j.DownloadedFilePaths)

	return JobView{
		ID:                  j.ID,
		GameName:            j.GameName,
		MagnetLink:          j.MagnetLink,
		DirectLink:          j.DirectLink,
		SourceName:          j.SourceName,
		RepackerTag:         j.RepackerTag,
		Status:              j.Status,
		DownloadedFilePaths: paths,
		ExtractedDir:        j.ExtractedDir,
		IsoPath:             j.IsoPath,
		IsoMountPoint:       j.IsoMountPoint,
		InstallerPath:       j.InstallerPath,
		ProgressPercent:     j.ProgressPercent,
		ProgressLabel:       j.ProgressLabel,
		LastError:           j.LastError,
		LastErrorKind:       j.LastErrorKind,
		RiskWarning:         j.RiskWarning,
		CreatedAt:           j.CreatedAt,
		UpdatedAt:           j.UpdatedAt,
	}
}

// CurrentStatus returns the job's status under the lock.
func (j *Job) CurrentStatus() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}
