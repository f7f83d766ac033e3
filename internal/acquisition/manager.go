package acquisition

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gamedock/gamedock/internal/debrid"
	"github.com/gamedock/gamedock/internal/download"
	"github.com/gamedock/gamedock/internal/extract"
	"github.com/gamedock/gamedock/internal/library"
	"github.com/gamedock/gamedock/internal/reputation"
	"github.com/gamedock/gamedock/internal/search/types"
)

// Resolver turns magnets and hoster links into direct download URLs.
type Resolver interface {
	Configured() bool
	ResolveMagnet(ctx context.Context, magnet string) (*debrid.ResolvedTorrent, error)
	UnrestrictLink(ctx context.Context, link string) (*debrid.UnrestrictedLink, error)
}

// ReputationChecker looks up torrent hashes against malware intelligence.
type ReputationChecker interface {
	CheckHash(ctx context.Context, hash string) reputation.Verdict
}

// FileDownloader fetches one file to disk.
type FileDownloader interface {
	Download(ctx context.Context, fileURL, destDir string, progress download.ProgressFunc) (string, error)
}

// ArchiveExtractor unpacks one archive.
type ArchiveExtractor interface {
	Extract(ctx context.Context, archivePath, outDir string, progress extract.ProgressFunc) error
}

// ImageMounter attaches and detaches disc images.
type ImageMounter interface {
	Mount(ctx context.Context, isoPath string) (string, error)
	Unmount(ctx context.Context, mountPoint string) error
}

// ProcessCoordinator launches installers and waits for them to exit.
type ProcessCoordinator interface {
	Launch(executablePath string) error
	WaitForExit(ctx context.Context, executableName string) error
}

// InstallVerifier checks whether a game landed in the install root.
// A nil record with a nil error means "not found", an expected outcome.
type InstallVerifier interface {
	Verify(ctx context.Context, gameName string) (*library.InstalledGameRecord, error)
}

// HistoryRecorder persists finished acquisitions.
type HistoryRecorder interface {
	RecordAcquisition(ctx context.Context, rec library.AcquisitionRecord) error
}

// UnmountScheduler retries a busy unmount later, tied to the job id so a
// restart can reconcile leftover mounts.
type UnmountScheduler interface {
	ScheduleUnmountRetry(jobID, mountPoint string)
}

// Broadcaster pushes job events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Event types broadcast over the websocket hub.
const (
	EventJobUpdated  = "acquisition:job"
	EventRiskWarning = "acquisition:risk"
)

// Deps bundles the collaborators of the acquisition manager.
type Deps struct {
	Resolver    Resolver
	Reputation  ReputationChecker
	Downloader  FileDownloader
	Extractor   ArchiveExtractor
	Mounter     ImageMounter
	Processes   ProcessCoordinator
	Verifier    InstallVerifier
	History     HistoryRecorder
	UnmountLate UnmountScheduler
}

// Config tunes the manager.
type Config struct {
	DownloadDir string
}

// StartRequest is the input to Start.
type StartRequest struct {
	GameName  string            `json:"gameName"`
	Candidate types.SearchCandidate `json:"candidate"`
}

// Manager owns the active job set and enforces the one-job-per-game rule.
type Manager struct {
	deps   Deps
	config Config
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*Job // lowercased game name -> job

	broadcaster Broadcaster
}

// NewManager creates the acquisition manager.
func NewManager(deps Deps, config Config, logger zerolog.Logger) *Manager {
	return &Manager{
		deps:   deps,
		config: config,
		logger: logger.With().Str("component", "acquisition").Logger(),
		jobs:   make(map[string]*Job),
	}
}

// SetBroadcaster wires the websocket broadcaster.
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

func jobKey(gameName string) string {
	return strings.ToLower(strings.TrimSpace(gameName))
}

// Start begins an acquisition for a chosen candidate. If a job already
// exists for the game it is returned instead of creating a duplicate; a job
// parked in Error or Cancelled is restarted from its last safe checkpoint.
// A hard-failed job (corrupt or password-protected archive) is not
// restartable: retrying the same artifacts cannot succeed, so the job must
// be removed and the game re-acquired from a different candidate.
func (m *Manager) Start(req StartRequest) (JobView, error) {
	if req.GameName == "" {
		req.GameName = req.Candidate.Title
	}
	if !req.Candidate.HasLink() {
		return JobView{}, ErrNoLink
	}

	m.mu.Lock()

	if existing, ok := m.jobs[jobKey(req.GameName)]; ok {
		status := existing.CurrentStatus()
		if status != StatusError && status != StatusCancelled {
			m.mu.Unlock()
			m.logger.Info().Str("game", req.GameName).Str("status", string(status)).Msg("Attaching to existing job")
			return existing.Snapshot(), nil
		}

		existing.mu.Lock()
		kind := existing.LastErrorKind
		existing.mu.Unlock()
		if status == StatusError && isHardFailure(kind) {
			m.mu.Unlock()
			m.logger.Info().Str("game", req.GameName).Str("kind", string(kind)).Msg("Refusing retry of hard-failed job")
			return JobView{}, ErrWrongState
		}

		// Retry path: relaunch the pipeline on the surviving job.
		m.mu.Unlock()
		return m.restart(existing)
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:          uuid.NewString(),
		GameName:    req.GameName,
		MagnetLink:  req.Candidate.MagnetLink,
		DirectLink:  req.Candidate.DirectLink,
		SourceName:  req.Candidate.SourceName,
		RepackerTag: req.Candidate.Repacker,
		Status:      StatusPreparing,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		cancel:      cancel,
		riskAnsw:    make(chan bool, 1),
	}
	m.jobs[jobKey(req.GameName)] = job
	m.mu.Unlock()

	m.logger.Info().Str("jobId", job.ID).Str("game", job.GameName).Msg("Acquisition started")
	m.broadcastJob(job)

	go m.runPipeline(ctx, job)
	return job.Snapshot(), nil
}

// restart re-enters the pipeline on a failed or cancelled job.
func (m *Manager) restart(job *Job) (JobView, error) {
	ctx, cancel := context.WithCancel(context.Background())

	job.mu.Lock()
	job.cancel = cancel
	job.LastError = ""
	job.LastErrorKind = ErrKindNone
	job.RiskWarning = nil
	job.riskAnsw = make(chan bool, 1)
	job.Status = StatusPreparing
	job.UpdatedAt = time.Now()
	job.mu.Unlock()

	m.logger.Info().Str("jobId", job.ID).Str("game", job.GameName).Msg("Acquisition retried")
	m.broadcastJob(job)

	go m.runPipeline(ctx, job)
	return job.Snapshot(), nil
}

// Get returns a job by id.
func (m *Manager) Get(jobID string) (JobView, error) {
	job := m.findByID(jobID)
	if job == nil {
		return JobView{}, ErrJobNotFound
	}
	return job.Snapshot(), nil
}

// List returns all active jobs.
func (m *Manager) List() []JobView {
	m.mu.Lock()
	defer m.mu.Unlock()

	views := make([]JobView, 0, len(m.jobs))
	for _, job := range m.jobs {
		views = append(views, job.Snapshot())
	}
	return views
}

// ConfirmInstall launches the install phase of a job sitting in
// ReadyToInstall. Nothing advances past ReadyToInstall without this call.
func (m *Manager) ConfirmInstall(jobID string) error {
	job := m.findByID(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	if job.CurrentStatus() != StatusReadyToInstall {
		return ErrWrongState
	}

	ctx, cancel := context.WithCancel(context.Background())
	job.mu.Lock()
	job.cancel = cancel
	job.mu.Unlock()

	m.logger.Info().Str("jobId", job.ID).Str("game", job.GameName).Msg("Install confirmed")
	go m.runInstall(ctx, job)
	return nil
}

// ConfirmRisk answers a pending malicious-hash warning. accept=false
// cancels the job.
func (m *Manager) ConfirmRisk(jobID string, accept bool) error {
	job := m.findByID(jobID)
	if job == nil {
		return ErrJobNotFound
	}

	job.mu.Lock()
	pending := job.RiskWarning != nil && job.Status == StatusPreparing
	answ := job.riskAnsw
	job.mu.Unlock()

	if !pending {
		return ErrWrongState
	}

	select {
	case answ <- accept:
		return nil
	default:
		return ErrWrongState
	}
}

// Cancel requests cancellation of a job. Pipelines notice at their next
// suspension point; a parked job is cancelled immediately. Files are kept
// for a later retry.
func (m *Manager) Cancel(jobID string) error {
	job := m.findByID(jobID)
	if job == nil {
		return ErrJobNotFound
	}

	job.mu.Lock()
	status := job.Status
	cancel := job.cancel
	job.mu.Unlock()

	if status.IsTerminal() {
		return ErrWrongState
	}

	if cancel != nil {
		cancel()
	}
	if status == StatusReadyToInstall {
		// No pipeline goroutine is running to observe the context.
		m.setError(job, ErrUserCancelled)
	}

	m.logger.Info().Str("jobId", job.ID).Str("game", job.GameName).Msg("Cancellation requested")
	return nil
}

// Remove drops a terminal job from the active set.
func (m *Manager) Remove(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, job := range m.jobs {
		if job.ID == jobID {
			if !job.CurrentStatus().IsTerminal() {
				return ErrWrongState
			}
			delete(m.jobs, key)
			return nil
		}
	}
	return ErrJobNotFound
}

func (m *Manager) findByID(jobID string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.ID == jobID {
			return job
		}
	}
	return nil
}

// setStatus performs a validated state transition.
func (m *Manager) setStatus(job *Job, to Status) bool {
	job.mu.Lock()
	from := job.Status
	if !canTransition(from, to) {
		job.mu.Unlock()
		m.logger.Error().
			Str("jobId", job.ID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("Illegal state transition blocked")
		return false
	}
	job.Status = to
	job.UpdatedAt = time.Now()
	job.mu.Unlock()

	m.logger.Info().
		Str("jobId", job.ID).
		Str("game", job.GameName).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Job state changed")
	m.broadcastJob(job)
	return true
}

func (m *Manager) updateProgress(job *Job, percent int, label string) {
	job.mu.Lock()
	job.ProgressPercent = percent
	job.ProgressLabel = label
	job.UpdatedAt = time.Now()
	job.mu.Unlock()
	m.broadcastJob(job)
}

func (m *Manager) broadcastJob(job *Job) {
	if m.broadcaster == nil {
		return
	}
	m.broadcaster.Broadcast(EventJobUpdated, job.Snapshot())
}
