package acquisition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gamedock/gamedock/internal/extract"
	"github.com/gamedock/gamedock/internal/library"
	"github.com/gamedock/gamedock/internal/mount"
	"github.com/gamedock/gamedock/internal/procwait"
)

// runPipeline drives a job from Preparing to ReadyToInstall. Stages are
// strictly sequential and the context is checked at every suspension
// boundary so cancellation lands at the next checkpoint instead of tearing
// an operation apart mid-flight.
func (m *Manager) runPipeline(ctx context.Context, job *Job) {
	// Resume from the last safe checkpoint on retry.
	job.mu.Lock()
	extracted := job.ExtractedDir
	downloaded := len(job.DownloadedFilePaths) > 0
	job.mu.Unlock()

	if extracted != "" {
		m.finishExtraction(job)
		return
	}

	var files []string
	if downloaded {
		job.mu.Lock()
		files = append(files, job.DownloadedFilePaths...)
		job.mu.Unlock()
	} else {
		urls, err := m.prepare(ctx, job)
		if err != nil {
			m.setError(job, err)
			return
		}
		if !m.setStatus(job, StatusDownloading) {
			return
		}
		files, err = m.downloadAll(ctx, job, urls)
		if err != nil {
			m.setError(job, err)
			return
		}
	}

	if !m.setStatus(job, StatusExtracting) {
		return
	}
	if err := m.extractAll(ctx, job, files); err != nil {
		m.setError(job, err)
		return
	}

	m.finishExtraction(job)
}

// prepare resolves the candidate's link into direct download URLs and runs
// the one-time reputation gate.
func (m *Manager) prepare(ctx context.Context, job *Job) ([]string, error) {
	m.updateProgress(job, 0, "Resolving download links")

	job.mu.Lock()
	magnet, direct := job.MagnetLink, job.DirectLink
	job.mu.Unlock()

	var restricted []string
	if magnet != "" {
		resolved, err := m.deps.Resolver.ResolveMagnet(ctx, magnet)
		if err != nil {
			return nil, err
		}
		if err := m.reputationGate(ctx, job, resolved.Hash); err != nil {
			return nil, err
		}
		restricted = resolved.Links
	} else {
		restricted = []string{direct}
	}

	urls := make([]string, 0, len(restricted))
	for _, link := range restricted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		unrestricted, err := m.deps.Resolver.UnrestrictLink(ctx, link)
		if err != nil {
			return nil, err
		}
		urls = append(urls, unrestricted.URL)
	}
	return urls, nil
}

// reputationGate checks the torrent hash once per job. A positive hit
// pauses the pipeline until the user explicitly accepts the risk; declining
// cancels the job.
func (m *Manager) reputationGate(ctx context.Context, job *Job, hash string) error {
	verdict := m.deps.Reputation.CheckHash(ctx, hash)
	if !verdict.Malicious {
		return nil
	}

	job.mu.Lock()
	job.RiskWarning = &RiskWarning{Hash: hash, Detections: verdict.Detections}
	answ := job.riskAnsw
	job.mu.Unlock()

	m.logger.Warn().
		Str("jobId", job.ID).
		Str("hash", hash).
		Int("detections", verdict.Detections).
		Msg("Malicious hash detected, awaiting user confirmation")
	if m.broadcaster != nil {
		m.broadcaster.Broadcast(EventRiskWarning, job.Snapshot())
	}

	select {
	case accept := <-answ:
		job.mu.Lock()
		if accept {
			job.RiskWarning = nil
		}
		job.mu.Unlock()
		if !accept {
			return ErrUserCancelled
		}
		m.logger.Info().Str("jobId", job.ID).Msg("User accepted flagged torrent")
		return nil
	case <-ctx.Done():
		return ErrUserCancelled
	}
}

// downloadAll fetches every resolved file sequentially. One failed file
// aborts the whole job; a half-downloaded set is never presented as ready.
func (m *Manager) downloadAll(ctx context.Context, job *Job, urls []string) ([]string, error) {
	destDir := filepath.Join(m.config.DownloadDir, job.ID)

	files := make([]string, 0, len(urls))
	for i, fileURL := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fileIdx := i
		path, err := m.deps.Downloader.Download(ctx, fileURL, destDir, func(done, total int64) {
			pct := 0
			if total > 0 {
				pct = int(done * 100 / total)
			}
			m.updateProgress(job, pct, fmt.Sprintf("Downloading file %d/%d", fileIdx+1, len(urls)))
		})
		if err != nil {
			return nil, err
		}

		files = append(files, path)
		job.mu.Lock()
		job.DownloadedFilePaths = append(job.DownloadedFilePaths, path)
		job.mu.Unlock()
		m.broadcastJob(job)
	}
	return files, nil
}

// extractAll unpacks the primary archive, runs one nested-archive pass, and
// detects whether the payload installs directly or via a mounted ISO.
func (m *Manager) extractAll(ctx context.Context, job *Job, files []string) error {
	var primary string
	for _, f := range files {
		if extract.IsArchive(f) {
			primary = f
			break
		}
	}

	if primary == "" {
		// A bare ISO download skips extraction entirely.
		for _, f := range files {
			if strings.EqualFold(filepath.Ext(f), ".iso") {
				job.mu.Lock()
				job.IsoPath = f
				job.mu.Unlock()
				return nil
			}
		}
		return extract.ErrUnsupportedFormat
	}

	outDir := filepath.Join(m.config.DownloadDir, job.ID, "extracted")
	onProgress := func(pct int) {
		m.updateProgress(job, pct, "Extracting archive")
	}
	if err := m.deps.Extractor.Extract(ctx, primary, outDir, onProgress); err != nil {
		return err
	}

	// Repacks sometimes nest the real payload one archive deeper.
	if nested, err := extract.FindNestedArchive(outDir); err == nil && nested != "" {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.logger.Info().Str("jobId", job.ID).Str("nested", nested).Msg("Extracting nested archive")
		if err := m.deps.Extractor.Extract(ctx, nested, outDir, onProgress); err != nil {
			return err
		}
	}

	job.mu.Lock()
	job.ExtractedDir = outDir
	job.mu.Unlock()

	if iso, err := extract.FindISO(outDir); err == nil && iso != "" {
		job.mu.Lock()
		job.IsoPath = iso
		job.mu.Unlock()
		return nil
	}
	if installer, err := extract.FindInstaller(outDir); err == nil && installer != "" {
		job.mu.Lock()
		job.InstallerPath = installer
		job.mu.Unlock()
	}
	return nil
}

// finishExtraction parks the job in ReadyToInstall. Launching an installer
// is a user-confirmed action; nothing advances past here on its own.
func (m *Manager) finishExtraction(job *Job) {
	if !m.setStatus(job, StatusReadyToInstall) {
		return
	}
	m.updateProgress(job, 100, "Ready to install")
}

// runInstall drives the user-confirmed install phase through to Completed
// or back to ReadyToInstall.
func (m *Manager) runInstall(ctx context.Context, job *Job) {
	job.mu.Lock()
	isoPath := job.IsoPath
	mountPoint := job.IsoMountPoint
	installer := job.InstallerPath
	job.mu.Unlock()

	var softErr error

	if isoPath != "" {
		if !m.setStatus(job, StatusMountingISO) {
			return
		}
		if mountPoint == "" {
			mp, err := m.deps.Mounter.Mount(ctx, isoPath)
			if err != nil {
				m.setError(job, err)
				return
			}
			mountPoint = mp
			job.mu.Lock()
			job.IsoMountPoint = mp
			job.mu.Unlock()
		}
		if !m.setStatus(job, StatusMountedISO) {
			return
		}

		isoInstaller, err := extract.FindInstaller(mountPoint)
		if err == nil && isoInstaller != "" {
			installer = isoInstaller
		}
		if installer == "" {
			m.setError(job, ErrNoInstallerFound)
			return
		}
		if !m.setStatus(job, StatusInstallingFromISO) {
			return
		}
		softErr = m.launchAndWait(ctx, job, installer)
	} else {
		if installer == "" {
			m.setError(job, ErrNoInstallerFound)
			return
		}
		if !m.setStatus(job, StatusInstalling) {
			return
		}
		softErr = m.launchAndWait(ctx, job, installer)
	}

	if softErr != nil && !errors.Is(softErr, procwait.ErrWaitTimeout) {
		m.setError(job, softErr)
		return
	}

	if !m.setStatus(job, StatusVerifyingInstallation) {
		return
	}
	m.verifyAndFinish(ctx, job, softErr)
}

// launchAndWait starts the installer and waits for its process to exit.
// A wait timeout comes back as procwait.ErrWaitTimeout: the installer may
// still be running, so the caller proceeds to verification and lets the
// rescan decide.
func (m *Manager) launchAndWait(ctx context.Context, job *Job, installer string) error {
	job.mu.Lock()
	job.InstallerPath = installer
	job.mu.Unlock()
	m.updateProgress(job, 0, "Waiting for installer to finish")

	if err := m.deps.Processes.Launch(installer); err != nil {
		return err
	}
	return m.deps.Processes.WaitForExit(ctx, filepath.Base(installer))
}

// verifyAndFinish rescans the install root. Success completes the job and
// triggers cleanup; absence reverts to ReadyToInstall with all artifacts
// preserved for a retry.
func (m *Manager) verifyAndFinish(ctx context.Context, job *Job, waitErr error) {
	record, err := m.deps.Verifier.Verify(ctx, job.GameName)
	if err != nil {
		m.setError(job, err)
		return
	}

	if record == nil {
		m.unmountIfNeeded(job)

		job.mu.Lock()
		if waitErr != nil {
			job.LastError = "Installer still running when the wait timed out; install not verified yet"
			job.LastErrorKind = ErrKindProcessWaitTimeout
		} else {
			job.LastError = "Game did not appear in the install folder"
			job.LastErrorKind = ErrKindVerificationFailed
		}
		job.mu.Unlock()

		m.logger.Warn().Str("jobId", job.ID).Str("game", job.GameName).Msg("Installation not verified, reverting")
		m.setStatus(job, StatusReadyToInstall)
		return
	}

	m.unmountIfNeeded(job)
	m.cleanup(job, record)

	if !m.setStatus(job, StatusCompleted) {
		return
	}
	m.updateProgress(job, 100, "Installed")
	m.recordHistory(job, StatusCompleted, ErrKindNone, "")

	// The job leaves the active set only now that cleanup has run.
	m.mu.Lock()
	delete(m.jobs, jobKey(job.GameName))
	m.mu.Unlock()

	m.logger.Info().
		Str("jobId", job.ID).
		Str("game", job.GameName).
		Str("installDir", record.InstallDir).
		Msg("Acquisition completed")
}

// cleanup deletes the downloaded files and extraction directory. The
// verified install directory is never touched. Runs only on verified
// success; every other outcome keeps the artifacts for a retry.
func (m *Manager) cleanup(job *Job, record *library.InstalledGameRecord) {
	job.mu.Lock()
	files := append([]string(nil), job.DownloadedFilePaths...)
	extractedDir := job.ExtractedDir
	job.mu.Unlock()

	for _, f := range files {
		if f == record.InstallDir {
			continue
		}
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			m.logger.Warn().Err(err).Str("file", f).Msg("Failed to delete downloaded file")
		}
	}
	if extractedDir != "" && extractedDir != record.InstallDir {
		if err := os.RemoveAll(extractedDir); err != nil {
			m.logger.Warn().Err(err).Str("dir", extractedDir).Msg("Failed to delete extraction directory")
		}
	}

	// The per-job directory should be empty now. os.Remove refuses a
	// non-empty directory, so anything unexpected in there survives.
	jobDir := filepath.Join(m.config.DownloadDir, job.ID)
	if jobDir != record.InstallDir {
		if err := os.Remove(jobDir); err != nil && !os.IsNotExist(err) {
			m.logger.Debug().Err(err).Str("dir", jobDir).Msg("Job download directory not removed")
		}
	}

	job.mu.Lock()
	job.DownloadedFilePaths = nil
	job.ExtractedDir = ""
	job.mu.Unlock()
}

// unmountIfNeeded detaches the job's ISO. A busy image is handed to the
// scheduler for a later retry instead of blocking the job.
func (m *Manager) unmountIfNeeded(job *Job) {
	job.mu.Lock()
	mountPoint := job.IsoMountPoint
	job.mu.Unlock()
	if mountPoint == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := m.deps.Mounter.Unmount(ctx, mountPoint)
	if errors.Is(err, mount.ErrMountBusy) {
		m.logger.Warn().Str("jobId", job.ID).Str("mountPoint", mountPoint).Msg("Image busy, scheduling unmount retry")
		if m.deps.UnmountLate != nil {
			m.deps.UnmountLate.ScheduleUnmountRetry(job.ID, mountPoint)
		}
		return
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("jobId", job.ID).Msg("Unmount failed")
		return
	}

	job.mu.Lock()
	job.IsoMountPoint = ""
	job.mu.Unlock()
}

// setError parks the job in Error or Cancelled with a classified cause.
func (m *Manager) setError(job *Job, cause error) {
	kind := classifyError(cause)

	job.mu.Lock()
	job.LastError = cause.Error()
	job.LastErrorKind = kind
	job.mu.Unlock()

	target := StatusError
	if kind == ErrKindUserCancelled {
		target = StatusCancelled
	}

	m.logger.Error().
		Err(cause).
		Str("jobId", job.ID).
		Str("game", job.GameName).
		Str("kind", string(kind)).
		Bool("retryable", !isHardFailure(kind)).
		Msg("Acquisition failed")

	m.setStatus(job, target)
	m.recordHistory(job, target, kind, cause.Error())
}

func (m *Manager) recordHistory(job *Job, final Status, kind ErrorKind, message string) {
	if m.deps.History == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := library.AcquisitionRecord{
		JobID:       job.ID,
		GameName:    job.GameName,
		SourceName:  job.SourceName,
		RepackerTag: string(job.RepackerTag),
		FinalStatus: string(final),
		ErrorKind:   string(kind),
		ErrorMessage: message,
		StartedAt:   job.CreatedAt,
	}
	if err := m.deps.History.RecordAcquisition(ctx, rec); err != nil {
		m.logger.Warn().Err(err).Str("jobId", job.ID).Msg("Failed to record acquisition history")
	}
}
