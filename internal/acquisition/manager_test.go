package acquisition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamedock/gamedock/internal/debrid"
	"github.com/gamedock/gamedock/internal/download"
	"github.com/gamedock/gamedock/internal/extract"
	"github.com/gamedock/gamedock/internal/library"
	"github.com/gamedock/gamedock/internal/procwait"
	"github.com/gamedock/gamedock/internal/reputation"
	"github.com/gamedock/gamedock/internal/search/types"
)

type fakeResolver struct {
	hash string
	err  error
}

func (f *fakeResolver) Configured() bool { return true }

func (f *fakeResolver) ResolveMagnet(_ context.Context, _ string) (*debrid.ResolvedTorrent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &debrid.ResolvedTorrent{Links: []string{"https://hoster/payload"}, Hash: f.hash}, nil
}

func (f *fakeResolver) UnrestrictLink(_ context.Context, link string) (*debrid.UnrestrictedLink, error) {
	return &debrid.UnrestrictedLink{URL: link + "/direct", Filename: "payload.rar"}, nil
}

type fakeReputation struct {
	verdict reputation.Verdict
}

func (f *fakeReputation) CheckHash(_ context.Context, _ string) reputation.Verdict {
	return f.verdict
}

// fakeDownloader writes a small archive file and can block to keep a job
// in Downloading while a test pokes at the manager.
type fakeDownloader struct {
	gate chan struct{}
	err  error
}

func (f *fakeDownloader) Download(ctx context.Context, _, destDir string, progress download.ProgressFunc) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, "payload.rar")
	if err := os.WriteFile(path, []byte("archive"), 0o640); err != nil {
		return "", err
	}
	if progress != nil {
		progress(7, 7)
	}
	return path, nil
}

// fakeExtractor populates the output directory with either an installer or
// an ISO, standing in for the external archive tool.
type fakeExtractor struct {
	makeISO bool
	err     error
}

func (f *fakeExtractor) Extract(_ context.Context, _, outDir string, progress extract.ProgressFunc) error {
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return err
	}
	name := "setup.exe"
	if f.makeISO {
		name = "game.iso"
	}
	if err := os.WriteFile(filepath.Join(outDir, name), []byte("payload"), 0o640); err != nil {
		return err
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

type fakeMounter struct {
	mu         sync.Mutex
	mountDir   string
	mountCalls int
	unmounts   []string
	busy       bool
}

func (f *fakeMounter) Mount(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mountCalls++
	if err := os.MkdirAll(f.mountDir, 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(f.mountDir, "setup.exe"), []byte("installer"), 0o640); err != nil {
		return "", err
	}
	return f.mountDir, nil
}

func (f *fakeMounter) Unmount(_ context.Context, mountPoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unmounts = append(f.unmounts, mountPoint)
	if f.busy {
		return errors.New("mount: image is busy")
	}
	return nil
}

func (f *fakeMounter) unmountCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unmounts)
}

type fakeProcs struct {
	mu       sync.Mutex
	launched []string
	waitErr  error
}

func (f *fakeProcs) Launch(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launched = append(f.launched, path)
	return nil
}

func (f *fakeProcs) WaitForExit(_ context.Context, _ string) error {
	return f.waitErr
}

type fakeVerifier struct {
	mu     sync.Mutex
	record *library.InstalledGameRecord
	calls  int
}

func (f *fakeVerifier) Verify(_ context.Context, _ string) (*library.InstalledGameRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.record, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records []library.AcquisitionRecord
}

func (f *fakeHistory) RecordAcquisition(_ context.Context, rec library.AcquisitionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

type testRig struct {
	manager   *Manager
	resolver  *fakeResolver
	mounter   *fakeMounter
	procs     *fakeProcs
	verifier  *fakeVerifier
	history   *fakeHistory
	extractor *fakeExtractor
}

func newTestRig(t *testing.T, mutate func(*testRig)) *testRig {
	t.Helper()
	rig := &testRig{
		resolver:  &fakeResolver{hash: "abc123"},
		mounter:   &fakeMounter{mountDir: filepath.Join(t.TempDir(), "mnt")},
		procs:     &fakeProcs{},
		verifier:  &fakeVerifier{},
		history:   &fakeHistory{},
		extractor: &fakeExtractor{},
	}
	if mutate != nil {
		mutate(rig)
	}
	rig.manager = NewManager(Deps{
		Resolver:   rig.resolver,
		Reputation: &fakeReputation{},
		Downloader: &fakeDownloader{},
		Extractor:  rig.extractor,
		Mounter:    rig.mounter,
		Processes:  rig.procs,
		Verifier:   rig.verifier,
		History:    rig.history,
	}, Config{DownloadDir: t.TempDir()}, zerolog.Nop())
	return rig
}

func startJob(t *testing.T, m *Manager, gameName string) JobView {
	t.Helper()
	view, err := m.Start(StartRequest{
		GameName: gameName,
		Candidate: types.SearchCandidate{
			Title:      gameName,
			MagnetLink: "magnet:?xt=urn:btih:abc123",
			SourceName: "fitgirl",
		},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return view
}

func waitForStatus(t *testing.T, m *Manager, jobID string, want Status) JobView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last JobView
	for time.Now().Before(deadline) {
		view, err := m.Get(jobID)
		if err == nil {
			last = view
			if view.Status == want {
				return view
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job never reached %s, last seen: %+v", want, last)
	return JobView{}
}

func waitForRemoval(t *testing.T, m *Manager, jobID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := m.Get(jobID); errors.Is(err, ErrJobNotFound) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never left the active set", jobID)
}

func TestStartRejectsLinklessCandidate(t *testing.T) {
	rig := newTestRig(t, nil)
	_, err := rig.manager.Start(StartRequest{
		GameName:  "Hollow Knight",
		Candidate: types.SearchCandidate{Title: "Hollow Knight"},
	})
	if !errors.Is(err, ErrNoLink) {
		t.Fatalf("got %v, want ErrNoLink", err)
	}
}

func TestOneJobPerGameName(t *testing.T) {
	blocker := &fakeDownloader{gate: make(chan struct{})}
	rig := newTestRig(t, nil)
	rig.manager.deps.Downloader = blocker

	first := startJob(t, rig.manager, "Hollow Knight")
	waitForStatus(t, rig.manager, first.ID, StatusDownloading)

	// Same name, different case: must attach, not duplicate.
	second, err := rig.manager.Start(StartRequest{
		GameName: "hollow knight",
		Candidate: types.SearchCandidate{
			Title:      "hollow knight",
			MagnetLink: "magnet:?xt=urn:btih:other",
		},
	})
	if err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second start created a new job: %s vs %s", second.ID, first.ID)
	}
	if len(rig.manager.List()) != 1 {
		t.Fatalf("active set holds %d jobs, want 1", len(rig.manager.List()))
	}

	close(blocker.gate)
}

func TestPipelineStopsAtReadyToInstall(t *testing.T) {
	rig := newTestRig(t, nil)

	view := startJob(t, rig.manager, "Hollow Knight")
	ready := waitForStatus(t, rig.manager, view.ID, StatusReadyToInstall)

	if ready.InstallerPath == "" {
		t.Error("installer not detected during extraction")
	}
	if len(ready.DownloadedFilePaths) != 1 {
		t.Errorf("downloaded files not tracked: %+v", ready.DownloadedFilePaths)
	}

	// No auto-advance: the job must still be parked after a pause.
	time.Sleep(50 * time.Millisecond)
	if got, _ := rig.manager.Get(view.ID); got.Status != StatusReadyToInstall {
		t.Errorf("job advanced without confirmation to %s", got.Status)
	}
	if len(rig.procs.launched) != 0 {
		t.Errorf("installer launched without confirmation: %v", rig.procs.launched)
	}
}

func TestVerificationGating(t *testing.T) {
	// Verifier never finds the game: the job must settle back in
	// ReadyToInstall and keep its artifacts.
	rig := newTestRig(t, nil)

	view := startJob(t, rig.manager, "Hollow Knight")
	ready := waitForStatus(t, rig.manager, view.ID, StatusReadyToInstall)

	if err := rig.manager.ConfirmInstall(view.ID); err != nil {
		t.Fatalf("ConfirmInstall failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := rig.manager.Get(view.ID)
		if err != nil {
			t.Fatalf("job vanished: %v", err)
		}
		if got.Status == StatusCompleted {
			t.Fatal("job completed without a verified install")
		}
		if got.Status == StatusReadyToInstall && got.LastErrorKind == ErrKindVerificationFailed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got, _ := rig.manager.Get(view.ID)
	if got.Status != StatusReadyToInstall {
		t.Fatalf("job in %s, want ReadyToInstall", got.Status)
	}
	for _, f := range ready.DownloadedFilePaths {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("downloaded file deleted on unverified install: %s", f)
		}
	}
	if _, err := os.Stat(ready.ExtractedDir); err != nil {
		t.Errorf("extracted dir deleted on unverified install: %s", ready.ExtractedDir)
	}
	if rig.verifier.calls == 0 {
		t.Error("verifier never consulted")
	}
}

func TestCleanupOnlyOnVerifiedSuccess(t *testing.T) {
	installDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(installDir, "game.exe"), []byte("game"), 0o640); err != nil {
		t.Fatal(err)
	}

	rig := newTestRig(t, func(r *testRig) {
		r.verifier.record = &library.InstalledGameRecord{
			Name:       "Hollow Knight",
			InstallDir: installDir,
		}
	})

	view := startJob(t, rig.manager, "Hollow Knight")
	ready := waitForStatus(t, rig.manager, view.ID, StatusReadyToInstall)

	if err := rig.manager.ConfirmInstall(view.ID); err != nil {
		t.Fatalf("ConfirmInstall failed: %v", err)
	}
	waitForRemoval(t, rig.manager, view.ID)

	for _, f := range ready.DownloadedFilePaths {
		if _, err := os.Stat(f); !os.IsNotExist(err) {
			t.Errorf("downloaded file survived cleanup: %s", f)
		}
	}
	if _, err := os.Stat(ready.ExtractedDir); !os.IsNotExist(err) {
		t.Errorf("extracted dir survived cleanup: %s", ready.ExtractedDir)
	}
	jobDir := filepath.Dir(ready.ExtractedDir)
	if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
		t.Errorf("empty job directory survived cleanup: %s", jobDir)
	}
	if _, err := os.Stat(filepath.Join(installDir, "game.exe")); err != nil {
		t.Errorf("install dir was touched by cleanup: %v", err)
	}

	rig.history.mu.Lock()
	defer rig.history.mu.Unlock()
	if len(rig.history.records) != 1 || rig.history.records[0].FinalStatus != string(StatusCompleted) {
		t.Errorf("history not recorded: %+v", rig.history.records)
	}
}

func TestISOInstallFlow(t *testing.T) {
	installDir := t.TempDir()
	rig := newTestRig(t, func(r *testRig) {
		r.extractor.makeISO = true
		r.verifier.record = &library.InstalledGameRecord{
			Name:       "Old Classic",
			InstallDir: installDir,
		}
	})

	view := startJob(t, rig.manager, "Old Classic")
	ready := waitForStatus(t, rig.manager, view.ID, StatusReadyToInstall)

	if ready.IsoPath == "" {
		t.Fatal("ISO not detected during extraction")
	}

	if err := rig.manager.ConfirmInstall(view.ID); err != nil {
		t.Fatalf("ConfirmInstall failed: %v", err)
	}
	waitForRemoval(t, rig.manager, view.ID)

	rig.mounter.mu.Lock()
	mountCalls := rig.mounter.mountCalls
	rig.mounter.mu.Unlock()
	if mountCalls != 1 {
		t.Errorf("mount called %d times, want 1", mountCalls)
	}
	if rig.mounter.unmountCount() != 1 {
		t.Errorf("unmount called %d times, want 1", rig.mounter.unmountCount())
	}

	rig.procs.mu.Lock()
	defer rig.procs.mu.Unlock()
	if len(rig.procs.launched) != 1 {
		t.Fatalf("installer launched %d times, want 1", len(rig.procs.launched))
	}
	if filepath.Base(rig.procs.launched[0]) != "setup.exe" {
		t.Errorf("wrong installer launched: %s", rig.procs.launched[0])
	}
}

func TestISOVerificationFailureUnmountsAndReverts(t *testing.T) {
	rig := newTestRig(t, func(r *testRig) {
		r.extractor.makeISO = true
		// verifier.record stays nil: never verified
	})

	view := startJob(t, rig.manager, "Old Classic")
	ready := waitForStatus(t, rig.manager, view.ID, StatusReadyToInstall)
	if ready.IsoPath == "" {
		t.Fatal("ISO not detected during extraction")
	}

	if err := rig.manager.ConfirmInstall(view.ID); err != nil {
		t.Fatalf("ConfirmInstall failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := rig.manager.Get(view.ID)
		if got.Status == StatusReadyToInstall && got.LastErrorKind == ErrKindVerificationFailed {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	got, _ := rig.manager.Get(view.ID)
	if got.Status != StatusReadyToInstall {
		t.Fatalf("job in %s, want ReadyToInstall", got.Status)
	}
	if got.IsoPath == "" {
		t.Error("isoPath lost on verification failure")
	}
	if got.IsoMountPoint != "" {
		t.Error("mount point not cleared after unmount")
	}
	if rig.mounter.unmountCount() != 1 {
		t.Errorf("unmount called %d times, want 1", rig.mounter.unmountCount())
	}
}

func TestProcessWaitTimeoutIsSoft(t *testing.T) {
	rig := newTestRig(t, func(r *testRig) {
		r.procs.waitErr = procwait.ErrWaitTimeout
	})

	view := startJob(t, rig.manager, "Hollow Knight")
	waitForStatus(t, rig.manager, view.ID, StatusReadyToInstall)

	if err := rig.manager.ConfirmInstall(view.ID); err != nil {
		t.Fatalf("ConfirmInstall failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := rig.manager.Get(view.ID)
		if got.Status == StatusError {
			t.Fatal("wait timeout hard-failed the job")
		}
		if got.Status == StatusReadyToInstall && got.LastErrorKind == ErrKindProcessWaitTimeout {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, _ := rig.manager.Get(view.ID)
	t.Fatalf("job never reverted with soft timeout, last: %+v", got)
}

func TestCorruptArchiveIsHardFailure(t *testing.T) {
	rig := newTestRig(t, func(r *testRig) {
		r.extractor.err = extract.ErrCorrupt
	})

	view := startJob(t, rig.manager, "Hollow Knight")
	got := waitForStatus(t, rig.manager, view.ID, StatusError)

	if got.LastErrorKind != ErrKindArchiveCorrupt {
		t.Errorf("error kind = %s, want ArchiveCorrupt", got.LastErrorKind)
	}
	if !isHardFailure(got.LastErrorKind) {
		t.Error("corrupt archive must be terminal without retry")
	}
}

func TestHardFailureBlocksRetry(t *testing.T) {
	rig := newTestRig(t, func(r *testRig) {
		r.extractor.err = extract.ErrPasswordProtected
	})

	view := startJob(t, rig.manager, "Hollow Knight")
	got := waitForStatus(t, rig.manager, view.ID, StatusError)
	if got.LastErrorKind != ErrKindPasswordProtected {
		t.Fatalf("error kind = %s, want PasswordProtected", got.LastErrorKind)
	}

	// The same artifacts cannot succeed on a second pass.
	_, err := rig.manager.Start(StartRequest{
		GameName: "Hollow Knight",
		Candidate: types.SearchCandidate{
			Title:      "Hollow Knight",
			MagnetLink: "magnet:?xt=urn:btih:abc123",
		},
	})
	if !errors.Is(err, ErrWrongState) {
		t.Fatalf("got %v, want ErrWrongState", err)
	}

	// Removing the dead job and starting over with a working candidate must
	// produce a fresh job.
	if err := rig.manager.Remove(view.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	rig.extractor.err = nil

	fresh := startJob(t, rig.manager, "Hollow Knight")
	if fresh.ID == view.ID {
		t.Fatal("restart reused the hard-failed job")
	}
	waitForStatus(t, rig.manager, fresh.ID, StatusReadyToInstall)
}

func TestSoftFailureAllowsRetry(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.manager.deps.Downloader = &fakeDownloader{err: download.ErrDownloadFailed}

	view := startJob(t, rig.manager, "Hollow Knight")
	got := waitForStatus(t, rig.manager, view.ID, StatusError)
	if got.LastErrorKind != ErrKindDownloadFailed {
		t.Fatalf("error kind = %s, want DownloadFailed", got.LastErrorKind)
	}

	rig.manager.deps.Downloader = &fakeDownloader{}

	retried := startJob(t, rig.manager, "Hollow Knight")
	if retried.ID != view.ID {
		t.Fatalf("retry created a new job: %s vs %s", retried.ID, view.ID)
	}
	waitForStatus(t, rig.manager, view.ID, StatusReadyToInstall)
}

func TestDecliningRiskWarningCancels(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.manager.deps.Reputation = &fakeReputation{
		verdict: reputation.Verdict{Known: true, Malicious: true, Detections: 12},
	}

	view := startJob(t, rig.manager, "Sketchy Game")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := rig.manager.Get(view.ID)
		if got.RiskWarning != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := rig.manager.ConfirmRisk(view.ID, false); err != nil {
		t.Fatalf("ConfirmRisk failed: %v", err)
	}

	got := waitForStatus(t, rig.manager, view.ID, StatusCancelled)
	if got.LastErrorKind != ErrKindUserCancelled {
		t.Errorf("error kind = %s, want UserCancelled", got.LastErrorKind)
	}
}

func TestCancelDuringDownload(t *testing.T) {
	blocker := &fakeDownloader{gate: make(chan struct{})}
	rig := newTestRig(t, nil)
	rig.manager.deps.Downloader = blocker

	view := startJob(t, rig.manager, "Hollow Knight")
	waitForStatus(t, rig.manager, view.ID, StatusDownloading)

	if err := rig.manager.Cancel(view.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	got := waitForStatus(t, rig.manager, view.ID, StatusCancelled)
	if got.LastErrorKind != ErrKindUserCancelled {
		t.Errorf("error kind = %s, want UserCancelled", got.LastErrorKind)
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPreparing, StatusDownloading, true},
		{StatusDownloading, StatusExtracting, true},
		{StatusExtracting, StatusReadyToInstall, true},
		{StatusReadyToInstall, StatusMountingISO, true},
		{StatusReadyToInstall, StatusInstalling, true},
		{StatusVerifyingInstallation, StatusCompleted, true},
		{StatusVerifyingInstallation, StatusReadyToInstall, true},
		{StatusDownloading, StatusCancelled, true},
		{StatusError, StatusPreparing, true},
		{StatusPreparing, StatusExtracting, false},
		{StatusReadyToInstall, StatusCompleted, false},
		{StatusCompleted, StatusPreparing, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusInstalling, StatusReadyToInstall, false},
	}

	for _, tc := range cases {
		if got := canTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}
