package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/latentloop/diskindex/internal/catalog"
	"github.com/latentloop/diskindex/internal/common"
	"github.com/latentloop/diskindex/internal/config"
	"github.com/latentloop/diskindex/internal/model"
	"github.com/latentloop/diskindex/internal/util"
)

// subscriberBuffer bounds how many ProgressFrames a slow
// stream_progress() subscriber may lag behind before being dropped
// with a terminal "lagged" frame.
const subscriberBuffer = 64

// Scheduler owns the scan-job registry: one active job per root_uri,
// each running as a re-exec'd worker subprocess.
type Scheduler struct {
	cfg config.Config
	cat *catalog.DB

	mu        sync.Mutex
	byRoot    map[string]*Job // root_uri -> active job, cleared on terminal state
	byID      map[string]*Job
	cancelFns map[string]func() error

	subMu       sync.Mutex
	subscribers map[chan ProgressFrame]struct{}

	// execSelf and startProcess are overridden in tests to avoid
	// spawning a real subprocess.
	execSelf     func() (string, error)
	startProcess func(jobID, rootURI string, pw *os.File) (startedProcess, error)
}

// startedProcess abstracts a running worker subprocess so tests can
// substitute an in-process fake without spawning a real OS process.
type startedProcess struct {
	pid  int
	wait func() error // blocks until exit; nil error means exit 0
	kill func() error // requests termination (SIGTERM then SIGKILL)
}

func New(cfg config.Config, cat *catalog.DB) *Scheduler {
	s := &Scheduler{
		cfg:         cfg,
		cat:         cat,
		byRoot:      make(map[string]*Job),
		byID:        make(map[string]*Job),
		cancelFns:   make(map[string]func() error),
		subscribers: make(map[chan ProgressFrame]struct{}),
		execSelf:    util.GetExecutablePath,
	}
	s.startProcess = s.defaultStartProcess
	return s
}

// Start launches (or coalesces onto) a scan of rootURI.
func (s *Scheduler) Start(ctx context.Context, rootURI string) (string, error) {
	rootURI, err := model.Canonicalize(rootURI)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if existing, ok := s.byRoot[rootURI]; ok && !existing.isTerminal() {
		s.mu.Unlock()
		return existing.ID, nil
	}
	jobID := NewJobID()
	job := &Job{ID: jobID, RootURI: rootURI, Status: model.ScanStatusPending, StartedAt: time.Now()}
	s.byRoot[rootURI] = job
	s.byID[jobID] = job
	s.mu.Unlock()

	if err := s.cat.UpsertProgress(ctx, model.ScanProgress{
		ID: jobID, RootURI: rootURI, StartedAt: job.StartedAt, Status: model.ScanStatusPending,
	}); err != nil {
		return "", fmt.Errorf("recording scan_progress: %w", err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return "", fmt.Errorf("creating progress pipe: %w", err)
	}

	proc, err := s.startProcess(jobID, rootURI, pw)
	pw.Close()
	if err != nil {
		pr.Close()
		s.finish(ctx, job, model.ScanStatusFailed, err.Error(), "")
		return "", fmt.Errorf("starting scan worker: %w", err)
	}

	s.mu.Lock()
	job.Status = model.ScanStatusRunning
	job.PID = proc.pid
	s.cancelFns[jobID] = proc.kill
	s.mu.Unlock()

	log.Infof("[Scheduler] started job %s for %s (pid=%d)", jobID, rootURI, proc.pid)
	go s.watch(ctx, job, pr, proc)
	return jobID, nil
}

func (s *Scheduler) watch(ctx context.Context, job *Job, pr *os.File, proc startedProcess) {
	defer pr.Close()

	lastSeen := int64(-1)
	var finalStatus model.ScanStatus
	var finalErr, finalBlob string
	sawTerminal := false

	_ = ReadProgressFrames(pr, func(f ProgressFrame) {
		if f.ItemsFound <= lastSeen && f.Status == statusRunning {
			return // de-dup by (job_id, items_found) monotonic check
		}
		lastSeen = f.ItemsFound

		s.mu.Lock()
		job.ItemsFound = f.ItemsFound
		job.ItemsPerSec = f.ItemsPerSec
		job.ErrorCount = f.ErrorCount
		s.mu.Unlock()

		switch f.Status {
		case statusCompleted:
			sawTerminal = true
			finalStatus, finalBlob = model.ScanStatusCompleted, f.BlobID
		case statusFailed:
			sawTerminal = true
			finalStatus, finalErr = model.ScanStatusFailed, f.Error
		case statusCancelled:
			sawTerminal = true
			finalStatus, finalErr = model.ScanStatusCancelled, f.Error
		}
		s.broadcast(f)
	})

	_ = proc.wait()
	if !sawTerminal {
		finalStatus, finalErr = model.ScanStatusFailed, "worker exited without a terminal progress frame"
	}
	s.finish(ctx, job, finalStatus, finalErr, finalBlob)
}

func (s *Scheduler) finish(ctx context.Context, job *Job, status model.ScanStatus, errMsg, blobID string) {
	s.mu.Lock()
	job.Status = status
	job.Err = errMsg
	job.BlobID = blobID
	if s.byRoot[job.RootURI] == job {
		delete(s.byRoot, job.RootURI)
	}
	delete(s.cancelFns, job.ID)
	s.mu.Unlock()

	if status == model.ScanStatusFailed {
		log.Warnf("[Scheduler] job %s failed: %s", job.ID, errMsg)
	} else {
		log.Infof("[Scheduler] job %s finished: %s", job.ID, status)
	}
	_ = s.cat.DeleteProgress(ctx, job.ID)
}

// Status returns a snapshot of a job's state, or ok=false if unknown.
func (s *Scheduler) Status(jobID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// RunningScans lists every non-terminal job.
func (s *Scheduler) RunningScans() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, j := range s.byID {
		if !j.isTerminal() {
			out = append(out, *j)
		}
	}
	return out
}

// Cancel requests a job's termination, the running -> cancelled
// transition. Cancelling an unknown or already-terminal job returns an
// error wrapping common.ErrNotFound.
func (s *Scheduler) Cancel(jobID string) error {
	s.mu.Lock()
	cancel, ok := s.cancelFns[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, common.ErrNotFound)
	}
	return cancel()
}

// Subscribe registers a new stream_progress() subscriber. The
// returned func unsubscribes; callers must call it when done.
func (s *Scheduler) Subscribe() (<-chan ProgressFrame, func()) {
	ch := make(chan ProgressFrame, subscriberBuffer)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	unsub := func() {
		s.subMu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, unsub
}

func (s *Scheduler) broadcast(f ProgressFrame) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- f:
		default:
			// Subscriber is lagging: drop it with a terminal marker
			// rather than block the worker's progress pump.
			lagged := f
			lagged.Status = statusLagged
			select {
			case ch <- lagged:
			default:
			}
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

func (s *Scheduler) defaultStartProcess(jobID, rootURI string, pw *os.File) (startedProcess, error) {
	exe, err := s.execSelf()
	if err != nil {
		return startedProcess{}, fmt.Errorf("resolving executable: %w", err)
	}
	args := []string{ScanWorkerSubcommand, "--job-id", jobID, "--root", rootURI}
	proc, err := util.StartDetachedProcess(exe, args, nil, pw)
	if err != nil {
		return startedProcess{}, err
	}
	return startedProcess{
		pid:  proc.Pid,
		wait: func() error { _, err := proc.Wait(); return err },
		kill: func() error {
			return util.CancelProcess(proc.Pid, util.CancelConfig{}, func() bool { return util.IsProcessRunning(proc.Pid) })
		},
	}, nil
}
