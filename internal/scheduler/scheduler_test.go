package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latentloop/diskindex/internal/catalog"
	"github.com/latentloop/diskindex/internal/config"
)

// fakeProcess runs RunWorker in a goroutine against a duplicated write
// end of the progress pipe, standing in for a real re-exec'd
// subprocess so tests don't fork a child process.
func fakeProcess(t *testing.T, cfg config.Config, jobID, rootURI string, pw *os.File) (startedProcess, error) {
	t.Helper()
	dupFD, err := syscall.Dup(int(pw.Fd()))
	require.NoError(t, err)
	dup := os.NewFile(uintptr(dupFD), "progress-dup")

	done := make(chan error, 1)
	go func() {
		defer dup.Close()
		done <- RunWorker(context.Background(), cfg, jobID, rootURI, nil, dup)
	}()

	return startedProcess{
		pid:  os.Getpid(),
		wait: func() error { return <-done },
		kill: func() error { return nil },
	}, nil
}

func newTestScheduler(t *testing.T) (*Scheduler, config.Config, *catalog.DB) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.RootDir = dir
	cfg.BlobDir = filepath.Join(dir, "blobs")
	cfg.DBPath = filepath.Join(dir, "catalog.db")
	cfg.ProgressTick = 10 * time.Millisecond

	cat, err := catalog.Open(cfg.DBPath, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	sched := New(cfg, cat)
	sched.startProcess = func(jobID, rootURI string, pw *os.File) (startedProcess, error) {
		return fakeProcess(t, cfg, jobID, rootURI, pw)
	}
	return sched, cfg, cat
}

func waitForTerminal(t *testing.T, sched *Scheduler, jobID string) Job {
	t.Helper()
	g := gomega.NewWithT(t)
	g.Eventually(func() bool {
		job, ok := sched.Status(jobID)
		return ok && job.isTerminal()
	}, 5*time.Second, 5*time.Millisecond).Should(gomega.BeTrue(), "job did not reach a terminal state in time")

	job, ok := sched.Status(jobID)
	require.True(t, ok)
	return job
}

func TestStartRunsWorkerAndCommitsScan(t *testing.T) {
	sched, _, cat := newTestScheduler(t)
	ctx := context.Background()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	jobID, err := sched.Start(ctx, root)
	require.NoError(t, err)

	job := waitForTerminal(t, sched, jobID)
	assert.Equal(t, "completed", string(job.Status))
	assert.NotEmpty(t, job.BlobID)

	latest, err := cat.LatestPerRoot(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, job.BlobID, latest[0].BlobID)
}

func TestStartCoalescesDuplicateRoot(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	ctx := context.Background()
	root := t.TempDir()

	id1, err := sched.Start(ctx, root)
	require.NoError(t, err)
	id2, err := sched.Start(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	waitForTerminal(t, sched, id1)
}

func TestSubscribeReceivesProgressFrames(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))

	ch, unsub := sched.Subscribe()
	defer unsub()

	jobID, err := sched.Start(ctx, root)
	require.NoError(t, err)

	sawCompleted := false
	timeout := time.After(5 * time.Second)
	for !sawCompleted {
		select {
		case f := <-ch:
			if f.JobID == jobID && f.Status == statusCompleted {
				sawCompleted = true
			}
		case <-timeout:
			t.Fatal("did not observe a completed frame in time")
		}
	}
}

func TestCancelUnknownJobReturnsNotFound(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	err := sched.Cancel("nonexistent")
	assert.Error(t, err)
}
