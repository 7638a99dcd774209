// async.go implements the WAL-first store: writes are acknowledged once
// durable in the WAL and applied to the memtable by a background worker,
// with a bounded queue and lock-steal fallbacks on the write path.
package loamkv

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/aalhour/loamkv/internal/base"
	"github.com/aalhour/loamkv/internal/logging"
	"github.com/aalhour/loamkv/internal/wal"
)

// l0CompactTrigger is the L0 table count at or above which a flush schedules a
// background compaction of level 0.
const l0CompactTrigger = 4

// waitPollInterval paces WaitForSeq and WaitForCompaction polling.
const waitPollInterval = 200 * time.Microsecond

// JobID identifies a scheduled background compaction.
type JobID uint64

// JobState is the lifecycle state of a compaction job.
type JobState int32

const (
	JobPending JobState = iota
	JobRunning
	JobCompleted
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Job describes one scheduled compaction. Err is set when State is
// JobFailed.
type Job struct {
	ID         JobID
	Level      int
	State      JobState
	Err        error
	EnqueuedAt time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

type applyEntry struct {
	seq base.Seq
	rec base.Record
}

// AsyncStore is a Store whose writes are acknowledged at WAL durability:
// Put and Delete return once the record is appended to the WAL, and a
// background worker applies it to the memtable. WaitForSeq fences reads
// behind a returned sequence. Compactions run on a background worker and
// are observable through job ids.
type AsyncStore struct {
	*Store

	applyCh     chan applyEntry
	lastApplied atomic.Uint64
	writers     sync.WaitGroup
	applyWG     sync.WaitGroup

	jobMu    sync.Mutex
	jobCond  *sync.Cond
	jobQueue []JobID
	jobs     map[JobID]*Job
	nextJob  JobID
	jobWG    sync.WaitGroup
	stopping bool
}

// OpenAsync opens the store at opts.DataDir in WAL-first mode and starts
// the apply and compaction workers.
func OpenAsync(opts Options) (*AsyncStore, error) {
	inner, err := openStore(opts)
	if err != nil {
		return nil, err
	}
	a := &AsyncStore{
		Store:   inner,
		applyCh: make(chan applyEntry, inner.opts.ApplyQueueMax),
		jobs:    make(map[JobID]*Job),
	}
	a.jobCond = sync.NewCond(&a.jobMu)
	a.lastApplied.Store(inner.lastAppended.Load())
	inner.afterFlush = a.afterFlushLocked

	a.applyWG.Add(1)
	go a.applyWorker()
	a.jobWG.Add(1)
	go a.compactionWorker()
	return a, nil
}

// Put appends the record to the WAL and returns its sequence. The memtable
// apply happens asynchronously; use WaitForSeq for read-your-write.
func (a *AsyncStore) Put(key, value []byte) (Seq, error) {
	if len(key) == 0 {
		return 0, errors.Wrap(base.ErrInvalidArgument, "empty key")
	}
	if value == nil {
		value = []byte{}
	}
	return a.writeAsync(base.Record{Key: key, Value: value})
}

// Delete appends a tombstone to the WAL and returns its sequence.
func (a *AsyncStore) Delete(key []byte) (Seq, error) {
	if len(key) == 0 {
		return 0, errors.Wrap(base.ErrInvalidArgument, "empty key")
	}
	return a.writeAsync(base.Record{Key: key, Value: nil})
}

// writeAsync is the WAL-first write path: append without the store lock,
// then apply directly when the lock is free, otherwise hand the record to
// the apply worker. Only a full queue blocks the caller, and then only
// after a timed attempt to steal the lock.
func (a *AsyncStore) writeAsync(rec base.Record) (Seq, error) {
	a.writers.Add(1)
	defer a.writers.Done()
	if a.closed.Load() {
		return 0, base.ErrClosed
	}
	rec.Timestamp = a.clock.Next()

	seq, err := a.wal.Append(rec)
	if err != nil {
		return 0, err
	}
	storeMax(&a.lastAppended, uint64(seq))
	a.metrics.observeAppend(wal.FrameSize(rec))

	entry := applyEntry{seq: seq, rec: rec}
	if a.mu.TryLock() {
		a.applyEntryLocked(entry)
		a.mu.Unlock()
		a.observeApplyState()
		return seq, nil
	}

	select {
	case a.applyCh <- entry:
		a.observeApplyState()
		return seq, nil
	default:
	}

	// Queue full. Try a timed lock steal before blocking on the queue.
	if a.lockWithin(a.opts.ApplyLockTimeout) {
		a.applyEntryLocked(entry)
		a.mu.Unlock()
		a.observeApplyState()
		return seq, nil
	}
	a.applyCh <- entry
	a.observeApplyState()
	return seq, nil
}

// applyEntryLocked drains queued entries, applies entry and runs the flush
// threshold check. Caller holds the store lock.
func (a *AsyncStore) applyEntryLocked(entry applyEntry) {
	a.drainQueueLocked()
	a.applyLocked(entry.rec)
	storeMax(&a.lastApplied, uint64(entry.seq))
	a.maybeFlushLocked()
}

// drainQueueLocked applies everything currently buffered in the apply
// queue so the direct apply cannot run ahead of older queued records.
func (a *AsyncStore) drainQueueLocked() {
	for {
		select {
		case e := <-a.applyCh:
			a.applyLocked(e.rec)
			storeMax(&a.lastApplied, uint64(e.seq))
		default:
			return
		}
	}
}

// maybeFlushLocked flushes past the memtable threshold. WAL segments are
// reclaimed only when nothing is waiting in the apply queue, so a queued
// record is never dropped with its segment.
func (a *AsyncStore) maybeFlushLocked() {
	if a.mem.ApproximateSize() <= a.opts.MemtableMaxBytes {
		return
	}
	var flushedThrough Seq
	if len(a.applyCh) == 0 {
		flushedThrough = Seq(a.lastApplied.Load())
	}
	if err := a.flushLocked(flushedThrough); err != nil {
		a.logger.Errorf(logging.NSFlush+"background flush: %v", err)
	}
}

// lockWithin tries to take the store lock for at most d, pacing retries
// with exponential backoff.
func (a *AsyncStore) lockWithin(d time.Duration) bool {
	if a.mu.TryLock() {
		return true
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Microsecond
	b.MaxInterval = time.Millisecond
	b.MaxElapsedTime = d
	for {
		next := b.NextBackOff()
		if next == backoff.Stop {
			return false
		}
		time.Sleep(next)
		if a.mu.TryLock() {
			return true
		}
	}
}

// applyWorker drains the apply queue in sequence order.
func (a *AsyncStore) applyWorker() {
	defer a.applyWG.Done()
	for entry := range a.applyCh {
		a.mu.Lock()
		a.applyLocked(entry.rec)
		storeMax(&a.lastApplied, uint64(entry.seq))
		a.maybeFlushLocked()
		a.mu.Unlock()
		a.observeApplyState()
	}
}

func (a *AsyncStore) observeApplyState() {
	a.metrics.observeApply(len(a.applyCh), a.lastApplied.Load(), a.lastAppended.Load())
}

// WaitForSeq blocks until the record with the given sequence has been
// applied to the memtable or the timeout elapses. It reports whether the
// sequence was applied in time.
func (a *AsyncStore) WaitForSeq(seq Seq, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if a.lastApplied.Load() >= uint64(seq) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(waitPollInterval)
	}
}

// ScheduleCompaction queues a background compaction of level and returns
// its job id. With wait set it blocks until the job reaches a terminal
// state and returns the job's error, if any.
func (a *AsyncStore) ScheduleCompaction(level int, wait bool) (JobID, error) {
	id, err := a.scheduleCompaction(level)
	if err != nil || !wait {
		return id, err
	}
	for {
		job, ok := a.CompactionStatus(id)
		if !ok {
			return id, errors.Wrapf(base.ErrCompaction, "job %d vanished", id)
		}
		switch job.State {
		case JobCompleted:
			return id, nil
		case JobFailed:
			return id, job.Err
		}
		time.Sleep(waitPollInterval)
	}
}

func (a *AsyncStore) scheduleCompaction(level int) (JobID, error) {
	if level < 0 || level >= a.opts.MaxLevels-1 {
		return 0, errors.Wrapf(base.ErrInvalidArgument, "level %d outside [0, %d)", level, a.opts.MaxLevels-1)
	}
	if a.closed.Load() {
		return 0, base.ErrClosed
	}
	a.jobMu.Lock()
	defer a.jobMu.Unlock()
	if a.stopping {
		return 0, base.ErrClosed
	}
	a.nextJob++
	id := a.nextJob
	a.jobs[id] = &Job{
		ID:         id,
		Level:      level,
		State:      JobPending,
		EnqueuedAt: time.Now(),
	}
	a.jobQueue = append(a.jobQueue, id)
	a.jobCond.Signal()
	return id, nil
}

// CompactionStatus returns a snapshot of the job, if known.
func (a *AsyncStore) CompactionStatus(id JobID) (Job, bool) {
	a.jobMu.Lock()
	defer a.jobMu.Unlock()
	job, ok := a.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// WaitForCompaction blocks until the job finishes or the timeout elapses.
// It reports whether the job reached a terminal state in time.
func (a *AsyncStore) WaitForCompaction(id JobID, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		job, ok := a.CompactionStatus(id)
		if !ok {
			return false
		}
		if job.State == JobCompleted || job.State == JobFailed {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(waitPollInterval)
	}
}

// compactionWorker pops queued jobs and runs them under the level lock.
func (a *AsyncStore) compactionWorker() {
	defer a.jobWG.Done()
	for {
		a.jobMu.Lock()
		for len(a.jobQueue) == 0 && !a.stopping {
			a.jobCond.Wait()
		}
		if a.stopping {
			for _, id := range a.jobQueue {
				job := a.jobs[id]
				job.State = JobFailed
				job.Err = base.ErrClosed
				job.FinishedAt = time.Now()
			}
			a.jobQueue = nil
			a.jobMu.Unlock()
			return
		}
		id := a.jobQueue[0]
		a.jobQueue = a.jobQueue[1:]
		job := a.jobs[id]
		job.State = JobRunning
		job.StartedAt = time.Now()
		level := job.Level
		a.jobMu.Unlock()

		a.levelLocks[level].Lock()
		err := a.compactLevel(level)
		a.levelLocks[level].Unlock()

		a.jobMu.Lock()
		job.FinishedAt = time.Now()
		if err != nil {
			job.State = JobFailed
			job.Err = err
			a.logger.Errorf(logging.NSCompact+"job %d level %d: %v", id, level, err)
		} else {
			job.State = JobCompleted
		}
		a.jobMu.Unlock()
	}
}

// afterFlushLocked runs after every successful flush, while the store lock
// is held, and schedules an L0 compaction once enough tables pile up.
func (a *AsyncStore) afterFlushLocked() {
	if len(a.catalog.Level(0)) < l0CompactTrigger {
		return
	}
	if _, err := a.scheduleCompaction(0); err != nil && !errors.Is(err, base.ErrClosed) {
		a.logger.Warnf(logging.NSCompact+"schedule L0 compaction: %v", err)
	}
}

// Close stops accepting writes, waits for the apply queue to drain and the
// workers to exit, then releases the store's resources. Queued compactions
// that never ran finish as failed with ErrClosed.
func (a *AsyncStore) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	a.writers.Wait()
	close(a.applyCh)
	a.applyWG.Wait()

	a.jobMu.Lock()
	a.stopping = true
	a.jobCond.Broadcast()
	a.jobMu.Unlock()
	a.jobWG.Wait()

	return a.closeResources()
}

// storeMax raises v to x unless it is already higher.
func storeMax(v *atomic.Uint64, x uint64) {
	for {
		cur := v.Load()
		if x <= cur || v.CompareAndSwap(cur, x) {
			return
		}
	}
}
