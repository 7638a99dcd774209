package loamkv

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const asyncTestTimeout = 10 * time.Second

func openTestAsyncStore(t *testing.T) *AsyncStore {
	t.Helper()
	a, err := OpenAsync(testOptions(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAsyncPutWaitGet(t *testing.T) {
	a := openTestAsyncStore(t)

	seq, err := a.Put([]byte("user:1"), []byte("ada"))
	require.NoError(t, err)
	assert.Equal(t, Seq(1), seq)
	require.True(t, a.WaitForSeq(seq, asyncTestTimeout))

	value, err := a.Get([]byte("user:1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ada"), value)
}

func TestAsyncDeleteWaitGet(t *testing.T) {
	a := openTestAsyncStore(t)

	seq, err := a.Put([]byte("k"), []byte("v"))
	require.NoError(t, err)
	seq, err = a.Delete([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, Seq(2), seq)
	require.True(t, a.WaitForSeq(seq, asyncTestTimeout))

	_, err = a.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAsyncEmptyKeyRejected(t *testing.T) {
	a := openTestAsyncStore(t)

	_, err := a.Put(nil, []byte("v"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = a.Delete([]byte{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAsyncSequencesOrdered(t *testing.T) {
	a := openTestAsyncStore(t)

	var last Seq
	for i := 0; i < 100; i++ {
		seq, err := a.Put([]byte(fmt.Sprintf("key-%03d", i)), []byte("v"))
		require.NoError(t, err)
		assert.Greater(t, seq, last)
		last = seq
	}
	require.True(t, a.WaitForSeq(last, asyncTestTimeout))

	kvs, err := a.Range(nil, nil)
	require.NoError(t, err)
	assert.Len(t, kvs, 100)
}

func TestAsyncWaitForSeqTimesOut(t *testing.T) {
	a := openTestAsyncStore(t)
	assert.False(t, a.WaitForSeq(999, 10*time.Millisecond))
}

func TestAsyncConcurrentWriters(t *testing.T) {
	a := openTestAsyncStore(t)

	const writers, perWriter = 8, 50
	errs := make(chan error, writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			for i := 0; i < perWriter; i++ {
				key := []byte(fmt.Sprintf("w%d-key-%03d", w, i))
				if _, err := a.Put(key, []byte("v")); err != nil {
					errs <- err
					return
				}
			}
			errs <- nil
		}(w)
	}
	for w := 0; w < writers; w++ {
		require.NoError(t, <-errs)
	}
	require.True(t, a.WaitForSeq(Seq(writers*perWriter), asyncTestTimeout))

	kvs, err := a.Range(nil, nil)
	require.NoError(t, err)
	assert.Len(t, kvs, writers*perWriter)
}

func TestScheduleCompactionWait(t *testing.T) {
	a := openTestAsyncStore(t)

	seq, err := a.Put([]byte("a"), []byte("1"))
	require.NoError(t, err)
	require.True(t, a.WaitForSeq(seq, asyncTestTimeout))
	require.NoError(t, a.FlushMemtable())

	seq, err = a.Delete([]byte("a"))
	require.NoError(t, err)
	require.True(t, a.WaitForSeq(seq, asyncTestTimeout))
	require.NoError(t, a.FlushMemtable())

	id, err := a.ScheduleCompaction(0, true)
	require.NoError(t, err)

	job, ok := a.CompactionStatus(id)
	require.True(t, ok)
	assert.Equal(t, JobCompleted, job.State)
	assert.NoError(t, job.Err)
	assert.False(t, job.FinishedAt.IsZero())

	assert.Empty(t, a.catalog.Level(0))
	require.Len(t, a.catalog.Level(1), 1)
	_, err = a.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScheduleCompactionNoWait(t *testing.T) {
	a := openTestAsyncStore(t)

	seq, err := a.Put([]byte("a"), []byte("1"))
	require.NoError(t, err)
	require.True(t, a.WaitForSeq(seq, asyncTestTimeout))
	require.NoError(t, a.FlushMemtable())

	id, err := a.ScheduleCompaction(0, false)
	require.NoError(t, err)
	require.True(t, a.WaitForCompaction(id, asyncTestTimeout))

	job, ok := a.CompactionStatus(id)
	require.True(t, ok)
	assert.Equal(t, JobCompleted, job.State)
}

func TestScheduleCompactionInvalidLevel(t *testing.T) {
	a := openTestAsyncStore(t)

	_, err := a.ScheduleCompaction(-1, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = a.ScheduleCompaction(a.opts.MaxLevels-1, true)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCompactionStatusUnknownJob(t *testing.T) {
	a := openTestAsyncStore(t)

	_, ok := a.CompactionStatus(12345)
	assert.False(t, ok)
	assert.False(t, a.WaitForCompaction(12345, 10*time.Millisecond))
}

func TestJobStateString(t *testing.T) {
	assert.Equal(t, "pending", JobPending.String())
	assert.Equal(t, "running", JobRunning.String())
	assert.Equal(t, "completed", JobCompleted.String())
	assert.Equal(t, "failed", JobFailed.String())
	assert.Equal(t, "unknown", JobState(42).String())
}

func TestAsyncFlushThresholdTriggersL0Compaction(t *testing.T) {
	opts := testOptions(t)
	opts.MemtableMaxBytes = 1024
	a, err := OpenAsync(opts)
	require.NoError(t, err)
	defer a.Close()

	value := make([]byte, 300)
	var last Seq
	for i := 0; i < 100; i++ {
		last, err = a.Put([]byte(fmt.Sprintf("key-%03d", i)), value)
		require.NoError(t, err)
	}
	require.True(t, a.WaitForSeq(last, asyncTestTimeout))

	// Enough flushes happened to cross the L0 trigger at least once.
	deadline := time.Now().Add(asyncTestTimeout)
	for a.catalog.MaxLevel() < 1 {
		require.True(t, time.Now().Before(deadline), "no background compaction ran")
		time.Sleep(time.Millisecond)
	}
}

func TestAsyncCloseRejectsFurtherOps(t *testing.T) {
	a, err := OpenAsync(testOptions(t))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())

	_, err = a.Put([]byte("k"), []byte("v"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.Delete([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.ScheduleCompaction(0, false)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAsyncCloseDrainsApplyQueue(t *testing.T) {
	opts := testOptions(t)

	a, err := OpenAsync(opts)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		_, err := a.Put([]byte(fmt.Sprintf("key-%03d", i)), []byte("v"))
		require.NoError(t, err)
	}
	require.NoError(t, a.Close())

	s, err := Open(opts)
	require.NoError(t, err)
	defer s.Close()

	kvs, err := s.Range(nil, nil)
	require.NoError(t, err)
	assert.Len(t, kvs, 200)
}

func TestAsyncAcknowledgedWritesSurviveReopen(t *testing.T) {
	opts := testOptions(t)

	a, err := OpenAsync(opts)
	require.NoError(t, err)
	_, err = a.Put([]byte("durable"), []byte("yes"))
	require.NoError(t, err)
	_, err = a.Delete([]byte("gone"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a, err = OpenAsync(opts)
	require.NoError(t, err)
	defer a.Close()

	value, err := a.Get([]byte("durable"))
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), value)

	seq, err := a.Put([]byte("later"), []byte("v"))
	require.NoError(t, err)
	assert.Equal(t, Seq(3), seq)
}
