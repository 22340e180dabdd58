package flush

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alarmweave/alarmweave/pkg/config"
	"github.com/alarmweave/alarmweave/pkg/transport/transporttest"
)

type fakeUploader struct {
	position uint64
	startErr error
	started  int
}

func (u *fakeUploader) Position() uint64 { return u.position }
func (u *fakeUploader) Start() error {
	u.started++
	return u.startErr
}

func testCfg() config.Flush {
	return config.Flush{
		MinUploadIntervalMsec: 1000,
		MaxUploadIntervalMsec: 5000,
		UploadThresholdBytes:  100,
		ByteThresholdBytes:    50,
	}
}

func TestScheduleFlushIfNeeded_CASSchedulesExactlyOneWorkItem(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)

	s.ScheduleFlushIfNeeded(true)
	assert.Equal(t, 1, sched.Pending())

	// A second call before the work item has run (uploadRequested still
	// true) must not schedule a duplicate.
	s.ScheduleFlushIfNeeded(true)
	assert.Equal(t, 1, sched.Pending())
}

func TestScheduleFlushIfNeeded_FalseRequestNeverSchedules(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)

	s.ScheduleFlushIfNeeded(false)
	assert.Equal(t, 0, sched.Pending())
}

func TestRunWorkItem_IdleWithNoDestinationArmsRetryTimer(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)

	s.runWorkItem()

	assert.Equal(t, StateIdle, s.State())
	require.True(t, s.hasTimer)
	assert.False(t, s.uploadRequested.Load())
}

func TestRunWorkItem_IdleWithDestinationStartsUpload(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)
	up := &fakeUploader{}
	s.Configure(up, "coap://collector")

	s.runWorkItem()

	assert.Equal(t, 1, up.started)
	assert.Equal(t, StateInProgress, s.State())
}

func TestRunWorkItem_HoldoffGoesIdleThenReevaluates(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)
	up := &fakeUploader{}
	s.Configure(up, "coap://collector")
	s.mu.Lock()
	s.state = StateHoldoff
	s.mu.Unlock()

	s.runWorkItem()

	assert.Equal(t, StateInProgress, s.State())
	assert.Equal(t, 1, up.started)
}

func TestRunWorkItem_InProgressAndShutdownAreNoops(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)
	up := &fakeUploader{}
	s.Configure(up, "coap://collector")

	s.mu.Lock()
	s.state = StateInProgress
	s.mu.Unlock()
	s.runWorkItem()
	assert.Equal(t, 0, up.started)

	s.mu.Lock()
	s.state = StateShutdown
	s.mu.Unlock()
	s.runWorkItem()
	assert.Equal(t, 0, up.started)
}

func TestRunWorkItem_UploadStartFailureMovesToHoldoffAndArmsMinInterval(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)
	up := &fakeUploader{startErr: errors.New("network unreachable")}
	s.Configure(up, "coap://collector")

	s.runWorkItem()

	assert.Equal(t, StateHoldoff, s.State())
	require.True(t, s.hasTimer)
}

func TestSignalUploadDone_MovesInProgressToHoldoffAndArmsMinInterval(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)
	s.Configure(&fakeUploader{}, "coap://collector")
	s.runWorkItem()
	require.Equal(t, StateInProgress, s.State())

	s.SignalUploadDone()

	assert.Equal(t, StateHoldoff, s.State())
	require.True(t, s.hasTimer)

	// Firing the armed timer schedules a fresh work item; running that work
	// item resumes uploading.
	require.True(t, sched.Fire(s.timer))
	require.True(t, s.uploadRequested.Load())
	s.runWorkItem()
	assert.Equal(t, StateInProgress, s.State())
}

func TestSignalUploadDone_NoopWhenNotInProgress(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)

	s.SignalUploadDone()

	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 0, sched.Pending())
}

func TestShutdown_CancelsTimerAndFreezesState(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)
	s.runWorkItem() // no destination configured: arms the idle retry timer

	s.Shutdown()

	assert.Equal(t, StateShutdown, s.State())
	assert.False(t, s.hasTimer)

	s.runWorkItem()
	assert.Equal(t, StateShutdown, s.State(), "shutdown state must not change once entered")
}

func TestNoteBytesWritten_SchedulesFlushOnceBulkThresholdExceeded(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)
	s.Configure(&fakeUploader{}, "coap://collector")

	s.NoteBytesWritten(50) // under threshold(100)
	assert.Equal(t, 0, sched.Pending())

	s.NoteBytesWritten(150) // 150-0 > 100
	assert.Equal(t, 1, sched.Pending())
}

func TestNoteSubscriberPosition_SchedulesFlushOnceByteThresholdExceeded(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)

	s.mu.Lock()
	s.bytesWritten = 100
	s.mu.Unlock()

	s.NoteSubscriberPosition(90) // 100-90 = 10, under threshold(50)
	assert.Equal(t, 0, sched.Pending())

	s.NoteSubscriberPosition(10) // 100-10 = 90, over threshold
	assert.Equal(t, 1, sched.Pending())
}

func TestThrottleUnthrottle_TracksReentrantGuard(t *testing.T) {
	sched := transporttest.NewScheduler()
	s := New(testCfg(), sched)

	assert.False(t, s.IsThrottled())
	s.Throttle()
	s.Throttle()
	assert.True(t, s.IsThrottled())
	s.Unthrottle()
	assert.True(t, s.IsThrottled())
	s.Unthrottle()
	assert.False(t, s.IsThrottled())
}
