package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mohamed66886/sehaty-sub000/config"
	pkgerrors "github.com/mohamed66886/sehaty-sub000/pkg/errors"
)

type fakeSweeper struct {
	calls []time.Time
	err   error
}

func (f *fakeSweeper) SweepMissing(_ context.Context, now time.Time) (int64, error) {
	f.calls = append(f.calls, now)
	return 3, f.err
}

type fakeNotifier struct {
	dates []time.Time
}

func (f *fakeNotifier) SendAbsenceDigest(_ context.Context, date time.Time) (int, error) {
	f.dates = append(f.dates, date)
	return 1, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocker) AcquireLock(_ context.Context, name string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, pkgerrors.ErrLockHeld
	}
	l.held[name] = true
	return func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}, nil
}

type fakeObserver struct {
	results map[string][]error
}

func (o *fakeObserver) ObserveJob(name string, err error) {
	o.results[name] = append(o.results[name], err)
}

func newTestScheduler(t *testing.T, cfg *config.JobConfig, loc *time.Location) (*Scheduler, *fakeSweeper, *fakeNotifier, *fakeLocker, *fakeObserver) {
	t.Helper()
	sw := &fakeSweeper{}
	nt := &fakeNotifier{}
	lk := &fakeLocker{held: make(map[string]bool)}
	ob := &fakeObserver{results: make(map[string][]error)}
	s, err := NewScheduler(cfg, loc, sw, nt, lk, ob, zap.NewNop())
	require.NoError(t, err)
	return s, sw, nt, lk, ob
}

func TestNewScheduler_RegistersConfiguredJobs(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(t, &config.JobConfig{
		HomeworkSweep: "0 */30 * * * *",
		AbsenceDigest: "0 0 18 * * *",
	}, time.UTC)
	assert.Len(t, s.cron.Entries(), 2)

	s, _, _, _, _ = newTestScheduler(t, &config.JobConfig{HomeworkSweep: "0 */30 * * * *"}, time.UTC)
	assert.Len(t, s.cron.Entries(), 1, "空表达式的任务不注册")
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler(&config.JobConfig{HomeworkSweep: "every day"}, time.UTC, &fakeSweeper{}, nil, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestRun_HomeworkSweep(t *testing.T) {
	s, sw, _, _, ob := newTestScheduler(t, &config.JobConfig{}, time.UTC)
	fixed := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.Run(NameHomeworkSweep))
	require.Len(t, sw.calls, 1)
	assert.True(t, sw.calls[0].Equal(fixed))
	assert.Equal(t, []error{nil}, ob.results[NameHomeworkSweep])
}

func TestRun_AbsenceDigestUsesSchoolDate(t *testing.T) {
	cairo := time.FixedZone("EET", 2*3600)
	s, _, nt, _, _ := newTestScheduler(t, &config.JobConfig{}, cairo)
	// UTC 22:30 已是学校时区的次日
	s.now = func() time.Time { return time.Date(2025, 3, 10, 22, 30, 0, 0, time.UTC) }

	require.NoError(t, s.Run(NameAbsenceDigest))
	require.Len(t, nt.dates, 1)
	assert.Equal(t, 11, nt.dates[0].Day())
}

func TestRun_ErrorIsObserved(t *testing.T) {
	s, sw, _, _, ob := newTestScheduler(t, &config.JobConfig{}, time.UTC)
	sw.err = errors.New("db down")

	assert.Error(t, s.Run(NameHomeworkSweep))
	require.Len(t, ob.results[NameHomeworkSweep], 1)
	assert.Error(t, ob.results[NameHomeworkSweep][0])
}

func TestRun_SkipsWhenLockHeld(t *testing.T) {
	s, sw, _, lk, ob := newTestScheduler(t, &config.JobConfig{}, time.UTC)
	lk.held["job:"+NameHomeworkSweep] = true

	assert.NoError(t, s.Run(NameHomeworkSweep))
	assert.Empty(t, sw.calls)
	assert.Empty(t, ob.results)
}

func TestRun_UnknownJob(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(t, &config.JobConfig{}, time.UTC)
	assert.Error(t, s.Run("nope"))
}

func TestStartStop(t *testing.T) {
	s, _, _, _, _ := newTestScheduler(t, &config.JobConfig{HomeworkSweep: "0 0 3 * * *"}, time.UTC)
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
