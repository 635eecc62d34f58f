package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusmart/campusmart-core/internal/domain/account"
	"github.com/campusmart/campusmart-core/internal/domain/progression"
	"github.com/campusmart/campusmart-core/internal/domain/shared"
	"github.com/campusmart/campusmart-core/internal/infrastructure/monitoring"
	"github.com/campusmart/campusmart-core/internal/infrastructure/persistence/memory"
)

var sweepNow = time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)

func graduatedAt(offset time.Duration) time.Time {
	return sweepNow.Add(-progression.DefaultGraduationClock().Period()).Add(offset)
}

func user(id string, role shared.Role, createdAt time.Time) account.UserRecord {
	return account.UserRecord{
		ID:        id,
		CreatedAt: createdAt,
		Role:      role,
		Level:     1,
	}
}

func newSweep(store account.LifecycleStore, pageSize int, opts ...SweepOption) *GraduationSweepJob {
	cfg := DefaultGraduationSweepConfig()
	cfg.PageSize = pageSize
	opts = append([]SweepOption{WithNow(func() time.Time { return sweepNow })}, opts...)
	return NewGraduationSweepJob(store, progression.DefaultGraduationClock(), nil, cfg, opts...)
}

func TestSweep_DeletesOnlyGraduatedUnprotectedRecords(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(user("old-student", shared.RoleOrdinary, graduatedAt(-time.Hour)))
	store.PutUser(user("exact-boundary", shared.RoleOrdinary, graduatedAt(0)))
	store.PutUser(user("old-staff", shared.RoleStaff, graduatedAt(-48*time.Hour)))
	store.PutUser(user("old-dev", shared.RoleDeveloper, graduatedAt(-48*time.Hour)))
	store.PutUser(user("fresh", shared.RoleOrdinary, graduatedAt(time.Second)))

	report, err := newSweep(store, 100).Sweep(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"old-student", "exact-boundary"}, report.Deleted)
	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 2, report.SkippedProtected)
	assert.Equal(t, 1, report.SkippedNotGraduated)
	assert.Empty(t, report.Failed)
	assert.False(t, report.Interrupted)
	assert.NotEmpty(t, report.RunID)

	assert.False(t, store.HasUser("old-student"))
	assert.False(t, store.HasIdentity("old-student"))
	assert.True(t, store.HasUser("old-staff"))
	assert.True(t, store.HasUser("fresh"))
}

func TestSweep_OffsetAdvanceDoesNotSkipRecords(t *testing.T) {
	store := memory.NewStore()

	// Every third record is protected, so each page mixes deletions with
	// survivors and the offset has to step over exactly the survivors.
	var graduated, protected []string
	for i := 0; i < 23; i++ {
		id := fmt.Sprintf("u%02d", i)
		role := shared.RoleOrdinary
		if i%3 == 0 {
			role = shared.RoleStaff
			protected = append(protected, id)
		} else {
			graduated = append(graduated, id)
		}
		store.PutUser(user(id, role, graduatedAt(-time.Duration(100-i)*time.Hour)))
	}

	report, err := newSweep(store, 4).Sweep(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, graduated, report.Deleted)
	assert.Equal(t, 23, report.Processed)
	assert.Equal(t, len(protected), report.SkippedProtected)
	for _, id := range protected {
		assert.True(t, store.HasUser(id), id)
	}
}

func TestSweep_WholePagesDeleted(t *testing.T) {
	store := memory.NewStore()
	for i := 0; i < 250; i++ {
		store.PutUser(user(fmt.Sprintf("u%03d", i), shared.RoleOrdinary, graduatedAt(-time.Duration(i+1)*time.Minute)))
	}

	report, err := newSweep(store, 100).Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Deleted, 250)
	assert.Equal(t, 250, report.Processed)
}

func TestSweep_IdentityAlreadyDeletedStillRemovesProfile(t *testing.T) {
	store := memory.NewStore()
	store.PutUserWithoutIdentity(user("half-done", shared.RoleOrdinary, graduatedAt(-time.Hour)))

	report, err := newSweep(store, 10).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"half-done"}, report.Deleted)
	assert.False(t, store.HasUser("half-done"))
}

func TestSweep_IdentityFailureKeepsProfileForNextRun(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(user("stuck", shared.RoleOrdinary, graduatedAt(-time.Hour)))
	store.PutUser(user("ok", shared.RoleOrdinary, graduatedAt(-30*time.Minute)))
	store.InjectError(memory.OpDeleteIdentity, "stuck", errors.New("auth backend down"), 1)

	rec := &monitoring.Recorder{}
	job := newSweep(store, 10, WithReporter(rec))

	report, err := job.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, report.Deleted)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "stuck", report.Failed[0].UserID)
	assert.Equal(t, OutcomeDeleteFailed, report.Failed[0].Outcome)
	assert.Equal(t, 0, report.PartialFailures)
	assert.True(t, store.HasUser("stuck"))
	assert.True(t, store.HasIdentity("stuck"))
	assert.Equal(t, 1, store.Calls(memory.OpDeleteProfile), "profile deletion only attempted for ok")
	require.Len(t, rec.Reports(), 1)
	assert.Equal(t, "stuck", rec.Reports()[0].Extras["user_id"])

	report, err = job.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"stuck"}, report.Deleted)
	assert.False(t, store.HasUser("stuck"))
}

func TestSweep_ProfileFailureIsPartialAndRepairedNextRun(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(user("partial", shared.RoleOrdinary, graduatedAt(-time.Hour)))
	store.InjectError(memory.OpDeleteProfile, "partial", errors.New("document store timeout"), 1)

	rec := &monitoring.Recorder{}
	job := newSweep(store, 10, WithReporter(rec))

	report, err := job.Sweep(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Deleted)
	assert.Equal(t, 1, report.PartialFailures)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, OutcomeDeletePartial, report.Failed[0].Outcome)
	assert.False(t, store.HasIdentity("partial"))
	assert.True(t, store.HasUser("partial"))

	reports := rec.Reports()
	require.Len(t, reports, 1)
	assert.True(t, shared.IsPartialFailure(reports[0].Err))

	report, err = job.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, report.Deleted)
	assert.False(t, store.HasUser("partial"))
}

func TestSweep_CancellationFinishesInFlightRecord(t *testing.T) {
	store := memory.NewStore()
	for i := 0; i < 5; i++ {
		store.PutUser(user(fmt.Sprintf("u%d", i), shared.RoleOrdinary, graduatedAt(-time.Duration(10-i)*time.Hour)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel while the second record is being evaluated.
	var mu sync.Mutex
	calls := 0
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 3 { // 1: StartedAt, 2: u0, 3: u1
			cancel()
		}
		return sweepNow
	}

	cfg := DefaultGraduationSweepConfig()
	cfg.PageSize = 10
	job := NewGraduationSweepJob(store, nil, nil, cfg, WithNow(now))

	report, err := job.Sweep(ctx)
	require.NoError(t, err)

	assert.True(t, report.Interrupted)
	assert.Equal(t, []string{"u0", "u1"}, report.Deleted)
	assert.False(t, store.HasUser("u1"), "in-flight record completes both deletions")
	assert.True(t, store.HasUser("u2"))

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	assert.ErrorIs(t, job.Run(ctx2), context.Canceled)
}

func TestSweep_ListingFailureAbortsWithPartialReport(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(user("u1", shared.RoleOrdinary, graduatedAt(-time.Hour)))
	store.InjectError(memory.OpListUsers, "", shared.NewDomainError("account", "ListUsers", shared.ErrTransientStore, "db down"), -1)

	rec := &monitoring.Recorder{}
	job := newSweep(store, 10, WithReporter(rec))

	report, err := job.Sweep(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsRetryable(err))
	require.NotNil(t, report)
	assert.NotEmpty(t, report.Aborted)
	assert.Equal(t, 0, report.Processed)
	assert.Len(t, rec.Reports(), 1)

	runErr := job.Run(context.Background())
	require.Error(t, runErr)
	assert.True(t, monitoring.IsReported(runErr), "the job reported the abort itself")
	assert.True(t, shared.IsRetryable(runErr))
	assert.Len(t, rec.Reports(), 2)
}

func TestSweep_MalformedRecordIsSkipped(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(user("no-created-at", shared.RoleOrdinary, time.Time{}))
	store.PutUser(user("old", shared.RoleOrdinary, graduatedAt(-time.Hour)))

	report, err := newSweep(store, 10).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"old"}, report.Deleted)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, OutcomeSkipInvalid, report.Failed[0].Outcome)
	assert.True(t, store.HasUser("no-created-at"))
}

type fakeLocker struct {
	held     bool
	released bool
}

func (l *fakeLocker) Acquire(context.Context) (func(context.Context) error, error) {
	if l.held {
		return nil, shared.NewDomainError("sweep", "AcquireLock", shared.ErrSweepInProgress, "held")
	}
	l.held = true
	return func(context.Context) error {
		l.held = false
		l.released = true
		return nil
	}, nil
}

func TestSweep_LockHeldElsewhere(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(user("u1", shared.RoleOrdinary, graduatedAt(-time.Hour)))

	lock := &fakeLocker{held: true}
	job := newSweep(store, 10, WithLocker(lock))

	report, err := job.Sweep(context.Background())
	assert.ErrorIs(t, err, shared.ErrSweepInProgress)
	assert.Nil(t, report)
	assert.True(t, store.HasUser("u1"))
	assert.Equal(t, 0, store.Calls(memory.OpListUsers))

	// The scheduler treats a held lock as a skipped run.
	assert.NoError(t, job.Run(context.Background()))
}

func TestSweep_ReleasesLockAndStoresReport(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(user("u1", shared.RoleOrdinary, graduatedAt(-time.Hour)))

	lock := &fakeLocker{}
	reports := &memReports{}
	job := newSweep(store, 10, WithLocker(lock), WithReportStore(reports))

	_, err := job.LastReport(context.Background())
	assert.True(t, shared.IsNotFound(err))

	report, err := job.Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, lock.released)
	assert.False(t, lock.held)

	last, err := job.LastReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.RunID, last.RunID)
	assert.Equal(t, []string{"u1"}, last.Deleted)
}

type memReports struct {
	mu   sync.Mutex
	last *SweepReport
}

func (m *memReports) Save(_ context.Context, r SweepReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &r
	return nil
}

func (m *memReports) Last(context.Context) (SweepReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return SweepReport{}, shared.NewDomainError("sweep", "LastReport", shared.ErrNotFound, "none")
	}
	return *m.last, nil
}

func TestSweep_UnknownRoleIsNeverDeleted(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(user("capitalised", shared.Role("Staff"), graduatedAt(-time.Hour)))
	store.PutUser(user("blank-role", shared.Role(""), graduatedAt(-time.Hour)))
	store.PutUser(user("old", shared.RoleOrdinary, graduatedAt(-time.Hour)))

	report, err := newSweep(store, 10).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"old"}, report.Deleted)
	require.Len(t, report.Failed, 2)
	for _, f := range report.Failed {
		assert.Equal(t, OutcomeSkipInvalid, f.Outcome)
	}
	assert.True(t, store.HasUser("capitalised"))
	assert.True(t, store.HasIdentity("capitalised"))
	assert.True(t, store.HasUser("blank-role"))
	assert.True(t, store.HasIdentity("blank-role"))
}

func TestSweep_SecondRunWithoutNewGraduatesDeletesNothing(t *testing.T) {
	store := memory.NewStore()
	store.PutUser(user("old", shared.RoleOrdinary, graduatedAt(-time.Hour)))
	store.PutUser(user("staff", shared.RoleStaff, graduatedAt(-time.Hour)))
	store.PutUser(user("fresh", shared.RoleOrdinary, graduatedAt(time.Hour)))

	job := newSweep(store, 2)

	first, err := job.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, first.Deleted)

	second, err := job.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Deleted)
	assert.Empty(t, second.Failed)
	assert.Equal(t, 2, second.Processed)
	assert.NotEqual(t, first.RunID, second.RunID)
}

// lostReplyStore deletes the profile and then reports a transient failure,
// as if the reply from the document store was lost.
type lostReplyStore struct {
	*memory.Store
	profileID string
}

func (s *lostReplyStore) DeleteUserProfileDocument(ctx context.Context, profileID string) error {
	if err := s.Store.DeleteUserProfileDocument(ctx, profileID); err != nil {
		return err
	}
	if profileID == s.profileID {
		return shared.NewDomainError("account", "DeleteUserProfileDocument", shared.ErrTransientStore, "reply lost")
	}
	return nil
}

func TestSweep_LostProfileReplyDoesNotSkipNextRecord(t *testing.T) {
	mem := memory.NewStore()
	lost := user("a-lost-reply", shared.RoleOrdinary, graduatedAt(-3*time.Hour))
	mem.PutUser(lost)
	mem.PutUser(user("b-staff", shared.RoleStaff, graduatedAt(-2*time.Hour)))
	mem.PutUser(user("c-old", shared.RoleOrdinary, graduatedAt(-time.Hour)))
	store := &lostReplyStore{Store: mem, profileID: lost.ProfileDocumentID()}

	report, err := newSweep(store, 2).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.PartialFailures)
	assert.Equal(t, []string{"c-old"}, report.Deleted)
	assert.False(t, mem.HasUser("c-old"))
	assert.True(t, mem.HasUser("b-staff"))
}
