package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulti_FansOutToEveryReporter(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, Nop{}, b}

	boom := errors.New("boom")
	m.Report(context.Background(), boom, map[string]any{"user_id": "u1"})

	for _, rec := range []*Recorder{a, b} {
		reports := rec.Reports()
		require.Len(t, reports, 1)
		assert.Equal(t, boom, reports[0].Err)
		assert.Equal(t, "u1", reports[0].Extras["user_id"])
	}
}

func TestRollbar_DisabledWithoutToken(t *testing.T) {
	r := NewRollbar(RollbarConfig{Environment: "test"})
	defer r.Close()

	// No token: the client is disabled and Report must not block or panic.
	r.Report(context.Background(), errors.New("ignored"), nil)
}

func TestJobErrorHook_SkipsErrorsAlreadyReported(t *testing.T) {
	rec := &Recorder{}
	hook := JobErrorHook(rec)

	boom := errors.New("boom")
	hook("graduation_sweep", MarkReported(boom))
	assert.Empty(t, rec.Reports())

	hook("graduation_sweep", boom)
	reports := rec.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, boom, reports[0].Err)
	assert.Equal(t, "graduation_sweep", reports[0].Extras["job"])
}

func TestMarkReported_KeepsChain(t *testing.T) {
	boom := errors.New("boom")
	marked := MarkReported(boom)

	assert.ErrorIs(t, marked, boom)
	assert.Equal(t, "boom", marked.Error())
	assert.Equal(t, marked, MarkReported(marked))
	assert.NoError(t, MarkReported(nil))
	assert.False(t, IsReported(boom))
}
