package runstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/peakfit/internal/fit"
	"github.com/banshee-data/peakfit/internal/formula"
	"github.com/banshee-data/peakfit/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesSchema(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(&Run{RunID: "a", CreatedAt: 1}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	r, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.CreatedAt)
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)

	in := &Run{
		ConfigPath: "peaks.yaml",
		HistName:   "energy",
		FitOption:  "RMS+",
		StatusCode: 0,
		Converged:  true,
		Chi2:       97.5,
		NDF:        94,
		Message:    "FunctionConvergence",
		ParamsJSON: []byte(`[{"index":0,"value":1}]`),
	}
	require.NoError(t, s.Insert(in))
	assert.NotEmpty(t, in.RunID, "run ID is generated")
	assert.NotZero(t, in.CreatedAt)

	out, err := s.Get(in.RunID)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestList_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, s.Insert(&Run{RunID: id, CreatedAt: int64(100 * (i + 1))}))
	}

	runs, err := s.List(0)
	require.NoError(t, err)
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)

	runs, err = s.List(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Nil(t, runs[0].ParamsJSON)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert(&Run{RunID: "gone"}))

	require.NoError(t, s.Delete("gone"))
	_, err := s.Get("gone")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.ErrorIs(t, s.Delete("gone"), ErrRunNotFound)
}

func TestNewRun(t *testing.T) {
	fn := model.New("fit", formula.MustCompile("gaus"), 0, 10)
	fn.SetParameter(0, 12)
	fn.SetParError(0, 0.5)
	fn.SetParError(1, 0.01)

	res := &fit.FitResult{
		Status: fit.Status{Converged: true, Chi2: 3.5, NDF: 7, Message: "ok"},
		Model:  fn,
	}
	params := map[int]fit.Parameter{
		1: {Value: 4.2, Mode: fit.Bounded, Bounds: [2]float64{4, 5}},
		0: {Value: 12, Mode: fit.Free},
		9: {Value: 1, Mode: fit.Fixed},
	}

	r, err := NewRun(res, params)
	require.NoError(t, err)
	assert.True(t, r.Converged)
	assert.Equal(t, 7, r.NDF)
	assert.Equal(t, "ok", r.Message)

	got, err := r.Parameters()
	require.NoError(t, err)
	want := []StoredParameter{
		{Index: 0, Parameter: params[0], Error: 0.5},
		{Index: 1, Parameter: params[1], Error: 0.01},
		{Index: 9, Parameter: params[9]},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parameters mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRun_RoundTripThroughStore(t *testing.T) {
	s := openTestStore(t)
	r, err := NewRun(nil, map[int]fit.Parameter{2: {Value: 0.8, Mode: fit.Fixed}})
	require.NoError(t, err)
	r.HistName = "h"
	require.NoError(t, s.Insert(r))

	got, err := s.Get(r.RunID)
	require.NoError(t, err)
	params, err := got.Parameters()
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, 2, params[0].Index)
	assert.Equal(t, fit.Fixed, params[0].Mode)
	assert.Equal(t, 0.8, params[0].Value)
}

func TestIsSQLiteBusy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"other error", errors.New("some other error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isSQLiteBusy(tt.err))
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	calls := 0
	err := retryOnBusy(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryOnBusy(func() error {
		calls++
		return errors.New("constraint failed")
	})
	assert.EqualError(t, err, "constraint failed")
	assert.Equal(t, 1, calls, "non-busy errors are not retried")
}
