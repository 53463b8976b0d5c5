package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loginguard/internal/detector"
	"loginguard/internal/features"
	"loginguard/internal/iforest"
	"loginguard/internal/model"
	"loginguard/internal/profile"
)

func history() []model.LoginEvent {
	var out []model.LoginEvent
	start := time.Date(2024, 2, 5, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		out = append(out, model.LoginEvent{
			UserID:     []string{"alice", "bob"}[i%2],
			Timestamp:  start.Add(time.Duration(i) * 3 * time.Hour),
			Location:   model.Location{Latitude: 47.6 + float64(i%5)*0.01, Longitude: -122.3},
			DeviceInfo: model.DeviceInfo{Browser: "Firefox", OS: "macOS", DeviceType: "desktop"},
			Success:    i%17 != 0,
		})
	}
	return out
}

func trainedBundle(t *testing.T) (Bundle, []model.LoginEvent) {
	t.Helper()
	h := history()
	set := profile.BuildAll(h)
	rows := features.NewExtractor(set).Batch(h)
	cfg := iforest.DefaultConfig()
	cfg.Trees = 25
	m, err := detector.Train(context.Background(), rows, cfg)
	require.NoError(t, err)
	return Bundle{Model: m, Profiles: set}, h
}

func TestSaveLoadRoundTrip(t *testing.T) {
	b, h := trainedBundle(t)
	store := NewStore(t.TempDir(), nil)

	paths, err := store.Save("login_anomaly_detector", b)
	require.NoError(t, err)
	for _, p := range paths.all() {
		assert.FileExists(t, p)
	}
	require.True(t, store.Exists("login_anomaly_detector"))

	loaded, err := store.Load("login_anomaly_detector")
	require.NoError(t, err)
	assert.Equal(t, b.Model.Features, loaded.Model.Features)
	assert.Equal(t, b.Model.Meta.ModelID, loaded.Model.Meta.ModelID)
	assert.True(t, b.Model.Meta.TrainedAt.Equal(loaded.Model.Meta.TrainedAt))
	assert.Equal(t, b.Profiles, loaded.Profiles)

	held := model.LoginEvent{
		UserID:     "alice",
		Timestamp:  time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC),
		Location:   model.Location{Latitude: 55.7558, Longitude: 37.6173},
		DeviceInfo: model.DeviceInfo{Browser: "TOR Browser", OS: "Linux", DeviceType: "desktop"},
	}
	for _, ev := range slices.Concat(h[:10], []model.LoginEvent{held}) {
		before, err := b.Model.Predict(features.NewExtractor(b.Profiles).Combine(ev))
		require.NoError(t, err)
		after, err := loaded.Model.Predict(features.NewExtractor(loaded.Profiles).Combine(ev))
		require.NoError(t, err)
		assert.Equal(t, before, after)
	}
}

func TestLoadMissingBlob(t *testing.T) {
	b, _ := trainedBundle(t)
	store := NewStore(t.TempDir(), nil)
	paths, err := store.Save("m", b)
	require.NoError(t, err)
	require.NoError(t, os.Remove(paths.Scaler))

	_, err = store.Load("m")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), "m_scaler.json")
	assert.False(t, store.Exists("m"))

	_, err = store.Load("never-trained")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadRejectsOtherFormatVersion(t *testing.T) {
	b, _ := trainedBundle(t)
	store := NewStore(t.TempDir(), nil)
	paths, err := store.Save("m", b)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.Features, []byte(`{"format_version":99,"features":["hour"]}`), 0o644))

	_, err = store.Load("m")
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLoadRejectsCorruptBlob(t *testing.T) {
	b, _ := trainedBundle(t)
	store := NewStore(t.TempDir(), nil)
	paths, err := store.Save("m", b)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.Scaler, []byte("not json"), 0o644))

	_, err = store.Load("m")
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLoadRejectsWidthDisagreement(t *testing.T) {
	b, _ := trainedBundle(t)
	store := NewStore(t.TempDir(), nil)
	paths, err := store.Save("m", b)
	require.NoError(t, err)
	blob := fmt.Sprintf(`{"format_version":1,"model_id":%q,"features":["hour"]}`, b.Model.Meta.ModelID)
	require.NoError(t, os.WriteFile(paths.Features, []byte(blob), 0o644))

	_, err = store.Load("m")
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), "feature")
}

func TestLoadRejectsBlobsFromDifferentSaves(t *testing.T) {
	first, _ := trainedBundle(t)
	second, _ := trainedBundle(t)
	require.NotEqual(t, first.Model.Meta.ModelID, second.Model.Meta.ModelID)

	dir := t.TempDir()
	store := NewStore(dir, nil)
	a, err := store.Save("a", first)
	require.NoError(t, err)
	bp, err := store.Save("b", second)
	require.NoError(t, err)

	// Same feature list and scaler width, so only the stamp tells them apart.
	raw, err := os.ReadFile(bp.Scaler)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(a.Scaler, raw, 0o644))

	_, err = store.Load("a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Contains(t, err.Error(), second.Model.Meta.ModelID)

	_, err = store.Load("b")
	assert.NoError(t, err)
}

func TestSaveRejectsBadInput(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	_, err := store.Save("../escape", Bundle{})
	assert.Error(t, err)
	_, err = store.Save("m", Bundle{})
	assert.ErrorIs(t, err, detector.ErrNotTrained)
}
