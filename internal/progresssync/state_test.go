package progresssync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "nested", "state.json"))
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Courses)
	assert.NotNil(t, empty.ReadNotifications)

	state := NewState()
	state.Courses["course-1"] = &CourseProgress{CourseID: "course-1", CompletedLectureIDs: []string{"l1"}, TotalLectures: 4, Progress: 25, Version: 3}
	state.Pending = []PendingOp{{ID: "op-1", CourseID: "course-1", LectureID: "l2", Completed: true}}
	state.DeletedNotifications["n1"] = true
	state.LastSync = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.Courses["course-1"], loaded.Courses["course-1"])
	assert.Equal(t, state.Pending, loaded.Pending)
	assert.True(t, loaded.DeletedNotifications["n1"])
	assert.True(t, state.LastSync.Equal(loaded.LastSync))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are renamed away")
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestFileStoreRejectsCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestCacheSurvivesRestart(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	api := newFakeAPI()
	api.toggleErr = assert.AnError
	ctx := context.Background()

	cache, err := NewCache(ctx, api, store, Options{})
	require.NoError(t, err)
	_, err = cache.Toggle(ctx, testCourse(), "l3", true)
	require.NoError(t, err)
	cache.Wait()

	reopened, err := NewCache(ctx, api, store, Options{})
	require.NoError(t, err)
	pending := reopened.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "l3", pending[0].LectureID)
	entry, ok := reopened.Progress("course-1")
	require.True(t, ok)
	assert.Equal(t, 25, entry.Progress)
}
