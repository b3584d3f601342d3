package progresssync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/models"
)

// DefaultMinSyncInterval throttles non-forced reconciles.
const DefaultMinSyncInterval = 3 * time.Second

// ErrUnknownLecture is returned when a toggle names a lecture outside the course.
var ErrUnknownLecture = errors.New("lecture is not part of the course")

// API is the subset of the server the cache talks to.
type API interface {
	Enrolled(ctx context.Context) ([]dto.EnrolledCourse, error)
	ToggleLecture(ctx context.Context, lectureID string, completed bool, ifMatch int) (*dto.ToggleLectureResponse, error)
	Notifications(ctx context.Context, query NotificationQuery) (*NotificationPage, error)
	MarkNotificationRead(ctx context.Context, id string) error
	DeleteNotification(ctx context.Context, id string) error
}

// Options tunes a Cache.
type Options struct {
	MinSyncInterval time.Duration
	Logger          *zap.Logger
}

// Cache is the client-side view of the student's progress. The server is the
// source of truth; local toggles are applied optimistically and pushed in the
// background, and Reconcile folds the server state back in.
type Cache struct {
	api    API
	store  Store
	logger *zap.Logger
	minGap time.Duration
	now    func() time.Time
	newID  func() string

	mu     sync.Mutex
	state  *State
	pushMu sync.Mutex
	wg     sync.WaitGroup
}

// NewCache loads the persisted state from store.
func NewCache(ctx context.Context, api API, store Store, opts Options) (*Cache, error) {
	state, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MinSyncInterval <= 0 {
		opts.MinSyncInterval = DefaultMinSyncInterval
	}
	return &Cache{
		api:    api,
		store:  store,
		logger: opts.Logger,
		minGap: opts.MinSyncInterval,
		now:    time.Now,
		newID:  uuid.NewString,
		state:  state,
	}, nil
}

// Progress returns a copy of the local entry for courseID.
func (c *Cache) Progress(courseID string) (CourseProgress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.state.Courses[courseID]
	if !ok {
		return CourseProgress{}, false
	}
	return copyProgress(entry), true
}

// Pending returns the queued, unacknowledged toggles in order.
func (c *Cache) Pending() []PendingOp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]PendingOp(nil), c.state.Pending...)
}

// LastSync reports when the last successful reconcile finished.
func (c *Cache) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.LastSync
}

// Toggle marks lectureID complete or incomplete locally, persists the change,
// queues it and starts a background push. The optimistic state is returned
// and never rolled back.
func (c *Cache) Toggle(ctx context.Context, course *models.Course, lectureID string, completed bool) (CourseProgress, error) {
	if _, ok := course.FindLecture(lectureID); !ok {
		return CourseProgress{}, fmt.Errorf("%w: %s", ErrUnknownLecture, lectureID)
	}

	c.mu.Lock()
	entry, ok := c.state.Courses[course.ID]
	if !ok {
		entry = &CourseProgress{CourseID: course.ID, Status: models.EnrollmentStatusActive}
		c.state.Courses[course.ID] = entry
	}
	entry.LectureIDs = course.LectureIDs()
	entry.CompletedLectureIDs = course.CompletedIn(setMember(entry.CompletedLectureIDs, lectureID, completed))
	snapshot := course.ProgressFor(entry.CompletedLectureIDs)
	entry.TotalLectures = snapshot.Total
	entry.Progress = snapshot.Percentage
	entry.Status = models.StatusFor(entry.Status, snapshot.Percentage)

	c.state.Pending = append(c.state.Pending, PendingOp{
		ID:        c.newID(),
		CourseID:  course.ID,
		LectureID: lectureID,
		Completed: completed,
		QueuedAt:  c.now().UTC(),
	})
	result := copyProgress(entry)
	err := c.saveLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return result, err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.push(context.WithoutCancel(ctx))
	}()
	return result, nil
}

// Wait blocks until background pushes started by Toggle have finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Reconcile refetches the enrolled list and folds it into the local state:
// a server entry replaces the local one when its version is at least the
// local version, then pending toggles are replayed on top and pushed. Calls
// closer together than the minimum interval are skipped unless force is set.
func (c *Cache) Reconcile(ctx context.Context, force bool) (bool, error) {
	c.mu.Lock()
	last := c.state.LastSync
	c.mu.Unlock()
	if !force && !last.IsZero() && c.now().Sub(last) < c.minGap {
		return false, nil
	}

	items, err := c.api.Enrolled(ctx)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		seen[item.Course.ID] = struct{}{}
		local, ok := c.state.Courses[item.Course.ID]
		if ok && item.Version < local.Version {
			continue
		}
		entry := progressFromServer(item)
		if ok {
			entry.LectureIDs = local.LectureIDs
		}
		c.replayPending(entry)
		c.state.Courses[item.Course.ID] = entry
	}
	for id := range c.state.Courses {
		if _, ok := seen[id]; !ok && !c.hasPending(id) {
			delete(c.state.Courses, id)
		}
	}
	c.state.LastSync = c.now().UTC()
	err = c.saveLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return true, err
	}

	c.push(ctx)
	return true, nil
}

// Overlay applies pending local toggles to a server enrolled list.
func (c *Cache) Overlay(serverCourses []dto.EnrolledCourse) []dto.EnrolledCourse {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]dto.EnrolledCourse, len(serverCourses))
	for i, item := range serverCourses {
		entry := progressFromServer(item)
		if local, ok := c.state.Courses[item.Course.ID]; ok {
			entry.LectureIDs = local.LectureIDs
		}
		c.replayPending(entry)
		item.CompletedLectureIDs = entry.CompletedLectureIDs
		item.CompletedLectures = len(entry.CompletedLectureIDs)
		item.Progress = entry.Progress
		item.Status = entry.Status
		out[i] = item
	}
	return out
}

// push sends pending ops in order until the queue drains or a push fails.
func (c *Cache) push(ctx context.Context) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	blocked := map[string]bool{}
	for {
		op, ifMatch, ok := c.nextPending(blocked)
		if !ok {
			return
		}

		result, err := c.api.ToggleLecture(ctx, op.LectureID, op.Completed, ifMatch)
		switch status := StatusOf(err); {
		case err == nil:
			c.acknowledge(ctx, op, result)
		case status == http.StatusPreconditionFailed:
			c.logger.Info("toggle rejected as stale; waiting for reconcile",
				zap.String("course_id", op.CourseID), zap.String("lecture_id", op.LectureID))
			c.markStale(ctx, op.CourseID)
			blocked[op.CourseID] = true
		case status == http.StatusForbidden || status == http.StatusNotFound:
			c.logger.Warn("dropping toggle the server cannot apply",
				zap.String("lecture_id", op.LectureID), zap.Int("status", status), zap.Error(err))
			c.drop(ctx, op)
		default:
			c.logger.Warn("toggle push failed; will retry on next sync",
				zap.String("lecture_id", op.LectureID), zap.Error(err))
			return
		}
	}
}

func (c *Cache) nextPending(blocked map[string]bool) (PendingOp, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, op := range c.state.Pending {
		if blocked[op.CourseID] {
			continue
		}
		entry := c.state.Courses[op.CourseID]
		if entry != nil && entry.Stale {
			continue
		}
		version := 0
		if entry != nil {
			version = entry.Version
		}
		return op, version, true
	}
	return PendingOp{}, 0, false
}

func (c *Cache) acknowledge(ctx context.Context, op PendingOp, result *dto.ToggleLectureResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removePending(op.ID)

	entry := &CourseProgress{
		CourseID:            result.CourseID,
		CompletedLectureIDs: append([]string(nil), result.CompletedLectureIDs...),
		TotalLectures:       result.TotalLectures,
		Progress:            result.Progress,
		Status:              result.Status,
		Version:             result.Version,
	}
	if entry.CourseID == "" {
		entry.CourseID = op.CourseID
	}
	if local, ok := c.state.Courses[entry.CourseID]; ok {
		entry.LectureIDs = local.LectureIDs
	}
	c.replayPending(entry)
	c.state.Courses[entry.CourseID] = entry
	if err := c.saveLocked(ctx); err != nil {
		c.logger.Warn("failed to persist acknowledged toggle", zap.Error(err))
	}
}

func (c *Cache) markStale(ctx context.Context, courseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.state.Courses[courseID]; ok {
		entry.Stale = true
		if err := c.saveLocked(ctx); err != nil {
			c.logger.Warn("failed to persist stale marker", zap.Error(err))
		}
	}
}

func (c *Cache) drop(ctx context.Context, op PendingOp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removePending(op.ID)
	if err := c.saveLocked(ctx); err != nil {
		c.logger.Warn("failed to persist dropped toggle", zap.Error(err))
	}
}

// replayPending applies queued toggles for entry's course, recounting
// against the known lecture set after each one. Caller holds c.mu.
func (c *Cache) replayPending(entry *CourseProgress) {
	entry.recount()
	for _, op := range c.state.Pending {
		if op.CourseID != entry.CourseID {
			continue
		}
		entry.CompletedLectureIDs = setMember(entry.CompletedLectureIDs, op.LectureID, op.Completed)
		entry.recount()
	}
}

func (c *Cache) hasPending(courseID string) bool {
	for _, op := range c.state.Pending {
		if op.CourseID == courseID {
			return true
		}
	}
	return false
}

func (c *Cache) removePending(id string) {
	for i, op := range c.state.Pending {
		if op.ID == id {
			c.state.Pending = append(c.state.Pending[:i], c.state.Pending[i+1:]...)
			return
		}
	}
}

func (c *Cache) saveLocked(ctx context.Context) error {
	if err := c.store.Save(ctx, c.state); err != nil {
		return fmt.Errorf("persist client state: %w", err)
	}
	return nil
}

// MarkRead records id as read locally and on the server. The local mark is
// kept when the server call fails.
func (c *Cache) MarkRead(ctx context.Context, id string) error {
	c.mu.Lock()
	c.state.ReadNotifications[id] = true
	err := c.saveLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.api.MarkNotificationRead(ctx, id)
}

// Delete hides id locally and soft-deletes it on the server.
func (c *Cache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	c.state.DeletedNotifications[id] = true
	delete(c.state.ReadNotifications, id)
	err := c.saveLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.api.DeleteNotification(ctx, id)
}

// FilterFeed drops locally deleted items and marks locally read ones as read.
func (c *Cache) FilterFeed(items []models.Notification) []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Notification, 0, len(items))
	for _, item := range items {
		if c.state.DeletedNotifications[item.ID] {
			continue
		}
		if c.state.ReadNotifications[item.ID] {
			item.Read = true
		}
		out = append(out, item)
	}
	return out
}

// Feed fetches the server feed excluding locally deleted ids and filters it.
// UnreadCount is the server count less the locally read items on this page;
// local reads of items outside the page are not subtracted until the server
// has recorded them.
func (c *Cache) Feed(ctx context.Context, query NotificationQuery) (*NotificationPage, error) {
	c.mu.Lock()
	deleted := sortedKeys(c.state.DeletedNotifications)
	c.mu.Unlock()
	exclude := make([]string, 0, len(query.Exclude)+len(deleted))
	query.Exclude = append(append(exclude, query.Exclude...), deleted...)

	page, err := c.api.Notifications(ctx, query)
	if err != nil {
		return nil, err
	}

	flipped := 0
	c.mu.Lock()
	for _, item := range page.Items {
		if !item.Read && c.state.ReadNotifications[item.ID] && !c.state.DeletedNotifications[item.ID] {
			flipped++
		}
	}
	c.mu.Unlock()

	page.Items = c.FilterFeed(page.Items)
	if query.UnreadOnly {
		kept := page.Items[:0]
		for _, item := range page.Items {
			if !item.Read {
				kept = append(kept, item)
			}
		}
		page.Items = kept
	}
	page.UnreadCount -= flipped
	if page.UnreadCount < 0 {
		page.UnreadCount = 0
	}
	return page, nil
}

func progressFromServer(item dto.EnrolledCourse) *CourseProgress {
	return &CourseProgress{
		CourseID:            item.Course.ID,
		CompletedLectureIDs: append([]string(nil), item.CompletedLectureIDs...),
		TotalLectures:       item.TotalLectures,
		Progress:            item.Progress,
		Status:              item.Status,
		Version:             item.Version,
	}
}

func copyProgress(entry *CourseProgress) CourseProgress {
	out := *entry
	out.CompletedLectureIDs = append([]string(nil), entry.CompletedLectureIDs...)
	out.LectureIDs = append([]string(nil), entry.LectureIDs...)
	return out
}

// setMember adds or removes id from ids, keeping the order of the rest.
func setMember(ids []string, id string, present bool) []string {
	for i, existing := range ids {
		if existing == id {
			if present {
				return ids
			}
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	if present {
		return append(ids, id)
	}
	return ids
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
