package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	"github.com/gurukul-lms/gurukul-api/internal/repository"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

type memUserRepo struct {
	auditRecorder
	users     map[string]*models.User
	createErr error
	listErr   error
}

func newMemUserRepo(users ...models.User) *memUserRepo {
	r := &memUserRepo{users: map[string]*models.User{}}
	for i := range users {
		u := users[i]
		r.users[u.ID] = &u
	}
	return r
}

func (m *memUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, len(out), nil
}

func (m *memUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserRepo) Update(ctx context.Context, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserRepo) Deactivate(ctx context.Context, id string) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Active = false
	return nil
}

var (
	adminAsha   = models.User{ID: "admin-1", Email: "asha@gurukul.test", FullName: "Asha", Role: models.RoleAdmin, Active: true}
	teacherRavi = models.User{ID: "inst-1", Email: "ravi@gurukul.test", FullName: "Ravi", Role: models.RoleInstructor, Active: true, PasswordHash: "old"}
)

func newUserFixture(users ...models.User) (*UserService, *memUserRepo, *memCacheRepo) {
	repo := newMemUserRepo(users...)
	cacheRepo := newMemCacheRepo()
	svc := NewUserService(repo, NewCacheService(cacheRepo, nil, 0, nil, true), nil, nil)
	svc.newID = func() string { return "user-new" }
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc, repo, cacheRepo
}

func requireCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected app error, got %v", err)
	assert.Equal(t, want.Code, appErr.Code)
}

func TestUserListFiltersAndPaginates(t *testing.T) {
	svc, _, _ := newUserFixture(adminAsha, teacherRavi)
	role := models.RoleInstructor

	users, page, err := svc.List(context.Background(), models.UserFilter{Role: &role, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "inst-1", users[0].ID)
	assert.Equal(t, 1, page.TotalCount)
}

func TestUserListNeverReturnsNil(t *testing.T) {
	svc, _, _ := newUserFixture()
	users, _, err := svc.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.NotNil(t, users)
}

func TestUserCreateFoldsEmailAndDefaultsActive(t *testing.T) {
	svc, repo, cacheRepo := newUserFixture(adminAsha)

	user, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email:    "  Meera@Gurukul.TEST ",
		FullName: "Meera",
		Role:     models.RoleStudent,
		Password: "learning-123",
	}, adminAsha.ID, models.RequestMeta{IP: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, "user-new", user.ID)
	assert.Equal(t, "meera@gurukul.test", user.Email)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["user-new"].PasswordHash), []byte("learning-123")))
	assert.Equal(t, []string{models.AuditActionUserCreate}, repo.actions())
	require.NotNil(t, repo.logs[0].UserID)
	assert.Equal(t, adminAsha.ID, *repo.logs[0].UserID)
	assert.NotContains(t, string(repo.logs[0].NewValues), "password")
	assert.Equal(t, []string{statsCachePattern}, cacheRepo.invalidated)
}

func TestUserCreateWithoutActorLeavesAuditActorEmpty(t *testing.T) {
	svc, repo, _ := newUserFixture()
	_, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email: "root@gurukul.test", FullName: "Root", Role: models.RoleAdmin, Password: "bootstrap-1",
	}, "", models.RequestMeta{UserAgent: "gurukul-admin"})
	require.NoError(t, err)
	require.Len(t, repo.logs, 1)
	assert.Nil(t, repo.logs[0].UserID)
}

func TestUserCreateConflicts(t *testing.T) {
	t.Run("existing email", func(t *testing.T) {
		svc, repo, _ := newUserFixture(teacherRavi)
		_, err := svc.Create(context.Background(), dto.CreateUserRequest{
			Email: "RAVI@gurukul.test", FullName: "Dup", Role: models.RoleStudent, Password: "learning-123",
		}, adminAsha.ID, models.RequestMeta{})
		requireCode(t, err, appErrors.ErrConflict)
		assert.Len(t, repo.users, 1)
	})
	t.Run("insert race", func(t *testing.T) {
		svc, repo, _ := newUserFixture()
		repo.createErr = repository.ErrDuplicate
		_, err := svc.Create(context.Background(), dto.CreateUserRequest{
			Email: "late@gurukul.test", FullName: "Late", Role: models.RoleStudent, Password: "learning-123",
		}, adminAsha.ID, models.RequestMeta{})
		requireCode(t, err, appErrors.ErrConflict)
		assert.Empty(t, repo.logs)
	})
}

func TestUserCreateValidates(t *testing.T) {
	svc, _, _ := newUserFixture()
	_, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Email: "nope", FullName: "X", Role: "TEACHER", Password: "short",
	}, adminAsha.ID, models.RequestMeta{})
	requireCode(t, err, appErrors.ErrValidation)
}

func TestUserUpdateChangesRoleAndRehashes(t *testing.T) {
	svc, repo, cacheRepo := newUserFixture(adminAsha, teacherRavi)
	inactive := false

	user, err := svc.Update(context.Background(), teacherRavi.ID, dto.UpdateUserRequest{
		FullName: "Ravi K", Role: models.RoleAdmin, Active: &inactive, Password: "new-secret-1",
	}, adminAsha.ID, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.False(t, user.Active)

	stored := repo.users[teacherRavi.ID]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("new-secret-1")))
	require.Len(t, repo.logs, 1)
	assert.JSONEq(t, `{"email":"ravi@gurukul.test","role":"INSTRUCTOR","active":true}`, string(repo.logs[0].OldValues))
	assert.JSONEq(t, `{"email":"ravi@gurukul.test","role":"ADMIN","active":false}`, string(repo.logs[0].NewValues))
	assert.NotEmpty(t, cacheRepo.invalidated)
}

func TestUserUpdateKeepsPasswordWhenBlank(t *testing.T) {
	svc, repo, _ := newUserFixture(teacherRavi)
	_, err := svc.Update(context.Background(), teacherRavi.ID, dto.UpdateUserRequest{
		FullName: "Ravi", Role: models.RoleInstructor,
	}, adminAsha.ID, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "old", repo.users[teacherRavi.ID].PasswordHash)
	assert.True(t, repo.users[teacherRavi.ID].Active)
}

func TestUserUpdateGuardsOwnAccount(t *testing.T) {
	svc, repo, _ := newUserFixture(adminAsha)
	inactive := false

	_, err := svc.Update(context.Background(), adminAsha.ID, dto.UpdateUserRequest{
		FullName: "Asha", Role: models.RoleStudent,
	}, adminAsha.ID, models.RequestMeta{})
	requireCode(t, err, appErrors.ErrForbidden)

	_, err = svc.Update(context.Background(), adminAsha.ID, dto.UpdateUserRequest{
		FullName: "Asha", Role: models.RoleAdmin, Active: &inactive,
	}, adminAsha.ID, models.RequestMeta{})
	requireCode(t, err, appErrors.ErrForbidden)

	renamed, err := svc.Update(context.Background(), adminAsha.ID, dto.UpdateUserRequest{
		FullName: "Asha R", Role: models.RoleAdmin,
	}, adminAsha.ID, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Asha R", renamed.FullName)
	assert.Len(t, repo.logs, 1)
}

func TestUserUpdateMissing(t *testing.T) {
	svc, _, _ := newUserFixture()
	_, err := svc.Update(context.Background(), "ghost", dto.UpdateUserRequest{
		FullName: "Ghost", Role: models.RoleStudent,
	}, adminAsha.ID, models.RequestMeta{})
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestUserDeactivate(t *testing.T) {
	svc, repo, cacheRepo := newUserFixture(adminAsha, teacherRavi)

	require.NoError(t, svc.Deactivate(context.Background(), teacherRavi.ID, adminAsha.ID, models.RequestMeta{}))
	assert.False(t, repo.users[teacherRavi.ID].Active)
	assert.Equal(t, []string{models.AuditActionUserDelete}, repo.actions())
	assert.Len(t, cacheRepo.invalidated, 1)

	// already inactive
	require.NoError(t, svc.Deactivate(context.Background(), teacherRavi.ID, adminAsha.ID, models.RequestMeta{}))
	assert.Len(t, repo.logs, 1)
}

func TestUserDeactivateRejectsSelfAndMissing(t *testing.T) {
	svc, repo, _ := newUserFixture(adminAsha)

	requireCode(t, svc.Deactivate(context.Background(), adminAsha.ID, adminAsha.ID, models.RequestMeta{}), appErrors.ErrForbidden)
	assert.True(t, repo.users[adminAsha.ID].Active)

	requireCode(t, svc.Deactivate(context.Background(), "ghost", adminAsha.ID, models.RequestMeta{}), appErrors.ErrNotFound)
}

func TestUserAuditFailureDoesNotFailWrite(t *testing.T) {
	svc, repo, _ := newUserFixture(teacherRavi)
	repo.err = errors.New("audit table locked")

	require.NoError(t, svc.Deactivate(context.Background(), teacherRavi.ID, adminAsha.ID, models.RequestMeta{}))
	assert.False(t, repo.users[teacherRavi.ID].Active)
}
