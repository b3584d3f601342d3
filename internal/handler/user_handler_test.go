package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/middleware"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

type userAdminFake struct {
	filter      models.UserFilter
	created     dto.CreateUserRequest
	actor       string
	deactivated string
	err         error
}

func (f *userAdminFake) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	f.filter = filter
	return []models.User{{ID: "inst-1", Role: models.RoleInstructor}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, f.err
}

func (f *userAdminFake) Get(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id}, f.err
}

func (f *userAdminFake) Create(ctx context.Context, req dto.CreateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	f.created, f.actor = req, actorID
	return &models.User{ID: "user-new", Email: req.Email, Role: req.Role}, f.err
}

func (f *userAdminFake) Update(ctx context.Context, id string, req dto.UpdateUserRequest, actorID string, meta models.RequestMeta) (*models.User, error) {
	return &models.User{ID: id, Role: req.Role}, f.err
}

func (f *userAdminFake) Deactivate(ctx context.Context, id string, actorID string, meta models.RequestMeta) error {
	f.deactivated, f.actor = id, actorID
	return f.err
}

func asAdmin(c *gin.Context) {
	middleware.SetClaims(c, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
}

func TestUserListParsesFilter(t *testing.T) {
	fake := &userAdminFake{}
	h := NewUserHandler(fake)
	c, w := newGinContext(http.MethodGet, "/admin/users?role=instructor&active=false&search=+ravi+&sort_by=name&sort_order=asc&limit=5", nil)

	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, fake.filter.Role)
	assert.Equal(t, models.RoleInstructor, *fake.filter.Role)
	require.NotNil(t, fake.filter.Active)
	assert.False(t, *fake.filter.Active)
	assert.Equal(t, "ravi", fake.filter.Search)
	assert.Equal(t, 5, fake.filter.PageSize)
	assert.Equal(t, "name", fake.filter.SortBy)
	assert.Equal(t, float64(1), decode(t, w).Pagination["totalCount"])
}

func TestUserListRejectsBadFilter(t *testing.T) {
	for _, query := range []string{"role=TEACHER", "active=maybe"} {
		t.Run(query, func(t *testing.T) {
			h := NewUserHandler(&userAdminFake{})
			c, w := newGinContext(http.MethodGet, "/admin/users?"+query, nil)
			h.List(c)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestUserCreatePassesActor(t *testing.T) {
	fake := &userAdminFake{}
	h := NewUserHandler(fake)
	body := []byte(`{"email":"meera@gurukul.test","fullName":"Meera","role":"STUDENT","password":"learning-123"}`)
	c, w := newGinContext(http.MethodPost, "/admin/users", body)
	asAdmin(c)

	h.Create(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "admin-1", fake.actor)
	assert.Equal(t, models.RoleStudent, fake.created.Role)
	assert.Nil(t, fake.created.Active)
}

func TestUserDeactivateSurfacesForbidden(t *testing.T) {
	fake := &userAdminFake{err: appErrors.Clone(appErrors.ErrForbidden, "cannot deactivate your own account")}
	h := NewUserHandler(fake)
	c, w := newGinContext(http.MethodDelete, "/admin/users/admin-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "admin-1"}}
	asAdmin(c)

	h.Deactivate(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "admin-1", fake.deactivated)
	assert.Equal(t, "FORBIDDEN", decode(t, w).Error["code"])
}

func TestUserCreateRequiresAuth(t *testing.T) {
	h := NewUserHandler(&userAdminFake{})
	c, w := newGinContext(http.MethodPost, "/admin/users", []byte(`{}`))
	h.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type accountsFake map[string]*models.User

func (f accountsFake) Get(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

func TestAuthMe(t *testing.T) {
	accounts := accountsFake{
		"admin-1": {ID: "admin-1", Email: "asha@gurukul.test", FullName: "Asha Rao", Role: models.RoleAdmin, Active: true},
		"stu-1":   {ID: "stu-1", Role: models.RoleStudent, Active: false},
	}
	h := NewAuthHandler(accounts)

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	asAdmin(c)
	h.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fullName":"Asha Rao"`)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	asStudent(c)
	h.Me(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ACCOUNT_INACTIVE", decode(t, w).Error["code"])

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	middleware.SetClaims(c, &models.JWTClaims{UserID: "sso-9", Email: "new@gurukul.test", Role: models.RoleStudent})
	h.Me(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"new@gurukul.test"`)
}
