package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
)

type memAnnouncementRepo struct {
	items map[string]models.Announcement
}

func (r *memAnnouncementRepo) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	var out []models.Announcement
	for _, a := range r.items {
		if filter.RecipientType == "" || a.RecipientType == filter.RecipientType {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (r *memAnnouncementRepo) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	a, ok := r.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (r *memAnnouncementRepo) Create(ctx context.Context, a *models.Announcement) error {
	r.items[a.ID] = *a
	return nil
}

func (r *memAnnouncementRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.items, id)
	return nil
}

type recipientCounterStub struct {
	active   int
	students int
	existing map[string]bool
}

func (s recipientCounterStub) CountActive(ctx context.Context, role *models.UserRole) (int, error) {
	if role != nil && *role == models.RoleStudent {
		return s.students, nil
	}
	return s.active, nil
}

func (s recipientCounterStub) CountExisting(ctx context.Context, ids []string) (int, error) {
	n := 0
	for _, id := range ids {
		if s.existing[id] {
			n++
		}
	}
	return n, nil
}

var adminSender = models.UserInfo{ID: "admin-1", FullName: "Head Office", Role: models.RoleAdmin}

func newAnnouncementFixture() (*AnnouncementService, *memAnnouncementRepo, *auditRecorder) {
	repo := &memAnnouncementRepo{items: map[string]models.Announcement{}}
	audit := &auditRecorder{}
	counter := recipientCounterStub{active: 12, students: 9, existing: map[string]bool{"stu-1": true, "stu-2": true}}
	return NewAnnouncementService(repo, counter, audit, nil, nil, nil), repo, audit
}

func TestCreateAnnouncementCountsRecipients(t *testing.T) {
	svc, _, audit := newAnnouncementFixture()
	ctx := context.Background()

	cases := []struct {
		req  dto.CreateAnnouncementRequest
		want int
	}{
		{dto.CreateAnnouncementRequest{Subject: "Hi", Message: "All", RecipientType: models.RecipientAll}, 12},
		{dto.CreateAnnouncementRequest{Subject: "Hi", Message: "Students", RecipientType: models.RecipientStudents}, 9},
		{dto.CreateAnnouncementRequest{Subject: "Hi", Message: "Some", RecipientType: models.RecipientSpecific, RecipientIDs: []string{"stu-1", "stu-1", "ghost", "stu-2"}}, 2},
	}
	for _, tc := range cases {
		a, err := svc.Create(ctx, adminSender, tc.req, models.RequestMeta{})
		require.NoError(t, err)
		assert.Equal(t, tc.want, a.RecipientCount, string(tc.req.RecipientType))
		assert.Equal(t, "Head Office", a.SenderName)
	}
	assert.Len(t, audit.logs, 3)
}

func TestCreateSpecificAnnouncementRequiresIDs(t *testing.T) {
	svc, repo, _ := newAnnouncementFixture()

	_, err := svc.Create(context.Background(), adminSender, dto.CreateAnnouncementRequest{
		Subject: "Hi", Message: "Body", RecipientType: models.RecipientSpecific,
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, repo.items)
}

func TestCreateAnnouncementRejectsUnknownType(t *testing.T) {
	svc, _, _ := newAnnouncementFixture()

	_, err := svc.Create(context.Background(), adminSender, dto.CreateAnnouncementRequest{
		Subject: "Hi", Message: "Body", RecipientType: "teachers",
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestDeleteAnnouncement(t *testing.T) {
	svc, _, audit := newAnnouncementFixture()
	ctx := context.Background()
	a, err := svc.Create(ctx, adminSender, dto.CreateAnnouncementRequest{Subject: "Hi", Message: "Body", RecipientType: models.RecipientAll}, models.RequestMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, a.ID, adminSender.ID, models.RequestMeta{}))
	_, err = svc.Get(ctx, a.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Equal(t, []string{models.AuditActionAnnouncementCreate, models.AuditActionAnnouncementDelete}, audit.actions())
}
