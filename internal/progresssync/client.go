package progresssync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/gurukul-lms/gurukul-api/internal/dto"
	"github.com/gurukul-lms/gurukul-api/internal/models"
	appErrors "github.com/gurukul-lms/gurukul-api/pkg/errors"
	"github.com/gurukul-lms/gurukul-api/pkg/middleware/requestid"
)

// NotificationQuery selects a page of the caller's feed.
type NotificationQuery struct {
	Page       int
	Limit      int
	UnreadOnly bool
	Exclude    []string
}

// NotificationPage is one page of the feed plus the server unread count.
type NotificationPage struct {
	Items       []models.Notification
	Pagination  *models.Pagination
	UnreadCount int
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

// APIClient talks to the student endpoints of the API.
type APIClient struct {
	http *resty.Client
}

// NewAPIClient builds a client for baseURL (including the API prefix) that
// authenticates with token.
func NewAPIClient(baseURL, token string, timeout time.Duration) *APIClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &APIClient{http: client}
}

// Course fetches one course tree from the public catalog.
func (c *APIClient) Course(ctx context.Context, courseID string) (*models.Course, error) {
	var course models.Course
	if _, err := c.do(ctx, http.MethodGet, "/courses/{id}", c.req(ctx).SetPathParam("id", courseID), &course); err != nil {
		return nil, err
	}
	return &course, nil
}

// Enrolled lists the caller's enrollments.
func (c *APIClient) Enrolled(ctx context.Context) ([]dto.EnrolledCourse, error) {
	var items []dto.EnrolledCourse
	if _, err := c.do(ctx, http.MethodGet, "/student/courses/enrolled", c.req(ctx), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ToggleLecture sets a lecture's completion. A positive ifMatch is sent as
// If-Match so a stale write fails with 412.
func (c *APIClient) ToggleLecture(ctx context.Context, lectureID string, completed bool, ifMatch int) (*dto.ToggleLectureResponse, error) {
	req := c.req(ctx).
		SetPathParam("id", lectureID).
		SetBody(dto.ToggleLectureRequest{Completed: &completed})
	if ifMatch > 0 {
		req.SetHeader("If-Match", strconv.Quote(strconv.Itoa(ifMatch)))
	}
	var result dto.ToggleLectureResponse
	if _, err := c.do(ctx, http.MethodPatch, "/student/lectures/{id}", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Notifications fetches one page of the feed.
func (c *APIClient) Notifications(ctx context.Context, query NotificationQuery) (*NotificationPage, error) {
	req := c.req(ctx)
	if query.Page > 0 {
		req.SetQueryParam("page", strconv.Itoa(query.Page))
	}
	if query.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(query.Limit))
	}
	if query.UnreadOnly {
		req.SetQueryParam("unread", "true")
	}
	if len(query.Exclude) > 0 {
		req.SetQueryParam("exclude", strings.Join(query.Exclude, ","))
	}

	page := &NotificationPage{}
	env, err := c.do(ctx, http.MethodGet, "/student/notifications", req, &page.Items)
	if err != nil {
		return nil, err
	}
	page.Pagination = env.Pagination
	if n, ok := env.Meta["unreadCount"].(float64); ok {
		page.UnreadCount = int(n)
	}
	return page, nil
}

// MarkNotificationRead marks one notification read on the server.
func (c *APIClient) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPatch, "/student/notifications", c.req(ctx).SetBody(dto.MarkNotificationsRequest{ID: id}), nil)
	return err
}

// DeleteNotification soft-deletes one notification on the server.
func (c *APIClient) DeleteNotification(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/student/notifications/{id}", c.req(ctx).SetPathParam("id", id), nil)
	return err
}

func (c *APIClient) req(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// do executes req and decodes the envelope. Error envelopes come back as
// *appErrors.Error carrying the HTTP status.
func (c *APIClient) do(ctx context.Context, method, path string, req *resty.Request, out interface{}) (*envelope, error) {
	env := &envelope{}
	req.SetResult(env).SetError(env)
	if id := requestid.FromContext(ctx); id != "" {
		req.SetHeader(requestid.Header, id)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr := env.Error
		if apiErr == nil {
			apiErr = appErrors.New("HTTP_ERROR", resp.StatusCode(), strings.TrimSpace(resp.String()))
		}
		apiErr.Status = resp.StatusCode()
		return env, apiErr
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return env, nil
}

// StatusOf returns the HTTP status carried by an API error, or 0.
func StatusOf(err error) int {
	return appErrors.StatusOf(err)
}
