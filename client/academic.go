package client

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core/academic"
)

func sessionPath(id string) string { return "/sessions/" + url.PathEscape(id) }
func classPath(id string) string   { return "/classes/" + url.PathEscape(id) }
func teacherPath(id string) string { return "/teachers/" + url.PathEscape(id) }
func studentPath(id string) string { return "/students/" + url.PathEscape(id) }

func personQuery(filter academic.PersonFilter) url.Values {
	q := url.Values{}
	setIf(q, "class_id", filter.ClassID)
	setIf(q, "search", filter.Search)
	return q
}

// Sessions

func (c *Client) Sessions(ctx context.Context) ([]academic.Session, error) {
	var sessions []academic.Session
	err := c.do(ctx, http.MethodGet, "/sessions", nil, nil, &sessions)
	return sessions, err
}

func (c *Client) ActiveSession(ctx context.Context) (academic.Session, error) {
	var s academic.Session
	err := c.do(ctx, http.MethodGet, "/sessions/active", nil, nil, &s)
	return s, err
}

func (c *Client) Session(ctx context.Context, id string) (academic.Session, error) {
	var s academic.Session
	err := c.do(ctx, http.MethodGet, sessionPath(id), nil, nil, &s)
	return s, err
}

func (c *Client) CreateSession(ctx context.Context, data academic.SessionData) (academic.Session, error) {
	var s academic.Session
	err := c.do(ctx, http.MethodPost, "/sessions", nil, data, &s)
	return s, err
}

func (c *Client) UpdateSession(ctx context.Context, id string, data academic.SessionData) (academic.Session, error) {
	var s academic.Session
	err := c.do(ctx, http.MethodPut, sessionPath(id), nil, data, &s)
	return s, err
}

func (c *Client) ActivateSession(ctx context.Context, id string) (academic.Session, error) {
	var s academic.Session
	err := c.do(ctx, http.MethodPost, sessionPath(id)+"/activate", nil, nil, &s)
	return s, err
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id), nil, nil, nil)
}

// Classes

func (c *Client) Classes(ctx context.Context, sessionID string) ([]academic.Class, error) {
	q := url.Values{}
	setIf(q, "session_id", sessionID)
	var classes []academic.Class
	err := c.do(ctx, http.MethodGet, "/classes", q, nil, &classes)
	return classes, err
}

func (c *Client) Class(ctx context.Context, id string) (academic.Class, error) {
	var cls academic.Class
	err := c.do(ctx, http.MethodGet, classPath(id), nil, nil, &cls)
	return cls, err
}

func (c *Client) CreateClass(ctx context.Context, data academic.ClassData) (academic.Class, error) {
	var cls academic.Class
	err := c.do(ctx, http.MethodPost, "/classes", nil, data, &cls)
	return cls, err
}

func (c *Client) UpdateClass(ctx context.Context, id string, data academic.ClassData) (academic.Class, error) {
	var cls academic.Class
	err := c.do(ctx, http.MethodPut, classPath(id), nil, data, &cls)
	return cls, err
}

func (c *Client) DeleteClass(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, classPath(id), nil, nil, nil)
}

// Teachers

func (c *Client) Teachers(ctx context.Context, filter academic.PersonFilter) ([]academic.Teacher, error) {
	var teachers []academic.Teacher
	err := c.do(ctx, http.MethodGet, "/teachers", personQuery(filter), nil, &teachers)
	return teachers, err
}

func (c *Client) Teacher(ctx context.Context, id string) (academic.Teacher, error) {
	var t academic.Teacher
	err := c.do(ctx, http.MethodGet, teacherPath(id), nil, nil, &t)
	return t, err
}

func (c *Client) CreateTeacher(ctx context.Context, data academic.NewTeacher) (academic.Teacher, error) {
	var t academic.Teacher
	err := c.do(ctx, http.MethodPost, "/teachers", nil, data, &t)
	return t, err
}

// AssignTeacher moves the teacher to classID, closing their previous assignment.
func (c *Client) AssignTeacher(ctx context.Context, id, classID string) (academic.Teacher, error) {
	var t academic.Teacher
	err := c.do(ctx, http.MethodPut, teacherPath(id)+"/class", nil, academic.AssignClass{ClassID: classID}, &t)
	return t, err
}

func (c *Client) DeleteTeacher(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, teacherPath(id), nil, nil, nil)
}

// Students

func (c *Client) Students(ctx context.Context, filter academic.PersonFilter) ([]academic.Student, error) {
	var students []academic.Student
	err := c.do(ctx, http.MethodGet, "/students", personQuery(filter), nil, &students)
	return students, err
}

func (c *Client) Student(ctx context.Context, id string) (academic.Student, error) {
	var st academic.Student
	err := c.do(ctx, http.MethodGet, studentPath(id), nil, nil, &st)
	return st, err
}

// OwnStudent returns the profile of the logged in student.
func (c *Client) OwnStudent(ctx context.Context) (academic.Student, error) {
	var st academic.Student
	err := c.do(ctx, http.MethodGet, "/students/me", nil, nil, &st)
	return st, err
}

func (c *Client) CreateStudent(ctx context.Context, data academic.NewStudent) (academic.Student, error) {
	var st academic.Student
	err := c.do(ctx, http.MethodPost, "/students", nil, data, &st)
	return st, err
}

func (c *Client) EnrollStudent(ctx context.Context, id, classID string) (academic.Student, error) {
	var st academic.Student
	err := c.do(ctx, http.MethodPut, studentPath(id)+"/class", nil, academic.AssignClass{ClassID: classID}, &st)
	return st, err
}

func (c *Client) DeleteStudent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, studentPath(id), nil, nil, nil)
}

// ImportStudents uploads a CSV file of students into classID.
func (c *Client) ImportStudents(ctx context.Context, classID, filename string, csv io.Reader) (academic.ImportResult, error) {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	if err := w.WriteField("class_id", classID); err != nil {
		return academic.ImportResult{}, errors.Wrap(err, "writing class_id")
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return academic.ImportResult{}, errors.Wrap(err, "creating file part")
	}
	if _, err := io.Copy(part, csv); err != nil {
		return academic.ImportResult{}, errors.Wrap(err, "copying csv")
	}
	if err := w.Close(); err != nil {
		return academic.ImportResult{}, errors.Wrap(err, "closing multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/students/import", nil), body)
	if err != nil {
		return academic.ImportResult{}, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var res academic.ImportResult
	err = c.send(req, &res)
	return res, err
}
