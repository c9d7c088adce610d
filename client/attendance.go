package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/attendance"
)

func (c *Client) MarkAttendance(ctx context.Context, data attendance.MarkAttendance) ([]attendance.Record, error) {
	var records []attendance.Record
	err := c.do(ctx, http.MethodPost, "/attendance", nil, data, &records)
	return records, err
}

// Sheet returns the marking sheet of the class for day; a zero day means today.
func (c *Client) Sheet(ctx context.Context, classID string, day core.Date) (attendance.Sheet, error) {
	q := url.Values{"class_id": {classID}}
	setDate(q, "date", day)
	var sheet attendance.Sheet
	err := c.do(ctx, http.MethodGet, "/attendance/sheet", q, nil, &sheet)
	return sheet, err
}

func (c *Client) ClassReport(ctx context.Context, classID string, period core.DateRange) (attendance.ClassReport, error) {
	var report attendance.ClassReport
	err := c.do(ctx, http.MethodGet, "/attendance/reports/classes/"+url.PathEscape(classID), setPeriod(url.Values{}, period), nil, &report)
	return report, err
}

func (c *Client) Trend(ctx context.Context, classID string, period core.DateRange) ([]attendance.TrendPoint, error) {
	var points []attendance.TrendPoint
	path := "/attendance/reports/classes/" + url.PathEscape(classID) + "/trend"
	err := c.do(ctx, http.MethodGet, path, setPeriod(url.Values{}, period), nil, &points)
	return points, err
}

func (c *Client) StudentReport(ctx context.Context, studentID string, period core.DateRange) (attendance.StudentReport, error) {
	var report attendance.StudentReport
	err := c.do(ctx, http.MethodGet, "/attendance/reports/students/"+url.PathEscape(studentID), setPeriod(url.Values{}, period), nil, &report)
	return report, err
}

// OwnReport is the report of the logged in student.
func (c *Client) OwnReport(ctx context.Context, period core.DateRange) (attendance.StudentReport, error) {
	var report attendance.StudentReport
	err := c.do(ctx, http.MethodGet, "/attendance/reports/me", setPeriod(url.Values{}, period), nil, &report)
	return report, err
}
