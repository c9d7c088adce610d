package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/attendly/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) UpsertRecords(_ context.Context, records []attendance.Record) ([]attendance.Record, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	saved := make([]attendance.Record, 0, len(records))
	for _, rec := range records {
		key := recordKey{classID: rec.ClassID, studentID: rec.StudentID, date: rec.Date.String()}
		if prev, ok := repo.db.records[key]; ok {
			rec.ID = prev.ID
		} else {
			rec.ID = newID()
		}
		repo.db.records[key] = rec
		saved = append(saved, rec)
	}
	return saved, nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, schoolID string, filter attendance.RecordFilter) ([]attendance.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	records := make([]attendance.Record, 0)
	for _, rec := range repo.db.records {
		switch {
		case rec.SchoolID != schoolID,
			filter.ClassID != "" && rec.ClassID != filter.ClassID,
			filter.StudentID != "" && rec.StudentID != filter.StudentID,
			!filter.From.IsZero() && rec.Date.Before(filter.From),
			!filter.To.IsZero() && rec.Date.After(filter.To):
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].StudentID < records[j].StudentID
	})
	return records, nil
}
