package academic

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/school"
	"github.com/trezcool/attendly/core/user"
)

// ImportColumns is the expected header of a student import file.
var ImportColumns = []string{"name", "username", "email", "roll_number", "guardian_name", "guardian_phone"}

const maxImportRows = 1000

var ErrImportHeader = errors.New("invalid header: expected " + strings.Join(ImportColumns, ","))

type importRow struct {
	Name          string `json:"name" validate:"required,max=150"`
	Username      string `json:"username" validate:"omitempty,min=3,max=150,alphanum_"`
	Email         string `json:"email" validate:"omitempty,email"`
	RollNumber    string `json:"roll_number" validate:"max=32"`
	GuardianName  string `json:"guardian_name" validate:"max=150"`
	GuardianPhone string `json:"guardian_phone" validate:"max=32"`
}

// parseImport reads the CSV records of a student import; columns may come in any order.
func parseImport(data []byte) ([]importRow, error) {
	rdr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	rdr.TrimLeadingSpace = true
	rdr.FieldsPerRecord = -1

	header, err := rdr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, core.NewFieldError("file", "file is empty")
		}
		return nil, core.NewFieldError("file", err.Error())
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := idx["name"]; !ok {
		return nil, core.NewValidationError(ErrImportHeader, core.FieldError{Field: "file", Error: ErrImportHeader.Error()})
	}
	get := func(rec []string, col string) string {
		if i, ok := idx[col]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var rows []importRow
	for {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.NewFieldError("file", err.Error())
		}
		if len(rows) == maxImportRows {
			return nil, core.NewFieldError("file", "too many rows")
		}
		rows = append(rows, importRow{
			Name:          core.CleanString(get(rec, "name")),
			Username:      core.CleanString(get(rec, "username"), true /* lower */),
			Email:         core.CleanString(get(rec, "email"), true /* lower */),
			RollNumber:    core.CleanString(get(rec, "roll_number")),
			GuardianName:  core.CleanString(get(rec, "guardian_name")),
			GuardianPhone: core.CleanString(get(rec, "guardian_phone")),
		})
	}
	return rows, nil
}

// ImportStudents creates a student per CSV row. Invalid rows are reported and skipped;
// imported accounts get a random password and are expected to go through password reset.
func (svc *service) ImportStudents(ctx context.Context, sch school.School, classID string, csvData []byte) (ImportResult, error) {
	if classID != "" {
		if err := svc.classOrFieldError(ctx, sch.ID, classID); err != nil {
			return ImportResult{}, err
		}
	}
	rows, err := parseImport(csvData)
	if err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{Created: []Student{}, Failed: []ImportRowError{}}
	seen := make(map[string]int)
	for i, row := range rows {
		line := i + 2
		if fldErrs := svc.checkImportRow(ctx, sch.ID, row, seen, line); fldErrs != nil {
			res.Failed = append(res.Failed, ImportRowError{Line: line, Errors: fldErrs})
			continue
		}

		pwd := uuid.NewString()
		nu := user.NewUser{
			SchoolID:        sch.ID,
			Name:            row.Name,
			Username:        row.Username,
			Email:           row.Email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           []string{user.RoleStudent},
		}
		st, err := svc.createStudent(ctx, sch, nu, NewStudent{
			RollNumber:    row.RollNumber,
			GuardianName:  row.GuardianName,
			GuardianPhone: row.GuardianPhone,
			ClassID:       classID,
		})
		if err != nil {
			return res, errors.Wrapf(err, "importing line %d", line)
		}
		st.Name, st.Username, st.Email, st.IsActive = row.Name, row.Username, row.Email, true
		res.Created = append(res.Created, st)
	}
	return res, nil
}

func (svc *service) checkImportRow(ctx context.Context, schoolID string, row importRow, seen map[string]int, line int) map[string]string {
	if err := svc.validate.Struct(row); err != nil {
		if vErrs, ok := err.(validator.ValidationErrors); ok {
			return core.TranslateValidationErrors(vErrs, svc.translator)
		}
		return map[string]string{"row": err.Error()}
	}
	if row.Username == "" && row.Email == "" {
		return map[string]string{"username": "one of username or email is required"}
	}

	for _, fv := range [][2]string{{"username", row.Username}, {"email", row.Email}} {
		fld, val := fv[0], fv[1]
		if val == "" {
			continue
		}
		key := fld + ":" + val
		if prev, dup := seen[key]; dup {
			return map[string]string{fld: "duplicates line " + strconv.Itoa(prev)}
		}
		seen[key] = line
	}

	if err := svc.usrSvc.CheckUniqueness(ctx, schoolID, row.Username, row.Email); err != nil {
		if vErr, ok := err.(*core.ValidationError); ok && len(vErr.Fields) > 0 {
			return map[string]string{vErr.Fields[0].Field: vErr.Fields[0].Error}
		}
		return map[string]string{"row": err.Error()}
	}
	return nil
}
