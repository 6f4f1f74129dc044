package attendance

import (
	"strconv"
	"strings"
	"time"
)

// CSVHeader is the first row of every export.
var CSVHeader = []string{
	"log_id",
	"timestamp_iso",
	"student_id",
	"student_name",
	"course",
	"session_id",
	"method",
	"liveness",
}

const isoMillis = "2006-01-02T15:04:05.000Z"

// ExportFileName is the suggested download name for an export of the given
// session, or of everything when sessionID is empty.
func ExportFileName(sessionID string) string {
	if sessionID == "" {
		sessionID = "all"
	}
	return "attendance_" + sessionID + ".csv"
}

// Match reports whether l passes f. Course is matched against the
// student's course, falling back to the session's course.
func (f Filter) Match(st State, l Log) bool {
	if f.From != nil && l.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && l.Timestamp.After(*f.To) {
		return false
	}
	if f.SessionID != "" && l.SessionID != f.SessionID {
		return false
	}
	if f.Course != "" && st.resolveCourse(l) != f.Course {
		return false
	}
	return true
}

func (st State) resolveCourse(l Log) string {
	if s, ok := st.student(l.StudentID); ok {
		return s.Course
	}
	if s, ok := st.session(l.SessionID); ok {
		return s.Course
	}
	return ""
}

// ExportCSV renders the logs of st selected by f. Every field is quoted
// and rows are joined with LF.
func ExportCSV(st State, f Filter) string {
	students := make(map[string]Student, len(st.Students))
	for _, s := range st.Students {
		if _, dup := students[s.ID]; !dup {
			students[s.ID] = s
		}
	}

	var b strings.Builder
	writeRow(&b, CSVHeader)
	for _, l := range st.Logs {
		if !f.Match(st, l) {
			continue
		}
		liveness := ""
		if l.LivenessPassed != nil {
			liveness = strconv.FormatBool(*l.LivenessPassed)
		}
		b.WriteByte('\n')
		writeRow(&b, []string{
			l.ID,
			l.Timestamp.UTC().Format(isoMillis),
			l.StudentID,
			students[l.StudentID].Name,
			st.resolveCourse(l),
			l.SessionID,
			string(l.Method),
			liveness,
		})
	}
	return b.String()
}

func writeRow(b *strings.Builder, fields []string) {
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
}

// ParseFilterTime accepts an RFC 3339 instant, epoch milliseconds or a
// yyyy-mm-dd date (midnight UTC).
func ParseFilterTime(v string) (time.Time, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}
