package attendance_test

import (
	"encoding/csv"
	"strings"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"smartattendance/internal/attendance"
)

func parseCSV(c *gc.C, text string) [][]string {
	r := csv.NewReader(strings.NewReader(text))
	rows, err := r.ReadAll()
	c.Assert(err, jc.ErrorIsNil)
	return rows
}

type csvSuite struct {
	state attendance.State
}

var _ = gc.Suite(&csvSuite{})

func boolPtr(v bool) *bool { return &v }

func (s *csvSuite) SetUpTest(c *gc.C) {
	st := attendance.Seed()
	st, _, _ = attendance.AddSession(st, attendance.NewSession{Name: "Morning", Course: "CS101", Date: "2025-09-07"})
	st, _, _ = attendance.AddSession(st, attendance.NewSession{Name: "Lab", Course: "EE205", Date: "2025-09-08"})
	st = attendance.AppendLog(st, attendance.Log{
		ID: "log_a", StudentID: "STU-1001", SessionID: "2025-09-07_CS101_Morning",
		Timestamp: mustTime("2025-09-07T09:00:00Z"), Method: attendance.MethodFace, LivenessPassed: boolPtr(true),
	})
	st = attendance.AppendLog(st, attendance.Log{
		ID: "log_b", StudentID: "STU-1003", SessionID: "2025-09-08_EE205_Lab",
		Timestamp: mustTime("2025-09-08T10:30:00.5Z"), Method: attendance.MethodManual,
	})
	st = attendance.AppendLog(st, attendance.Log{
		ID: "log_c", StudentID: "STU-GONE", SessionID: "2025-09-08_EE205_Lab",
		Timestamp: mustTime("2025-09-08T11:00:00Z"), Method: attendance.MethodFace, LivenessPassed: boolPtr(false),
	})
	st = attendance.AppendLog(st, attendance.Log{
		ID: "log_d", StudentID: "STU-GONE", SessionID: "missing",
		Timestamp: mustTime("2025-09-09T08:00:00Z"), Method: attendance.MethodManual,
	})
	s.state = st
}

func (s *csvSuite) TestHeaderOnly(c *gc.C) {
	out := attendance.ExportCSV(attendance.Seed(), attendance.Filter{})
	c.Assert(out, gc.Equals, `"log_id","timestamp_iso","student_id","student_name","course","session_id","method","liveness"`)
}

func (s *csvSuite) TestAllRows(c *gc.C) {
	out := attendance.ExportCSV(s.state, attendance.Filter{})
	lines := strings.Split(out, "\n")
	c.Assert(lines, gc.HasLen, 5)
	c.Assert(lines[1], gc.Equals, `"log_a","2025-09-07T09:00:00.000Z","STU-1001","Aarav Mehta","CS101","2025-09-07_CS101_Morning","face","true"`)
	c.Assert(lines[2], gc.Equals, `"log_b","2025-09-08T10:30:00.500Z","STU-1003","Ishaan Patel","EE205","2025-09-08_EE205_Lab","manual",""`)
	c.Assert(lines[3], gc.Equals, `"log_c","2025-09-08T11:00:00.000Z","STU-GONE","","EE205","2025-09-08_EE205_Lab","face","false"`)
	c.Assert(lines[4], gc.Equals, `"log_d","2025-09-09T08:00:00.000Z","STU-GONE","","","missing","manual",""`)
}

func (s *csvSuite) TestFilterBySession(c *gc.C) {
	rows := parseCSV(c, attendance.ExportCSV(s.state, attendance.Filter{SessionID: "2025-09-08_EE205_Lab"}))
	c.Assert(rows, gc.HasLen, 3)
	c.Assert(rows[1][0], gc.Equals, "log_b")
	c.Assert(rows[2][0], gc.Equals, "log_c")
}

func (s *csvSuite) TestFilterByCourseUsesResolvedCourse(c *gc.C) {
	rows := parseCSV(c, attendance.ExportCSV(s.state, attendance.Filter{Course: "EE205"}))
	c.Assert(rows, gc.HasLen, 3)
	c.Assert(rows[1][0], gc.Equals, "log_b")
	c.Assert(rows[2][0], gc.Equals, "log_c")
}

func (s *csvSuite) TestFilterStudentCourseWinsOverSession(c *gc.C) {
	st := attendance.AppendLog(s.state, attendance.Log{
		ID: "log_x", StudentID: "STU-1001", SessionID: "2025-09-08_EE205_Lab",
		Timestamp: mustTime("2025-09-08T12:00:00Z"), Method: attendance.MethodManual,
	})
	rows := parseCSV(c, attendance.ExportCSV(st, attendance.Filter{Course: "CS101"}))
	c.Assert(rows, gc.HasLen, 3)
	c.Assert(rows[2][0], gc.Equals, "log_x")
	c.Assert(rows[2][4], gc.Equals, "CS101")
}

func (s *csvSuite) TestFilterByTimeInclusive(c *gc.C) {
	from := mustTime("2025-09-08T10:30:00.5Z")
	to := mustTime("2025-09-08T11:00:00Z")
	rows := parseCSV(c, attendance.ExportCSV(s.state, attendance.Filter{From: &from, To: &to}))
	c.Assert(rows, gc.HasLen, 3)
	c.Assert(rows[1][0], gc.Equals, "log_b")
	c.Assert(rows[2][0], gc.Equals, "log_c")

	rows = parseCSV(c, attendance.ExportCSV(s.state, attendance.Filter{From: &to}))
	c.Assert(rows, gc.HasLen, 3)

	rows = parseCSV(c, attendance.ExportCSV(s.state, attendance.Filter{To: &from}))
	c.Assert(rows, gc.HasLen, 3)
}

func (s *csvSuite) TestFiltersCombine(c *gc.C) {
	from := mustTime("2025-09-08T10:45:00Z")
	rows := parseCSV(c, attendance.ExportCSV(s.state, attendance.Filter{From: &from, SessionID: "2025-09-08_EE205_Lab", Course: "EE205"}))
	c.Assert(rows, gc.HasLen, 2)
	c.Assert(rows[1][0], gc.Equals, "log_c")
}

func (s *csvSuite) TestQuotingRoundTrip(c *gc.C) {
	tricky := []string{`He said "hi"`, "a,b", `""`, "line\nbreak", ` spaced `}
	st := attendance.Seed()
	for i, v := range tricky {
		id := string(rune('A' + i))
		st, _ = attendance.AddStudent(st, attendance.NewStudent{ID: id, Name: v, Course: v})
		st = attendance.AppendLog(st, attendance.Log{
			ID: v, StudentID: id, SessionID: v, Timestamp: mustTime("2025-01-01T00:00:00Z"), Method: attendance.MethodManual,
		})
	}
	rows := parseCSV(c, attendance.ExportCSV(st, attendance.Filter{}))
	c.Assert(rows, gc.HasLen, len(tricky)+1)
	for i, v := range tricky {
		row := rows[i+1]
		c.Check(row[0], gc.Equals, v)
		c.Check(row[3], gc.Equals, v)
		c.Check(row[4], gc.Equals, v)
		c.Check(row[5], gc.Equals, v)
	}
}

func (s *csvSuite) TestExportFileName(c *gc.C) {
	c.Assert(attendance.ExportFileName(""), gc.Equals, "attendance_all.csv")
	c.Assert(attendance.ExportFileName("2025-09-07_CS101_Morning"), gc.Equals, "attendance_2025-09-07_CS101_Morning.csv")
}

func (s *csvSuite) TestParseFilterTime(c *gc.C) {
	for _, v := range []string{"1757235600000", "2025-09-07T09:00:00Z", "2025-09-07T11:00:00+02:00"} {
		t, err := attendance.ParseFilterTime(v)
		c.Assert(err, jc.ErrorIsNil)
		c.Check(t.Equal(mustTime("2025-09-07T09:00:00Z")), jc.IsTrue, gc.Commentf("%s", v))
	}
	t, err := attendance.ParseFilterTime("2025-09-07")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(t.Equal(mustTime("2025-09-07T00:00:00Z")), jc.IsTrue)

	_, err = attendance.ParseFilterTime("yesterday")
	c.Assert(err, gc.NotNil)
}
