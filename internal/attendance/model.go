package attendance

import (
	"encoding/json"
	"time"
)

// Method records how an attendance mark was produced.
type Method string

const (
	// MethodFace marks come from a capture and recognition flow.
	MethodFace Method = "face"
	// MethodManual marks come from an operator clicking a roster entry.
	MethodManual Method = "manual"
)

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	return m == MethodFace || m == MethodManual
}

// Student is a person eligible for attendance.
type Student struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Course     string   `json:"course"`
	FaceImages []string `json:"faceImages"` // most recent last
}

// Session is one attendance-taking event for a course on a date.
type Session struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Course string `json:"course"`
	Date   string `json:"date"` // yyyy-mm-dd
}

// Log is a single attendance mark.
type Log struct {
	ID             string
	StudentID      string
	SessionID      string
	Timestamp      time.Time
	Method         Method
	LivenessPassed *bool
}

type logJSON struct {
	ID             string `json:"id"`
	StudentID      string `json:"studentId"`
	SessionID      string `json:"sessionId"`
	Timestamp      int64  `json:"timestamp"`
	Method         Method `json:"method"`
	LivenessPassed *bool  `json:"livenessPassed,omitempty"`
}

// MarshalJSON writes the timestamp as epoch milliseconds so persisted
// blobs keep the browser layout.
func (l Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(logJSON{
		ID:             l.ID,
		StudentID:      l.StudentID,
		SessionID:      l.SessionID,
		Timestamp:      l.Timestamp.UnixMilli(),
		Method:         l.Method,
		LivenessPassed: l.LivenessPassed,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (l *Log) UnmarshalJSON(data []byte) error {
	var raw logJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Log{
		ID:             raw.ID,
		StudentID:      raw.StudentID,
		SessionID:      raw.SessionID,
		Timestamp:      time.UnixMilli(raw.Timestamp).UTC(),
		Method:         raw.Method,
		LivenessPassed: raw.LivenessPassed,
	}
	return nil
}

// State is the aggregate root holding every collection.
type State struct {
	Students []Student `json:"students"`
	Sessions []Session `json:"sessions"`
	Logs     []Log     `json:"logs"`
}

// NewStudent is the registration input. FaceImages may be nil.
type NewStudent struct {
	ID         string
	Name       string
	Course     string
	FaceImages []string
}

// NewSession is the input for starting a session. An empty ID is derived
// from Date, Course and Name.
type NewSession struct {
	ID     string
	Name   string
	Course string
	Date   string
}

// Mark is the input for recording attendance.
type Mark struct {
	StudentID      string
	SessionID      string
	Method         Method
	LivenessPassed *bool
}

// Filter narrows an export. Zero values leave a dimension open.
type Filter struct {
	From      *time.Time
	To        *time.Time
	SessionID string
	Course    string
}

// CourseStat is the present rate of one course.
type CourseStat struct {
	Course  string `json:"course"`
	Present int    `json:"present"`
	Total   int    `json:"total"`
	Rate    int    `json:"rate"`
}

// Summary is the dashboard view over the whole state.
type Summary struct {
	ByCourse      []CourseStat `json:"by_course"`
	TotalStudents int          `json:"total_students"`
	TotalSessions int          `json:"total_sessions"`
	TotalMarks    int          `json:"total_marks"`
}

// Activity is a log entry with its student and course resolved.
type Activity struct {
	LogID       string
	StudentID   string
	StudentName string
	Course      string
	SessionID   string
	Method      Method
	Timestamp   time.Time
}

type activityJSON struct {
	LogID       string `json:"log_id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Course      string `json:"course"`
	SessionID   string `json:"session_id"`
	Method      Method `json:"method"`
	Timestamp   int64  `json:"timestamp"`
}

// MarshalJSON writes the timestamp as epoch milliseconds, like Log.
func (a Activity) MarshalJSON() ([]byte, error) {
	return json.Marshal(activityJSON{
		LogID:       a.LogID,
		StudentID:   a.StudentID,
		StudentName: a.StudentName,
		Course:      a.Course,
		SessionID:   a.SessionID,
		Method:      a.Method,
		Timestamp:   a.Timestamp.UnixMilli(),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var raw activityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Activity{
		LogID:       raw.LogID,
		StudentID:   raw.StudentID,
		StudentName: raw.StudentName,
		Course:      raw.Course,
		SessionID:   raw.SessionID,
		Method:      raw.Method,
		Timestamp:   time.UnixMilli(raw.Timestamp).UTC(),
	}
	return nil
}
