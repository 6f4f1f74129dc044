package attendance

import (
	"bytes"
	"encoding/json"
	"regexp"
	"slices"

	"github.com/juju/errors"
)

var seedStudents = []Student{
	{ID: "STU-1001", Name: "Aarav Mehta", Course: "CS101"},
	{ID: "STU-1002", Name: "Sara Khan", Course: "CS101"},
	{ID: "STU-1003", Name: "Ishaan Patel", Course: "EE205"},
}

// Seed returns the default state: the built-in roster and no sessions or logs.
func Seed() State {
	students := make([]Student, len(seedStudents))
	for i, st := range seedStudents {
		st.FaceImages = []string{}
		students[i] = st
	}
	return State{
		Students: students,
		Sessions: []Session{},
		Logs:     []Log{},
	}
}

// Clone returns a copy of st that shares no slices with it.
func (st State) Clone() State {
	students := make([]Student, len(st.Students))
	for i, s := range st.Students {
		s.FaceImages = append([]string{}, s.FaceImages...)
		students[i] = s
	}
	logs := make([]Log, len(st.Logs))
	for i, l := range st.Logs {
		if l.LivenessPassed != nil {
			v := *l.LivenessPassed
			l.LivenessPassed = &v
		}
		logs[i] = l
	}
	return State{
		Students: students,
		Sessions: append([]Session{}, st.Sessions...),
		Logs:     logs,
	}
}

func (st State) student(id string) (Student, bool) {
	for _, s := range st.Students {
		if s.ID == id {
			return s, true
		}
	}
	return Student{}, false
}

func (st State) session(id string) (Session, bool) {
	for _, s := range st.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return Session{}, false
}

// whitespace matches what a browser treats as \s, not only ASCII space.
var whitespace = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)

// SessionID derives the id of a session from its date, course and name,
// e.g. "2025-09-07_CS101_Morning".
func SessionID(date, course, name string) string {
	return date + "_" + course + "_" + whitespace.ReplaceAllString(name, "-")
}

// AddStudent returns st with the student appended. If the id is already
// registered the state is returned unchanged and ok is false.
func AddStudent(st State, in NewStudent) (next State, ok bool) {
	if _, exists := st.student(in.ID); exists {
		return st, false
	}
	images := []string{}
	if in.FaceImages != nil {
		images = slices.Clone(in.FaceImages)
	}
	next = st
	next.Students = append(slices.Clone(st.Students), Student{
		ID:         in.ID,
		Name:       in.Name,
		Course:     in.Course,
		FaceImages: images,
	})
	return next, true
}

// AddSession returns st with the session appended along with the resolved
// session id. An existing session with the same id wins and ok is false.
func AddSession(st State, in NewSession) (next State, id string, ok bool) {
	id = in.ID
	if id == "" {
		id = SessionID(in.Date, in.Course, in.Name)
	}
	if _, exists := st.session(id); exists {
		return st, id, false
	}
	next = st
	next.Sessions = append(slices.Clone(st.Sessions), Session{
		ID:     id,
		Name:   in.Name,
		Course: in.Course,
		Date:   in.Date,
	})
	return next, id, true
}

// CaptureFace appends image to the student's face images. Unknown
// students leave the state unchanged.
func CaptureFace(st State, studentID, image string) (next State, ok bool) {
	idx := slices.IndexFunc(st.Students, func(s Student) bool { return s.ID == studentID })
	if idx < 0 {
		return st, false
	}
	next = st
	next.Students = slices.Clone(st.Students)
	s := next.Students[idx]
	s.FaceImages = append(slices.Clone(s.FaceImages), image)
	next.Students[idx] = s
	return next, true
}

// AppendLog returns st with l appended. References are not checked.
func AppendLog(st State, l Log) State {
	next := st
	next.Logs = append(slices.Clone(st.Logs), l)
	return next
}

// Encode serializes st into the persisted blob layout.
func Encode(st State) ([]byte, error) {
	st = st.Clone()
	blob, err := json.Marshal(st)
	return blob, errors.Trace(err)
}

// Decode parses a persisted blob. An empty blob yields the seed state.
// Top-level collections that are missing or null are taken from the seed;
// unknown fields are ignored. On a parse error the seed state is returned
// together with the error.
func Decode(blob []byte) (State, error) {
	seed := Seed()
	if len(bytes.TrimSpace(blob)) == 0 {
		return seed, nil
	}
	var raw struct {
		Students *[]Student `json:"students"`
		Sessions *[]Session `json:"sessions"`
		Logs     *[]Log     `json:"logs"`
	}
	if err := json.Unmarshal(blob, &raw); err != nil {
		return seed, errors.Annotate(err, "decoding attendance state")
	}
	st := seed
	if raw.Students != nil {
		st.Students = *raw.Students
	}
	if raw.Sessions != nil {
		st.Sessions = *raw.Sessions
	}
	if raw.Logs != nil {
		st.Logs = *raw.Logs
	}
	return normalize(st), nil
}

func normalize(st State) State {
	if st.Students == nil {
		st.Students = []Student{}
	}
	if st.Sessions == nil {
		st.Sessions = []Session{}
	}
	if st.Logs == nil {
		st.Logs = []Log{}
	}
	for i := range st.Students {
		if st.Students[i].FaceImages == nil {
			st.Students[i].FaceImages = []string{}
		}
	}
	return st
}
