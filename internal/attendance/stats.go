package attendance

import "math"

// Stats derives the per-course present rates. Every session adds its
// course roster to the course total, every log whose session is known
// adds one to present.
func Stats(st State) Summary {
	index := map[string]int{}
	byCourse := []CourseStat{}
	course := func(name string) *CourseStat {
		i, ok := index[name]
		if !ok {
			i = len(byCourse)
			index[name] = i
			byCourse = append(byCourse, CourseStat{Course: name})
		}
		return &byCourse[i]
	}

	for _, s := range st.Sessions {
		roster := 0
		for _, stu := range st.Students {
			if stu.Course == s.Course {
				roster++
			}
		}
		course(s.Course).Total += roster
	}
	for _, l := range st.Logs {
		s, ok := st.session(l.SessionID)
		if !ok {
			continue
		}
		course(s.Course).Present++
	}
	for i := range byCourse {
		byCourse[i].Rate = PresentRate(byCourse[i].Present, byCourse[i].Total)
	}

	return Summary{
		ByCourse:      byCourse,
		TotalStudents: len(st.Students),
		TotalSessions: len(st.Sessions),
		TotalMarks:    len(st.Logs),
	}
}

// PresentRate is present/total as a whole percentage, 0 when total is 0.
func PresentRate(present, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(present) / float64(total) * 100))
}

// Roster returns the students enrolled in course.
func Roster(st State, course string) []Student {
	out := []Student{}
	for _, s := range st.Clone().Students {
		if s.Course == course {
			out = append(out, s)
		}
	}
	return out
}

// Courses lists the distinct student courses in registration order.
func Courses(st State) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range st.Students {
		if !seen[s.Course] {
			seen[s.Course] = true
			out = append(out, s.Course)
		}
	}
	return out
}

// Recent returns the last n logs, newest first. The student name falls
// back to the student id when the student is unknown.
func Recent(st State, n int) []Activity {
	if n <= 0 || n > len(st.Logs) {
		n = len(st.Logs)
	}
	out := make([]Activity, 0, n)
	for i := len(st.Logs) - 1; i >= len(st.Logs)-n; i-- {
		l := st.Logs[i]
		name := l.StudentID
		if s, ok := st.student(l.StudentID); ok {
			name = s.Name
		}
		out = append(out, Activity{
			LogID:       l.ID,
			StudentID:   l.StudentID,
			StudentName: name,
			Course:      st.resolveCourse(l),
			SessionID:   l.SessionID,
			Method:      l.Method,
			Timestamp:   l.Timestamp,
		})
	}
	return out
}
