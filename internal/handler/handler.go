package handler

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"smartattendance/internal/attendance"
	"smartattendance/internal/cloudinary"
	"smartattendance/internal/faceclient"
)

var logger = loggo.GetLogger("attendance.handler")

// maxImageBytes bounds a multipart face capture.
const maxImageBytes = 8 << 20

// ImageUploader hosts captured images and returns where they live.
type ImageUploader interface {
	UploadDataURL(ctx context.Context, studentID, data string) (*cloudinary.UploadResult, error)
	UploadBytes(ctx context.Context, studentID string, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// LivenessChecker judges whether a face capture shows a live person.
type LivenessChecker interface {
	Liveness(ctx context.Context, image string) (*faceclient.LivenessResult, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Options are the optional collaborators of a Handler.
type Options struct {
	// Images, when set, receives every captured image and the hosted URL
	// is stored instead of the raw data.
	Images ImageUploader
	// Liveness fills in the liveness flag of face marks that arrive with
	// an image but without a verdict.
	Liveness LivenessChecker
	// Health is consulted by /healthz.
	Health      HealthChecker
	Clock       clock.Clock
	RecentLimit int
}

// Handler exposes the attendance store over HTTP.
type Handler struct {
	store       *attendance.Store
	images      ImageUploader
	liveness    LivenessChecker
	health      HealthChecker
	clock       clock.Clock
	recentLimit int
}

// New returns a handler over s. It fails with attendance.ErrNoStore when s
// is nil.
func New(s *attendance.Store, opts Options) (*Handler, error) {
	if s == nil {
		return nil, attendance.ErrNoStore
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 10
	}
	return &Handler{
		store:       s,
		images:      opts.Images,
		liveness:    opts.Liveness,
		health:      opts.Health,
		clock:       opts.Clock,
		recentLimit: opts.RecentLimit,
	}, nil
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	v1.GET("/state", h.GetState)
	v1.DELETE("/state", h.ClearAll)

	v1.GET("/students", h.ListStudents)
	v1.POST("/students", h.AddStudent)
	v1.GET("/students/:id", h.GetStudent)
	v1.POST("/students/:id/faces", h.CaptureFace)

	v1.GET("/courses", h.ListCourses)
	v1.GET("/courses/:course/roster", h.Roster)

	v1.GET("/sessions", h.ListSessions)
	v1.POST("/sessions", h.AddSession)

	v1.POST("/marks", h.MarkAttendance)
	v1.GET("/marks/recent", h.RecentMarks)

	v1.GET("/stats", h.Stats)
	v1.GET("/export.csv", h.ExportCSV)
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.NotFound):
		status = http.StatusNotFound
	case errors.Is(err, errors.NotValid), errors.Is(err, errors.BadRequest):
		status = http.StatusBadRequest
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// requireFields takes name/value pairs and rejects the first blank value.
// Values are expected to be trimmed already.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return errors.NotValidf("empty %s", pairs[i])
		}
	}
	return nil
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	healthy := h.health == nil || h.health.Healthy(c.Request.Context())
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "storage": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": true})
}

// ---------- State ----------

func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.State())
}

// ClearAll restores the seed roster and drops every session and log.
func (h *Handler) ClearAll(c *gin.Context) {
	h.store.Reset()
	c.JSON(http.StatusOK, h.store.State())
}

// ---------- Students ----------

type studentRequest struct {
	ID         string   `json:"id" binding:"required"`
	Name       string   `json:"name" binding:"required"`
	Course     string   `json:"course" binding:"required"`
	FaceImages []string `json:"faceImages"`
}

// AddStudent registers a student. Registering an existing id leaves the
// first registration in place and answers 200 instead of 201.
func (h *Handler) AddStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	req.Course = strings.TrimSpace(req.Course)
	if err := requireFields("id", req.ID, "name", req.Name, "course", req.Course); err != nil {
		fail(c, err)
		return
	}
	_, err := h.store.Student(req.ID)
	existed := err == nil

	h.store.AddStudent(attendance.NewStudent{
		ID:         req.ID,
		Name:       req.Name,
		Course:     req.Course,
		FaceImages: req.FaceImages,
	})
	st, err := h.store.Student(req.ID)
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	c.JSON(status, st)
}

func (h *Handler) ListStudents(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Students())
}

func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.store.Student(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// CaptureFace attaches an image to a student. It accepts either a JSON
// body {"data": "<data URL>"} or a multipart "file".
func (h *Handler) CaptureFace(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.Student(id); err != nil {
		fail(c, err)
		return
	}

	image, err := h.readImage(c, id)
	if err != nil {
		fail(c, err)
		return
	}
	h.store.CaptureFace(id, image)

	st, err := h.store.Student(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"student_id": id, "faces": len(st.FaceImages), "image": image})
}

func (h *Handler) readImage(c *gin.Context, studentID string) (string, error) {
	ctx := c.Request.Context()
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			return "", errors.BadRequestf("file field required")
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
		if err != nil {
			return "", errors.Annotate(err, "reading upload")
		}
		if len(data) > maxImageBytes {
			return "", errors.BadRequestf("image larger than %d bytes", maxImageBytes)
		}
		if h.images != nil {
			res, err := h.images.UploadBytes(ctx, studentID, data, header.Filename)
			if err != nil {
				return "", errors.Annotate(err, "image upload failed")
			}
			return res.SecureURL, nil
		}
		return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
	}

	var body struct {
		Data string `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		return "", errors.BadRequestf(`provide {"data": "<base64 data URL>"}`)
	}
	if h.images != nil {
		res, err := h.images.UploadDataURL(ctx, studentID, body.Data)
		if err != nil {
			return "", errors.Annotate(err, "image upload failed")
		}
		return res.SecureURL, nil
	}
	return body.Data, nil
}

// ---------- Courses ----------

func (h *Handler) ListCourses(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Courses())
}

func (h *Handler) Roster(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Roster(c.Param("course")))
}

// ---------- Sessions ----------

type sessionRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name" binding:"required"`
	Course string `json:"course" binding:"required"`
	Date   string `json:"date"`
}

func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Sessions())
}

// AddSession starts a session, defaulting the date to today (UTC). The
// resolved id is returned whether or not the session already existed.
func (h *Handler) AddSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Course = strings.TrimSpace(req.Course)
	if err := requireFields("name", req.Name, "course", req.Course); err != nil {
		fail(c, err)
		return
	}
	if req.Date == "" {
		req.Date = h.clock.Now().UTC().Format(time.DateOnly)
	} else if _, err := time.Parse(time.DateOnly, req.Date); err != nil {
		fail(c, errors.NotValidf("date %q (want yyyy-mm-dd)", req.Date))
		return
	}
	id := h.store.AddSession(attendance.NewSession{
		ID:     req.ID,
		Name:   req.Name,
		Course: req.Course,
		Date:   req.Date,
	})
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// ---------- Marks ----------

type markRequest struct {
	StudentID      string `json:"studentId" binding:"required"`
	SessionID      string `json:"sessionId" binding:"required"`
	Method         string `json:"method" binding:"required,oneof=face manual"`
	LivenessPassed *bool  `json:"livenessPassed"`
	Image          string `json:"image"`
}

// MarkAttendance records a mark. Face marks that carry an image but no
// liveness verdict are checked with the liveness service when one is
// configured; a failed check leaves the flag unset.
func (h *Handler) MarkAttendance(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	method := attendance.Method(req.Method)
	liveness := req.LivenessPassed
	if method == attendance.MethodFace && liveness == nil && req.Image != "" && h.liveness != nil {
		res, err := h.liveness.Liveness(c.Request.Context(), req.Image)
		if err != nil {
			logger.Warningf("liveness check for %s: %v", req.StudentID, err)
		} else {
			live := res.IsLive
			liveness = &live
		}
	}
	l := h.store.MarkAttendance(attendance.Mark{
		StudentID:      req.StudentID,
		SessionID:      req.SessionID,
		Method:         method,
		LivenessPassed: liveness,
	})
	c.JSON(http.StatusCreated, l)
}

func (h *Handler) RecentMarks(c *gin.Context) {
	limit := h.recentLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			fail(c, errors.NotValidf("limit %q", v))
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, h.store.Recent(limit))
}

// ---------- Reports ----------

func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Stats())
}

// ExportCSV streams the filtered logs as a CSV attachment.
func (h *Handler) ExportCSV(c *gin.Context) {
	f := attendance.Filter{
		SessionID: c.Query("session_id"),
		Course:    c.Query("course"),
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := c.Query(bound.name)
		if v == "" {
			continue
		}
		t, err := attendance.ParseFilterTime(v)
		if err != nil {
			fail(c, errors.NotValidf("%s %q", bound.name, v))
			return
		}
		*bound.dst = &t
	}
	c.Header("Content-Disposition", `attachment; filename="`+attendance.ExportFileName(f.SessionID)+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(h.store.ExportCSV(f)))
}
