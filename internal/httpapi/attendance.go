package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/apperr"
	"attendtrack/internal/attendance"
	"attendtrack/internal/audit"
	"attendtrack/internal/auth"
	"attendtrack/internal/subject"
)

type markRequest struct {
	SubjectID int64  `json:"subject_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Status    string `json:"status" validate:"required,oneof=present absent"`
}

func invalidBody() error { return apperr.Invalid("Invalid request body") }

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("Invalid id")
	}
	return id, nil
}

func (s *server) attendanceSummary(c *gin.Context) {
	in := attendance.Inclusion{
		LibraryPE: c.Query("include_library_pe") == "true",
		Remedial:  c.Query("include_remedial") == "true",
	}
	sum, err := s.Attendance.Summary(c.Request.Context(), auth.Student(c).StudentID, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	sections := gin.H{}
	for cat, subs := range attendance.ByCategory(sum.Subjects) {
		sections[string(cat)] = subs
	}
	ok(c, http.StatusOK, gin.H{
		"subjects":     sum.Subjects,
		"sections":     sections,
		"overall":      sum.Overall,
		"overall_band": sum.OverallBand,
		"inclusion":    sum.Inclusion,
		"categories":   subject.Categories,
	})
}

func (s *server) markAttendance(c *gin.Context) {
	var req markRequest
	if err := s.bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	p := auth.Student(c)
	rec, err := s.Attendance.Mark(c.Request.Context(), p.StudentID, req.SubjectID, req.Date, attendance.Status(req.Status))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.Metrics.AttendanceMarked(string(rec.Status))
	s.record(c, audit.Event{
		Kind:      audit.AttendanceMarked,
		StudentID: p.StudentID,
		Actor:     p.USN,
		Detail:    fmt.Sprintf("subject=%d date=%s status=%s", rec.SubjectID, rec.Date, rec.Status),
	})
	ok(c, http.StatusCreated, gin.H{"message": "Attendance updated successfully", "record": rec})
}

func (s *server) attendanceOnDate(c *gin.Context) {
	date := c.Query("date")
	records, err := s.Attendance.OnDate(c.Request.Context(), auth.Student(c).StudentID, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"date": date, "records": records})
}

func (s *server) attendanceCalendar(c *gin.Context) {
	year, yerr := strconv.Atoi(c.Query("year"))
	month, merr := strconv.Atoi(c.Query("month"))
	if yerr != nil || merr != nil {
		s.fail(c, apperr.Invalid("year and month are required"))
		return
	}
	days, err := s.Attendance.Month(c.Request.Context(), auth.Student(c).StudentID, year, month)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"year": year, "month": month, "days": days})
}

func (s *server) subjectDates(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	hist, err := s.Attendance.SubjectHistory(c.Request.Context(), auth.Student(c).StudentID, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"subject": hist})
}

func (s *server) deleteAttendance(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	p := auth.Student(c)
	if err := s.Attendance.DeleteOwn(c.Request.Context(), p.StudentID, id); err != nil {
		s.fail(c, err)
		return
	}
	s.record(c, audit.Event{Kind: audit.AttendanceDeleted, StudentID: p.StudentID, Actor: p.USN, Detail: fmt.Sprintf("attendance=%d", id)})
	ok(c, http.StatusOK, gin.H{"message": "Attendance record deleted"})
}
