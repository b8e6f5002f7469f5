package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/apperr"
	"attendtrack/internal/audit"
	"attendtrack/internal/auth"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (s *server) adminLogin(c *gin.Context) {
	var req loginRequest
	if err := s.bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	valid := s.opts.AdminPasswordHash != "" && req.Username == s.opts.AdminUsername
	if valid {
		match, err := auth.CheckPassword(s.opts.AdminPasswordHash, req.Password)
		valid = err == nil && match
	}
	s.Metrics.Login("admin", valid)
	if !valid {
		s.record(c, audit.Event{Kind: audit.LoginFailed, Actor: req.Username, Detail: "admin"})
		s.fail(c, apperr.Unauthenticated("Invalid admin credentials"))
		return
	}
	pair, err := s.Issuer.Issue(req.Username, auth.RoleAdmin)
	if err != nil {
		s.fail(c, fmt.Errorf("issue token: %w", err))
		return
	}
	s.record(c, audit.Event{Kind: audit.AdminLogin, Actor: req.Username})
	ok(c, http.StatusOK, gin.H{"tokens": pair})
}

func (s *server) adminRefresh(c *gin.Context) {
	var req refreshRequest
	if err := s.bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	pair, err := s.Issuer.Refresh(req.RefreshToken)
	if err != nil {
		s.fail(c, apperr.Unauthenticated("Invalid refresh token"))
		return
	}
	ok(c, http.StatusOK, gin.H{"tokens": pair})
}

func adminActor(c *gin.Context) string {
	claims, _ := c.MustGet(auth.ClaimsKey).(auth.Claims)
	return claims.Subject
}

func (s *server) adminStudents(c *gin.Context) {
	list, err := s.Students.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"students": list})
}

func (s *server) adminSubjects(c *gin.Context) {
	list, err := s.Students.Mappings(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"subjects": list})
}

func (s *server) adminAttendance(c *gin.Context) {
	records, names, err := s.Attendance.AdminList(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"attendance": records, "subjects": names})
}

func (s *server) adminDeleteAttendance(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Attendance.AdminDelete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	s.record(c, audit.Event{Kind: audit.AdminDeleted, Actor: adminActor(c), Detail: fmt.Sprintf("attendance=%d", id)})
	ok(c, http.StatusOK, gin.H{"message": "Attendance record deleted"})
}

func (s *server) adminAudit(c *gin.Context) {
	if s.AuditLog == nil {
		ok(c, http.StatusOK, gin.H{"events": []audit.Event{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := s.AuditLog.List(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"events": events})
}
