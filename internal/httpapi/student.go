package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/audit"
	"attendtrack/internal/auth"
	"attendtrack/internal/student"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *server) register(c *gin.Context) {
	var req student.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalidBody())
		return
	}
	st, err := s.Students.Register(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.record(c, audit.Event{Kind: audit.Registered, StudentID: st.ID, Actor: st.USN})
	ok(c, http.StatusCreated, gin.H{"message": "Registration successful! Redirecting to login..."})
}

func (s *server) login(c *gin.Context) {
	var req loginRequest
	if err := s.bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	st, err := s.Students.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.Metrics.Login("password", false)
		s.record(c, audit.Event{Kind: audit.LoginFailed, Actor: req.Username, Detail: "password"})
		s.fail(c, err)
		return
	}
	if err := auth.Login(c, auth.Principal{StudentID: st.ID, USN: st.USN, Username: st.Username, Name: st.Name}); err != nil {
		s.fail(c, err)
		return
	}
	s.Metrics.Login("password", true)
	s.record(c, audit.Event{Kind: audit.PasswordLogin, StudentID: st.ID, Actor: st.USN})
	ok(c, http.StatusOK, gin.H{
		"message": "Login successful",
		"student": gin.H{"usn": st.USN, "username": st.Username, "name": st.Name},
	})
}

func (s *server) logout(c *gin.Context) {
	if p, found := auth.Current(c); found {
		s.record(c, audit.Event{Kind: audit.Logout, StudentID: p.StudentID, Actor: p.USN})
	}
	if err := auth.Logout(c); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Logged out"})
}

func (s *server) checkAuth(c *gin.Context) {
	p, found := auth.Current(c)
	if !found {
		ok(c, http.StatusOK, gin.H{"authenticated": false})
		return
	}
	ok(c, http.StatusOK, gin.H{"authenticated": true, "username": p.Username, "name": p.Name})
}

func (s *server) me(c *gin.Context) {
	p := auth.Student(c)
	profile, err := s.Students.Me(c.Request.Context(), p.StudentID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"student": profile})
}
