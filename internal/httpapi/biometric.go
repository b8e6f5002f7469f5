package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/apperr"
	"attendtrack/internal/audit"
	"attendtrack/internal/auth"
	"attendtrack/internal/biometric"
)

type handleRequest struct {
	Username string `json:"username"`
}

func (s *server) registerChallenge(c *gin.Context) {
	opts, err := s.Biometric.RegisterChallenge(c.Request.Context(), auth.Student(c).StudentID)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.Metrics.ChallengeIssued(string(biometric.PurposeRegister))
	ok(c, http.StatusOK, gin.H{
		"challenge":  opts.Challenge,
		"user_id":    opts.UserID,
		"user_name":  opts.UserName,
		"timeout_ms": opts.TimeoutMS,
	})
}

func (s *server) registerCredential(c *gin.Context) {
	var req biometric.NewCredential
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalidBody())
		return
	}
	if req.DeviceName == "" {
		req.DeviceName = biometric.DeviceLabel(c.Request.UserAgent())
	}
	p := auth.Student(c)
	n, err := s.Biometric.RegisterCredential(c.Request.Context(), p.StudentID, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.record(c, audit.Event{Kind: audit.CredentialAdded, StudentID: p.StudentID, Actor: p.USN, Detail: req.DeviceName})
	ok(c, http.StatusCreated, gin.H{"message": "Fingerprint registered successfully", "credential_count": n})
}

func (s *server) listCredentials(c *gin.Context) {
	creds, err := s.Biometric.Credentials(c.Request.Context(), auth.Student(c).StudentID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"credentials": creds})
}

func (s *server) deleteCredential(c *gin.Context) {
	p := auth.Student(c)
	n, err := s.Biometric.DeleteCredential(c.Request.Context(), p.StudentID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	s.record(c, audit.Event{Kind: audit.CredentialRemoved, StudentID: p.StudentID, Actor: p.USN})
	ok(c, http.StatusOK, gin.H{"message": "Credential deleted successfully", "credential_count": n})
}

func (s *server) dismissPrompt(c *gin.Context) {
	if err := s.Biometric.DismissPrompt(c.Request.Context(), auth.Student(c).StudentID); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Prompt dismissed"})
}

func (s *server) checkUser(c *gin.Context) {
	var req handleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalidBody())
		return
	}
	status, err := s.Biometric.CheckUser(c.Request.Context(), req.Username)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"user_found":           status.Found,
		"has_fingerprint":      status.HasFingerprint,
		"name":                 status.Name,
		"usn":                  status.USN,
		"fingerprint_prompted": status.Prompted,
	})
}

func (s *server) authChallenge(c *gin.Context) {
	var req handleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalidBody())
		return
	}
	opts, err := s.Biometric.AuthChallenge(c.Request.Context(), req.Username)
	if errors.Is(err, apperr.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	s.Metrics.ChallengeIssued(string(biometric.PurposeAuthenticate))
	ok(c, http.StatusOK, gin.H{
		"challenge":      opts.Challenge,
		"credential_ids": opts.CredentialIDs,
		"timeout_ms":     opts.TimeoutMS,
	})
}

func (s *server) verifyAuth(c *gin.Context) {
	var req biometric.Assertion
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, invalidBody())
		return
	}
	acct, err := s.Biometric.Verify(c.Request.Context(), req)
	if err != nil {
		s.Metrics.Login("biometric", false)
		s.record(c, audit.Event{Kind: audit.LoginFailed, Detail: "biometric"})
		s.fail(c, err)
		return
	}
	if err := auth.Login(c, auth.Principal{StudentID: acct.ID, USN: acct.USN, Username: acct.Username, Name: acct.Name}); err != nil {
		s.fail(c, err)
		return
	}
	s.Metrics.Login("biometric", true)
	s.record(c, audit.Event{Kind: audit.BiometricLogin, StudentID: acct.ID, Actor: acct.USN})
	ok(c, http.StatusOK, gin.H{
		"message": "Authentication successful",
		"student": gin.H{"usn": acct.USN, "username": acct.Username, "name": acct.Name},
	})
}
