package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/auth"
)

type marksRequest struct {
	SubjectID int64 `json:"subject_id" validate:"required,gt=0"`
	IA        int   `json:"ia_number" validate:"required,min=1,max=3"`
	// Obtained is null to clear the assessment.
	Obtained *float64 `json:"marks_obtained"`
}

func (s *server) listMarks(c *gin.Context) {
	list, err := s.Marks.List(c.Request.Context(), auth.Student(c).StudentID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"marks": list})
}

func (s *server) updateMarks(c *gin.Context) {
	var req marksRequest
	if err := s.bind(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.Marks.Set(c.Request.Context(), auth.Student(c).StudentID, req.SubjectID, req.IA, req.Obtained); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "Marks updated successfully"})
}
