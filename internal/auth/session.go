package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// SessionName is the cookie carrying the student session.
const SessionName = "attendtrack_session"

const (
	keyStudentID = "student_id"
	keyUSN       = "usn"
	keyUsername  = "username"
	keyName      = "name"
	keyLoggedIn  = "logged_in"
	studentKey   = "student"
)

// Principal is the authenticated student of a request.
type Principal struct {
	StudentID int64
	USN       string
	Username  string
	Name      string
}

// SessionMiddleware installs the cookie session store.
func SessionMiddleware(secret string, maxAge int, secure bool) gin.HandlerFunc {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, store)
}

// Login establishes the student session.
func Login(c *gin.Context, p Principal) error {
	s := sessions.Default(c)
	s.Clear()
	s.Set(keyStudentID, p.StudentID)
	s.Set(keyUSN, p.USN)
	s.Set(keyUsername, p.Username)
	s.Set(keyName, p.Name)
	s.Set(keyLoggedIn, true)
	return s.Save()
}

// Logout invalidates the session cookie.
func Logout(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	return s.Save()
}

// Current returns the session principal, if any.
func Current(c *gin.Context) (Principal, bool) {
	s := sessions.Default(c)
	if ok, _ := s.Get(keyLoggedIn).(bool); !ok {
		return Principal{}, false
	}
	id, ok := s.Get(keyStudentID).(int64)
	if !ok || id <= 0 {
		return Principal{}, false
	}
	usn, _ := s.Get(keyUSN).(string)
	username, _ := s.Get(keyUsername).(string)
	name, _ := s.Get(keyName).(string)
	return Principal{StudentID: id, USN: usn, Username: username, Name: name}, true
}

// RequireStudent aborts with 401 unless a student session is present.
func RequireStudent() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := Current(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authenticated"})
			return
		}
		c.Set(studentKey, p)
		c.Next()
	}
}

// Student returns the principal stored by RequireStudent.
func Student(c *gin.Context) Principal {
	p, _ := c.MustGet(studentKey).(Principal)
	return p
}
