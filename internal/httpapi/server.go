// Package httpapi exposes the student, biometric and admin JSON surfaces over gin.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"attendtrack/internal/apperr"
	"attendtrack/internal/attendance"
	"attendtrack/internal/audit"
	"attendtrack/internal/auth"
	"attendtrack/internal/biometric"
	"attendtrack/internal/httpmiddleware"
	"attendtrack/internal/marks"
	"attendtrack/internal/metrics"
	"attendtrack/internal/student"
)

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) bool

// Deps wires the services into the router.
type Deps struct {
	Students   *student.Service
	Attendance *attendance.Service
	Marks      *marks.Service
	Biometric  *biometric.Service
	Audit      *audit.Publisher
	AuditLog   audit.Store
	Metrics    *metrics.Metrics
	Issuer     *auth.Issuer
	Validate   *validator.Validate
	Logger     *slog.Logger
	Health     map[string]HealthCheck
}

// Options carries the transport settings.
type Options struct {
	SessionSecret        string
	SessionMaxAge        time.Duration
	SecureCookies        bool
	AllowedOrigins       []string
	RateLimitPerMin      int
	LoginRateLimitPerMin int
	AdminUsername        string
	AdminPasswordHash    string
}

type server struct {
	Deps
	opts Options
}

// NewRouter builds the gin engine with every route.
func NewRouter(d Deps, opts Options) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Validate == nil {
		d.Validate = validator.New()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	s := &server{Deps: d, opts: opts}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(opts.AllowedOrigins))
	r.Use(securityHeaders())
	r.Use(d.Metrics.Middleware())
	r.Use(httpmiddleware.NewSimpleTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	r.GET("/healthz", s.healthz)

	loginLimit := httpmiddleware.NewSimpleTokenBucket(opts.LoginRateLimitPerMin, opts.LoginRateLimitPerMin).PerRoute()

	api := r.Group("/api", auth.SessionMiddleware(opts.SessionSecret, int(opts.SessionMaxAge.Seconds()), opts.SecureCookies))
	{
		api.POST("/auth/register", loginLimit, s.register)
		api.POST("/auth/login", loginLimit, s.login)
		api.POST("/auth/logout", s.logout)
		api.GET("/auth/check", s.checkAuth)

		api.POST("/biometric/check-user", loginLimit, s.checkUser)
		api.POST("/biometric/auth/challenge", loginLimit, s.authChallenge)
		api.POST("/biometric/auth/verify", loginLimit, s.verifyAuth)
	}

	st := api.Group("", auth.RequireStudent())
	{
		st.GET("/me", s.me)

		st.GET("/attendance", s.attendanceSummary)
		st.POST("/attendance", s.markAttendance)
		st.GET("/attendance/date", s.attendanceOnDate)
		st.GET("/attendance/calendar", s.attendanceCalendar)
		st.GET("/attendance/subjects/:id/dates", s.subjectDates)
		st.DELETE("/attendance/:id", s.deleteAttendance)

		st.GET("/marks", s.listMarks)
		st.PUT("/marks", s.updateMarks)

		st.POST("/biometric/register/challenge", s.registerChallenge)
		st.POST("/biometric/credentials", s.registerCredential)
		st.GET("/biometric/credentials", s.listCredentials)
		st.DELETE("/biometric/credentials/:id", s.deleteCredential)
		st.POST("/biometric/prompt/dismiss", s.dismissPrompt)
	}

	r.POST("/api/admin/login", loginLimit, s.adminLogin)
	r.POST("/api/admin/refresh", s.adminRefresh)
	admin := r.Group("/api/admin", auth.AdminAuth(d.Issuer))
	{
		admin.GET("/students", s.adminStudents)
		admin.GET("/subjects", s.adminSubjects)
		admin.GET("/attendance", s.adminAttendance)
		admin.DELETE("/attendance/:id", s.adminDeleteAttendance)
		admin.GET("/audit", s.adminAudit)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Route not found"})
	})
	return r
}

func (s *server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// fail writes the error envelope. Transient errors are logged and hidden.
func (s *server) fail(c *gin.Context, err error) {
	body := gin.H{"success": false, "message": apperr.Message(err)}
	var status int
	switch apperr.KindOf(err) {
	case apperr.KindNotAuthenticated:
		status = http.StatusUnauthorized
	case apperr.KindValidation:
		status = http.StatusBadRequest
		var verr *apperr.ValidationError
		if errors.As(err, &verr) && len(verr.Fields) > 0 {
			body["fields"] = verr.Fields
		}
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindCeremony:
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
		s.Logger.Error("request failed", "request_id", httpmiddleware.GetRequestID(c), "method", c.Request.Method, "path", c.FullPath(), "err", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func ok(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

// bind decodes a JSON body and runs struct validation.
func (s *server) bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Invalid("Invalid request body")
	}
	if err := s.Validate.Struct(dst); err != nil {
		return apperr.FromValidator(err)
	}
	return nil
}

func (s *server) record(c *gin.Context, e audit.Event) {
	e.IP = c.ClientIP()
	s.Audit.Record(c.Request.Context(), e)
}
