// Package apiclient calls the attendtrack HTTP API with a cookie session.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"attendtrack/internal/apperr"
	"attendtrack/internal/attendance"
	"attendtrack/internal/audit"
	"attendtrack/internal/auth"
	"attendtrack/internal/biometric"
	"attendtrack/internal/loginflow"
	"attendtrack/internal/marks"
	"attendtrack/internal/student"
)

// Client calls the API. The zero value is not usable; use New.
type Client struct {
	BaseURL   string
	HTTP      *http.Client
	UserAgent string

	adminToken string
}

// New creates a client with a cookie jar for the student session.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: defaultUserAgent(),
		HTTP: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}, nil
}

// defaultUserAgent names the host OS so the server can label enrolled devices.
func defaultUserAgent() string {
	host := map[string]string{"darwin": "Mac", "windows": "Windows", "linux": "Linux", "android": "Android"}[runtime.GOOS]
	if host == "" {
		host = runtime.GOOS
	}
	return "attendtrack-cli/1.0 (" + host + ")"
}

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Fields  []apperr.FieldError `json:"fields"`
}

// do sends a JSON request and decodes the response into out.
// Failures are mapped back onto the apperr taxonomy.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" && strings.HasPrefix(path, "/api/admin/") {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var env envelope
	_ = json.Unmarshal(raw, &env)

	if resp.StatusCode >= 300 || !env.Success {
		return statusError(resp, env)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response, env envelope) error {
	msg := env.Message
	if msg == "" {
		msg = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return apperr.Unauthenticated(msg)
	case http.StatusBadRequest:
		return &apperr.ValidationError{Message: msg, Fields: env.Fields}
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, apperr.ErrNotFound)
	}
	return fmt.Errorf("api error %s: %s", resp.Status, msg)
}

// Health checks that the service is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("api unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("api unhealthy: %s", resp.Status)
	}
	return nil
}

// Register creates a student account.
func (c *Client) Register(ctx context.Context, reg student.Registration) error {
	return c.do(ctx, http.MethodPost, "/api/auth/register", reg, nil)
}

type sessionResponse struct {
	Student loginflow.Identity `json:"student"`
}

// Login starts a session with a password.
func (c *Client) Login(ctx context.Context, username, password string) (loginflow.Identity, error) {
	var out sessionResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": password}, &out)
	return out.Student, err
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// AuthStatus is the answer of the session check.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username"`
	Name          string `json:"name"`
}

// Check reports whether the session is live.
func (c *Client) Check(ctx context.Context) (AuthStatus, error) {
	var out AuthStatus
	err := c.do(ctx, http.MethodGet, "/api/auth/check", nil, &out)
	return out, err
}

// Me returns the session student's profile.
func (c *Client) Me(ctx context.Context) (student.Profile, error) {
	var out struct {
		Student student.Profile `json:"student"`
	}
	err := c.do(ctx, http.MethodGet, "/api/me", nil, &out)
	return out.Student, err
}

// Attendance fetches per-subject counts and the overall figure.
func (c *Client) Attendance(ctx context.Context, in attendance.Inclusion) (attendance.Summary, error) {
	q := url.Values{}
	q.Set("include_library_pe", strconv.FormatBool(in.LibraryPE))
	q.Set("include_remedial", strconv.FormatBool(in.Remedial))
	var out attendance.Summary
	err := c.do(ctx, http.MethodGet, "/api/attendance?"+q.Encode(), nil, &out)
	return out, err
}

// Mark records attendance. An empty date means today on the server.
func (c *Client) Mark(ctx context.Context, subjectID int64, date string, status attendance.Status) (attendance.Record, error) {
	var out struct {
		Record attendance.Record `json:"record"`
	}
	err := c.do(ctx, http.MethodPost, "/api/attendance", map[string]any{
		"subject_id": subjectID,
		"date":       date,
		"status":     status,
	}, &out)
	return out.Record, err
}

// OnDate lists the records of one date.
func (c *Client) OnDate(ctx context.Context, date string) ([]attendance.DayEntry, error) {
	var out struct {
		Records []attendance.DayEntry `json:"records"`
	}
	err := c.do(ctx, http.MethodGet, "/api/attendance/date?date="+url.QueryEscape(date), nil, &out)
	return out.Records, err
}

// Month fetches the sparse per-day counts of a month.
func (c *Client) Month(ctx context.Context, year, month int) (map[string]attendance.DayCount, error) {
	var out struct {
		Days map[string]attendance.DayCount `json:"days"`
	}
	path := fmt.Sprintf("/api/attendance/calendar?year=%d&month=%d", year, month)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	if out.Days == nil {
		out.Days = map[string]attendance.DayCount{}
	}
	return out.Days, err
}

// SubjectHistory lists every date a subject was marked.
func (c *Client) SubjectHistory(ctx context.Context, subjectID int64) (attendance.SubjectHistory, error) {
	var out struct {
		Subject attendance.SubjectHistory `json:"subject"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/attendance/subjects/%d/dates", subjectID), nil, &out)
	return out.Subject, err
}

// DeleteAttendance removes one of the student's records.
func (c *Client) DeleteAttendance(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/attendance/%d", id), nil, nil)
}

// Marks lists the assessment scores per subject.
func (c *Client) Marks(ctx context.Context) ([]marks.SubjectMarks, error) {
	var out struct {
		Marks []marks.SubjectMarks `json:"marks"`
	}
	err := c.do(ctx, http.MethodGet, "/api/marks", nil, &out)
	return out.Marks, err
}

// SetMarks stores one score. A nil score clears the assessment.
func (c *Client) SetMarks(ctx context.Context, subjectID int64, ia int, score *float64) error {
	return c.do(ctx, http.MethodPut, "/api/marks", map[string]any{
		"subject_id":     subjectID,
		"ia_number":      ia,
		"marks_obtained": score,
	}, nil)
}

// RegisterChallenge starts enrollment for the session student.
func (c *Client) RegisterChallenge(ctx context.Context) (biometric.RegistrationOptions, error) {
	var out biometric.RegistrationOptions
	err := c.do(ctx, http.MethodPost, "/api/biometric/register/challenge", nil, &out)
	return out, err
}

type countResponse struct {
	Count int `json:"credential_count"`
}

// RegisterCredential stores a new credential and returns the credential count.
func (c *Client) RegisterCredential(ctx context.Context, nc biometric.NewCredential) (int, error) {
	var out countResponse
	err := c.do(ctx, http.MethodPost, "/api/biometric/credentials", nc, &out)
	return out.Count, err
}

// Credentials lists the session student's credentials.
func (c *Client) Credentials(ctx context.Context) ([]biometric.Credential, error) {
	var out struct {
		Credentials []biometric.Credential `json:"credentials"`
	}
	err := c.do(ctx, http.MethodGet, "/api/biometric/credentials", nil, &out)
	return out.Credentials, err
}

// DeleteCredential removes a credential and returns how many remain.
func (c *Client) DeleteCredential(ctx context.Context, id string) (int, error) {
	var out countResponse
	err := c.do(ctx, http.MethodDelete, "/api/biometric/credentials/"+url.PathEscape(id), nil, &out)
	return out.Count, err
}

// DismissPrompt records that the enrollment prompt was declined.
func (c *Client) DismissPrompt(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/biometric/prompt/dismiss", nil, nil)
}

// CheckUser asks whether a handle exists and has a credential.
func (c *Client) CheckUser(ctx context.Context, username string) (biometric.UserStatus, error) {
	var out biometric.UserStatus
	err := c.do(ctx, http.MethodPost, "/api/biometric/check-user", map[string]string{"username": username}, &out)
	return out, err
}

// AuthChallenge starts one-tap login for username.
func (c *Client) AuthChallenge(ctx context.Context, username string) (biometric.AuthOptions, error) {
	var out biometric.AuthOptions
	err := c.do(ctx, http.MethodPost, "/api/biometric/auth/challenge", map[string]string{"username": username}, &out)
	return out, err
}

// VerifyAuth completes one-tap login and starts a session.
func (c *Client) VerifyAuth(ctx context.Context, a biometric.Assertion) (loginflow.Identity, error) {
	var out sessionResponse
	err := c.do(ctx, http.MethodPost, "/api/biometric/auth/verify", a, &out)
	return out.Student, err
}

// AdminLogin obtains a token pair and uses it for later admin calls.
func (c *Client) AdminLogin(ctx context.Context, username, password string) (auth.TokenPair, error) {
	var out struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/admin/login", map[string]string{"username": username, "password": password}, &out); err != nil {
		return auth.TokenPair{}, err
	}
	c.adminToken = out.Tokens.AccessToken
	return out.Tokens, nil
}

// AdminStudents lists every student.
func (c *Client) AdminStudents(ctx context.Context) ([]student.Student, error) {
	var out struct {
		Students []student.Student `json:"students"`
	}
	err := c.do(ctx, http.MethodGet, "/api/admin/students", nil, &out)
	return out.Students, err
}

// AdminSubjects lists every student-subject mapping.
func (c *Client) AdminSubjects(ctx context.Context) ([]student.Mapping, error) {
	var out struct {
		Subjects []student.Mapping `json:"subjects"`
	}
	err := c.do(ctx, http.MethodGet, "/api/admin/subjects", nil, &out)
	return out.Subjects, err
}

// AdminAttendance lists every attendance row and the distinct subject names.
func (c *Client) AdminAttendance(ctx context.Context) ([]attendance.AdminRecord, []string, error) {
	var out struct {
		Attendance []attendance.AdminRecord `json:"attendance"`
		Subjects   []string                 `json:"subjects"`
	}
	err := c.do(ctx, http.MethodGet, "/api/admin/attendance", nil, &out)
	return out.Attendance, out.Subjects, err
}

// AdminDeleteAttendance removes any attendance row.
func (c *Client) AdminDeleteAttendance(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/admin/attendance/%d", id), nil, nil)
}

// AdminAudit lists recent audit events.
func (c *Client) AdminAudit(ctx context.Context, limit int) ([]audit.Event, error) {
	var out struct {
		Events []audit.Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/admin/audit?limit=%d", limit), nil, &out)
	return out.Events, err
}
