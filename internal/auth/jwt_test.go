package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("attendtrack", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("admin", RoleAdmin)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := iss.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.False(t, claims.Refresh)
}

func TestParseRejectsWrongKeyAndIssuer(t *testing.T) {
	iss := NewIssuer("attendtrack", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("admin", RoleAdmin)
	require.NoError(t, err)

	_, err = NewIssuer("attendtrack", "other", time.Minute, time.Hour).Parse(pair.AccessToken)
	assert.Error(t, err)
	_, err = NewIssuer("someone-else", "secret", time.Minute, time.Hour).Parse(pair.AccessToken)
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	iss := NewIssuer("attendtrack", "secret", time.Minute, time.Hour)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	pair, err := iss.Issue("admin", RoleAdmin)
	require.NoError(t, err)
	_, err = iss.Parse(pair.AccessToken)
	assert.Error(t, err)
}

func TestRefresh(t *testing.T) {
	iss := NewIssuer("attendtrack", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("admin", RoleAdmin)
	require.NoError(t, err)

	_, err = iss.Refresh(pair.AccessToken)
	assert.Error(t, err)

	next, err := iss.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	claims, err := iss.Parse(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("attendtrack", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("admin", RoleAdmin)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/admin", AdminAuth(iss), func(c *gin.Context) {
		claims := c.MustGet(ClaimsKey).(Claims)
		c.String(http.StatusOK, claims.Subject)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"access token", "Bearer " + pair.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
