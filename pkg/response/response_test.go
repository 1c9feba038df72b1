package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestOKPage_TotalPages(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	OKPage(c, []string{"a", "b"}, 41, 2, 20)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Code int `json:"code"`
		Data struct {
			Pagination Pagination `json:"pagination"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, 3, resp.Data.Pagination.TotalPages)
	assert.Equal(t, int64(41), resp.Data.Pagination.Total)
}

func TestErrorHelpers_Status(t *testing.T) {
	cases := []struct {
		name   string
		fn     func(*gin.Context)
		status int
	}{
		{"bad request", func(c *gin.Context) { BadRequest(c, 10001, "x") }, http.StatusBadRequest},
		{"unauthorized", func(c *gin.Context) { Unauthorized(c, 10002, "x") }, http.StatusUnauthorized},
		{"forbidden", func(c *gin.Context) { Forbidden(c, 10003, "x") }, http.StatusForbidden},
		{"not found", func(c *gin.Context) { NotFound(c, 10004, "x") }, http.StatusNotFound},
		{"conflict", func(c *gin.Context) { Conflict(c, 10009, "x") }, http.StatusConflict},
		{"too many", func(c *gin.Context) { TooManyRequests(c, 10004, "x") }, http.StatusTooManyRequests},
		{"internal", InternalError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			tc.fn(c)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestError_CarriesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-123")

	ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数错误", "name required")

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 10001, resp.Code)
	assert.Equal(t, "name required", resp.Details)
	assert.Equal(t, "req-123", resp.RequestID)
}

func TestOK_OmitsRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-123")

	OK(c, gin.H{"x": 1})

	assert.NotContains(t, w.Body.String(), "request_id")
}

func TestOKPage_NilListIsEmptyArray(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	OKPage(c, nil, 0, 1, 20)

	assert.Contains(t, w.Body.String(), `"list":[]`)
}

func TestServiceUnavailable(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ServiceUnavailable(c, "down")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CodeUnavailable, resp.Code)
}
