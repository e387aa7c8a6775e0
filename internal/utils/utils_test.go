package utils

import (
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInviteCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		code, err := GenerateInviteCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
	assert.Equal(t, "ABCD-0123-EF45", NormalizeInviteCode("  abcd-0123-ef45 "))
}

func TestGetPaginationParams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		query string
		page  int
		limit int
	}{
		{"", 1, 20},
		{"?page=3&limit=10", 3, 10},
		{"?page=0&limit=1000", 1, 20},
		{"?page=abc", 1, 20},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/items"+tt.query, nil)

		p := GetPaginationParams(c)
		assert.Equal(t, tt.page, p.Page, tt.query)
		assert.Equal(t, tt.limit, p.Limit, tt.query)
		assert.Equal(t, (tt.page-1)*tt.limit, p.Offset, tt.query)
	}
}

func TestPaginationResponse(t *testing.T) {
	p := NewPaginationParams(2, 10)
	assert.Equal(t, PaginationResponse{Page: 2, Limit: 10, Total: 21, TotalPages: 3}, p.Response(21))
	assert.Equal(t, 0, p.Response(0).TotalPages)
}
