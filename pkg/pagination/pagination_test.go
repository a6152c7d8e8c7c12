package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		query string
		want  Params
	}{
		{"", Params{Page: 1, Limit: 20}},
		{"?page=3&limit=10", Params{Page: 3, Limit: 10}},
		{"?page=0&limit=0", Params{Page: 1, Limit: 20}},
		{"?page=-2&limit=1000", Params{Page: 1, Limit: 100}},
		{"?page=abc&limit=xyz", Params{Page: 1, Limit: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/"+tt.query, nil)
			assert.Equal(t, tt.want, Parse(c))
		})
	}
}

func TestParams_Offset(t *testing.T) {
	assert.Equal(t, 0, New(1, 20).Offset())
	assert.Equal(t, 40, New(3, 20).Offset())
}
