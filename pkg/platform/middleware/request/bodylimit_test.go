package request

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBodyLimit(t *testing.T) {
	read := func(limit int64, size int) (int, error) {
		var n int
		var readErr error
		h := BodyLimit(limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := io.ReadAll(r.Body)
			n, readErr = len(data), err
		}))
		req := httptest.NewRequest(http.MethodPost, "/auth/fayda/callback", strings.NewReader(strings.Repeat("x", size)))
		h.ServeHTTP(httptest.NewRecorder(), req)
		return n, readErr
	}

	t.Run("under the limit", func(t *testing.T) {
		n, err := read(1024, 100)
		assert.NoError(t, err)
		assert.Equal(t, 100, n)
	})

	t.Run("exactly the limit", func(t *testing.T) {
		_, err := read(100, 100)
		assert.NoError(t, err)
	})

	t.Run("over the limit", func(t *testing.T) {
		_, err := read(100, 101)
		var maxErr *http.MaxBytesError
		assert.True(t, errors.As(err, &maxErr))
	})

	t.Run("non-positive limit uses the default", func(t *testing.T) {
		n, err := read(0, 4096)
		assert.NoError(t, err)
		assert.Equal(t, 4096, n)
	})
}
