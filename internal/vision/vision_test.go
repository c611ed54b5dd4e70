package vision

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladlebot/ladle/internal/log"
)

func TestDescribe(t *testing.T) {
	imgBytes := []byte("fake image data")

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(imgBytes)
	}))
	defer cdn.Close()

	analyze := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/form-data", mt)

		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "image", part.FormName())
		assert.Equal(t, "cat.png", part.FileName())
		got, err := io.ReadAll(part)
		require.NoError(t, err)
		assert.Equal(t, imgBytes, got)

		fmt.Fprint(w, `{"description":"a cat in a hat"}`)
	}))
	defer analyze.Close()

	c := New(analyze.URL, log.NewNop())
	desc, err := c.Describe(context.Background(), cdn.URL+"/cat.png", "cat.png")
	require.NoError(t, err)
	assert.Equal(t, "a cat in a hat", desc)
}

func TestDescribeAnalyzeError(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img"))
	}))
	defer cdn.Close()

	analyze := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer analyze.Close()

	c := New(analyze.URL, log.NewNop())
	_, err := c.Describe(context.Background(), cdn.URL+"/x.png", "x.png")
	assert.ErrorContains(t, err, "status 502")
}

func TestDescribeDownloadError(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer cdn.Close()

	c := New("http://127.0.0.1:1/analyze", log.NewNop())
	_, err := c.Describe(context.Background(), cdn.URL+"/gone.png", "gone.png")
	assert.ErrorContains(t, err, "status 404")
}
