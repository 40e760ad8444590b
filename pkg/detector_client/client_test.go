package detector_client

import (
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"face-identification/internal/recognition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "3", r.FormValue("min_neighbors"))

		file, _, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		img, err := png.Decode(file)
		require.NoError(t, err)
		assert.Equal(t, 100, img.Bounds().Dx())

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "faces": [[10, 20, 50, 60], [0, 0, 0, 0]]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	faces, err := client.DetectFaces(image.NewGray(image.Rect(0, 0, 100, 80)), recognition.DefaultDetectParams)
	require.NoError(t, err)
	assert.Equal(t, []image.Rectangle{image.Rect(10, 20, 50, 60)}, faces)
}

func TestDetectFacesNoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "faces": []}`))
	}))
	defer server.Close()

	faces, err := NewClient(server.URL).DetectFaces(image.NewGray(image.Rect(0, 0, 10, 10)), recognition.DefaultDetectParams)
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestDetectFacesErrors(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"unsuccessful", http.StatusOK, `{"success": false, "error": "model not loaded"}`},
		{"bad json", http.StatusOK, `{"success":`},
		{"bad bbox", http.StatusOK, `{"success": true, "faces": [[1, 2, 3]]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewClient(server.URL).DetectFaces(image.NewGray(image.Rect(0, 0, 10, 10)), recognition.DefaultDetectParams)
			assert.Error(t, err)
		})
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	assert.NoError(t, client.HealthCheck())

	healthy = false
	assert.Error(t, client.HealthCheck())
}

func TestImplementsDetector(t *testing.T) {
	var _ recognition.Detector = NewClient("http://localhost")
}
