package classifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/smartbin/internal/camera"
)

func newFakeService(t *testing.T, handler gin.HandlerFunc) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/predict", handler)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func writePhoto(t *testing.T, content string) camera.Photo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo_1700000000.jpg")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write photo: %v", err)
	}
	return camera.Photo{Path: path, Resolution: camera.Resolution{Width: 1024, Height: 768}, ISO: 300}
}

func TestRemoteClassifySendsPhotoField(t *testing.T) {
	var gotName, gotBody string
	server := newFakeService(t, func(c *gin.Context) {
		file, err := c.FormFile("photo")
		if err != nil {
			c.String(http.StatusBadRequest, "photo field missing")
			return
		}
		src, err := file.Open()
		if err != nil {
			c.String(http.StatusInternalServerError, "open failed")
			return
		}
		defer src.Close()
		data, _ := io.ReadAll(src)
		gotName, gotBody = file.Filename, string(data)
		c.String(http.StatusOK, "recyclable")
	})

	remote := NewRemote(server.URL+"/predict", time.Second, zap.NewNop())
	label, err := remote.Classify(context.Background(), writePhoto(t, "jpeg-bytes"))
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if label != Recyclable {
		t.Fatalf("expected recyclable, got %s", label)
	}
	if gotName != "photo_1700000000.jpg" || gotBody != "jpeg-bytes" {
		t.Fatalf("unexpected upload: name=%q body=%q", gotName, gotBody)
	}
}

func TestRemoteClassifyFailsOnNon2xx(t *testing.T) {
	server := newFakeService(t, func(c *gin.Context) {
		c.String(http.StatusServiceUnavailable, "model offline")
	})

	remote := NewRemote(server.URL+"/predict", time.Second, zap.NewNop())
	_, err := remote.Classify(context.Background(), writePhoto(t, "x"))
	if !errors.Is(err, ErrClassify) {
		t.Fatalf("expected ErrClassify, got %v", err)
	}
}

func TestRemoteClassifyFailsOnTimeout(t *testing.T) {
	release := make(chan struct{})
	server := newFakeService(t, func(c *gin.Context) {
		<-release
		c.String(http.StatusOK, "recyclable")
	})
	defer close(release)

	remote := NewRemote(server.URL+"/predict", 50*time.Millisecond, zap.NewNop())
	_, err := remote.Classify(context.Background(), writePhoto(t, "x"))
	if !errors.Is(err, ErrClassify) {
		t.Fatalf("expected ErrClassify, got %v", err)
	}
}

func TestRemoteClassifyEmptyBodyIsUnknown(t *testing.T) {
	server := newFakeService(t, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	remote := NewRemote(server.URL+"/predict", time.Second, zap.NewNop())
	label, err := remote.Classify(context.Background(), writePhoto(t, "x"))
	if err != nil {
		t.Fatalf("expected no error for empty body, got %v", err)
	}
	if label != Unknown {
		t.Fatalf("expected unknown, got %s", label)
	}
}

func TestRemoteClassifyWithoutEndpoint(t *testing.T) {
	remote := NewRemote("", time.Second, zap.NewNop())
	_, err := remote.Classify(context.Background(), writePhoto(t, "x"))
	if !errors.Is(err, ErrClassify) {
		t.Fatalf("expected ErrClassify, got %v", err)
	}
}

func TestRemoteClassifyConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	remote := NewRemote(url, time.Second, zap.NewNop())
	_, err := remote.Classify(context.Background(), writePhoto(t, "x"))
	if !errors.Is(err, ErrClassify) {
		t.Fatalf("expected ErrClassify, got %v", err)
	}
}
