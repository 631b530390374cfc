package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/example/smartbin/internal/camera"
)

// maxLabelBytes bounds how much of a response body is read as a label.
const maxLabelBytes = 1 << 10

// Remote posts photos to an HTTP classification service.
type Remote struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRemote returns a client for the given endpoint. Each call is bounded by timeout.
func NewRemote(endpoint string, timeout time.Duration, logger *zap.Logger) *Remote {
	return &Remote{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("remote_classifier"),
	}
}

// Classify uploads the photo as the multipart field "photo" and parses the
// plain-text response body as a label. There is no retry.
func (r *Remote) Classify(ctx context.Context, photo camera.Photo) (Label, error) {
	if r.endpoint == "" {
		return Unknown, fmt.Errorf("%w: no service endpoint configured", ErrClassify)
	}

	data, err := os.ReadFile(photo.Path)
	if err != nil {
		return Unknown, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("photo", photo.Name())
	if err != nil {
		return Unknown, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Unknown, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Unknown, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return Unknown, fmt.Errorf("%w: failed to create request: %v", ErrClassify, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Unknown, fmt.Errorf("%w: %v", ErrClassify, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxLabelBytes))
	if err != nil {
		return Unknown, fmt.Errorf("%w: failed to read response: %v", ErrClassify, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Unknown, fmt.Errorf("%w: received status code %d - %s", ErrClassify, resp.StatusCode, string(payload))
	}

	label := ParseLabel(string(payload))
	if label == Unknown {
		r.logger.Warn("unrecognised label from service", zap.String("body", string(payload)))
	}
	return label, nil
}
