package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
)

// StillCamera captures photos by invoking a still-capture command such as
// libcamera-still. The ISO is translated to analogue gain (ISO/100).
type StillCamera struct {
	command    string
	resolution Resolution
	iso        int
	logger     *zap.Logger
	run        func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewStillCamera checks the capture command is installed.
func NewStillCamera(command string, res Resolution, logger *zap.Logger) (*StillCamera, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("camera command %q not found: %w", command, err)
	}
	return &StillCamera{
		command:    path,
		resolution: res,
		iso:        100,
		logger:     logger.Named("camera"),
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}, nil
}

// SetISO sets the sensitivity used by the next capture.
func (c *StillCamera) SetISO(iso int) {
	c.iso = iso
}

// Capture writes a JPEG to path and returns the resulting Photo.
func (c *StillCamera) Capture(ctx context.Context, path string) (Photo, error) {
	gain := float64(c.iso) / 100
	args := []string{
		"--nopreview",
		"--immediate",
		"--encoding", "jpg",
		"--width", strconv.Itoa(c.resolution.Width),
		"--height", strconv.Itoa(c.resolution.Height),
		"--gain", strconv.FormatFloat(gain, 'f', 2, 64),
		"-o", path,
	}
	out, err := c.run(ctx, c.command, args...)
	if err != nil {
		c.logger.Error("capture command failed", zap.Error(err), zap.ByteString("output", out))
		return Photo{}, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		return Photo{}, fmt.Errorf("%w: no image written to %s", ErrCapture, path)
	}

	c.logger.Debug("photo captured", zap.String("path", path), zap.Int("iso", c.iso))
	return Photo{Path: path, Resolution: c.resolution, ISO: c.iso}, nil
}
