package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Classifier   ClassifierConfig
	Connectivity ConnectivityConfig
	Model        ModelConfig
	Camera       CameraConfig
	Hardware     HardwareConfig
	Pipeline     PipelineConfig
	Storage      StorageConfig
	Status       StatusConfig
	S3           S3Config
	LogLevel     string
}

type ClassifierConfig struct {
	Backend      string
	Endpoint     string
	GRPCAddr     string
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration
}

type ConnectivityConfig struct {
	URL     string
	Timeout time.Duration
}

type ModelConfig struct {
	Path    string
	Width   int
	Height  int
	Layout  string
	Classes []string
}

type CameraConfig struct {
	Command string
	Width   int
	Height  int
	ISO     int
	Warmup  time.Duration
	Timeout time.Duration
}

type HardwareConfig struct {
	PinoutFile       string
	SensorPin        int
	StatusLEDPin     int
	RecyclableLED    int
	NonRecyclableLED int
	SensorActiveLow  bool
	LEDDriver        string
	FirmataPort      string
	FirmataBaud      int
}

type PipelineConfig struct {
	LEDPulse      time.Duration
	SettleDelay   time.Duration
	PollInterval  time.Duration
	UploadScale   float64
	RecordTimeout time.Duration
}

type StorageConfig struct {
	BaseDir     string
	CaptureDir  string
	ArchiveDir  string
	RedisAddr   string
	DatabaseDSN string
}

type StatusConfig struct {
	Addr        string
	JWTSecret   string
	JWTAudience string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
	Prefix          string
	Concurrency     int
}

// ArchiveRoot is the directory holding the labeled collections.
func (c *Config) ArchiveRoot() string {
	return filepath.Join(c.Storage.BaseDir, c.Storage.ArchiveDir)
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("CLASSIFIER_BACKEND", "http")
	v.SetDefault("SERVICE_ENDPOINT", "")
	v.SetDefault("CLASSIFIER_GRPC_ADDR", "")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("REMOTE_TIMEOUT", 10*time.Second)

	v.SetDefault("CONNECTIVITY_URL", "https://google.com")
	v.SetDefault("CONNECTIVITY_TIMEOUT", 5*time.Second)

	v.SetDefault("MODEL_PATH", "model/first_try.onnx")
	v.SetDefault("MODEL_INPUT_WIDTH", 150)
	v.SetDefault("MODEL_INPUT_HEIGHT", 150)
	v.SetDefault("MODEL_LAYOUT", "NHWC")
	v.SetDefault("MODEL_CLASSES", []string{"nonrecyclable", "recyclable"})

	v.SetDefault("CAMERA_COMMAND", "libcamera-still")
	v.SetDefault("CAMERA_WIDTH", 1024)
	v.SetDefault("CAMERA_HEIGHT", 768)
	v.SetDefault("CAMERA_ISO", 300)
	v.SetDefault("CAMERA_WARMUP", 2*time.Second)
	v.SetDefault("CAMERA_TIMEOUT", 10*time.Second)

	v.SetDefault("PINOUT_FILE", "")
	v.SetDefault("BTN_INPUT_PIN", 18)
	v.SetDefault("LED_CTRL_OUTPUT_PIN", 25)
	v.SetDefault("LED_RECYCLABLE_OUTPUT_PIN", 15)
	v.SetDefault("LED_NON_RECYCLABLE_OUTPUT_PIN", 7)
	v.SetDefault("SENSOR_ACTIVE_LOW", true)
	v.SetDefault("LED_DRIVER", "gpio")
	v.SetDefault("FIRMATA_PORT", "/dev/ttyACM0")
	v.SetDefault("FIRMATA_BAUD", 57600)

	v.SetDefault("LED_PULSE", time.Second)
	v.SetDefault("SETTLE_DELAY", 300*time.Millisecond)
	v.SetDefault("POLL_INTERVAL", 100*time.Millisecond)
	v.SetDefault("UPLOAD_SCALE", 1.0)
	v.SetDefault("RECORD_TIMEOUT", 5*time.Second)

	v.SetDefault("BASE_DIR", ".")
	v.SetDefault("CAPTURE_DIR", ".")
	v.SetDefault("ARCHIVE_DIR", "data-collection")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("DATABASE_DSN", "")

	v.SetDefault("STATUS_ADDR", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("S3_BUCKET_NAME", "smartbin-training")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_PREFIX", "data-collection/")
	v.SetDefault("SYNC_CONCURRENCY", 4)

	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()

	cfg := &Config{
		Classifier: ClassifierConfig{
			Backend:      v.GetString("CLASSIFIER_BACKEND"),
			Endpoint:     v.GetString("SERVICE_ENDPOINT"),
			GRPCAddr:     v.GetString("CLASSIFIER_GRPC_ADDR"),
			GeminiAPIKey: v.GetString("GEMINI_API_KEY"),
			GeminiModel:  v.GetString("GEMINI_MODEL"),
			Timeout:      v.GetDuration("REMOTE_TIMEOUT"),
		},
		Connectivity: ConnectivityConfig{
			URL:     v.GetString("CONNECTIVITY_URL"),
			Timeout: v.GetDuration("CONNECTIVITY_TIMEOUT"),
		},
		Model: ModelConfig{
			Path:    v.GetString("MODEL_PATH"),
			Width:   v.GetInt("MODEL_INPUT_WIDTH"),
			Height:  v.GetInt("MODEL_INPUT_HEIGHT"),
			Layout:  v.GetString("MODEL_LAYOUT"),
			Classes: v.GetStringSlice("MODEL_CLASSES"),
		},
		Camera: CameraConfig{
			Command: v.GetString("CAMERA_COMMAND"),
			Width:   v.GetInt("CAMERA_WIDTH"),
			Height:  v.GetInt("CAMERA_HEIGHT"),
			ISO:     v.GetInt("CAMERA_ISO"),
			Warmup:  v.GetDuration("CAMERA_WARMUP"),
			Timeout: v.GetDuration("CAMERA_TIMEOUT"),
		},
		Hardware: HardwareConfig{
			PinoutFile:       v.GetString("PINOUT_FILE"),
			SensorPin:        v.GetInt("BTN_INPUT_PIN"),
			StatusLEDPin:     v.GetInt("LED_CTRL_OUTPUT_PIN"),
			RecyclableLED:    v.GetInt("LED_RECYCLABLE_OUTPUT_PIN"),
			NonRecyclableLED: v.GetInt("LED_NON_RECYCLABLE_OUTPUT_PIN"),
			SensorActiveLow:  v.GetBool("SENSOR_ACTIVE_LOW"),
			LEDDriver:        v.GetString("LED_DRIVER"),
			FirmataPort:      v.GetString("FIRMATA_PORT"),
			FirmataBaud:      v.GetInt("FIRMATA_BAUD"),
		},
		Pipeline: PipelineConfig{
			LEDPulse:      v.GetDuration("LED_PULSE"),
			SettleDelay:   v.GetDuration("SETTLE_DELAY"),
			PollInterval:  v.GetDuration("POLL_INTERVAL"),
			UploadScale:   v.GetFloat64("UPLOAD_SCALE"),
			RecordTimeout: v.GetDuration("RECORD_TIMEOUT"),
		},
		Storage: StorageConfig{
			BaseDir:     v.GetString("BASE_DIR"),
			CaptureDir:  v.GetString("CAPTURE_DIR"),
			ArchiveDir:  v.GetString("ARCHIVE_DIR"),
			RedisAddr:   v.GetString("REDIS_ADDR"),
			DatabaseDSN: v.GetString("DATABASE_DSN"),
		},
		Status: StatusConfig{
			Addr:        v.GetString("STATUS_ADDR"),
			JWTSecret:   v.GetString("JWT_SECRET"),
			JWTAudience: v.GetString("JWT_AUDIENCE"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
			Prefix:          v.GetString("S3_PREFIX"),
			Concurrency:     v.GetInt("SYNC_CONCURRENCY"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := createDirs(cfg); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Classifier.Backend {
	case "http":
	case "grpc":
		if c.Classifier.GRPCAddr == "" {
			return fmt.Errorf("CLASSIFIER_GRPC_ADDR is required for the grpc backend")
		}
	case "gemini":
		if c.Classifier.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini backend")
		}
	default:
		return fmt.Errorf("unsupported CLASSIFIER_BACKEND %q (supported: http, grpc, gemini)", c.Classifier.Backend)
	}
	switch c.Model.Layout {
	case "NHWC", "NCHW":
	default:
		return fmt.Errorf("unsupported MODEL_LAYOUT %q (supported: NHWC, NCHW)", c.Model.Layout)
	}
	if len(c.Model.Classes) < 2 {
		return fmt.Errorf("MODEL_CLASSES needs at least two entries, got %d", len(c.Model.Classes))
	}
	switch c.Hardware.LEDDriver {
	case "gpio", "firmata":
	default:
		return fmt.Errorf("unsupported LED_DRIVER %q (supported: gpio, firmata)", c.Hardware.LEDDriver)
	}
	if c.Pipeline.UploadScale <= 0 || c.Pipeline.UploadScale > 1 {
		return fmt.Errorf("UPLOAD_SCALE must be in (0, 1], got %v", c.Pipeline.UploadScale)
	}
	return nil
}

func createDirs(cfg *Config) error {
	dirs := []string{
		filepath.Join(cfg.Storage.BaseDir, cfg.Storage.CaptureDir),
		cfg.ArchiveRoot(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
