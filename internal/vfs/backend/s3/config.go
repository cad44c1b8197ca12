package s3

import "time"

// Config configures an S3-backed Backend. It keeps the teacher's
// connection/performance fields and drops the storage-tier/cost
// fields, which have no counterpart in the VFS domain.
type Config struct {
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`

	MaxRetries     int           `yaml:"max_retries"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	UseAccelerate bool `yaml:"use_accelerate"`
	UseDualStack  bool `yaml:"use_dual_stack"`

	// FileBufferSize is carried in the configuration but not read by
	// Backend: Write appends to the per-file buffer without a size
	// bound, and the whole buffer is uploaded only at CloseFile.
	FileBufferSize int64 `yaml:"file_buffer_size"`

	// MultipartThreshold is the buffered size, in bytes, at or above
	// which CloseFile uploads through a multipart upload instead of a
	// single PutObject. It applies only when no cargoship transporter
	// is in use.
	MultipartThreshold int64 `yaml:"multipart_threshold"`
	MultipartChunkSize int64 `yaml:"multipart_chunk_size"`

	// EnableCargoShipOptimization sends every CloseFile upload, whatever
	// its size, through cargoship's BBR/CUBIC-tuned transporter instead
	// of a plain aws-sdk-go-v2 PutObject or multipart upload.
	EnableCargoShipOptimization bool    `yaml:"enable_cargoship_optimization"`
	TargetThroughput            float64 `yaml:"target_throughput"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		MaxRetries:                  3,
		ConnectTimeout:              10 * time.Second,
		RequestTimeout:              30 * time.Second,
		FileBufferSize:              64 * 1024 * 1024,
		MultipartThreshold:          32 * 1024 * 1024,
		MultipartChunkSize:          16 * 1024 * 1024,
		EnableCargoShipOptimization: true,
		TargetThroughput:            800.0,
	}
}
