// Package config loads runtime settings from the environment, an optional
// .env file and an optional YAML file of render settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/df07/go-batch-renderer/pkg/host"
)

// ErrInvalid is returned when settings fail validation
var ErrInvalid = errors.New("invalid configuration")

// Config holds everything a run needs besides the payload
type Config struct {
	CachePath  string // CACHEPATH
	RenderPath string // RENDER_PATH

	Blender  BlenderConfig
	Storage  StorageConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Settings Settings
}

// BlenderConfig locates the host application
type BlenderConfig struct {
	Binary   string // BLENDER_PATH, may carry extra arguments
	Template string // BLEND_TEMPLATE, .blend file opened before the bridge starts
}

// StorageConfig describes an S3-compatible bucket
type StorageConfig struct {
	Bucket          string // S3_BUCKET
	Endpoint        string // S3_ENDPOINT, e.g. https://<account>.r2.cloudflarestorage.com
	Region          string // S3_REGION
	AccessKeyID     string // S3_ACCESS_KEY_ID
	SecretAccessKey string // S3_SECRET_ACCESS_KEY
	PathStyle       bool   // S3_PATH_STYLE, address the bucket in the URL path (MinIO, local stubs)
}

// Enabled reports whether a bucket is configured
func (s StorageConfig) Enabled() bool { return s.Bucket != "" }

// MongoConfig locates stored payload documents
type MongoConfig struct {
	URI        string // MONGO_URI
	Database   string // MONGO_DB
	Collection string // MONGO_COLLECTION
}

// Enabled reports whether a MongoDB is configured
func (m MongoConfig) Enabled() bool { return m.URI != "" }

// RedisConfig locates the job status store
type RedisConfig struct {
	Addr     string // REDIS_ADDR
	Password string // REDIS_PASSWORD
}

// Enabled reports whether a Redis server is configured
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// Settings are the render and rig parameters read from the YAML file
type Settings struct {
	Assembler AssemblerSettings `yaml:"assembler"`
	Turntable TurntableSettings `yaml:"turntable"`
}

// AssemblerSettings configures the multi-camera scene assembler
type AssemblerSettings struct {
	UnitScale   float64 `yaml:"unit_scale"`
	AxisForward string  `yaml:"axis_forward"`
	AxisUp      string  `yaml:"axis_up"`
}

// TurntableSettings configures the turntable rig
type TurntableSettings struct {
	UnitScale       float64             `yaml:"unit_scale"`
	Render          host.RenderSettings `yaml:"render"`
	ShadowCatcher   string              `yaml:"shadow_catcher"`
	PivotScale      [3]float64          `yaml:"pivot_scale"`
	PivotPitch      float64             `yaml:"pivot_pitch"`       // Degrees
	StillYaw        float64             `yaml:"still_yaw"`         // Degrees, still renders only
	SunRotation     [3]float64          `yaml:"sun_rotation"`      // Degrees
	SunEnergy       float64             `yaml:"sun_energy"`        // Host energy units
	GTAOFactor      float64             `yaml:"gtao_factor"`       // Multiplies subject width
	ShadowDistance  float64             `yaml:"shadow_distance"`   // Multiplies subject height
	GroundPlaneSize float64             `yaml:"ground_plane_size"` // Before scaling by the subject footprint
}

// DefaultSettings returns the settings used when no YAML file is given
func DefaultSettings() Settings {
	return Settings{
		Assembler: AssemblerSettings{
			UnitScale:   0.01,
			AxisForward: "X",
			AxisUp:      "Z",
		},
		Turntable: TurntableSettings{
			UnitScale: 1,
			Render: host.RenderSettings{
				Engine:            "BLENDER_EEVEE",
				ResolutionX:       1024,
				ResolutionY:       1024,
				Samples:           256,
				UseGTAO:           true,
				ShadowCascadeSize: "4096",
				SoftShadows:       true,
			},
			ShadowCatcher:   "m_shadowcatcher",
			PivotScale:      [3]float64{1, 1, 2.5},
			PivotPitch:      60,
			StillYaw:        -230,
			SunRotation:     [3]float64{15, 0, 45},
			SunEnergy:       10,
			GTAOFactor:      2,
			ShadowDistance:  10,
			GroundPlaneSize: 2,
		},
	}
}

// Load reads .env (if present), the environment, and the YAML file at
// settingsPath (if non-empty). exeDir anchors the default render path.
func Load(settingsPath, exeDir string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{
		CachePath:  getenv("CACHEPATH", "/cache"),
		RenderPath: getenv("RENDER_PATH", filepath.Join(exeDir, "..", "..", "media", "camera_")),
		Blender: BlenderConfig{
			Binary:   getenv("BLENDER_PATH", "blender"),
			Template: os.Getenv("BLEND_TEMPLATE"),
		},
		Storage: StorageConfig{
			Bucket:          os.Getenv("S3_BUCKET"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			Region:          getenv("S3_REGION", "auto"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Mongo: MongoConfig{
			URI:        os.Getenv("MONGO_URI"),
			Database:   getenv("MONGO_DB", "revire"),
			Collection: getenv("MONGO_COLLECTION", "scenes"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Settings: DefaultSettings(),
	}

	if v := os.Getenv("S3_PATH_STYLE"); v != "" {
		pathStyle, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%w: S3_PATH_STYLE=%q is not a boolean", ErrInvalid, v)
		}
		cfg.Storage.PathStyle = pathStyle
	}

	if settingsPath != "" {
		settings, err := LoadSettings(settingsPath)
		if err != nil {
			return nil, err
		}
		cfg.Settings = settings
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSettings reads a YAML settings file over the defaults
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("%w: parsing %s: %v", ErrInvalid, path, err)
	}
	return settings, nil
}

// Validate checks values the host would reject late
func (c *Config) Validate() error {
	var problems []string
	if c.CachePath == "" {
		problems = append(problems, "cache path is empty")
	}
	if c.RenderPath == "" {
		problems = append(problems, "render path is empty")
	}
	if strings.TrimSpace(c.Blender.Binary) == "" {
		problems = append(problems, "blender binary is empty")
	}
	if c.Settings.Assembler.UnitScale <= 0 || c.Settings.Turntable.UnitScale <= 0 {
		problems = append(problems, "unit scale must be positive")
	}
	r := c.Settings.Turntable.Render
	if r.ResolutionX <= 0 || r.ResolutionY <= 0 {
		problems = append(problems, "render resolution must be positive")
	}
	if r.Samples <= 0 {
		problems = append(problems, "render samples must be positive")
	}
	if c.Storage.Enabled() && (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
		problems = append(problems, "S3 credentials need both access key id and secret")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// loadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: reading %s: %v", ErrInvalid, path, err)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
