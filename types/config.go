package types

type ConfigManager interface {
	Load() error
	GetConfig() *ServiceConfig
	GetValue(path string, defaultValue interface{}) interface{}
	GetAs(path string, target interface{}) error
}

type ServiceConfig struct {
	Name    string         `yaml:"name" json:"name" validate:"required"`
	Version string         `yaml:"version" json:"version" validate:"required"`
	Logger  *LoggerConfig  `yaml:"logger" json:"logger"`
	Storage *StorageConfig `yaml:"storage" json:"storage"`
	Cache   *CacheConfig   `yaml:"cache" json:"cache"`
	Sweep   *SweepConfig   `yaml:"sweep" json:"sweep"`
	Metrics *MetricsConfig `yaml:"metrics" json:"metrics"`
	Health  *HealthConfig  `yaml:"health" json:"health"`
	Server  *ServerConfig  `yaml:"server" json:"server"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type StorageConfig struct {
	Type   string      `yaml:"type" json:"type" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	Prefix     string        `yaml:"prefix" json:"prefix"`
	Bucket     string        `yaml:"bucket" json:"bucket"`
	Resolution Duration      `yaml:"resolution" json:"resolution" validate:"min=0"`
	DefaultTTL Duration      `yaml:"default_ttl" json:"default_ttl" validate:"min=0"`
	Codec      string        `yaml:"codec" json:"codec"`
}

type SweepConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Schedule string `yaml:"schedule" json:"schedule" validate:"required_if=Enabled true"`
	Timezone string `yaml:"timezone" json:"timezone"`
}

type MetricsConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Type    string      `yaml:"type" json:"type" validate:"required_if=Enabled true"`
	Config  interface{} `yaml:"config" json:"config"`
}

type HealthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

type ServerConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Host            string `yaml:"host" json:"host"`
	Port            int    `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type VersionInfo struct {
	Version   string `json:"version"`
	BuildInfo string `json:"build_info"`
	Instance  string `json:"instance"`
}
