package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Upload  UploadConfig  `yaml:"upload"`
	Auth    AuthConfig    `yaml:"auth"`
	Tools   ToolsConfig   `yaml:"tools"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type StorageConfig struct {
	ObjectsPath string `yaml:"objects_path"` // Корень объектного хранилища
	DBPath      string `yaml:"db_path"`
	SpoolPath   string `yaml:"spool_path"` // Временные файлы незавершённых загрузок
	LogsPath    string `yaml:"logs_path"`
}

type UploadConfig struct {
	MaxBatchBytes  int64 `yaml:"max_batch_bytes"` // Суммарный лимит файлов в одной партии
	ThumbMaxWidth  int   `yaml:"thumb_max_width"`
	ThumbMaxHeight int   `yaml:"thumb_max_height"`
	ThumbQuality   int   `yaml:"thumb_quality"` // Качество JPEG (0-100)
}

type AuthConfig struct {
	SessionMaxAge int    `yaml:"session_max_age"`
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

type ToolsConfig struct {
	Ffmpeg string `yaml:"ffmpeg"`
}

// Load читает конфигурацию из YAML-файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Установка значений по умолчанию
	cfg.setDefaults()

	return &cfg, nil
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.ObjectsPath == "" {
		c.Storage.ObjectsPath = "./data/objects"
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "./data/memoria.db"
	}
	if c.Storage.SpoolPath == "" {
		c.Storage.SpoolPath = "./data/spool"
	}
	if c.Storage.LogsPath == "" {
		c.Storage.LogsPath = "./logs"
	}
	if c.Upload.MaxBatchBytes == 0 {
		c.Upload.MaxBatchBytes = 15 << 20 // 15 MiB
	}
	if c.Upload.ThumbMaxWidth == 0 {
		c.Upload.ThumbMaxWidth = 800
	}
	if c.Upload.ThumbMaxHeight == 0 {
		c.Upload.ThumbMaxHeight = 600
	}
	if c.Upload.ThumbQuality == 0 {
		c.Upload.ThumbQuality = 70
	}
	if c.Auth.SessionMaxAge == 0 {
		c.Auth.SessionMaxAge = 86400
	}
	if c.Tools.Ffmpeg == "" {
		c.Tools.Ffmpeg = "ffmpeg"
	}
}
