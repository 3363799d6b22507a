// Package config loads the .cloudiskrc file and layers flag and environment
// overrides on top of it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

const (
	BackendREST = "rest"
	BackendS3   = "s3"

	// FileName is the configuration file looked up in the search paths
	FileName = ".cloudiskrc"

	DefaultServer   = "http://localhost:5000/api"
	DefaultS3Host   = "s3.amazonaws.com"
	DefaultS3Region = "us-east-1"
)

// S3 holds the bucket settings, in s3cmd's vocabulary
type S3 struct {
	AccessKey string
	SecretKey string
	HostBase  string
	UseHTTPS  bool
	Region    string
	Bucket    string
}

// EndpointURL returns the endpoint URL for the S3 service
func (c S3) EndpointURL() string {
	protocol := "https"
	if !c.UseHTTPS {
		protocol = "http"
	}
	return fmt.Sprintf("%s://%s", protocol, c.HostBase)
}

// Config is the client configuration
type Config struct {
	Backend     string
	Server      string
	Retries     int
	LogLevel    string
	LogFile     string
	DownloadDir string
	S3          S3

	// Path is the file the configuration came from, empty for defaults
	Path string
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Backend:     BackendREST,
		Server:      DefaultServer,
		LogLevel:    "info",
		DownloadDir: ".",
		S3: S3{
			HostBase: DefaultS3Host,
			UseHTTPS: true,
			Region:   DefaultS3Region,
		},
	}
}

// SearchPaths lists where the configuration file is looked for, in order
func SearchPaths() []string {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, FileName))
	}
	return append(paths, "/etc/cloudiskrc")
}

// Find returns the first existing configuration file, or ""
func Find() string {
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads the configuration at path. An empty path searches the standard
// locations and falls back to defaults when nothing is found.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = Find()
		if path == "" {
			return cfg, nil
		}
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	cfg.Path = path

	section := file.Section("default")
	cfg.Backend = strings.ToLower(section.Key("backend").MustString(cfg.Backend))
	cfg.Server = section.Key("server").MustString(cfg.Server)
	cfg.Retries = section.Key("retries").MustInt(cfg.Retries)
	cfg.LogLevel = section.Key("log_level").MustString(cfg.LogLevel)
	cfg.LogFile = section.Key("log_file").MustString(cfg.LogFile)
	cfg.DownloadDir = section.Key("download_dir").MustString(cfg.DownloadDir)

	s3 := file.Section("s3")
	cfg.S3 = S3{
		AccessKey: s3.Key("access_key").String(),
		SecretKey: s3.Key("secret_key").String(),
		HostBase:  s3.Key("host_base").MustString(DefaultS3Host),
		UseHTTPS:  s3.Key("use_https").MustBool(true),
		Region:    s3.Key("bucket_location").MustString(DefaultS3Region),
		Bucket:    s3.Key("bucket").String(),
	}

	return cfg, nil
}

// Apply overlays values explicitly set in v, from flags or CLOUDISK_*
// variables, onto the configuration.
func (c *Config) Apply(v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	str("backend", &c.Backend)
	str("server", &c.Server)
	str("log-level", &c.LogLevel)
	str("log-file", &c.LogFile)
	str("download-dir", &c.DownloadDir)
	str("s3.access-key", &c.S3.AccessKey)
	str("s3.secret-key", &c.S3.SecretKey)
	str("s3.host-base", &c.S3.HostBase)
	str("s3.region", &c.S3.Region)
	str("s3.bucket", &c.S3.Bucket)
	if v.IsSet("retries") {
		c.Retries = v.GetInt("retries")
	}
	if v.IsSet("s3.use-https") {
		c.S3.UseHTTPS = v.GetBool("s3.use-https")
	}
	c.Backend = strings.ToLower(c.Backend)
}

// NewViper returns a viper instance that reads CLOUDISK_* variables, so
// s3.access-key comes from CLOUDISK_S3_ACCESS_KEY.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("cloudisk")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Validate checks that the selected backend can be reached with what we have
func (c *Config) Validate() error {
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}
	switch c.Backend {
	case BackendREST:
		if c.Server == "" {
			return fmt.Errorf("server must be set for the %s backend", BackendREST)
		}
	case BackendS3:
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			return fmt.Errorf("access_key and secret_key must be specified in the [s3] section")
		}
		if c.S3.Bucket == "" {
			return fmt.Errorf("bucket must be specified in the [s3] section")
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendREST, BackendS3)
	}
	return nil
}

// Save saves the configuration to a file
func Save(c *Config, path string) error {
	file := ini.Empty()
	section := file.Section("default")
	section.Key("backend").SetValue(c.Backend)
	section.Key("server").SetValue(c.Server)
	section.Key("retries").SetValue(fmt.Sprint(c.Retries))
	section.Key("log_level").SetValue(c.LogLevel)
	if c.LogFile != "" {
		section.Key("log_file").SetValue(c.LogFile)
	}
	section.Key("download_dir").SetValue(c.DownloadDir)

	if c.Backend == BackendS3 {
		s3 := file.Section("s3")
		s3.Key("access_key").SetValue(c.S3.AccessKey)
		s3.Key("secret_key").SetValue(c.S3.SecretKey)
		s3.Key("host_base").SetValue(c.S3.HostBase)
		if c.S3.UseHTTPS {
			s3.Key("use_https").SetValue("True")
		} else {
			s3.Key("use_https").SetValue("False")
		}
		s3.Key("bucket_location").SetValue(c.S3.Region)
		s3.Key("bucket").SetValue(c.S3.Bucket)
	}

	// keys live in here
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := file.WriteTo(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
