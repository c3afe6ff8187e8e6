// Package config holds the settings a batch reads at start. Settings come
// from the desktop preferences store or from a config file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ytget/mediaporter/internal/model"
	"github.com/ytget/mediaporter/internal/platform"
	"github.com/ytget/mediaporter/internal/retry"
)

// Default values
const (
	DefaultRetryCount  = 2
	DefaultConcurrency = 2
	DefaultRetryDelay  = time.Second
	DefaultLogLevel    = "info"
	DefaultMode        = model.ModeVideo
	DefaultQuality     = model.QualityAuto
	MinConcurrency     = 1
	MaxConcurrency     = 10
	MaxRetryCount      = 10
	fallbackDownloads  = "/tmp/downloads"
	appDirName         = "mediaporter"
	cookieFileName     = "cookies.txt"
)

// Settings is an immutable snapshot consumed by the core
type Settings struct {
	DownloadDir string        `mapstructure:"download_dir"`
	RetryCount  int           `mapstructure:"retry_count"`
	Concurrency int           `mapstructure:"concurrency"`
	Mode        model.Mode    `mapstructure:"mode"`
	Quality     model.Quality `mapstructure:"quality"`
	CookieFile  string        `mapstructure:"cookie_file"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	LogLevel    string        `mapstructure:"log_level"`
}

// Defaults returns the built-in settings
func Defaults() Settings {
	return Settings{
		DownloadDir: DefaultDownloadDir(),
		RetryCount:  DefaultRetryCount,
		Concurrency: DefaultConcurrency,
		Mode:        DefaultMode,
		Quality:     DefaultQuality,
		CookieFile:  DefaultCookieFile(),
		RetryDelay:  DefaultRetryDelay,
		LogLevel:    DefaultLogLevel,
	}
}

// DefaultDownloadDir returns the user's Downloads directory
func DefaultDownloadDir() string {
	dir, err := platform.GetHomeDownloadsDir()
	if err != nil {
		return fallbackDownloads
	}
	return dir
}

// DefaultCookieFile returns the cookie file path under the user config dir
func DefaultCookieFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return cookieFileName
	}
	return filepath.Join(dir, appDirName, cookieFileName)
}

// Validate normalizes mode and quality and checks ranges
func (s Settings) Validate() (Settings, error) {
	mode, err := model.ParseMode(string(s.Mode))
	if err != nil {
		return s, err
	}
	quality, err := model.ParseQuality(string(s.Quality))
	if err != nil {
		return s, err
	}
	s.Mode, s.Quality = mode, quality

	if s.DownloadDir == "" {
		return s, fmt.Errorf("download directory is empty")
	}
	if s.RetryCount < 0 || s.RetryCount > MaxRetryCount {
		return s, fmt.Errorf("retry count %d out of range 0..%d", s.RetryCount, MaxRetryCount)
	}
	if s.Concurrency < MinConcurrency || s.Concurrency > MaxConcurrency {
		return s, fmt.Errorf("concurrency %d out of range %d..%d", s.Concurrency, MinConcurrency, MaxConcurrency)
	}
	if s.RetryDelay < 0 {
		return s, fmt.Errorf("retry delay %s is negative", s.RetryDelay)
	}
	return s, nil
}

// RetryPolicy builds the retry policy for a batch
func (s Settings) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = s.RetryCount
	p.RetryDelay = s.RetryDelay
	return p
}
