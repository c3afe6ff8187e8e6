package config

import (
	"fyne.io/fyne/v2"

	"github.com/ytget/mediaporter/internal/model"
)

// Settings keys for Fyne preferences
const (
	KeyDownloadDir  = "download_directory"
	KeyRetryCount   = "retry_count"
	KeyMaxParallel  = "max_parallel_downloads"
	KeyMode         = "download_mode"
	KeyQuality      = "video_quality"
	KeyCookieFile   = "cookie_file"
	KeyWindowWidth  = "window_width"
	KeyWindowHeight = "window_height"
)

// Window defaults
const (
	DefaultWindowWidth  = 960
	DefaultWindowHeight = 640
	minWindowSide       = 320
)

// Store persists settings in the application's preferences
type Store struct {
	app fyne.App
}

// NewStore creates a preferences-backed settings store
func NewStore(app fyne.App) *Store {
	return &Store{app: app}
}

// GetDownloadDirectory returns the configured download directory
func (s *Store) GetDownloadDirectory() string {
	dir := s.app.Preferences().String(KeyDownloadDir)
	if dir == "" {
		dir = DefaultDownloadDir()
		s.SetDownloadDirectory(dir)
	}
	return dir
}

// SetDownloadDirectory sets the download directory
func (s *Store) SetDownloadDirectory(dir string) {
	s.app.Preferences().SetString(KeyDownloadDir, dir)
}

// GetRetryCount returns the number of retries after the first attempt
func (s *Store) GetRetryCount() int {
	return s.app.Preferences().IntWithFallback(KeyRetryCount, DefaultRetryCount)
}

// SetRetryCount sets the retry count, clamped to 0..MaxRetryCount
func (s *Store) SetRetryCount(n int) {
	s.app.Preferences().SetInt(KeyRetryCount, clamp(n, 0, MaxRetryCount))
}

// GetMaxParallelDownloads returns the maximum number of parallel downloads
func (s *Store) GetMaxParallelDownloads() int {
	value := s.app.Preferences().Int(KeyMaxParallel)
	if value <= 0 {
		s.SetMaxParallelDownloads(DefaultConcurrency)
		return DefaultConcurrency
	}
	return value
}

// SetMaxParallelDownloads sets the maximum number of parallel downloads
func (s *Store) SetMaxParallelDownloads(count int) {
	s.app.Preferences().SetInt(KeyMaxParallel, clamp(count, MinConcurrency, MaxConcurrency))
}

// GetMode returns the download mode
func (s *Store) GetMode() model.Mode {
	mode, err := model.ParseMode(s.app.Preferences().String(KeyMode))
	if err != nil {
		return DefaultMode
	}
	return mode
}

// SetMode sets the download mode
func (s *Store) SetMode(mode model.Mode) {
	s.app.Preferences().SetString(KeyMode, string(mode))
}

// GetQuality returns the video quality preset
func (s *Store) GetQuality() model.Quality {
	q, err := model.ParseQuality(s.app.Preferences().String(KeyQuality))
	if err != nil {
		return DefaultQuality
	}
	return q
}

// SetQuality sets the video quality preset
func (s *Store) SetQuality(q model.Quality) {
	s.app.Preferences().SetString(KeyQuality, string(q))
}

// GetQualityOptions returns the selectable quality presets
func (s *Store) GetQualityOptions() []model.Quality {
	return []model.Quality{model.QualityAuto, model.Quality1080p, model.Quality720p, model.Quality480p}
}

// GetCookieFile returns the login cookie file path
func (s *Store) GetCookieFile() string {
	return s.app.Preferences().StringWithFallback(KeyCookieFile, DefaultCookieFile())
}

// SetCookieFile sets the login cookie file path
func (s *Store) SetCookieFile(path string) {
	s.app.Preferences().SetString(KeyCookieFile, path)
}

// GetWindowSize returns the saved window geometry
func (s *Store) GetWindowSize() (width, height int) {
	p := s.app.Preferences()
	return p.IntWithFallback(KeyWindowWidth, DefaultWindowWidth), p.IntWithFallback(KeyWindowHeight, DefaultWindowHeight)
}

// SetWindowSize saves the window geometry. Tiny sizes are ignored.
func (s *Store) SetWindowSize(width, height int) {
	if width < minWindowSide || height < minWindowSide {
		return
	}
	p := s.app.Preferences()
	p.SetInt(KeyWindowWidth, width)
	p.SetInt(KeyWindowHeight, height)
}

// Snapshot returns the settings a batch reads at start
func (s *Store) Snapshot() Settings {
	return Settings{
		DownloadDir: s.GetDownloadDirectory(),
		RetryCount:  s.GetRetryCount(),
		Concurrency: s.GetMaxParallelDownloads(),
		Mode:        s.GetMode(),
		Quality:     s.GetQuality(),
		CookieFile:  s.GetCookieFile(),
		RetryDelay:  DefaultRetryDelay,
		LogLevel:    DefaultLogLevel,
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
