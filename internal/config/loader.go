package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config file lookup
const (
	EnvPrefix      = "MEDIAPORTER"
	ConfigFileName = "mediaporter"
	ConfigFileType = "yaml"
)

// Load reads settings from path, or from mediaporter.yaml in the working
// directory and the user config dir when path is empty. Environment
// variables such as MEDIAPORTER_RETRY_COUNT override file values. A missing
// default file is not an error.
func Load(path string) (Settings, error) {
	v := viper.New()
	d := Defaults()
	v.SetDefault("download_dir", d.DownloadDir)
	v.SetDefault("retry_count", d.RetryCount)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("mode", string(d.Mode))
	v.SetDefault("quality", string(d.Quality))
	v.SetDefault("cookie_file", d.CookieFile)
	v.SetDefault("retry_delay", d.RetryDelay)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigFileName)
		v.SetConfigType(ConfigFileType)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, appDirName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	s, err := s.Validate()
	if err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}
