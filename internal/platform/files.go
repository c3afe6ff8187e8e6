package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// Naming constants
const (
	DownloadsDirName    = "Downloads"
	TempDirName         = ".mediaporter-tmp"
	MaxFileNameLength   = 180
	MaxCollisionSuffix  = 9999
	IllegalReplacement  = "_"
	nameTrimChars       = " .\"'“”‘’"
	collisionNameFormat = "%s (%d)%s"
)

var illegalNameChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)

// ErrNoFreeName is returned when every collision suffix is taken
var ErrNoFreeName = errors.New("no free file name")

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// GetHomeDownloadsDir returns the standard Downloads directory for the user
func GetHomeDownloadsDir() (string, error) {
	if runtime.GOOS == "android" || os.Getenv("ANDROID_DATA") != "" {
		return "/sdcard/Download", nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, DownloadsDirName), nil
}

// SanitizeFileName replaces characters that are illegal in file names on
// common filesystems. Runs of illegal characters collapse to one "_".
func SanitizeFileName(name string) string {
	cleaned := strings.Trim(strings.TrimSpace(name), nameTrimChars)
	cleaned = illegalNameChars.ReplaceAllString(cleaned, IllegalReplacement)
	cleaned = strings.Trim(cleaned, nameTrimChars)
	if strings.Trim(cleaned, IllegalReplacement+nameTrimChars) == "" {
		return ""
	}
	if len(cleaned) > MaxFileNameLength {
		cleaned = truncateRunes(cleaned, MaxFileNameLength)
	}
	return cleaned
}

func truncateRunes(s string, maxBytes int) string {
	out := s[:0]
	for i := range s {
		if i > maxBytes {
			break
		}
		out = s[:i]
	}
	return strings.TrimRight(out, nameTrimChars)
}

// AttemptTempDir creates a scratch directory for one attempt inside downloadDir
// so the final commit is a same-filesystem link.
func AttemptTempDir(downloadDir, taskID string, attempt int) (string, error) {
	root := filepath.Join(downloadDir, TempDirName)
	if err := CreateDirectoryIfNotExists(root); err != nil {
		return "", err
	}
	return os.MkdirTemp(root, fmt.Sprintf("%s-%d-", taskID, attempt))
}

// CommitFile moves src to dir/base+ext without ever replacing an existing
// file. On collision it tries "base (1)ext", "base (2)ext" and so on. The
// returned path is the final location.
func CommitFile(src, dir, base, ext string) (string, error) {
	if err := CreateDirectoryIfNotExists(dir); err != nil {
		return "", err
	}
	for n := 0; n <= MaxCollisionSuffix; n++ {
		dst := filepath.Join(dir, base+ext)
		if n > 0 {
			dst = filepath.Join(dir, fmt.Sprintf(collisionNameFormat, base, n, ext))
		}

		err := os.Link(src, dst)
		if err == nil {
			_ = os.Remove(src)
			return dst, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}
		// Filesystems without hard links: fall back to a checked rename.
		if _, statErr := os.Lstat(dst); statErr == nil {
			continue
		}
		if renameErr := os.Rename(src, dst); renameErr != nil {
			return "", fmt.Errorf("commit %s: %w", dst, renameErr)
		}
		return dst, nil
	}
	return "", fmt.Errorf("%w for %s%s in %s", ErrNoFreeName, base, ext, dir)
}
