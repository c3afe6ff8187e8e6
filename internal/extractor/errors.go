package extractor

import (
	"regexp"
	"strings"

	"github.com/ytget/mediaporter/internal/model"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// outputRule maps a fragment of extractor output to an error kind. Rules are
// checked in order.
type outputRule struct {
	fragments []string
	kind      model.ErrorKind
	message   string
}

var outputRules = []outputRule{
	{[]string{"drm"}, model.ErrorFormatUnavailable, "content is DRM-protected"},
	{[]string{"requested format is not available"}, model.ErrorFormatUnavailable, "requested quality/format is unavailable"},
	{[]string{"premium", "大会员", "vip"}, model.ErrorVipRequired, "Login/VIP membership required"},
	{[]string{"http error 403", "login", "registered users", "cookies"}, model.ErrorAuthRequired, "Login/VIP required for this content"},
	{[]string{"http error 412", "http error 429", "too many requests"}, model.ErrorRateLimited, "rate limited by platform"},
	{[]string{"unsupported url", "unable to extract", "http error 404", "does not exist"}, model.ErrorResolution, "resource could not be resolved, try updating yt-dlp"},
	{[]string{"winerror 10013", "timed out", "connection", "unable to download", "network"}, model.ErrorNetwork, "network failure"},
}

// ClassifyOutput turns extractor error output into a classified error.
// Unrecognized output is treated as a resolution failure.
func ClassifyOutput(output string, cause error) *model.FetchError {
	clean := strings.TrimSpace(ansiEscape.ReplaceAllString(output, ""))
	lower := strings.ToLower(clean)
	for _, rule := range outputRules {
		for _, f := range rule.fragments {
			if strings.Contains(lower, f) {
				return model.WrapError(rule.kind, cause, rule.message+": "+lastLine(clean))
			}
		}
	}
	return model.WrapError(model.ErrorResolution, cause, lastLine(clean))
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
