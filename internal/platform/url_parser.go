package platform

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ytget/mediaporter/internal/model"
)

// Input line syntax
const (
	CustomNameSeparator = "||"
)

// Hosts
const (
	ShortLinkHost  = "b23.tv"
	PlatformDomain = "bilibili.com"
)

// Rejection reasons
const (
	ReasonNoURL       = "no url found"
	ReasonMissingHost = "missing host"
	ReasonHost        = "host is not bilibili/b23"
	ReasonPath        = "path not supported"
	ReasonMissingID   = "missing identifier"
)

var (
	urlPattern = regexp.MustCompile(`(?i)https?://[^\s,]+`)

	// Full-width punctuation pasted from chat apps
	fullWidthReplacer = strings.NewReplacer(
		"：", ":",
		"／", "/",
		"．", ".",
		"？", "?",
		"＆", "&",
	)
)

const (
	leadingTrimChars  = "\"'([{<【《「『"
	trailingTrimChars = "\"').,!?;:]>】》」』，。！？；："
)

// pathShape maps a path prefix on the platform domain to a resource kind.
// With keepPrefix the identifier is the first path segment including the
// prefix, as in /ep123.
type pathShape struct {
	prefix     string
	kind       model.ResourceKind
	keepPrefix bool
}

// Longer prefixes before their own prefixes
var platformShapes = []pathShape{
	{prefix: "/bangumi/play/", kind: model.ResourceBangumi},
	{prefix: "/bangumi/media/", kind: model.ResourceBangumi},
	{prefix: "/s/bangumi/play/", kind: model.ResourceBangumi},
	{prefix: "/s/bangumi/", kind: model.ResourceBangumi},
	{prefix: "/cheese/play/", kind: model.ResourceBangumi},
	{prefix: "/anime/", kind: model.ResourceBangumi},
	{prefix: "/s/video/", kind: model.ResourceVideo},
	{prefix: "/video/", kind: model.ResourceVideo},
	{prefix: "/festival/", kind: model.ResourceVideo},
	{prefix: "/medialist/play/", kind: model.ResourceVideo},
	{prefix: "/list/", kind: model.ResourceVideo},
	{prefix: "/movie/", kind: model.ResourceMovie},
	{prefix: "/ep", kind: model.ResourceBangumi, keepPrefix: true},
	{prefix: "/ss", kind: model.ResourceBangumi, keepPrefix: true},
}

// ResolutionError describes why a line was rejected. It matches model.ErrMalformed.
type ResolutionError struct {
	Line   string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("malformed input %q: %s", e.Line, e.Reason)
}

// Is lets errors.Is(err, model.ErrMalformed) succeed
func (e *ResolutionError) Is(target error) bool {
	return target == model.ErrMalformed
}

// Resolve turns one input line into a parsed task. It performs no I/O.
func Resolve(line string) (model.ParsedTask, error) {
	raw := strings.TrimSpace(line)
	left, right, hasName := strings.Cut(raw, CustomNameSeparator)
	left = strings.TrimSpace(left)

	candidate := urlPattern.FindString(fullWidthReplacer.Replace(left))
	if candidate == "" {
		return model.ParsedTask{}, &ResolutionError{Line: raw, Reason: ReasonNoURL}
	}
	candidate = normalizeURLCandidate(candidate)

	res, reason := classifyURL(candidate)
	if reason != "" {
		return model.ParsedTask{}, &ResolutionError{Line: raw, Reason: reason}
	}

	parsed := model.ParsedTask{
		SourceLine: raw,
		Resource:   res,
	}
	if hasName {
		parsed.CustomName = SanitizeFileName(right)
		if parsed.CustomName == "" {
			parsed.CustomName = res.FallbackName()
		}
	}
	return parsed, nil
}

// ParseBatch resolves every non-blank line of text. Duplicated lines produce
// independent tasks.
func ParseBatch(text string) ([]model.ParsedTask, []model.Rejection) {
	var (
		tasks    []model.ParsedTask
		rejected []model.Rejection
	)
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parsed, err := Resolve(line)
		if err != nil {
			reason := err.Error()
			if re, ok := err.(*ResolutionError); ok {
				reason = re.Reason
			}
			rejected = append(rejected, model.Rejection{
				LineNo: i + 1,
				Line:   strings.TrimSpace(line),
				Reason: reason,
			})
			continue
		}
		parsed.LineNo = i + 1
		tasks = append(tasks, parsed)
	}
	return tasks, rejected
}

// ClassifyURL resolves an already extracted URL, e.g. the target of a short
// link redirect.
func ClassifyURL(rawURL string) (model.Resource, error) {
	res, reason := classifyURL(normalizeURLCandidate(fullWidthReplacer.Replace(rawURL)))
	if reason != "" {
		return model.Resource{}, &ResolutionError{Line: rawURL, Reason: reason}
	}
	return res, nil
}

func classifyURL(candidate string) (model.Resource, string) {
	u, err := url.Parse(candidate)
	if err != nil {
		return model.Resource{}, err.Error()
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return model.Resource{}, ReasonMissingHost
	}

	if host == ShortLinkHost {
		id := strings.Trim(u.Path, "/")
		if id == "" {
			return model.Resource{}, ReasonMissingID
		}
		return model.Resource{Kind: model.ResourceShortLink, ID: id, URL: candidate}, ""
	}

	if host != PlatformDomain && !strings.HasSuffix(host, "."+PlatformDomain) {
		return model.Resource{}, fmt.Sprintf("%s (%s)", ReasonHost, host)
	}

	path := u.Path
	lower := strings.ToLower(path)
	for _, shape := range platformShapes {
		if !strings.HasPrefix(lower, shape.prefix) {
			continue
		}
		rest := path[len(shape.prefix):]
		if shape.keepPrefix {
			if strings.Trim(rest, "/") == "" {
				return model.Resource{}, ReasonMissingID
			}
			rest = path[1:]
		}
		id, _, _ := strings.Cut(strings.Trim(rest, "/"), "/")
		if id == "" {
			return model.Resource{}, ReasonMissingID
		}
		return model.Resource{Kind: shape.kind, ID: id, URL: candidate}, ""
	}
	if path == "" {
		path = "/"
	}
	return model.Resource{}, fmt.Sprintf("%s (%s)", ReasonPath, path)
}

func normalizeURLCandidate(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, leadingTrimChars)
	return strings.TrimRight(s, trailingTrimChars)
}
