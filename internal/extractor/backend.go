package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ytget/mediaporter/internal/model"
	"github.com/ytget/mediaporter/internal/platform"
	"github.com/ytget/mediaporter/internal/session"
)

// Defaults
const (
	DefaultCacheTTL          = 10 * time.Minute
	DefaultRequestsPerSecond = 1.0
	DefaultBurst             = 2
	maxRedirectHops          = 5
	shortLinkTimeout         = 15 * time.Second
	platformBaseURL          = "https://www.bilibili.com"
)

// Availability values reported by yt-dlp
const (
	availabilityPremium    = "premium_only"
	availabilitySubscriber = "subscriber_only"
	availabilityNeedsAuth  = "needs_auth"
)

// LoginChecker is satisfied by the account client
type LoginChecker interface {
	CheckLoginAndVip(ctx context.Context, sess session.Session) (session.Status, error)
}

// Options configures the backend
type Options struct {
	Runner            Runner
	Checker           LoginChecker
	Sessions          *session.Store
	CacheTTL          time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// Backend is the yt-dlp backed media backend
type Backend struct {
	runner   Runner
	checker  LoginChecker
	sessions *session.Store
	http     *resty.Client
	limiter  *rate.Limiter
	ttl      time.Duration
	log      logrus.FieldLogger

	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// cacheKey scopes extractor output to one attempt and one cookie file, so a
// retry or a new login always runs the extractor again.
type cacheKey struct {
	attempt string
	cookie  string
	page    string
}

type cacheEntry struct {
	info    *infoJSON
	fetched time.Time
}

// New creates a backend
func New(opts Options, log logrus.FieldLogger) *Backend {
	if opts.Runner == nil {
		opts.Runner = YTDLPRunner{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}

	client := resty.New().
		SetTimeout(shortLinkTimeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Backend{
		runner:   opts.Runner,
		checker:  opts.Checker,
		sessions: opts.Sessions,
		http:     client,
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), DefaultBurst),
		ttl:      opts.CacheTTL,
		log:      log,
		cache:    make(map[cacheKey]cacheEntry),
	}
}

// ResolveShortLink follows the redirect chain of a short link and classifies
// the final URL.
func (b *Backend) ResolveShortLink(ctx context.Context, rawURL string) (model.Resource, error) {
	current := rawURL
	for hop := 0; hop < maxRedirectHops; hop++ {
		if err := b.limiter.Wait(ctx); err != nil {
			return model.Resource{}, err
		}
		resp, err := b.http.R().SetContext(ctx).Get(current)
		if err != nil {
			if ctx.Err() != nil {
				return model.Resource{}, ctx.Err()
			}
			return model.Resource{}, model.WrapError(model.ErrorResolution, err, "short link request failed")
		}

		switch code := resp.StatusCode(); {
		case code == http.StatusPreconditionFailed || code == http.StatusTooManyRequests:
			return model.Resource{}, model.NewError(model.ErrorRateLimited, "short link: %s", resp.Status())
		case code >= 300 && code < 400:
			next, err := resolveLocation(current, resp.Header().Get("Location"))
			if err != nil {
				return model.Resource{}, model.WrapError(model.ErrorResolution, err, "short link redirect")
			}
			if res, err := platform.ClassifyURL(next); err == nil && res.Kind != model.ResourceShortLink {
				b.log.WithFields(logrus.Fields{"short_link": rawURL, "target": res.String()}).Debug("Short link resolved")
				return res, nil
			}
			current = next
		default:
			return model.Resource{}, model.NewError(model.ErrorResolution, "short link %s did not redirect to a supported page (%s)", rawURL, resp.Status())
		}
	}
	return model.Resource{}, model.NewError(model.ErrorResolution, "too many redirects for %s", rawURL)
}

func resolveLocation(base, location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("redirect without location")
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(l).String(), nil
}

// Describe returns the title and access requirement of a resource
func (b *Backend) Describe(ctx context.Context, res model.Resource) (model.MediaInfo, error) {
	info, err := b.info(ctx, res)
	if err != nil {
		return model.MediaInfo{}, err
	}
	return model.MediaInfo{Title: info.Title, Access: info.access()}, nil
}

// ListStreams returns the downloadable streams for mode, best first. Quality
// is applied by the caller's selection.
func (b *Backend) ListStreams(ctx context.Context, res model.Resource, mode model.Mode, _ model.Quality) ([]model.Stream, error) {
	info, err := b.info(ctx, res)
	if err != nil {
		return nil, err
	}
	streams := info.streams(mode)
	if len(streams) == 0 {
		return nil, model.NewError(model.ErrorFormatUnavailable, "no downloadable %s streams for %s", mode, res)
	}
	return streams, nil
}

// CheckLoginAndVip delegates to the account client
func (b *Backend) CheckLoginAndVip(ctx context.Context, sess session.Session) (session.Status, error) {
	if b.checker == nil {
		return session.Status{}, nil
	}
	return b.checker.CheckLoginAndVip(ctx, sess)
}

func (b *Backend) info(ctx context.Context, res model.Resource) (*infoJSON, error) {
	key := cacheKey{attempt: model.AttemptFrom(ctx), cookie: b.cookieFile(), page: PageURL(res)}
	cacheable := key.attempt != ""

	if cacheable {
		b.mu.Lock()
		if e, ok := b.cache[key]; ok && time.Since(e.fetched) < b.ttl {
			b.mu.Unlock()
			return e.info, nil
		}
		b.mu.Unlock()
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	started := time.Now()
	raw, err := b.runner.DumpJSON(ctx, key.page, key.cookie)
	if err != nil {
		return nil, err
	}
	info, err := parseInfo(raw)
	if err != nil {
		return nil, model.WrapError(model.ErrorResolution, err, "unreadable extractor output")
	}
	b.log.WithFields(logrus.Fields{
		"resource": res.String(),
		"formats":  len(info.Formats),
		"elapsed":  time.Since(started).Round(time.Millisecond),
	}).Debug("Extracted media info")

	if cacheable {
		b.mu.Lock()
		b.pruneLocked()
		b.cache[key] = cacheEntry{info: info, fetched: time.Now()}
		b.mu.Unlock()
	}
	return info, nil
}

// EndAttempt drops the extractor output cached for the attempt of ctx
func (b *Backend) EndAttempt(ctx context.Context) {
	attempt := model.AttemptFrom(ctx)
	if attempt == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.cache {
		if k.attempt == attempt {
			delete(b.cache, k)
		}
	}
}

// pruneLocked evicts entries of attempts that never ended
func (b *Backend) pruneLocked() {
	for k, e := range b.cache {
		if time.Since(e.fetched) >= b.ttl {
			delete(b.cache, k)
		}
	}
}

func (b *Backend) cookieFile() string {
	if b.sessions == nil {
		return ""
	}
	if sess := b.sessions.Snapshot(); sess.Authenticated {
		return sess.CookieRef
	}
	return ""
}

// PageURL is the canonical page for a resource
func PageURL(res model.Resource) string {
	if res.URL != "" && res.Kind != model.ResourceShortLink {
		return res.URL
	}
	switch res.Kind {
	case model.ResourceVideo:
		return platformBaseURL + "/video/" + res.ID
	case model.ResourceBangumi:
		if strings.HasPrefix(res.ID, "md") {
			return platformBaseURL + "/bangumi/media/" + res.ID
		}
		return platformBaseURL + "/bangumi/play/" + res.ID
	case model.ResourceMovie:
		return platformBaseURL + "/movie/" + res.ID
	}
	return res.URL
}

type infoJSON struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Availability string            `json:"availability"`
	HTTPHeaders  map[string]string `json:"http_headers"`
	Formats      []formatJSON      `json:"formats"`
	Entries      []infoJSON        `json:"entries"`
}

type formatJSON struct {
	FormatID       string            `json:"format_id"`
	URL            string            `json:"url"`
	Ext            string            `json:"ext"`
	Protocol       string            `json:"protocol"`
	VCodec         string            `json:"vcodec"`
	ACodec         string            `json:"acodec"`
	Height         *float64          `json:"height"`
	TBR            *float64          `json:"tbr"`
	ABR            *float64          `json:"abr"`
	Filesize       *int64            `json:"filesize"`
	FilesizeApprox *int64            `json:"filesize_approx"`
	HTTPHeaders    map[string]string `json:"http_headers"`
}

func parseInfo(raw []byte) (*infoJSON, error) {
	var info infoJSON
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	// Multi-part pages: take the first part, keep the page title.
	if len(info.Formats) == 0 && len(info.Entries) > 0 {
		first := info.Entries[0]
		if info.Title != "" {
			first.Title = info.Title
		}
		if first.Availability == "" {
			first.Availability = info.Availability
		}
		return &first, nil
	}
	return &info, nil
}

func (i *infoJSON) access() model.Access {
	switch i.Availability {
	case availabilityPremium, availabilitySubscriber:
		return model.AccessVipRequired
	case availabilityNeedsAuth:
		return model.AccessLoginRequired
	}
	return model.AccessPublic
}

func (i *infoJSON) streams(mode model.Mode) []model.Stream {
	var out []model.Stream
	for _, f := range i.Formats {
		if f.URL == "" || !directProtocol(f.Protocol) {
			continue
		}
		s := model.Stream{
			ID:      f.FormatID,
			URL:     f.URL,
			Kind:    streamKind(f.VCodec, f.ACodec),
			Ext:     f.Ext,
			Headers: mergeHeaders(i.HTTPHeaders, f.HTTPHeaders),
		}
		if f.Height != nil {
			s.Height = int(*f.Height)
		}
		switch {
		case f.TBR != nil:
			s.Bitrate = *f.TBR
		case f.ABR != nil:
			s.Bitrate = *f.ABR
		}
		switch {
		case f.Filesize != nil:
			s.Size = *f.Filesize
		case f.FilesizeApprox != nil:
			s.Size = *f.FilesizeApprox
		}
		if mode == model.ModeAudio && !s.HasAudio() {
			continue
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(a, b int) bool {
		if mode == model.ModeAudio && out[a].Kind != out[b].Kind {
			return out[a].Kind == model.StreamAudio
		}
		if out[a].Height != out[b].Height {
			return out[a].Height > out[b].Height
		}
		return out[a].Bitrate > out[b].Bitrate
	})
	if len(out) > 0 {
		out[0].IsDefault = true
	}
	return out
}

func directProtocol(p string) bool {
	return p == "" || p == "https" || p == "http"
}

func streamKind(vcodec, acodec string) model.StreamKind {
	switch {
	case vcodec == "none" && acodec != "none":
		return model.StreamAudio
	case acodec == "none" && vcodec != "none":
		return model.StreamVideo
	}
	return model.StreamMuxed
}

func mergeHeaders(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
