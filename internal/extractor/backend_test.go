package extractor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/mediaporter/internal/model"
	"github.com/ytget/mediaporter/internal/session"
)

const sampleInfo = `{
  "id": "BV1abc",
  "title": "Sample Clip",
  "availability": "public",
  "http_headers": {"Referer": "https://www.bilibili.com/", "User-Agent": "UA"},
  "formats": [
    {"format_id": "30280", "url": "https://cdn/a192.m4s", "ext": "m4a", "protocol": "https", "vcodec": "none", "acodec": "mp4a.40.2", "tbr": 192},
    {"format_id": "30216", "url": "https://cdn/a64.m4s", "ext": "m4a", "protocol": "https", "vcodec": "none", "acodec": "mp4a.40.2", "tbr": 64},
    {"format_id": "30064", "url": "https://cdn/v720.m4s", "ext": "mp4", "protocol": "https", "vcodec": "avc1", "acodec": "none", "height": 720, "tbr": 1200},
    {"format_id": "30080", "url": "https://cdn/v1080.m4s", "ext": "mp4", "protocol": "https", "vcodec": "avc1", "acodec": "none", "height": 1080, "tbr": 2500, "http_headers": {"Referer": "https://override/"}},
    {"format_id": "hls", "url": "https://cdn/x.m3u8", "ext": "mp4", "protocol": "m3u8_native", "vcodec": "avc1", "acodec": "aac", "height": 1080},
    {"format_id": "flv", "url": "https://cdn/p480.flv", "ext": "flv", "protocol": "https", "vcodec": "avc1", "acodec": "aac", "height": 480, "tbr": 700, "filesize": 1000}
  ]
}`

type fakeRunner struct {
	out    string
	err    error
	calls  int
	cookie string
}

func (f *fakeRunner) DumpJSON(_ context.Context, _ string, cookieFile string) ([]byte, error) {
	f.calls++
	f.cookie = cookieFile
	return []byte(f.out), f.err
}

func newTestBackend(runner Runner, sessions *session.Store) *Backend {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(Options{Runner: runner, Sessions: sessions, RequestsPerSecond: 1000}, log)
}

func TestBackend_DescribeAndListShareOneRun(t *testing.T) {
	runner := &fakeRunner{out: sampleInfo}
	b := newTestBackend(runner, nil)
	res := model.Resource{Kind: model.ResourceVideo, ID: "BV1abc"}
	ctx := model.WithAttempt(context.Background(), "task-1", 1)

	info, err := b.Describe(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, model.MediaInfo{Title: "Sample Clip", Access: model.AccessPublic}, info)

	streams, err := b.ListStreams(ctx, res, model.ModeVideo, model.QualityAuto)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)

	ids := make([]string, 0, len(streams))
	for _, s := range streams {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"30080", "30064", "flv", "30280", "30216"}, ids)
	assert.True(t, streams[0].IsDefault)
	assert.Equal(t, model.StreamVideo, streams[0].Kind)
	assert.Equal(t, "https://override/", streams[0].Headers["Referer"])
	assert.Equal(t, "UA", streams[0].Headers["User-Agent"])
	assert.Equal(t, model.StreamMuxed, streams[2].Kind)
	assert.Equal(t, int64(1000), streams[2].Size)
}

func TestBackend_ListStreamsAudio(t *testing.T) {
	b := newTestBackend(&fakeRunner{out: sampleInfo}, nil)

	streams, err := b.ListStreams(context.Background(), model.Resource{Kind: model.ResourceVideo, ID: "BV1abc"}, model.ModeAudio, model.QualityAuto)
	require.NoError(t, err)
	require.Len(t, streams, 3)
	assert.Equal(t, "30280", streams[0].ID)
	assert.Equal(t, "30216", streams[1].ID)
	assert.Equal(t, "flv", streams[2].ID)
}

func TestBackend_Access(t *testing.T) {
	tests := map[string]model.Access{
		"premium_only":    model.AccessVipRequired,
		"subscriber_only": model.AccessVipRequired,
		"needs_auth":      model.AccessLoginRequired,
		"public":          model.AccessPublic,
		"":                model.AccessPublic,
	}
	for availability, want := range tests {
		b := newTestBackend(&fakeRunner{out: `{"title":"x","availability":"` + availability + `"}`}, nil)
		info, err := b.Describe(context.Background(), model.Resource{Kind: model.ResourceMovie, ID: "1"})
		require.NoError(t, err)
		assert.Equal(t, want, info.Access, availability)
	}
}

func TestBackend_UsesSessionCookies(t *testing.T) {
	store := session.NewStore()
	store.Publish(session.Session{Authenticated: true, CookieRef: "/auth/cookies.txt"})
	runner := &fakeRunner{out: sampleInfo}

	_, err := newTestBackend(runner, store).Describe(context.Background(), model.Resource{Kind: model.ResourceVideo, ID: "BV1abc"})
	require.NoError(t, err)
	assert.Equal(t, "/auth/cookies.txt", runner.cookie)
}

func TestBackend_RunnerErrorsPassThrough(t *testing.T) {
	cause := ClassifyOutput("ERROR: [BiliBili] BV1: This video is only available for premium members", errors.New("exit 1"))
	b := newTestBackend(&fakeRunner{err: cause}, nil)

	_, err := b.Describe(context.Background(), model.Resource{Kind: model.ResourceVideo, ID: "BV1"})
	assert.Equal(t, model.ErrorVipRequired, model.KindOf(err))

	b = newTestBackend(&fakeRunner{out: "not json"}, nil)
	_, err = b.Describe(context.Background(), model.Resource{Kind: model.ResourceVideo, ID: "BV1"})
	assert.Equal(t, model.ErrorResolution, model.KindOf(err))
}

func TestBackend_MultiPartTakesFirstEntry(t *testing.T) {
	out := `{"title":"Collection","entries":[{"title":"P1","formats":[{"format_id":"a","url":"https://cdn/a","vcodec":"none","acodec":"aac","tbr":128}]}]}`
	b := newTestBackend(&fakeRunner{out: out}, nil)

	info, err := b.Describe(context.Background(), model.Resource{Kind: model.ResourceVideo, ID: "BV2"})
	require.NoError(t, err)
	assert.Equal(t, "Collection", info.Title)

	streams, err := b.ListStreams(context.Background(), model.Resource{Kind: model.ResourceVideo, ID: "BV2"}, model.ModeAudio, model.QualityAuto)
	require.NoError(t, err)
	assert.Len(t, streams, 1)
}

func TestBackend_EachAttemptRunsExtractor(t *testing.T) {
	runner := &fakeRunner{out: sampleInfo}
	b := newTestBackend(runner, nil)
	res := model.Resource{Kind: model.ResourceVideo, ID: "BV1abc"}

	first := model.WithAttempt(context.Background(), "task-1", 1)
	_, err := b.Describe(first, res)
	require.NoError(t, err)
	_, err = b.ListStreams(first, res, model.ModeAudio, model.QualityAuto)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)

	second := model.WithAttempt(context.Background(), "task-1", 2)
	_, err = b.ListStreams(second, res, model.ModeAudio, model.QualityAuto)
	require.NoError(t, err)
	assert.Equal(t, 2, runner.calls)

	b.EndAttempt(first)
	b.EndAttempt(second)
	assert.Empty(t, b.cache)

	_, err = b.Describe(context.Background(), res)
	require.NoError(t, err)
	_, err = b.Describe(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, 4, runner.calls)
	assert.Empty(t, b.cache)
}

func TestBackend_NewLoginRunsExtractorAgain(t *testing.T) {
	store := session.NewStore()
	runner := &fakeRunner{out: sampleInfo}
	b := newTestBackend(runner, store)
	res := model.Resource{Kind: model.ResourceVideo, ID: "BV1abc"}
	ctx := model.WithAttempt(context.Background(), "task-1", 1)

	_, err := b.Describe(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, "", runner.cookie)

	store.Publish(session.Session{Authenticated: true, CookieRef: "/auth/cookies.txt"})
	_, err = b.ListStreams(ctx, res, model.ModeVideo, model.QualityAuto)
	require.NoError(t, err)
	assert.Equal(t, 2, runner.calls)
	assert.Equal(t, "/auth/cookies.txt", runner.cookie)
}

func TestBackend_ResolveShortLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xyz", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hop", http.StatusFound)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://www.bilibili.com/video/BV1target?share_source=copy", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/dead", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b := newTestBackend(&fakeRunner{}, nil)
	ctx := context.Background()

	res, err := b.ResolveShortLink(ctx, srv.URL+"/xyz")
	require.NoError(t, err)
	assert.Equal(t, model.ResourceVideo, res.Kind)
	assert.Equal(t, "BV1target", res.ID)

	_, err = b.ResolveShortLink(ctx, srv.URL+"/dead")
	assert.Equal(t, model.ErrorResolution, model.KindOf(err))

	_, err = b.ResolveShortLink(ctx, srv.URL+"/busy")
	assert.Equal(t, model.ErrorRateLimited, model.KindOf(err))
}

func TestPageURL(t *testing.T) {
	assert.Equal(t, "https://www.bilibili.com/video/BV1", PageURL(model.Resource{Kind: model.ResourceVideo, ID: "BV1"}))
	assert.Equal(t, "https://www.bilibili.com/bangumi/play/ep1", PageURL(model.Resource{Kind: model.ResourceBangumi, ID: "ep1"}))
	assert.Equal(t, "https://www.bilibili.com/bangumi/media/md9", PageURL(model.Resource{Kind: model.ResourceBangumi, ID: "md9"}))
	assert.Equal(t, "https://m.bilibili.com/video/BV2", PageURL(model.Resource{Kind: model.ResourceVideo, ID: "BV2", URL: "https://m.bilibili.com/video/BV2"}))
}
