package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/mediaporter/internal/model"
)

func TestResolve_Shapes(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind model.ResourceKind
		id   string
	}{
		{"video", "https://www.bilibili.com/video/BV1xx411c7mD", model.ResourceVideo, "BV1xx411c7mD"},
		{"video with query", "https://www.bilibili.com/video/BV1?p=2&spm=x", model.ResourceVideo, "BV1"},
		{"mobile host", "https://m.bilibili.com/video/av170001/", model.ResourceVideo, "av170001"},
		{"share path", "https://www.bilibili.com/s/video/BV9", model.ResourceVideo, "BV9"},
		{"episode", "https://www.bilibili.com/bangumi/play/ep123", model.ResourceBangumi, "ep123"},
		{"season", "https://www.bilibili.com/bangumi/play/ss456/", model.ResourceBangumi, "ss456"},
		{"media page", "https://www.bilibili.com/bangumi/media/md789", model.ResourceBangumi, "md789"},
		{"movie", "https://www.bilibili.com/movie/100", model.ResourceMovie, "100"},
		{"festival", "https://www.bilibili.com/festival/2024bnj?bvid=BV1", model.ResourceVideo, "2024bnj"},
		{"media list", "https://www.bilibili.com/medialist/play/ml123", model.ResourceVideo, "ml123"},
		{"list", "https://www.bilibili.com/list/456?bvid=BV2", model.ResourceVideo, "456"},
		{"share bangumi play", "https://www.bilibili.com/s/bangumi/play/ep7", model.ResourceBangumi, "ep7"},
		{"share bangumi", "https://www.bilibili.com/s/bangumi/ss8", model.ResourceBangumi, "ss8"},
		{"course", "https://www.bilibili.com/cheese/play/ep99", model.ResourceBangumi, "ep99"},
		{"anime", "https://www.bilibili.com/anime/28", model.ResourceBangumi, "28"},
		{"bare episode", "https://m.bilibili.com/ep123", model.ResourceBangumi, "ep123"},
		{"bare season", "https://m.bilibili.com/ss456/", model.ResourceBangumi, "ss456"},
		{"short link", "https://b23.tv/xyz", model.ResourceShortLink, "xyz"},
		{"wrapped in text", "look【https://b23.tv/abc】", model.ResourceShortLink, "abc"},
		{"full width", "https：／／www．bilibili．com／video／BV7", model.ResourceVideo, "BV7"},
		{"upper case scheme", "HTTPS://WWW.BILIBILI.COM/VIDEO/BVx", model.ResourceVideo, "BVx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Resolve(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, parsed.Resource.Kind)
			assert.Equal(t, tt.id, parsed.Resource.ID)
			assert.Empty(t, parsed.CustomName)
		})
	}
}

func TestResolve_Malformed(t *testing.T) {
	lines := []string{
		"not a url",
		"https://example.com/video/BV1",
		"https://www.bilibili.com/read/cv1",
		"https://www.bilibili.com/",
		"https://b23.tv/",
		"https://www.bilibili.com/video/",
		"https://www.bilibili.com/ep",
		"https://www.bilibili.com/festival/",
		"|| only a name",
	}
	for _, line := range lines {
		_, err := Resolve(line)
		require.Error(t, err, line)
		assert.True(t, errors.Is(err, model.ErrMalformed), line)
		assert.Equal(t, model.ErrorMalformed, model.KindOf(err), line)
	}
}

func TestResolve_CustomName(t *testing.T) {
	parsed, err := Resolve("https://www.bilibili.com/video/BV1 || MySong")
	require.NoError(t, err)
	assert.Equal(t, "MySong", parsed.CustomName)

	parsed, err = Resolve("https://www.bilibili.com/video/BV1 || a:b*?<>|")
	require.NoError(t, err)
	assert.Equal(t, "a_b_", parsed.CustomName)

	// splits on the first separator only
	parsed, err = Resolve("https://www.bilibili.com/video/BV1||part||two")
	require.NoError(t, err)
	assert.Equal(t, "part_two", parsed.CustomName)

	// empty after sanitization falls back to the identifier
	parsed, err = Resolve("https://www.bilibili.com/bangumi/play/ep5 || ???")
	require.NoError(t, err)
	assert.Equal(t, "bangumi_ep5", parsed.CustomName)
}

func TestResolve_Idempotent(t *testing.T) {
	line := "  https://b23.tv/xyz || Name  "
	a, errA := Resolve(line)
	b, errB := Resolve(line)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestParseBatch_MixedInput(t *testing.T) {
	text := "https://www.bilibili.com/video/BV1 || MySong\nnot a url\n\nhttps://b23.tv/xyz\n"

	tasks, rejected := ParseBatch(text)

	require.Len(t, tasks, 2)
	assert.Equal(t, "MySong", tasks[0].CustomName)
	assert.Equal(t, 1, tasks[0].LineNo)
	assert.Equal(t, model.ResourceShortLink, tasks[1].Resource.Kind)
	assert.Equal(t, 4, tasks[1].LineNo)

	require.Len(t, rejected, 1)
	assert.Equal(t, 2, rejected[0].LineNo)
	assert.Equal(t, "not a url", rejected[0].Line)
	assert.Equal(t, ReasonNoURL, rejected[0].Reason)
}

func TestParseBatch_DuplicatesAreIndependent(t *testing.T) {
	tasks, rejected := ParseBatch("https://b23.tv/a\r\nhttps://b23.tv/a")
	assert.Empty(t, rejected)
	require.Len(t, tasks, 2)
	assert.Equal(t, tasks[0].Resource, tasks[1].Resource)
	assert.NotEqual(t, tasks[0].LineNo, tasks[1].LineNo)
}

func TestClassifyURL(t *testing.T) {
	res, err := ClassifyURL("https://www.bilibili.com/video/BV1Q5?share_source=copy")
	require.NoError(t, err)
	assert.Equal(t, model.Resource{Kind: model.ResourceVideo, ID: "BV1Q5", URL: "https://www.bilibili.com/video/BV1Q5?share_source=copy"}, res)

	_, err = ClassifyURL("https://space.bilibili.com/123")
	assert.ErrorIs(t, err, model.ErrMalformed)
}
