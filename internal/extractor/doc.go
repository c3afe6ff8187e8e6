package extractor

// Package extractor implements the media backend used by the fetch pipeline.
// Stream discovery is delegated to yt-dlp (via github.com/lrstanley/go-ytdlp);
// short links are followed with plain HTTP; login state comes from the
// account client. yt-dlp output is cached per resource so Describe and
// ListStreams cost one extractor run.
