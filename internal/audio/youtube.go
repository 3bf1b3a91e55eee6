package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	youtube "github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"github.com/doomhound188/dorte/internal/player"
	"github.com/doomhound188/dorte/internal/queue"
)

var ErrInvalidLocator = errors.New("a valid YouTube link is required")

var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ValidateURL checks that locator is a YouTube video link and returns its
// video ID. Watch pages carry the ID in the v parameter; youtu.be, shorts,
// embed and live links carry it in the path.
func ValidateURL(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	host := strings.ToLower(u.Host)
	if !youtubeHosts[host] {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	var id string
	switch {
	case host == "youtu.be":
		id = segments[0]
	case len(segments) == 1 && segments[0] == "watch":
		id = u.Query().Get("v")
	case len(segments) >= 2 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "live"):
		id = segments[1]
	}
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q is not a video link", ErrInvalidLocator, locator)
	}
	return id, nil
}

// videoClient is the part of *youtube.Client used here.
type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// YouTube resolves track metadata and opens audio streams.
type YouTube struct {
	client videoClient
	log    *zap.Logger
}

func NewYouTube(timeout time.Duration, log *zap.Logger) *YouTube {
	if log == nil {
		log = zap.NewNop()
	}
	return &YouTube{
		client: &youtube.Client{
			HTTPClient: &http.Client{Timeout: timeout},
		},
		log: log.Named("youtube"),
	}
}

// Resolve fetches title and duration for locator.
func (y *YouTube) Resolve(ctx context.Context, locator string) (queue.Track, error) {
	id, err := ValidateURL(locator)
	if err != nil {
		return queue.Track{}, err
	}
	video, err := y.client.GetVideoContext(ctx, id)
	if err != nil {
		return queue.Track{}, classify(err)
	}
	return queue.Track{
		URL:      locator,
		Title:    video.Title,
		Duration: video.Duration,
	}, nil
}

// Acquire implements player.Source. Stream URLs expire, so the video is
// fetched again rather than reusing what Resolve saw.
func (y *YouTube) Acquire(ctx context.Context, track queue.Track) (io.ReadCloser, error) {
	id, err := ValidateURL(track.URL)
	if err != nil {
		return nil, &player.RetrievalError{Kind: player.RetrievalUnknown, Err: err}
	}
	video, err := y.client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, classify(err)
	}

	format := pickFormat(video.Formats)
	if format == nil {
		return nil, &player.RetrievalError{
			Kind: player.RetrievalUnknown,
			Err:  fmt.Errorf("no audio formats for video %s", id),
		}
	}
	y.log.Debug("opening stream",
		zap.String("video_id", id),
		zap.String("mime_type", format.MimeType),
		zap.Int("bitrate", format.Bitrate))

	stream, _, err := y.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, classify(err)
	}
	return stream, nil
}

// pickFormat prefers audio-only formats and takes the highest bitrate.
func pickFormat(formats youtube.FormatList) *youtube.Format {
	candidates := formats.Type("audio")
	if len(candidates) == 0 {
		candidates = formats.WithAudioChannels()
	}
	var best *youtube.Format
	for i := range candidates {
		if best == nil || candidates[i].Bitrate > best.Bitrate {
			best = &candidates[i]
		}
	}
	return best
}

// classify maps client errors onto retrieval kinds.
func classify(err error) error {
	var re *player.RetrievalError
	if errors.As(err, &re) {
		return err
	}

	kind := player.RetrievalUnknown
	var status youtube.ErrUnexpectedStatusCode
	switch {
	case errors.As(err, &status):
		switch int(status) {
		case http.StatusForbidden, http.StatusUnauthorized:
			kind = player.RetrievalAccessDenied
		case http.StatusTooManyRequests:
			kind = player.RetrievalRateLimited
		}
	case errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrNotPlayableInEmbed):
		kind = player.RetrievalAccessDenied
	}
	return &player.RetrievalError{Kind: kind, Err: err}
}
