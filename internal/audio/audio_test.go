package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	youtube "github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"github.com/doomhound188/dorte/internal/player"
	"github.com/doomhound188/dorte/internal/queue"
)

type fakeClient struct {
	video     *youtube.Video
	videoErr  error
	streamErr error
	format    *youtube.Format
}

func (c *fakeClient) GetVideoContext(ctx context.Context, url string) (*youtube.Video, error) {
	if c.videoErr != nil {
		return nil, c.videoErr
	}
	return c.video, nil
}

func (c *fakeClient) GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error) {
	c.format = format
	if c.streamErr != nil {
		return nil, 0, c.streamErr
	}
	return io.NopCloser(strings.NewReader("opus")), 4, nil
}

func newTestYouTube(c *fakeClient) *YouTube {
	return &YouTube{client: c, log: zap.NewNop()}
}

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"http://m.youtube.com/watch?v=dQw4w9WgXcQ&t=10",
		" https://music.youtube.com/watch?v=dQw4w9WgXcQ ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ?start=3",
		"https://youtu.be/dQw4w9WgXcQ?si=abc",
	}
	for _, locator := range valid {
		id, err := ValidateURL(locator)
		if err != nil {
			t.Errorf("ValidateURL(%q) failed: %v", locator, err)
			continue
		}
		if id != "dQw4w9WgXcQ" {
			t.Errorf("ValidateURL(%q) = %q, want dQw4w9WgXcQ", locator, id)
		}
	}

	invalid := []string{
		"",
		"never gonna give you up",
		"dQw4w9WgXcQ",
		"https://example.com/watch?v=dQw4w9WgXcQ",
		"ftp://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/",
		"https://www.youtube.com/watch",
		"https://www.youtube.com/channel/UCabc",
		"https://www.youtube.com/results?search_query=hello",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ/x",
		"https://youtu.be/",
		"https://www.youtube.com/playlist?list=PL1234567890",
	}
	for _, locator := range invalid {
		if _, err := ValidateURL(locator); !errors.Is(err, ErrInvalidLocator) {
			t.Errorf("ValidateURL(%q): expected ErrInvalidLocator, got %v", locator, err)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want player.RetrievalKind
	}{
		{"forbidden", youtube.ErrUnexpectedStatusCode(403), player.RetrievalAccessDenied},
		{"wrapped forbidden", fmt.Errorf("fetch: %w", youtube.ErrUnexpectedStatusCode(403)), player.RetrievalAccessDenied},
		{"too many requests", youtube.ErrUnexpectedStatusCode(429), player.RetrievalRateLimited},
		{"server error", youtube.ErrUnexpectedStatusCode(500), player.RetrievalUnknown},
		{"login required", youtube.ErrLoginRequired, player.RetrievalAccessDenied},
		{"private", youtube.ErrVideoPrivate, player.RetrievalAccessDenied},
		{"other", errors.New("connection reset"), player.RetrievalUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var re *player.RetrievalError
			if !errors.As(classify(tt.err), &re) {
				t.Fatalf("Expected RetrievalError")
			}
			if re.Kind != tt.want {
				t.Errorf("Expected kind %v, got %v", tt.want, re.Kind)
			}
			if !errors.Is(re, tt.err) {
				t.Errorf("Expected cause to be preserved")
			}
		})
	}
}

func TestClassifyKeepsRetrievalError(t *testing.T) {
	orig := &player.RetrievalError{Kind: player.RetrievalRateLimited, Err: errors.New("slow down")}
	if got := classify(orig); got != error(orig) {
		t.Errorf("Expected original error back, got %v", got)
	}
}

func TestPickFormat(t *testing.T) {
	formats := youtube.FormatList{
		{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Bitrate: 500000, AudioChannels: 2},
		{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 130000, AudioChannels: 2},
		{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, Bitrate: 160000, AudioChannels: 2},
	}
	if got := pickFormat(formats); got == nil || got.ItagNo != 251 {
		t.Errorf("Expected itag 251, got %+v", got)
	}

	muxed := youtube.FormatList{
		{ItagNo: 137, MimeType: `video/mp4; codecs="avc1"`, Bitrate: 900000},
		{ItagNo: 18, MimeType: `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, Bitrate: 500000, AudioChannels: 2},
	}
	if got := pickFormat(muxed); got == nil || got.ItagNo != 18 {
		t.Errorf("Expected fallback to itag 18, got %+v", got)
	}

	if got := pickFormat(youtube.FormatList{{ItagNo: 137, MimeType: "video/mp4"}}); got != nil {
		t.Errorf("Expected no format, got %+v", got)
	}
}

func TestResolve(t *testing.T) {
	yt := newTestYouTube(&fakeClient{video: &youtube.Video{
		ID:       "dQw4w9WgXcQ",
		Title:    "Never Gonna Give You Up",
		Duration: 213 * time.Second,
	}})

	track, err := yt.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if track.Title != "Never Gonna Give You Up" || track.Duration != 213*time.Second {
		t.Errorf("Unexpected track %+v", track)
	}
	if track.URL != "https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("Expected URL to be kept, got %s", track.URL)
	}

	if _, err := yt.Resolve(context.Background(), "not a link"); !errors.Is(err, ErrInvalidLocator) {
		t.Errorf("Expected ErrInvalidLocator, got %v", err)
	}
}

func TestResolveClassifiesFailure(t *testing.T) {
	yt := newTestYouTube(&fakeClient{videoErr: youtube.ErrUnexpectedStatusCode(429)})

	_, err := yt.Resolve(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	var re *player.RetrievalError
	if !errors.As(err, &re) || re.Kind != player.RetrievalRateLimited {
		t.Fatalf("Expected rate limited RetrievalError, got %v", err)
	}
}

func TestAcquire(t *testing.T) {
	client := &fakeClient{video: &youtube.Video{
		ID: "dQw4w9WgXcQ",
		Formats: youtube.FormatList{
			{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, Bitrate: 160000, AudioChannels: 2},
		},
	}}
	yt := newTestYouTube(client)

	stream, err := yt.Acquire(context.Background(), queue.Track{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer stream.Close()

	if client.format == nil || client.format.ItagNo != 251 {
		t.Errorf("Expected itag 251 to be requested, got %+v", client.format)
	}
	data, _ := io.ReadAll(stream)
	if string(data) != "opus" {
		t.Errorf("Unexpected stream contents %q", data)
	}
}

func TestAcquireFailures(t *testing.T) {
	track := queue.Track{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}

	noAudio := newTestYouTube(&fakeClient{video: &youtube.Video{ID: "dQw4w9WgXcQ"}})
	_, err := noAudio.Acquire(context.Background(), track)
	var re *player.RetrievalError
	if !errors.As(err, &re) || re.Kind != player.RetrievalUnknown {
		t.Errorf("Expected unknown RetrievalError for missing formats, got %v", err)
	}

	denied := newTestYouTube(&fakeClient{
		video: &youtube.Video{Formats: youtube.FormatList{
			{ItagNo: 251, MimeType: "audio/webm", AudioChannels: 2},
		}},
		streamErr: youtube.ErrUnexpectedStatusCode(403),
	})
	_, err = denied.Acquire(context.Background(), track)
	if !errors.As(err, &re) || re.Kind != player.RetrievalAccessDenied {
		t.Errorf("Expected access denied RetrievalError, got %v", err)
	}
}

func TestVoiceReusesConnHandle(t *testing.T) {
	v := NewVoice(nil, 96, nil)
	vc := &discordgo.VoiceConnection{}

	first := v.track(vc)
	if again := v.track(vc); again != first {
		t.Error("Expected the same handle for the same voice connection")
	}
	if other := v.track(&discordgo.VoiceConnection{}); other == first {
		t.Error("Expected a new handle for a different voice connection")
	}

	v.forget(first)
	if fresh := v.track(vc); fresh == first {
		t.Error("Expected a new handle after the old one was closed")
	}
}
