package services

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	urlpkg "net/url"
	"regexp"
	"strings"
	"time"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"
	"github.com/samber/lo"

	"flashdeck-backend/internal/logger"
	"flashdeck-backend/internal/models"
)

const (
	maxAudioBytes = 100 << 20
	browserUA     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Cards default to Japanese, so Japanese captions are tried first.
var defaultCaptionLanguages = []string{"ja", "en", "en-US", "en-GB"}

var errNoCaptions = errors.New("no captions available for this video")

// YouTubeService reads captions, audio and oEmbed metadata of YouTube videos.
type YouTubeService struct {
	httpClient    *http.Client
	transcriptAPI *ytapi.YouTubeTranscriptApi
	ytClient      *yt.Client
	log           *logger.Logger
}

func NewYouTubeService(log *logger.Logger) *YouTubeService {
	return &YouTubeService{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		transcriptAPI: ytapi.NewYouTubeTranscriptApi(),
		ytClient:      &yt.Client{},
		log:           log,
	}
}

// GetTranscript returns the caption text of videoID. It tries the transcript API in
// the preferred languages, then in any language, then the player page caption track.
func (s *YouTubeService) GetTranscript(ctx context.Context, videoID string, languages ...string) (string, error) {
	if len(languages) == 0 {
		languages = defaultCaptionLanguages
	}

	attempts := []struct {
		name  string
		fetch func() (string, error)
	}{
		{"transcript api", func() (string, error) { return s.apiTranscript(videoID, languages) }},
		{"transcript api (any language)", func() (string, error) { return s.apiTranscript(videoID, nil) }},
		{"player page", func() (string, error) { return s.pageTranscript(ctx, videoID, languages) }},
	}

	var errs []error
	for _, a := range attempts {
		text, err := a.fetch()
		if err == nil {
			return text, nil
		}
		s.log.Debug("caption source failed", "video_id", videoID, "source", a.name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", a.name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("no transcript for %s: %w", videoID, errors.Join(errs...))
}

func (s *YouTubeService) apiTranscript(videoID string, languages []string) (string, error) {
	transcript, err := s.transcriptAPI.GetTranscript(videoID, languages)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(transcript.Entries))
	for _, e := range transcript.Entries {
		lines = append(lines, e.Text)
	}
	return joinCaptionLines(lines)
}

// pageTranscript scrapes the caption track list out of the watch page and downloads
// the timedtext XML of the best matching track.
func (s *YouTubeService) pageTranscript(ctx context.Context, videoID string, languages []string) (string, error) {
	page, err := s.get(ctx, "https://www.youtube.com/watch?v="+urlpkg.QueryEscape(videoID), true)
	if err != nil {
		return "", err
	}
	trackURL, err := pickCaptionTrack(string(page), languages)
	if err != nil {
		return "", err
	}
	body, err := s.get(ctx, trackURL, false)
	if err != nil {
		return "", err
	}
	return parseCaptionsXML(body)
}

func (s *YouTubeService) get(ctx context.Context, url string, asBrowser bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if asBrowser {
		req.Header.Set("User-Agent", browserUA)
		req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", req.URL.Host, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var captionTracksPattern = regexp.MustCompile(`"captionTracks"\s*:\s*(\[.*?\])\s*,\s*"`)

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// pickCaptionTrack returns the timedtext URL of the first track matching languages,
// preferring manual captions over auto-generated ones, or the first track otherwise.
func pickCaptionTrack(page string, languages []string) (string, error) {
	m := captionTracksPattern.FindStringSubmatch(page)
	if m == nil {
		return "", errNoCaptions
	}
	var tracks []captionTrack
	if err := json.Unmarshal([]byte(m[1]), &tracks); err != nil {
		return "", fmt.Errorf("decode caption tracks: %w", err)
	}
	tracks = lo.Filter(tracks, func(t captionTrack, _ int) bool { return t.BaseURL != "" })
	if len(tracks) == 0 {
		return "", errNoCaptions
	}

	for _, auto := range []bool{false, true} {
		for _, lang := range languages {
			if t, ok := lo.Find(tracks, func(t captionTrack) bool {
				return (t.Kind == "asr") == auto && strings.EqualFold(t.LanguageCode, lang)
			}); ok {
				return t.BaseURL, nil
			}
		}
	}
	return tracks[0].BaseURL, nil
}

type timedText struct {
	Lines []string `xml:"text"`
}

// parseCaptionsXML flattens a timedtext document into one line of text. Caption
// bodies are HTML escaped a second time inside the XML.
func parseCaptionsXML(data []byte) (string, error) {
	var doc timedText
	if err := xml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse captions: %w", err)
	}
	return joinCaptionLines(lo.Map(doc.Lines, func(l string, _ int) string { return html.UnescapeString(l) }))
}

func joinCaptionLines(lines []string) (string, error) {
	parts := lo.FilterMap(lines, func(l string, _ int) (string, bool) {
		l = strings.Join(strings.Fields(l), " ")
		return l, l != ""
	})
	if len(parts) == 0 {
		return "", errors.New("caption track is empty")
	}
	return strings.Join(parts, " "), nil
}

// DownloadAudio reads the highest bitrate audio-only stream of videoURL, capped at
// maxAudioBytes, and returns it with its MIME type.
func (s *YouTubeService) DownloadAudio(ctx context.Context, videoURL string) ([]byte, string, error) {
	video, err := s.ytClient.GetVideoContext(ctx, videoURL)
	if err != nil {
		return nil, "", fmt.Errorf("load video metadata: %w", err)
	}

	format, ok := bestAudioFormat(video.Formats.WithAudioChannels())
	if !ok {
		return nil, "", errors.New("video has no audio formats")
	}

	stream, _, err := s.ytClient.GetStreamContext(ctx, video, &format)
	if err != nil {
		return nil, "", fmt.Errorf("open audio stream: %w", err)
	}
	defer stream.Close()

	audio, err := io.ReadAll(io.LimitReader(stream, maxAudioBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read audio stream: %w", err)
	}
	if len(audio) > maxAudioBytes {
		return nil, "", &ValidationError{Fields: map[string]string{"url": fmt.Sprintf("audio is larger than %d MB", maxAudioBytes>>20)}}
	}
	return audio, formatMIME(format.MimeType), nil
}

// bestAudioFormat prefers audio-only formats and then the highest bitrate.
func bestAudioFormat(formats yt.FormatList) (yt.Format, bool) {
	if len(formats) == 0 {
		return yt.Format{}, false
	}
	audioOnly := lo.Filter(formats, func(f yt.Format, _ int) bool {
		return strings.HasPrefix(f.MimeType, "audio/")
	})
	if len(audioOnly) > 0 {
		formats = audioOnly
	}
	return lo.MaxBy(formats, func(a, b yt.Format) bool { return a.Bitrate > b.Bitrate }), true
}

func formatMIME(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	if base = strings.TrimSpace(base); base != "" {
		return base
	}
	return "audio/mp4"
}

// FetchMetadata looks the video up on the oEmbed endpoint. Lookup failures are logged
// and leave placeholder title and thumbnail.
func (s *YouTubeService) FetchMetadata(ctx context.Context, videoID string) models.YouTubeMetadata {
	meta := models.YouTubeMetadata{
		VideoID:      videoID,
		Title:        "YouTube Video: " + videoID,
		ThumbnailURL: "https://img.youtube.com/vi/" + videoID + "/maxresdefault.jpg",
	}

	endpoint := "https://www.youtube.com/oembed?format=json&url=" +
		urlpkg.QueryEscape("https://www.youtube.com/watch?v="+videoID)
	body, err := s.get(ctx, endpoint, false)
	if err != nil {
		s.log.Warn("oembed lookup failed", "video_id", videoID, "error", err)
		return meta
	}

	var oembed struct {
		Title        string `json:"title"`
		AuthorName   string `json:"author_name"`
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.Unmarshal(body, &oembed); err != nil {
		s.log.Warn("oembed response unreadable", "video_id", videoID, "error", err)
		return meta
	}
	if oembed.Title != "" {
		meta.Title = oembed.Title
	}
	if oembed.ThumbnailURL != "" {
		meta.ThumbnailURL = oembed.ThumbnailURL
	}
	meta.ChannelName = oembed.AuthorName
	return meta
}

var (
	videoIDShape   = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	videoIDInText  = regexp.MustCompile(`(?:v=|/v/|youtu\.be/|embed/|shorts/|live/)([A-Za-z0-9_-]{11})`)
	pathIDprefixes = []string{"shorts", "embed", "v", "live"}
)

// ExtractVideoID returns the 11 character video id of a YouTube URL, or "".
func ExtractVideoID(raw string) string {
	if u, err := urlpkg.Parse(raw); err == nil {
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		switch {
		case host == "youtu.be":
			if videoIDShape.MatchString(segments[0]) {
				return segments[0]
			}
		case strings.HasSuffix(host, "youtube.com"):
			if v := u.Query().Get("v"); videoIDShape.MatchString(v) {
				return v
			}
			if len(segments) >= 2 && lo.Contains(pathIDprefixes, segments[0]) && videoIDShape.MatchString(segments[1]) {
				return segments[1]
			}
		}
	}

	if m := videoIDInText.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}
