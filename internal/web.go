package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	youtubeBaseURL = "https://www.youtube.com"
	browserUA      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	maxPageBytes   = 8 << 20
)

// WebClient fetches metadata, captions and playlists from youtube.com over plain HTTPS
type WebClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
	languages  []string
	baseURL    string
	logger     *slog.Logger
	feeds      *gofeed.Parser
	pages      singleflight.Group
}

// WebOption customizes WebClient creation
type WebOption func(*WebClient)

// WithBaseURL points the client at another host (used by tests)
func WithBaseURL(baseURL string) WebOption {
	return func(c *WebClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) WebOption {
	return func(c *WebClient) {
		c.httpClient = client
	}
}

// WithRetry overrides the retry policy
func WithRetry(rc RetryConfig) WebOption {
	return func(c *WebClient) {
		c.retry = rc
	}
}

// NewWebClient creates a client honoring the rate limit, retries, languages and proxy settings
func NewWebClient(config *Config, logger *slog.Logger, opts ...WebOption) (*WebClient, error) {
	if logger == nil {
		logger = discardLogger()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.ProxyURL != "" {
		proxy, err := url.Parse(config.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	c := &WebClient{
		httpClient: &http.Client{Transport: transport, Timeout: config.RequestTimeout},
		limiter:    rate.NewLimiter(limit, max(config.RateBurst, 1)),
		retry:      DefaultRetryConfig(config.Retries),
		languages:  config.Languages,
		baseURL:    youtubeBaseURL,
		logger:     logger,
		feeds:      gofeed.NewParser(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// get performs a rate limited GET with retries and returns the body
func (c *WebClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	return RetryDo(ctx, c.retry, c.logger, func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, withKind(ErrNetwork, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", browserUA)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, withKind(ErrNetwork, err)
		}
		defer resp.Body.Close()

		c.logger.Debug("youtube request",
			slog.String("url", rawURL),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", time.Since(start)))

		if resp.StatusCode != http.StatusOK {
			return nil, statusError(resp.StatusCode, rawURL)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
		if err != nil {
			return nil, withKind(ErrNetwork, fmt.Errorf("reading response: %w", err))
		}
		return body, nil
	})
}

// playerResponse is the subset of ytInitialPlayerResponse we read
type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	VideoDetails struct {
		VideoID          string `json:"videoId"`
		Title            string `json:"title"`
		Author           string `json:"author"`
		ShortDescription string `json:"shortDescription"`
		LengthSeconds    string `json:"lengthSeconds"`
		ViewCount        string `json:"viewCount"`
	} `json:"videoDetails"`
	Microformat struct {
		PlayerMicroformatRenderer struct {
			PublishDate      string `json:"publishDate"`
			OwnerChannelName string `json:"ownerChannelName"`
		} `json:"playerMicroformatRenderer"`
	} `json:"microformat"`
	Captions struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

// watchPage is a fetched watch page and its decoded player response
type watchPage struct {
	html   []byte
	player *playerResponse
}

var playerResponseMarker = []byte("ytInitialPlayerResponse")

// extractPlayerResponse decodes the JSON object assigned to ytInitialPlayerResponse
func extractPlayerResponse(page []byte) (*playerResponse, error) {
	idx := bytes.Index(page, playerResponseMarker)
	if idx < 0 {
		return nil, errors.New("player response not found")
	}
	rest := page[idx+len(playerResponseMarker):]
	brace := bytes.IndexByte(rest, '{')
	if brace < 0 {
		return nil, errors.New("player response not found")
	}

	var pr playerResponse
	if err := json.NewDecoder(bytes.NewReader(rest[brace:])).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decoding player response: %w", err)
	}
	return &pr, nil
}

// watch fetches the watch page once per video even when metadata and
// captions are requested concurrently
func (c *WebClient) watch(ctx context.Context, videoID string) (*watchPage, error) {
	return shareFetch(ctx, &c.pages, videoID, func(ctx context.Context) (*watchPage, error) {
		body, err := c.get(ctx, c.baseURL+"/watch?v="+url.QueryEscape(videoID)+"&hl=en")
		if err != nil {
			return nil, err
		}
		page := &watchPage{html: body}
		pr, err := extractPlayerResponse(body)
		if err != nil {
			c.logger.Debug("no player response in watch page", slog.String("id", videoID), slog.Any("err", err))
		} else {
			page.player = pr
		}
		return page, nil
	})
}

// unavailable reports a playability status that means the video can't be served
func (pr *playerResponse) unavailable() bool {
	switch pr.PlayabilityStatus.Status {
	case "ERROR", "UNPLAYABLE":
		return pr.VideoDetails.Title == ""
	}
	return false
}

// VideoMetadata scrapes title, channel, description and stats from the watch page
func (c *WebClient) VideoMetadata(ctx context.Context, videoID string) (*VideoMetadata, error) {
	page, err := c.watch(ctx, videoID)
	if err != nil {
		return nil, err
	}

	metadata := &VideoMetadata{ID: videoID, URL: VideoID(videoID).URL()}

	if pr := page.player; pr != nil {
		if pr.unavailable() {
			return nil, notFoundf("video %s unavailable: %s", videoID, pr.PlayabilityStatus.Reason)
		}
		d := pr.VideoDetails
		metadata.Title = d.Title
		metadata.Channel = d.Author
		metadata.Description = d.ShortDescription
		metadata.ViewCount, _ = strconv.ParseInt(d.ViewCount, 10, 64)
		if secs, err := strconv.ParseFloat(d.LengthSeconds, 64); err == nil {
			metadata.Duration = secs
		}
		mf := pr.Microformat.PlayerMicroformatRenderer
		metadata.PublishedDate = publishedDay(mf.PublishDate)
		if metadata.Channel == "" {
			metadata.Channel = mf.OwnerChannelName
		}
	}

	if metadata.Title == "" || metadata.Channel == "" || metadata.Description == "" {
		if err := fillFromMetaTags(page.html, metadata); err != nil {
			c.logger.Debug("parsing watch page html", slog.String("id", videoID), slog.Any("err", err))
		}
	}

	if metadata.Title == "" {
		if page.player != nil && page.player.PlayabilityStatus.Status == "LOGIN_REQUIRED" {
			return nil, withKind(ErrNetwork, fmt.Errorf("youtube requires sign-in for %s: %s", videoID, page.player.PlayabilityStatus.Reason))
		}
		return nil, notFoundf("video %s not found", videoID)
	}

	return metadata, nil
}

// fillFromMetaTags reads the HTML meta tags for whatever the player response lacked
func fillFromMetaTags(page []byte, metadata *VideoMetadata) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return err
	}

	meta := func(selector string) string {
		return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
	}

	if metadata.Title == "" {
		metadata.Title = meta(`meta[name="title"]`)
		if metadata.Title == "" {
			metadata.Title = meta(`meta[property="og:title"]`)
		}
	}
	if metadata.Description == "" {
		metadata.Description = meta(`meta[name="description"]`)
	}
	if metadata.Channel == "" {
		metadata.Channel = meta(`span[itemprop="author"] link[itemprop="name"]`)
		if metadata.Channel == "" {
			metadata.Channel = meta(`link[itemprop="name"]`)
		}
	}
	if metadata.PublishedDate == "" {
		metadata.PublishedDate = publishedDay(meta(`meta[itemprop="datePublished"]`))
	}
	if metadata.ViewCount == 0 {
		metadata.ViewCount, _ = strconv.ParseInt(meta(`meta[itemprop="interactionCount"]`), 10, 64)
	}
	return nil
}

// publishedDay trims an ISO timestamp to its date
func publishedDay(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[4] == '-' && s[7] == '-' {
		return s[:10]
	}
	return s
}

// Transcript downloads the best caption track of a video
func (c *WebClient) Transcript(ctx context.Context, videoID string) (Transcript, error) {
	page, err := c.watch(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if page.player == nil {
		return nil, withKind(ErrNetwork, fmt.Errorf("watch page for %s has no player response", videoID))
	}
	if page.player.unavailable() {
		return nil, notFoundf("video %s unavailable: %s", videoID, page.player.PlayabilityStatus.Reason)
	}

	tracks := page.player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	track, ok := pickBestTrack(tracks, c.languages)
	if !ok {
		return nil, noCaptionsf("video %s has no captions", videoID)
	}

	trackURL, err := c.resolveTrackURL(track.BaseURL)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, trackURL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, noCaptionsf("caption track for %s is gone: %v", videoID, err)
		}
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, withKind(ErrNetwork, fmt.Errorf("empty caption document for %s", videoID))
	}

	transcript, err := parseTimedText(body)
	if err != nil {
		return nil, withKind(ErrNetwork, fmt.Errorf("parsing captions for %s: %w", videoID, err))
	}
	return transcript, nil
}

// resolveTrackURL makes relative track URLs absolute and asks for srv3
func (c *WebClient) resolveTrackURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", withKind(ErrNetwork, fmt.Errorf("parsing caption URL: %w", err))
	}
	if !u.IsAbs() {
		base, err := url.Parse(c.baseURL)
		if err != nil {
			return "", err
		}
		u = base.ResolveReference(u)
	}
	q := u.Query()
	q.Set("fmt", "srv3")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PlaylistMetadata lists a playlist's videos from its Atom feed
func (c *WebClient) PlaylistMetadata(ctx context.Context, playlistID string) (*PlaylistMetadata, error) {
	body, err := c.get(ctx, c.baseURL+"/feeds/videos.xml?playlist_id="+url.QueryEscape(playlistID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFoundf("playlist %s not found", playlistID)
		}
		return nil, err
	}

	feed, err := c.feeds.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, withKind(ErrNetwork, fmt.Errorf("parsing playlist feed: %w", err))
	}

	playlist := &PlaylistMetadata{ID: playlistID, Title: feed.Title}
	if len(feed.Authors) > 0 && feed.Authors[0] != nil {
		playlist.Channel = feed.Authors[0].Name
	}

	for _, item := range feed.Items {
		id := feedVideoID(item)
		if id == "" {
			continue
		}
		video := VideoMetadata{
			ID:          id,
			Title:       item.Title,
			Description: feedDescription(item),
			URL:         VideoID(id).URL(),
		}
		if len(item.Authors) > 0 && item.Authors[0] != nil {
			video.Channel = item.Authors[0].Name
		}
		if item.PublishedParsed != nil {
			video.PublishedDate = item.PublishedParsed.UTC().Format(time.DateOnly)
		}
		playlist.Videos = append(playlist.Videos, video)
	}

	return playlist, nil
}

// feedVideoID reads yt:videoId, falling back to the entry link
func feedVideoID(item *gofeed.Item) string {
	if ext, ok := item.Extensions["yt"]; ok {
		if ids := ext["videoId"]; len(ids) > 0 && ids[0].Value != "" {
			return ids[0].Value
		}
	}
	if ids := ExtractIDs(item.Link); len(ids) > 0 && ids[0].Type == ContentTypeVideo {
		return ids[0].ID
	}
	return ""
}

// feedDescription reads media:group/media:description
func feedDescription(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, group := range media["group"] {
			if desc := group.Children["description"]; len(desc) > 0 {
				return strings.TrimSpace(desc[0].Value)
			}
		}
	}
	return strings.TrimSpace(item.Description)
}
