package youtube

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/yplay/yplay/internal/errors"
	"github.com/yplay/yplay/internal/http"
	"github.com/yplay/yplay/internal/model"
	"github.com/yplay/yplay/internal/monitoring"
)

// DefaultBaseURL is the YouTube Data API v3 root.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

const (
	// maxBatch is the API limit for ids per videos.list call and items per page.
	maxBatch = 50
	// maxPlaylistItems bounds how many pages a playlist open may walk.
	maxPlaylistItems = 5000
)

// FlatLister lists a playlist without an API key.
type FlatLister interface {
	FlatPlaylist(ctx context.Context, url string) (*model.Manifest, error)
}

// Client resolves track metadata through the YouTube Data API.
//
// Search and Video need an API key; without one they fail with a
// ResolverUnavailable error. Playlist falls back to a FlatLister (yt-dlp by
// default) when no key is configured.
//
// Requests are rate limited to 10 per second with a burst of 10.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	flat    FlatLister
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the Data API key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithBaseURL points the client at another API root (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithFlatLister replaces the keyless playlist lister.
func WithFlatLister(f FlatLister) Option {
	return func(c *Client) { c.flat = f }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = monitoring.Named(l, "youtube") }
}

// NewClient creates a metadata client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    http.NewClient(),
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		flat:    NewYTDLPFlat(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasAPIKey reports whether API calls are possible.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// Search returns up to limit videos matching query, with durations filled in.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]model.TrackInfo, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	limit = max(1, min(maxBatch, limit))

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("type", "video")
	q.Set("maxResults", strconv.Itoa(limit))
	q.Set("q", query)

	var resp searchResponse
	if err := c.get(ctx, "search", q, &resp); err != nil {
		return nil, err
	}

	out := make([]model.TrackInfo, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.ID.VideoID == "" {
			continue
		}
		info := model.NewTrackInfo(it.ID.VideoID)
		info.Title = it.Snippet.Title
		info.Uploader = it.Snippet.ChannelTitle
		out = append(out, info)
	}

	if err := c.fillDurations(ctx, out); err != nil {
		c.logger.Debug("duration lookup failed", zap.Error(err))
	}
	return out, nil
}

// Video returns metadata for a single video id or URL.
func (c *Client) Video(ctx context.Context, idOrURL string) (model.TrackInfo, error) {
	id := ExtractVideoID(idOrURL)
	if id == "" {
		return model.TrackInfo{}, apperrors.Validation("no video id in %q", idOrURL)
	}
	if err := c.requireKey(); err != nil {
		return model.TrackInfo{}, err
	}

	q := url.Values{}
	q.Set("part", "snippet,contentDetails")
	q.Set("id", id)

	var resp videosResponse
	if err := c.get(ctx, "videos", q, &resp); err != nil {
		return model.TrackInfo{}, err
	}
	if len(resp.Items) == 0 {
		return model.TrackInfo{}, apperrors.NotFound("video %s", id)
	}

	it := resp.Items[0]
	info := model.NewTrackInfo(id)
	info.Title = it.Snippet.Title
	info.Uploader = it.Snippet.ChannelTitle
	if d, ok := model.ParseDuration(it.ContentDetails.Duration); ok {
		info.Duration = &d
	}
	return info, nil
}

// Playlist returns the ordered manifest of a playlist URL.
func (c *Client) Playlist(ctx context.Context, playlistURL string) (*model.Manifest, error) {
	listID := ExtractPlaylistID(playlistURL)
	if listID == "" {
		return nil, apperrors.Validation("no playlist id in %q", playlistURL)
	}
	if !c.HasAPIKey() {
		if c.flat == nil {
			return nil, apperrors.ResolverUnavailable("no API key and no yt-dlp", nil)
		}
		m, err := c.flat.FlatPlaylist(ctx, playlistURL)
		if err != nil {
			return nil, err
		}
		if m.URL == "" {
			m.URL = playlistURL
		}
		return m, nil
	}

	m := &model.Manifest{URL: playlistURL, Title: c.playlistTitle(ctx, listID)}

	pageToken := ""
	for len(m.Tracks) < maxPlaylistItems {
		q := url.Values{}
		q.Set("part", "snippet,contentDetails")
		q.Set("playlistId", listID)
		q.Set("maxResults", strconv.Itoa(maxBatch))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var resp playlistItemsResponse
		if err := c.get(ctx, "playlistItems", q, &resp); err != nil {
			return nil, err
		}
		for _, it := range resp.Items {
			id := it.ContentDetails.VideoID
			if id == "" {
				id = it.Snippet.ResourceID.VideoID
			}
			if id == "" || isUnavailableTitle(it.Snippet.Title) {
				continue
			}
			info := model.NewTrackInfo(id)
			info.Title = it.Snippet.Title
			info.Uploader = it.Snippet.VideoOwnerChannelTitle
			m.Tracks = append(m.Tracks, info)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if err := c.fillDurations(ctx, m.Tracks); err != nil {
		c.logger.Debug("duration lookup failed", zap.Error(err))
	}
	return m, nil
}

func (c *Client) playlistTitle(ctx context.Context, listID string) string {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", listID)

	var resp playlistsResponse
	if err := c.get(ctx, "playlists", q, &resp); err != nil || len(resp.Items) == 0 {
		return ""
	}
	return resp.Items[0].Snippet.Title
}

// fillDurations looks up durations for tracks in batches of 50.
func (c *Client) fillDurations(ctx context.Context, tracks []model.TrackInfo) error {
	index := make(map[string][]int, len(tracks))
	var ids []string
	for i, t := range tracks {
		if t.Duration != nil {
			continue
		}
		if _, seen := index[t.ID]; !seen {
			ids = append(ids, t.ID)
		}
		index[t.ID] = append(index[t.ID], i)
	}

	for start := 0; start < len(ids); start += maxBatch {
		chunk := ids[start:min(start+maxBatch, len(ids))]
		q := url.Values{}
		q.Set("part", "contentDetails")
		q.Set("id", strings.Join(chunk, ","))
		q.Set("maxResults", strconv.Itoa(maxBatch))

		var resp videosResponse
		if err := c.get(ctx, "videos", q, &resp); err != nil {
			return err
		}
		for _, it := range resp.Items {
			d, ok := model.ParseDuration(it.ContentDetails.Duration)
			if !ok {
				continue
			}
			for _, i := range index[it.ID] {
				dd := d
				tracks[i].Duration = &dd
			}
		}
	}
	return nil
}

func (c *Client) requireKey() error {
	if !c.HasAPIKey() {
		return apperrors.ResolverUnavailable("YouTube Data API key missing; set YT_API_KEY or pass --yt-api-key", nil)
	}
	return nil
}

// get performs one rate limited API call and maps failures onto the error
// taxonomy: 401/403 become ResolverUnavailable, 404 NotFound, transport
// errors ResolverUnavailable.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	q.Set("key", c.apiKey)
	u := c.baseURL + "/" + endpoint + "?" + q.Encode()

	start := time.Now()
	err := c.http.GetJSON(ctx, u, v)
	status := "success"
	if err != nil {
		status = "error"
	}
	monitoring.RecordAPIRequest(endpoint, status, time.Since(start))

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var se *http.StatusError
	if stderrors.As(err, &se) {
		msg := apiMessage(se.Body)
		switch se.StatusCode {
		case 401, 403:
			return apperrors.ResolverUnavailable(fmt.Sprintf("%s: %s", endpoint, msg), err)
		case 404:
			return apperrors.NotFound("%s: %s", endpoint, msg)
		}
		return apperrors.ResolverUnavailable(fmt.Sprintf("%s: HTTP %d %s", endpoint, se.StatusCode, msg), err)
	}
	return apperrors.ResolverUnavailable(endpoint+": request failed", err)
}

func apiMessage(body []byte) string {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Message != "" {
		return ae.Error.Message
	}
	return strings.TrimSpace(string(body))
}

func isUnavailableTitle(title string) bool {
	return title == "Deleted video" || title == "Private video"
}
