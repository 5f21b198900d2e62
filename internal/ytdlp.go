package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lrstanley/go-ytdlp"
)

// ytdlpInfo is the subset of yt-dlp's JSON output we read
type ytdlpInfo struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Channel     string      `json:"channel"`
	Uploader    string      `json:"uploader"`
	Description string      `json:"description"`
	Duration    float64     `json:"duration"`
	ViewCount   int64       `json:"view_count"`
	UploadDate  string      `json:"upload_date"`
	WebpageURL  string      `json:"webpage_url"`
	Entries     []ytdlpInfo `json:"entries"`
}

func (info *ytdlpInfo) channel() string {
	if info.Channel != "" {
		return info.Channel
	}
	return info.Uploader
}

// uploadDay turns yt-dlp's YYYYMMDD into YYYY-MM-DD
func uploadDay(s string) string {
	if len(s) == 8 {
		return s[:4] + "-" + s[4:6] + "-" + s[6:]
	}
	return s
}

func (info *ytdlpInfo) videoMetadata() VideoMetadata {
	return VideoMetadata{
		ID:            info.ID,
		Title:         info.Title,
		Channel:       info.channel(),
		Description:   info.Description,
		PublishedDate: uploadDay(info.UploadDate),
		ViewCount:     info.ViewCount,
		Duration:      info.Duration,
		URL:           VideoID(info.ID).URL(),
	}
}

// YTDLP fetches metadata, subtitles and audio with yt-dlp
type YTDLP struct {
	subtitlesDir string
	audioDir     string
	languages    []string
	proxyURL     string
	logger       *slog.Logger

	install   func(context.Context) error
	installMu sync.Mutex
	installed bool
}

// NewYTDLP creates a yt-dlp backed fetcher
func NewYTDLP(config *Config, logger *slog.Logger) *YTDLP {
	if logger == nil {
		logger = discardLogger()
	}
	return &YTDLP{
		subtitlesDir: config.SubtitlesDir,
		audioDir:     config.TempDir,
		languages:    config.Languages,
		proxyURL:     config.ProxyURL,
		logger:       logger,
		install:      installYTDLP,
	}
}

func installYTDLP(ctx context.Context) error {
	_, err := ytdlp.Install(ctx, nil)
	return err
}

// ensureInstalled downloads yt-dlp on first use. A failed install is
// retried by the next call.
func (yt *YTDLP) ensureInstalled(ctx context.Context) error {
	yt.installMu.Lock()
	defer yt.installMu.Unlock()
	if yt.installed {
		return nil
	}
	if err := yt.install(ctx); err != nil {
		return withKind(ErrNetwork, fmt.Errorf("installing yt-dlp: %w", err))
	}
	yt.installed = true
	return nil
}

// run executes a yt-dlp command and classifies failures
func (yt *YTDLP) run(ctx context.Context, dl *ytdlp.Command, target string) (*ytdlp.Result, error) {
	if err := yt.ensureInstalled(ctx); err != nil {
		return nil, err
	}
	if yt.proxyURL != "" {
		dl = dl.Proxy(yt.proxyURL)
	}

	result, err := dl.Run(ctx, target)
	if err != nil {
		stderr := ""
		if result != nil {
			stderr = result.Stderr
		}
		yt.logger.Debug("yt-dlp failed", slog.String("target", target), slog.String("stderr", stderr), slog.Any("err", err))
		return nil, classifyYTDLPError(stderr, err)
	}
	return result, nil
}

var ytdlpNotFoundMarkers = []string{
	"video unavailable",
	"private video",
	"does not exist",
	"has been removed",
	"incomplete youtube id",
	"is not a valid url",
	"http error 404",
	"this playlist type is unviewable",
}

// classifyYTDLPError maps yt-dlp's stderr onto the fetch error kinds
func classifyYTDLPError(stderr string, err error) error {
	lower := strings.ToLower(stderr + " " + err.Error())
	for _, marker := range ytdlpNotFoundMarkers {
		if strings.Contains(lower, marker) {
			return withKind(ErrNotFound, fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr)))
		}
	}
	return withKind(ErrNetwork, fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr)))
}

// VideoMetadata fetches video details
func (yt *YTDLP) VideoMetadata(ctx context.Context, videoID string) (*VideoMetadata, error) {
	dl := ytdlp.New().
		DumpSingleJSON(). // Get all info in JSON format
		NoPlaylist().     // Don't process playlists
		SkipDownload()    // Don't download the actual video

	result, err := yt.run(ctx, dl, VideoID(videoID).URL())
	if err != nil {
		return nil, err
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, withKind(ErrNetwork, fmt.Errorf("parsing video metadata: %w", err))
	}
	if info.ID == "" {
		info.ID = videoID
	}

	metadata := info.videoMetadata()
	return &metadata, nil
}

// PlaylistMetadata lists every video of a playlist without resolving each entry
func (yt *YTDLP) PlaylistMetadata(ctx context.Context, playlistID string) (*PlaylistMetadata, error) {
	dl := ytdlp.New().
		FlatPlaylist().
		DumpSingleJSON().
		SkipDownload()

	result, err := yt.run(ctx, dl, PlaylistID(playlistID).URL())
	if err != nil {
		return nil, err
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, withKind(ErrNetwork, fmt.Errorf("parsing playlist metadata: %w", err))
	}

	playlist := &PlaylistMetadata{
		ID:      playlistID,
		Title:   info.Title,
		Channel: info.channel(),
	}
	for _, entry := range info.Entries {
		if entry.ID == "" {
			continue
		}
		playlist.Videos = append(playlist.Videos, entry.videoMetadata())
	}
	return playlist, nil
}

// Transcript downloads subtitles (manual or automatic) as SRT and parses them
func (yt *YTDLP) Transcript(ctx context.Context, videoID string) (Transcript, error) {
	if err := EnsureDirs(yt.subtitlesDir); err != nil {
		return nil, fmt.Errorf("creating subtitles directory: %w", err)
	}
	// one directory per call so concurrent downloads never see each other's files
	dir, err := os.MkdirTemp(yt.subtitlesDir, videoID+"-")
	if err != nil {
		return nil, fmt.Errorf("creating subtitles directory: %w", err)
	}
	defer os.RemoveAll(dir)

	dl := ytdlp.New().
		WriteSubs().                                   // Enable subtitle writing
		WriteAutoSubs().                               // Enable auto-generated subtitle writing
		SubLangs(strings.Join(yt.languages, ",")).     // Preferred languages
		ConvertSubs("srt").                            // Convert subtitles to SRT format
		SkipDownload().                                // Skip downloading the video
		Output(filepath.Join(dir, "%(id)s"))

	if _, err := yt.run(ctx, dl, VideoID(videoID).URL()); err != nil {
		return nil, err
	}

	path, ok := pickSubtitleFile(dir, videoID, yt.languages)
	if !ok {
		return nil, noCaptionsf("video %s has no subtitles in %s", videoID, strings.Join(yt.languages, ", "))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading SRT file: %w", err)
	}

	transcript, err := parseSRT(string(content))
	if err != nil {
		return nil, withKind(ErrNetwork, fmt.Errorf("parsing subtitles for %s: %w", videoID, err))
	}
	return transcript, nil
}

// pickSubtitleFile prefers files in language order, then any SRT for the video
func pickSubtitleFile(dir, videoID string, languages []string) (string, bool) {
	for _, lang := range languages {
		path := filepath.Join(dir, fmt.Sprintf("%s.%s.srt", videoID, lang))
		if FileExists(path) {
			return path, true
		}
	}
	files, err := filepath.Glob(filepath.Join(dir, videoID+"*.srt"))
	if err != nil || len(files) == 0 {
		return "", false
	}
	return files[0], true
}

// Audio downloads the audio track as mp3 and returns its path
func (yt *YTDLP) Audio(ctx context.Context, videoID string) (string, error) {
	if err := EnsureDirs(yt.audioDir); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	dl := ytdlp.New().
		Format("bestaudio"). // Select best audio format
		ExtractAudio().      // Extract audio from video
		AudioFormat("mp3").  // Convert to MP3 format
		AudioQuality("10").  // Set audio quality (0 is best, 10 is worst)
		Output(filepath.Join(yt.audioDir, "%(id)s.%(ext)s"))

	if _, err := yt.run(ctx, dl, VideoID(videoID).URL()); err != nil {
		return "", fmt.Errorf("downloading audio: %w", err)
	}

	return filepath.Join(yt.audioDir, videoID+".mp3"), nil
}
