package internal

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// separator between videos in a context block
const nextVideoSeparator = "\n\n--- NEXT VIDEO ---\n\n"

const contextTemplates = `
{{- define "video" -}}
<YOUTUBE_VIDEO>
<VIDEO_TITLE>{{ .Metadata.Title }}</VIDEO_TITLE>
<CHANNEL>{{ .Metadata.Channel }}</CHANNEL>
{{- with .Metadata.PublishedDate }}
<PUBLISHED>{{ . }}</PUBLISHED>
{{- end }}
{{- with .Metadata.ViewCount }}
<VIEWS>{{ . }}</VIEWS>
{{- end }}
{{- with .Metadata.Duration }}
<DURATION>{{ seconds . }}</DURATION>
{{- end }}
<URL>{{ .ID.URL }}</URL>
<VIDEO_ID>{{ .ID.ID }}</VIDEO_ID>
<DESCRIPTION>
{{ .Metadata.Description }}
</DESCRIPTION>
<TRANSCRIPT>
{{ transcript .Transcript }}
</TRANSCRIPT>
</YOUTUBE_VIDEO>
{{- end -}}

{{- define "playlist" -}}
<YOUTUBE_PLAYLIST>
<PLAYLIST_TITLE>{{ .Playlist.Title }}</PLAYLIST_TITLE>
{{- with .Playlist.Channel }}
<CHANNEL>{{ . }}</CHANNEL>
{{- end }}
<URL>{{ .ID.URL }}</URL>
<PLAYLIST_ID>{{ .ID.ID }}</PLAYLIST_ID>
<VIDEO_COUNT>{{ len .Playlist.Videos }}</VIDEO_COUNT>
{{- end -}}
`

// ContextFormatter renders resolved items into the text block handed to the model.
// Output depends only on the items, so the same items always give the same bytes.
type ContextFormatter struct {
	timestamps bool
	tmpl       *template.Template
}

// NewContextFormatter creates a formatter; timestamps keeps [mm:ss] offsets on transcript lines
func NewContextFormatter(timestamps bool) *ContextFormatter {
	f := &ContextFormatter{timestamps: timestamps}
	f.tmpl = template.Must(template.New("context").Funcs(template.FuncMap{
		"transcript": f.transcript,
		"seconds":    formatSeconds,
	}).Parse(contextTemplates))
	return f
}

// Format renders the header and one block per item. No items gives an empty string.
func (f *ContextFormatter) Format(items []ResolvedItem) string {
	if len(items) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(items))
	for _, item := range items {
		blocks = append(blocks, f.item(item))
	}

	videos := countVideos(items)
	noun := "videos"
	if videos == 1 {
		noun = "video"
	}
	return fmt.Sprintf("YouTube Content (%d %s):\n\n%s", videos, noun, strings.Join(blocks, nextVideoSeparator))
}

func (f *ContextFormatter) item(item ResolvedItem) string {
	if item.Err != nil || item.Record == nil {
		return UnavailableMarker(item.ID, item.Err)
	}
	if item.Record.Playlist != nil {
		return f.playlist(item)
	}
	return f.execute("video", item.Record)
}

func (f *ContextFormatter) playlist(item ResolvedItem) string {
	var sb strings.Builder
	sb.WriteString(f.execute("playlist", item.Record))
	for _, child := range item.Children {
		sb.WriteString("\n\n")
		sb.WriteString(f.item(child))
	}
	sb.WriteString("\n</YOUTUBE_PLAYLIST>")
	return sb.String()
}

func (f *ContextFormatter) execute(name string, data any) string {
	var buf bytes.Buffer
	if err := f.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		// only reachable if the built-in templates are broken
		return fmt.Sprintf("[template %s failed: %v]", name, err)
	}
	return buf.String()
}

func (f *ContextFormatter) transcript(t Transcript) string {
	if !f.timestamps {
		return t.Text()
	}
	lines := make([]string, 0, len(t))
	for _, seg := range t {
		lines = append(lines, "["+FormatOffset(seg.Start)+"] "+seg.Text)
	}
	return strings.Join(lines, "\n")
}

// UnavailableMarker is the inline placeholder for content that could not be fetched
func UnavailableMarker(id ContentID, err error) string {
	marker := "[metadata/transcript unavailable for " + id.ID
	if reason := FailureReason(err); reason != "" {
		marker += ": " + reason
	}
	return marker + "]"
}

func formatSeconds(secs float64) string {
	return FormatOffset(time.Duration(secs * float64(time.Second)))
}

// countVideos counts successfully resolved videos, including playlist members
func countVideos(items []ResolvedItem) int {
	n := 0
	for _, item := range items {
		if item.Err != nil || item.Record == nil {
			continue
		}
		if item.Record.Playlist != nil {
			n += countVideos(item.Children)
			continue
		}
		n++
	}
	return n
}
