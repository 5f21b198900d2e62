package internal

import (
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// captionTrack from the player response
type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// pickBestTrack selects the caption track for the given language preferences:
// manual track in a preferred language, then ASR in a preferred language,
// then any English track, then the first one.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	if len(tracks) == 0 {
		return captionTrack{}, false
	}
	for _, lang := range langs {
		for _, t := range tracks {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range tracks {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return tracks[0], true
}

// timedTextDoc accepts both the legacy <transcript> and the srv3 <timedtext> layouts
type timedTextDoc struct {
	XMLName xml.Name
	Texts   []legacyCue `xml:"text"`
	Body    struct {
		Paragraphs []srv3Cue `xml:"p"`
	} `xml:"body"`
}

type legacyCue struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Inner string `xml:",innerxml"`
}

type srv3Cue struct {
	T     string `xml:"t,attr"`
	D     string `xml:"d,attr"`
	Inner string `xml:",innerxml"`
}

var (
	tagRE        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// cleanCueText strips markup, decodes entities (captions are often escaped twice)
// and collapses whitespace
func cleanCueText(inner string) string {
	text := tagRE.ReplaceAllString(inner, "")
	text = html.UnescapeString(html.UnescapeString(text))
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
}

// parseTimedText converts a timedtext XML document into segments in document order
func parseTimedText(data []byte) (Transcript, error) {
	var doc timedTextDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing timedtext XML: %w", err)
	}

	transcript := Transcript{}
	switch doc.XMLName.Local {
	case "transcript":
		for _, cue := range doc.Texts {
			text := cleanCueText(cue.Inner)
			if text == "" {
				continue
			}
			transcript = append(transcript, TranscriptSegment{
				Start:    secondsToDuration(cue.Start),
				Duration: secondsToDuration(cue.Dur),
				Text:     text,
			})
		}
	case "timedtext":
		for _, cue := range doc.Body.Paragraphs {
			text := cleanCueText(cue.Inner)
			if text == "" {
				continue
			}
			transcript = append(transcript, TranscriptSegment{
				Start:    millisToDuration(cue.T),
				Duration: millisToDuration(cue.D),
				Text:     text,
			})
		}
	default:
		return nil, fmt.Errorf("unexpected caption document root <%s>", doc.XMLName.Local)
	}
	return transcript, nil
}

func secondsToDuration(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

func millisToDuration(s string) time.Duration {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

var srtTimingRE = regexp.MustCompile(`(\d+):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d+):(\d{2}):(\d{2})[,.](\d{3})`)

// parseSRT converts SRT subtitles into segments. Rolling auto-caption lines
// that repeat the previous line are dropped.
func parseSRT(content string) (Transcript, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	transcript := Transcript{}
	prevLine := ""
	sawTiming := false

	for block := range strings.SplitSeq(content, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		timingIdx := -1
		for i, line := range lines {
			if srtTimingRE.MatchString(line) {
				timingIdx = i
				break
			}
		}
		if timingIdx < 0 {
			continue
		}
		sawTiming = true

		m := srtTimingRE.FindStringSubmatch(lines[timingIdx])
		start := srtTimestamp(m[1], m[2], m[3], m[4])
		end := srtTimestamp(m[5], m[6], m[7], m[8])

		var kept []string
		for _, line := range lines[timingIdx+1:] {
			line = cleanCueText(line)
			if line == "" || line == prevLine {
				continue
			}
			kept = append(kept, line)
			prevLine = line
		}
		if len(kept) == 0 {
			continue
		}

		transcript = append(transcript, TranscriptSegment{
			Start:    start,
			Duration: max(end-start, 0),
			Text:     strings.Join(kept, " "),
		})
	}

	if !sawTiming && strings.TrimSpace(content) != "" {
		return nil, errors.New("no SRT cues found")
	}
	return transcript, nil
}

func srtTimestamp(h, m, s, ms string) time.Duration {
	hi, _ := strconv.Atoi(h)
	mi, _ := strconv.Atoi(m)
	si, _ := strconv.Atoi(s)
	msi, _ := strconv.Atoi(ms)
	return time.Duration(hi)*time.Hour + time.Duration(mi)*time.Minute +
		time.Duration(si)*time.Second + time.Duration(msi)*time.Millisecond
}

// FormatOffset renders a segment offset as m:ss or h:mm:ss
func FormatOffset(d time.Duration) string {
	total := int(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
