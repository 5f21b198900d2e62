package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimedTextLegacy(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8" ?><transcript>
<text start="0" dur="2.5">hello &amp;amp; welcome</text>
<text start="2.5" dur="1">   </text>
<text start="5.25" dur="3">it&amp;#39;s
a test</text>
</transcript>`

	transcript, err := parseTimedText([]byte(doc))
	require.NoError(t, err)
	require.Len(t, transcript, 2)

	assert.Equal(t, TranscriptSegment{Start: 0, Duration: 2500 * time.Millisecond, Text: "hello & welcome"}, transcript[0])
	assert.Equal(t, 5250*time.Millisecond, transcript[1].Start)
	assert.Equal(t, "it's a test", transcript[1].Text)
}

func TestParseTimedTextSrv3(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8" ?><timedtext format="3"><body>
<p t="1000" d="2000">hi <s ac="0">there</s></p>
<p t="3500" d="1500"><s>second</s><s> line</s></p>
</body></timedtext>`

	transcript, err := parseTimedText([]byte(doc))
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, "hi there", transcript[0].Text)
	assert.Equal(t, time.Second, transcript[0].Start)
	assert.Equal(t, 2*time.Second, transcript[0].Duration)
	assert.Equal(t, "second line", transcript[1].Text)
}

func TestParseTimedTextRejectsUnknownDocument(t *testing.T) {
	_, err := parseTimedText([]byte(`<html><body>consent</body></html>`))
	assert.Error(t, err)

	_, err = parseTimedText([]byte(`not xml at all`))
	assert.Error(t, err)
}

func TestParseSRT(t *testing.T) {
	srt := "1\r\n00:00:00,000 --> 00:00:02,000\r\nhello\r\n\r\n" +
		"2\r\n00:00:02,000 --> 00:00:04,500\r\nhello\r\nworld\r\n\r\n" +
		"3\r\n00:01:05,250 --> 00:01:06,000\r\n<font color=\"#fff\">later</font>\r\n"

	transcript, err := parseSRT(srt)
	require.NoError(t, err)
	require.Len(t, transcript, 3)

	assert.Equal(t, "hello", transcript[0].Text)
	assert.Equal(t, "world", transcript[1].Text, "rolling repeat is dropped")
	assert.Equal(t, 2500*time.Millisecond, transcript[1].Duration)
	assert.Equal(t, time.Minute+5250*time.Millisecond, transcript[2].Start)
	assert.Equal(t, "later", transcript[2].Text)
}

func TestParseSRTEmptyAndInvalid(t *testing.T) {
	transcript, err := parseSRT("")
	require.NoError(t, err)
	assert.Empty(t, transcript)

	_, err = parseSRT("this is not a subtitle file")
	assert.Error(t, err)
}

func TestFormatOffset(t *testing.T) {
	assert.Equal(t, "00:00", FormatOffset(0))
	assert.Equal(t, "00:05", FormatOffset(5*time.Second))
	assert.Equal(t, "01:05", FormatOffset(65*time.Second+900*time.Millisecond))
	assert.Equal(t, "1:02:05", FormatOffset(time.Hour+2*time.Minute+5*time.Second))
}

func TestPickBestTrack(t *testing.T) {
	tracks := []captionTrack{
		{BaseURL: "asr-en", LanguageCode: "en", Kind: "asr"},
		{BaseURL: "de", LanguageCode: "de"},
		{BaseURL: "en", LanguageCode: "en"},
		{BaseURL: "asr-fr", LanguageCode: "fr", Kind: "asr"},
	}

	got, ok := pickBestTrack(tracks, []string{"en"})
	require.True(t, ok)
	assert.Equal(t, "en", got.BaseURL, "manual track beats ASR")

	got, _ = pickBestTrack(tracks, []string{"fr", "en"})
	assert.Equal(t, "en", got.BaseURL, "manual in a later preference beats ASR in an earlier one")

	got, _ = pickBestTrack(tracks, []string{"fr"})
	assert.Equal(t, "asr-fr", got.BaseURL)

	got, _ = pickBestTrack(tracks, []string{"ja"})
	assert.Equal(t, "asr-en", got.BaseURL, "falls back to English")

	got, _ = pickBestTrack([]captionTrack{{BaseURL: "ko", LanguageCode: "ko"}}, []string{"ja"})
	assert.Equal(t, "ko", got.BaseURL)

	_, ok = pickBestTrack(nil, []string{"en"})
	assert.False(t, ok)
}

func TestTranscriptText(t *testing.T) {
	transcript := Transcript{{Text: "one"}, {Text: ""}, {Text: "two"}}
	assert.Equal(t, "one\ntwo", transcript.Text())
}
