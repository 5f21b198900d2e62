package internal

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// youtubeLinkRE finds YouTube links in free text. The scheme and www are optional.
// The host must start at a word boundary so lookalike domains such as
// notyoutube.com never match; group 1 is the link itself.
var youtubeLinkRE = regexp.MustCompile(`(?i)(?:^|[^\w.-])((?:https?://)?(?:(?:www|m|music)\.)?(?:youtube\.com|youtube-nocookie\.com|youtu\.be)/[\w\-?=&./%#+~:]*)`)

// idPrefixRE is the part of a path segment or query value that forms an id.
var idPrefixRE = regexp.MustCompile(`^[A-Za-z0-9_-]+`)

var idRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ExtractIDs returns every distinct video and playlist referenced in text,
// in order of first appearance.
func ExtractIDs(text string) []ContentID {
	var ids []ContentID
	seen := make(map[ContentID]struct{})

	for _, m := range youtubeLinkRE.FindAllStringSubmatch(text, -1) {
		id, ok := parseYouTubeLink(m[1])
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids
}

// parseYouTubeLink turns one matched link into an identifier.
// A video id wins over a playlist id on the same link.
func parseYouTubeLink(link string) (ContentID, bool) {
	lower := strings.ToLower(link)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return ContentID{}, false
	}

	host := strings.ToLower(u.Hostname())
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	if host == "youtu.be" {
		if id := leadingID(segments[0]); id != "" {
			return VideoID(id), true
		}
		return ContentID{}, false
	}

	query := u.Query()
	if v := leadingID(query.Get("v")); v != "" {
		return VideoID(v), true
	}

	if len(segments) >= 2 {
		switch strings.ToLower(segments[0]) {
		case "shorts", "embed", "live", "v", "e":
			if id := leadingID(segments[1]); id != "" {
				return VideoID(id), true
			}
		}
	}

	if list := leadingID(query.Get("list")); list != "" {
		return PlaylistID(list), true
	}

	return ContentID{}, false
}

// leadingID trims trailing punctuation picked up from prose.
func leadingID(s string) string {
	return idPrefixRE.FindString(s)
}

// ParseArg normalizes a command line argument: a URL, a bare video id or a bare playlist id
func ParseArg(arg string) (ContentID, error) {
	arg = strings.TrimSpace(arg)
	if ids := ExtractIDs(arg); len(ids) > 0 {
		return ids[0], nil
	}
	if IsValidPlaylistID(arg) {
		return PlaylistID(arg), nil
	}
	if IsValidYouTubeID(arg) {
		return VideoID(arg), nil
	}
	return ContentID{}, fmt.Errorf("'%s' doesn't look like a YouTube URL, video ID or playlist ID", arg)
}

// IsValidYouTubeID checks if a string looks like a valid YouTube video ID
func IsValidYouTubeID(id string) bool {
	// YouTube video IDs are exactly 11 characters long
	return len(id) == 11 && idRE.MatchString(id)
}

// IsValidPlaylistID checks if a string looks like a valid YouTube playlist ID
func IsValidPlaylistID(id string) bool {
	// Common playlist prefixes: PL, UU, FL, RD, etc.
	playlistPrefixes := []string{"PL", "UU", "FL", "RD", "LP", "BP", "QL", "SV", "EL", "LL", "UC"}

	for _, prefix := range playlistPrefixes {
		if strings.HasPrefix(id, prefix) {
			// Standard playlist IDs are 16 or 32 characters after the prefix
			if len(id) == 18 || len(id) == 34 || len(id) == 36 {
				return idRE.MatchString(id)
			}
		}
	}

	// music playlists
	if strings.HasPrefix(id, "OLAK5uy_") || strings.HasPrefix(id, "RDCLAK5uy_") {
		if len(id) == 41 || len(id) == 40 || len(id) == 43 {
			return idRE.MatchString(id)
		}
	}

	return false
}

// IsLikelyCommand reports whether arg is a near miss of one of commands,
// e.g. "transcrip" or "chta". Links, ids and anything with spaces never are.
func IsLikelyCommand(arg string, commands []string) bool {
	if strings.ContainsAny(arg, " ?") || len(ExtractIDs(arg)) > 0 || IsValidYouTubeID(arg) || IsValidPlaylistID(arg) {
		return false
	}
	return len(CommandSuggestions(arg, commands)) > 0
}

// CommandSuggestions returns the commands that arg is a prefix or a one-edit
// typo of. Swapping two adjacent letters counts as one edit.
func CommandSuggestions(arg string, commands []string) []string {
	typed := strings.ToLower(arg)
	var out []string
	for _, name := range commands {
		if name == arg {
			continue
		}
		lower := strings.ToLower(name)
		if (len(typed) >= 2 && strings.HasPrefix(lower, typed)) || (len(typed) >= 3 && editDistance(typed, lower) <= 1) {
			out = append(out, name)
		}
	}
	return out
}

// editDistance is the optimal string alignment distance between a and b
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	d := make([][]int, len(ra)+1)
	for i := range d {
		d[i] = make([]int, len(rb)+1)
		d[i][0] = i
	}
	for j := range d[0] {
		d[0][j] = j
	}
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				d[i][j] = min(d[i][j], d[i-2][j-2]+1)
			}
		}
	}
	return d[len(ra)][len(rb)]
}
