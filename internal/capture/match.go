package capture

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"spacedub/internal/browser"
)

var playlistMIMETypes = map[string]struct{}{
	"application/vnd.apple.mpegurl": {},
	"application/x-mpegurl":         {},
	"audio/mpegurl":                 {},
	"audio/x-mpegurl":               {},
}

// knownManifestPaths are checked before the full body walk.
var knownManifestPaths = []string{
	"source.location",
	"source.noRedirectPlaybackUrl",
	"playback_url",
}

// IsManifestURL reports whether raw is an absolute http(s) URL whose path
// ends in .m3u8. The query string is ignored.
func IsManifestURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}

// IsPlaylistMIME reports whether mime names an HLS playlist.
func IsPlaylistMIME(mime string) bool {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mime)), ";")
	_, ok := playlistMIMETypes[strings.TrimSpace(base)]
	return ok
}

// MatchRequest returns the manifest URL carried by req, if any.
func MatchRequest(req browser.Request) string {
	if IsManifestURL(req.URL) {
		return req.URL
	}
	return ""
}

// MatchResponse returns the manifest URL carried by resp and where it was
// found: the response URL itself, or a URL nested in a JSON body.
func MatchResponse(resp browser.Response) (string, Source) {
	if IsManifestURL(resp.URL) || (IsPlaylistMIME(resp.MIMEType) && resp.URL != "") {
		return resp.URL, SourceResponse
	}
	if len(resp.Body) > 0 {
		if found := ScanJSON(resp.Body); found != "" {
			return found, SourceResponseBody
		}
	}
	return "", ""
}

// ScanJSON returns the first manifest URL embedded anywhere in body.
func ScanJSON(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range knownManifestPaths {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && IsManifestURL(v.Str) {
			return v.Str
		}
	}
	return walk(gjson.ParseBytes(body))
}

func walk(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		if IsManifestURL(v.Str) {
			return v.Str
		}
	case v.IsObject() || v.IsArray():
		var found string
		v.ForEach(func(_, child gjson.Result) bool {
			found = walk(child)
			return found == ""
		})
		return found
	}
	return ""
}
