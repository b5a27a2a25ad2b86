package leaderboard

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"spacedub/internal/services"
)

// Entry is one leaderboard row. Counts are nil when the page omits them.
type Entry struct {
	ID string `json:"id"`

	HostName          string `json:"host_name,omitempty"`
	HostHandle        string `json:"host_handle,omitempty"`
	HostProfileURL    string `json:"host_profile_url,omitempty"`
	HostImageURL      string `json:"host_image_url,omitempty"`
	HostFollowerCount *int   `json:"host_follower_count"`

	SpaceTitle       string `json:"space_title"`
	SpaceDetailsURL  string `json:"space_details_url,omitempty"`
	LanguageFlagURL  string `json:"space_language_flag_url,omitempty"`
	Ended            string `json:"space_ended,omitempty"`
	SpeakersCount    *int   `json:"space_speakers_count"`
	SpeakerFollowers *int   `json:"space_speaker_followers"`
	Duration         string `json:"space_duration,omitempty"`

	ListenerCount     *int     `json:"listener_count"`
	DirectPlayURL     string   `json:"direct_play_url,omitempty"`
	Topics            []string `json:"topics"`
	SpeakerAvatarURLs []string `json:"speaker_avatar_urls"`
}

// Result is the outcome of parsing one page.
type Result struct {
	Entries  []Entry
	Strategy string
	Rows     int
	Skipped  []RowError
}

// RowError explains why a row was dropped.
type RowError struct {
	Row    int
	Reason string
}

// rowStrategies are tried most specific first; the first one that matches
// any row is used for the whole page.
var rowStrategies = []struct {
	name     string
	selector string
}{
	{name: "desktop-rows", selector: `tbody.bg-white.divide-y tr.hidden[class~="md:table-row"]`},
	{name: "tbody-rows", selector: `tbody tr`},
	{name: "table-rows", selector: `table tr`},
}

var (
	numberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?(?:\s*[kKmM]\b)?`)
	months        = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

	errNoTitle = errors.New("space title link missing")
)

// Parse extracts up to limit unique entries from html. Relative links are
// resolved against base. Rows that cannot be read are skipped and reported.
func Parse(html, base string, limit int) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}, fmt.Errorf("parse leaderboard html: %w", err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return Result{}, fmt.Errorf("parse leaderboard base url: %w", err)
	}

	var (
		rows     *goquery.Selection
		strategy string
	)
	for _, candidate := range rowStrategies {
		found := doc.Find(candidate.selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.Find("td").Length() > 0
		})
		if found.Length() > 0 {
			rows, strategy = found, candidate.name
			break
		}
	}
	if rows == nil {
		return Result{}, services.Wrap(services.ErrElementNotFound, "", "leaderboard", "no table rows found with any selector strategy", nil)
	}

	result := Result{Strategy: strategy, Rows: rows.Length()}
	seen := make(map[string]struct{})
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		if limit > 0 && len(result.Entries) >= limit {
			return false
		}
		entry, err := parseRow(row, baseURL)
		if err != nil {
			result.Skipped = append(result.Skipped, RowError{Row: i + 1, Reason: err.Error()})
			return true
		}
		if _, dup := seen[entry.ID]; dup {
			return true
		}
		seen[entry.ID] = struct{}{}
		result.Entries = append(result.Entries, entry)
		return true
	})
	return result, nil
}

func parseRow(row *goquery.Selection, base *url.URL) (Entry, error) {
	entry := Entry{Topics: []string{}, SpeakerAvatarURLs: []string{}}

	host := row.Find("td:nth-child(1)")
	entry.HostName = text(host.Find("div.ml-4 div.text-sm.font-medium a").First())
	handleLink := host.Find("div.ml-4 div.text-sm.text-gray-500 a").First()
	entry.HostHandle = text(handleLink)
	entry.HostProfileURL = attr(handleLink, "href", base)
	entry.HostImageURL = attr(host.Find("a img").First(), "src", base)
	entry.HostFollowerCount = parseCount(text(host.Find("span.bg-blue-100").First()))

	space := row.Find("td:nth-child(2)")
	titleLink := space.Find("div.text-md a").First()
	entry.SpaceTitle = text(titleLink)
	entry.SpaceDetailsURL = attr(titleLink, "href", base)
	if entry.SpaceTitle == "" && entry.SpaceDetailsURL == "" {
		return Entry{}, errNoTitle
	}

	details := space.Find("div.text-sm.text-gray-400 span")
	entry.LanguageFlagURL = attr(details.First().Find("img").First(), "src", base)
	details.Each(func(_ int, span *goquery.Selection) {
		value := text(span)
		switch {
		case value == "":
		case strings.Contains(value, "Ended:"):
			entry.Ended = strings.TrimSpace(strings.TrimPrefix(value, "Ended:"))
		case strings.Contains(value, "Speaker followers:"):
			entry.SpeakerFollowers = parseCount(value)
		case strings.Contains(value, "Speakers:"):
			entry.SpeakersCount = parseCount(value)
		case strings.Contains(value, "Duration:"):
			entry.Duration = strings.TrimSpace(strings.TrimPrefix(value, "Duration:"))
		case entry.Ended == "" && containsMonth(value):
			entry.Ended = value
		}
	})

	entry.ListenerCount = parseCount(text(row.Find("td:nth-child(3) span").First()))
	entry.DirectPlayURL = attr(row.Find(`td:nth-child(5) a[href*="x.com/i/spaces/"]`).First(), "href", base)

	space.Find("div.flex.items-center.flex-wrap a").Each(func(_ int, a *goquery.Selection) {
		if topic := text(a); topic != "" {
			entry.Topics = append(entry.Topics, topic)
		}
	})
	space.Find(`div[class~="lg:block"] div.flex a img`).Each(func(_ int, img *goquery.Selection) {
		if src := attr(img, "src", base); src != "" {
			entry.SpeakerAvatarURLs = append(entry.SpeakerAvatarURLs, src)
		}
	})

	entry.ID = entryID(entry)
	return entry, nil
}

// entryID prefers the details page, then the play link, then handle and title.
func entryID(e Entry) string {
	if e.SpaceDetailsURL != "" {
		return e.SpaceDetailsURL
	}
	if e.DirectPlayURL != "" {
		return e.DirectPlayURL
	}
	return fallback(e.HostHandle, "unknown") + "-" + fallback(e.SpaceTitle, "unknown")
}

// parseCount reads the first number in value, honouring k and m suffixes.
func parseCount(value string) *int {
	match := numberPattern.FindString(value)
	if match == "" {
		return nil
	}
	match = strings.ReplaceAll(strings.TrimSpace(match), ",", "")
	multiplier := 1.0
	switch match[len(match)-1] {
	case 'k', 'K':
		multiplier = 1_000
		match = strings.TrimSpace(match[:len(match)-1])
	case 'm', 'M':
		multiplier = 1_000_000
		match = strings.TrimSpace(match[:len(match)-1])
	}
	number, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	count := int(number*multiplier + 0.5)
	return &count
}

func containsMonth(value string) bool {
	for _, month := range months {
		if strings.Contains(value, month) {
			return true
		}
	}
	return false
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func attr(s *goquery.Selection, name string, base *url.URL) string {
	value, ok := s.Attr(name)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return ""
	}
	ref, err := url.Parse(value)
	if err != nil {
		return value
	}
	return base.ResolveReference(ref).String()
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
