package mention

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var statusPath = regexp.MustCompile(`^/([A-Za-z0-9_]{1,15})/status/([0-9]+)`)

// articleSelectors are tried in order; the first that matches any node wins.
var articleSelectors = []string{
	`article[data-testid="tweet"]`,
	`div[data-testid="cellInnerDiv"] article`,
	`article`,
}

// Candidate is a post extracted from a page, before filtering.
type Candidate struct {
	ID     string
	Author string
	URL    string
	Text   string
}

// Skipped describes a post that could not be turned into a candidate.
type Skipped struct {
	Index  int
	Reason string
}

// ExtractPosts returns every post on the page in document order together with
// the posts that had to be dropped.
func ExtractPosts(html, base string) ([]Candidate, []Skipped, error) {
	if strings.TrimSpace(html) == "" {
		return nil, nil, errors.New("empty page html")
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return nil, nil, fmt.Errorf("invalid base url %q", base)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}

	var articles *goquery.Selection
	for _, sel := range articleSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			articles = found
			break
		}
	}
	if articles == nil {
		return nil, nil, nil
	}

	var posts []Candidate
	var skipped []Skipped
	seen := make(map[string]struct{})
	articles.Each(func(i int, s *goquery.Selection) {
		post, reason := parseArticle(s, baseURL)
		if reason != "" {
			skipped = append(skipped, Skipped{Index: i, Reason: reason})
			return
		}
		if _, dup := seen[post.ID]; dup {
			return
		}
		seen[post.ID] = struct{}{}
		posts = append(posts, post)
	})
	return posts, skipped, nil
}

// ExtractMentions converts the mentions page into work units ordered oldest
// first. Posts authored by handle (the account running the daemon) are
// dropped so its own replies never become work.
func ExtractMentions(html, base, handle string, now time.Time) ([]WorkUnit, []Skipped, error) {
	posts, skipped, err := ExtractPosts(html, base)
	if err != nil {
		return nil, nil, err
	}
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	units := make([]WorkUnit, 0, len(posts))
	for i := len(posts) - 1; i >= 0; i-- {
		post := posts[i]
		if handle != "" && strings.EqualFold(post.Author, handle) {
			continue
		}
		units = append(units, WorkUnit{
			ID:           post.ID,
			Origin:       post.URL,
			Author:       post.Author,
			Text:         post.Text,
			DiscoveredAt: now,
		})
	}
	return units, skipped, nil
}

// AncestorLinks returns up to limit post URLs that precede focalID on a
// conversation page, nearest ancestor first.
func AncestorLinks(html, base, focalID string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	posts, _, err := ExtractPosts(html, base)
	if err != nil {
		return nil, err
	}
	focal := -1
	for i, post := range posts {
		if post.ID == focalID {
			focal = i
			break
		}
	}
	if focal <= 0 {
		return nil, nil
	}
	links := make([]string, 0, limit)
	for i := focal - 1; i >= 0 && len(links) < limit; i-- {
		links = append(links, posts[i].URL)
	}
	return links, nil
}

func parseArticle(s *goquery.Selection, base *url.URL) (Candidate, string) {
	var post Candidate
	// The permalink is the status link wrapping the timestamp.
	link := s.Find("a[href*='/status/'] time").First().Parent()
	if link.Length() == 0 {
		link = s.Find("a[href*='/status/']").First()
	}
	href, ok := link.Attr("href")
	if !ok {
		return post, "no status link"
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return post, "unparseable status link"
	}
	abs := base.ResolveReference(ref)
	m := statusPath.FindStringSubmatch(abs.Path)
	if m == nil {
		return post, "status link without id"
	}
	post.Author = m[1]
	post.ID = m[2]
	post.URL = fmt.Sprintf("%s://%s/%s/status/%s", abs.Scheme, abs.Host, m[1], m[2])

	text := s.Find(`div[data-testid="tweetText"]`).First()
	if text.Length() == 0 {
		text = s.Find(`div[lang]`).First()
	}
	post.Text = normSpace(text.Text())
	// Links inside the text render shortened; keep the hrefs so inline Space
	// URLs survive extraction.
	text.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if h, ok := a.Attr("href"); ok && spaceURLPattern.MatchString(h) && !strings.Contains(post.Text, h) {
			post.Text += " " + h
		}
	})
	return post, ""
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
