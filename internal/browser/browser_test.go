package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

func TestLocatorQuery(t *testing.T) {
	cases := []struct {
		loc   Locator
		want  string
		xpath bool
	}{
		{Locator{Kind: ByCSS, Value: `button[data-testid="play"]`}, `button[data-testid="play"]`, false},
		{Locator{Kind: ByText, Value: "Play recording"}, `//*[contains(normalize-space(text()), "Play recording")]`, true},
		{Locator{Kind: ByAria, Value: `Say "hi"`}, `//*[contains(@aria-label, 'Say "hi"')]`, true},
		{Locator{Kind: ByXPath, Value: "//button"}, "//button", true},
	}
	for _, tc := range cases {
		got, xpath := tc.loc.query()
		if got != tc.want || xpath != tc.xpath {
			t.Fatalf("query(%v) = %q,%v want %q,%v", tc.loc, got, xpath, tc.want, tc.xpath)
		}
	}
}

func TestXPathLiteralMixedQuotes(t *testing.T) {
	got := xpathLiteral(`it's "live"`)
	want := `concat("it's ", '"', "live", '"')`
	if got != want {
		t.Fatalf("xpathLiteral = %s want %s", got, want)
	}
}

func TestDispatcherDetachIsIdempotent(t *testing.T) {
	d := newDispatcher(nil)
	var got []string
	detach := d.subscribeRequests(func(r Request) { got = append(got, r.URL) })

	d.handle(&network.EventRequestWillBeSent{Request: &network.Request{URL: "https://a/1.m3u8", Method: "GET"}})
	detach()
	detach()
	d.handle(&network.EventRequestWillBeSent{Request: &network.Request{URL: "https://a/2.m3u8", Method: "GET"}})

	if len(got) != 1 || got[0] != "https://a/1.m3u8" {
		t.Fatalf("unexpected requests %v", got)
	}
}

func TestDispatcherFetchesJSONBodies(t *testing.T) {
	d := newDispatcher(func(id network.RequestID) ([]byte, error) {
		return []byte(`{"id":"` + string(id) + `"}`), nil
	})

	received := make(chan Response, 2)
	detach := d.subscribeResponses(func(r Response) { received <- r })
	defer detach()

	d.handle(&network.EventResponseReceived{
		RequestID: "r1",
		Response:  &network.Response{URL: "https://api/status", MimeType: "application/json", Status: 200},
	})
	d.handle(&network.EventResponseReceived{
		RequestID: "r2",
		Response:  &network.Response{URL: "https://cdn/a.m3u8", MimeType: "application/x-mpegURL", Status: 200},
	})

	select {
	case r := <-received:
		if r.URL != "https://cdn/a.m3u8" || r.Body != nil {
			t.Fatalf("expected playlist response first without body, got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("playlist response not delivered")
	}

	d.handle(&network.EventLoadingFinished{RequestID: "r1"})
	select {
	case r := <-received:
		if string(r.Body) != `{"id":"r1"}` {
			t.Fatalf("unexpected body %q", r.Body)
		}
	case <-time.After(time.Second):
		t.Fatal("json response not delivered")
	}
}

func TestLoadCookiesSkipsInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	data := `[
	  {"name": "auth_token", "value": "abc", "domain": ".x.com", "secure": true, "httpOnly": true, "sameSite": "None", "expires": 1900000000},
	  {"name": "", "value": "x", "domain": ".x.com"},
	  {"name": "ct0", "value": "def", "domain": ""}
	]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cookies, err := LoadCookies(path)
	if err != nil {
		t.Fatalf("LoadCookies: %v", err)
	}
	if len(cookies) != 1 || cookies[0].Name != "auth_token" {
		t.Fatalf("unexpected cookies %+v", cookies)
	}
	params := cookieParams(cookies)
	if params[0].Path != "/" || params[0].SameSite != network.CookieSameSiteNone || params[0].Expires == nil {
		t.Fatalf("unexpected params %+v", params[0])
	}
}

func TestLoadCookiesMissingFile(t *testing.T) {
	cookies, err := LoadCookies(filepath.Join(t.TempDir(), "none.json"))
	if err != nil || cookies != nil {
		t.Fatalf("expected nil, nil got %v %v", cookies, err)
	}
}
