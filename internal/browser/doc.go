// Package browser drives a Chromium instance over the DevTools protocol and
// exposes the small set of page capabilities the pipeline needs: navigation,
// locating and clicking elements, typing, reading the rendered HTML, and
// observing network requests and responses.
//
// A Session owns one browser tab. The tab is a shared stateful resource, so
// all callers go through Session.Use, which hands out the Page to one caller
// at a time.
package browser
