package perception

import (
	"testing"

	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

const sampleHTML = `
<html>
<head><title>  Example Page  </title></head>
<body>
	<h1>Hello   World</h1>
	<a href="/about">About</a>
	<a href="https://example.com/contact">Contact Us</a>
	<a href="#section">Skip anchor</a>
	<a href="mailto:hi@example.com">Email</a>
	<a href="javascript:void(0)">JS link</a>
</body>
</html>`

func TestParseSnapshot_ExtractsTitleTextAndLinks(t *testing.T) {
	snap := ParseSnapshot(coretypes.PageId("p1"), "body", "full", sampleHTML)

	if snap.Title != "Example Page" {
		t.Errorf("Title = %q, want %q", snap.Title, "Example Page")
	}
	if snap.Text == "" || !contains(snap.Text, "Hello World") {
		t.Errorf("Text = %q, want it to contain normalized %q", snap.Text, "Hello World")
	}

	wantHrefs := map[string]bool{"/about": true, "https://example.com/contact": true}
	if len(snap.Links) != 2 {
		t.Fatalf("len(Links) = %d, want 2 (anchor/mailto/javascript hrefs excluded), got %+v", len(snap.Links), snap.Links)
	}
	for _, l := range snap.Links {
		if !wantHrefs[l.Href] {
			t.Errorf("unexpected link href %q", l.Href)
		}
	}
}

func TestParseSnapshot_InvalidHTMLDoesNotPanic(t *testing.T) {
	snap := ParseSnapshot(coretypes.PageId("p1"), "body", "full", "<<<not html")
	if snap.Page != coretypes.PageId("p1") {
		t.Errorf("Page = %q", snap.Page)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (haystack == needle || indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
