package perception

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/cdpadapter"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

// SnapshotReader builds StructuralSnapshots from the adapter's raw DOM
// snapshot, caching the result. HTML parsing reuses the teacher's own
// goquery dependency (internal/parser/links.go's document-walking style),
// trimmed down to the three fields spec.md's StructuralSnapshot actually
// needs: title, visible text, and links.
type SnapshotReader struct {
	adapter *cdpadapter.Adapter
	cache   *SnapshotCache
}

// NewSnapshotReader builds a SnapshotReader backed by adapter, caching
// results in cache.
func NewSnapshotReader(adapter *cdpadapter.Adapter, cache *SnapshotCache) *SnapshotReader {
	return &SnapshotReader{adapter: adapter, cache: cache}
}

// Read returns the StructuralSnapshot for (page, scope, level), consulting
// the cache first.
func (r *SnapshotReader) Read(pageID coretypes.PageId, scope, level string, deadline time.Time) (coretypes.StructuralSnapshot, *apperrors.AdapterError) {
	key := SnapshotFingerprint(pageID.String(), scope, level)

	if cached, ok := r.cache.Get(key); ok {
		if snap, ok := cached.(coretypes.StructuralSnapshot); ok {
			return snap, nil
		}
	}

	html, aerr := r.adapter.DomSnapshot(pageID, deadline)
	if aerr != nil {
		return coretypes.StructuralSnapshot{}, aerr
	}

	snap := ParseSnapshot(pageID, scope, level, html)
	r.cache.Put(key, snap)
	return snap, nil
}

// ParseSnapshot extracts title, visible text and links from raw HTML. It is
// exported separately from Read so tests can exercise parsing without a
// live adapter.
func ParseSnapshot(pageID coretypes.PageId, scope, level, html string) coretypes.StructuralSnapshot {
	snap := coretypes.StructuralSnapshot{
		Page:       pageID,
		Scope:      scope,
		Level:      level,
		CapturedAt: time.Now(),
		HTML:       html,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return snap
	}

	snap.Title = strings.TrimSpace(doc.Find("title").First().Text())
	snap.Text = normalizeWhitespace(doc.Find("body").Text())
	snap.Links = extractLinks(doc)

	return snap
}

func extractLinks(doc *goquery.Document) []coretypes.SnapshotLink {
	var links []coretypes.SnapshotLink

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" || strings.HasPrefix(href, "#") {
			return
		}

		lower := strings.ToLower(strings.TrimSpace(href))
		if strings.HasPrefix(lower, "javascript:") ||
			strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") ||
			strings.HasPrefix(lower, "data:") {
			return
		}

		links = append(links, coretypes.SnapshotLink{
			Href: href,
			Text: normalizeWhitespace(s.Text()),
		})
	})

	return links
}

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
