package render

import (
	"strings"
	"testing"
	"time"
)

type summaryManifest struct {
	CreatedAt    time.Time
	WindowFrom   time.Time
	WindowTo     time.Time
	EventCount   int
	EventsSHA256 string
}

func TestRenderExportSummary(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	out, err := e.Render("export_summary.tmpl", struct {
		Manifest summaryManifest
		Refunds  int
		Totals   map[string]uint64
	}{
		Manifest: summaryManifest{
			CreatedAt:    at,
			WindowFrom:   at.Add(-24 * time.Hour),
			WindowTo:     at,
			EventCount:   7,
			EventsSHA256: "deadbeef",
		},
		Refunds: 2,
		Totals:  map[string]uint64{"progressive_release": 4500},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	for _, want := range []string{
		"events:      7",
		"refunds:     2",
		"events_sha:  deadbeef",
		"progressive_release: 4500",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := e.Render("missing.tmpl", nil); err == nil {
		t.Fatal("Render(missing) error = nil, want error")
	}
}
