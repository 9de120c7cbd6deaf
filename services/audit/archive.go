package audit

import (
	"archive/tar"
	"bytes"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	manifestFileName = "manifest.yaml"
	eventsFileName   = "events.jsonl"
	summaryFileName  = "summary.txt"
)

// buildArchive assembles the tar.zst export archive in memory. Export
// windows are bounded, so buffering the whole archive is acceptable.
func buildArchive(manifest, events, summary []byte, at time.Time) ([]byte, error) {
	var buf bytes.Buffer

	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create zstd writer: %w", err)
	}

	tw := tar.NewWriter(zw)
	entries := []struct {
		name string
		data []byte
	}{
		{manifestFileName, manifest},
		{eventsFileName, events},
		{summaryFileName, summary},
	}
	for _, entry := range entries {
		hdr := &tar.Header{
			Name:    entry.name,
			Mode:    0o644,
			Size:    int64(len(entry.data)),
			ModTime: at,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("write tar header %s: %w", entry.name, err)
		}
		if _, err := tw.Write(entry.data); err != nil {
			return nil, fmt.Errorf("write tar entry %s: %w", entry.name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zstd: %w", err)
	}

	return buf.Bytes(), nil
}
