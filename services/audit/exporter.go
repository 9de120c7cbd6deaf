// Package audit produces signed, compressed archives of engine audit
// events and uploads them for billing and reconciliation consumers.
package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"escrowd/pkg/db"
	"escrowd/pkg/render"
	gos3 "escrowd/pkg/s3"
)

const (
	manifestVersion  = "1"
	presignURLExpiry = 15 * time.Minute
)

// EventRow is one audit record as read from the database and written to
// the archive's events.jsonl.
type EventRow struct {
	EventID   string    `db:"event_id" json:"event_id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Kind      string    `db:"kind" json:"kind"`
	Actor     string    `db:"actor" json:"actor"`
	Amount    uint64    `db:"amount" json:"amount"`
	FeeAmount uint64    `db:"fee_amount" json:"fee_amount"`
	Pathway   string    `db:"pathway" json:"pathway"`
	Reason    string    `db:"reason" json:"reason"`
	At        time.Time `db:"at" json:"at"`
}

// ExportResult describes one uploaded archive.
type ExportResult struct {
	Key         string    `json:"key"`
	DownloadURL string    `json:"download_url"`
	EventCount  int       `json:"event_count"`
	SHA256      string    `json:"sha256"`
	Signature   string    `json:"signature"`
	WindowFrom  time.Time `json:"window_from"`
	WindowTo    time.Time `json:"window_to"`
}

// Exporter builds and uploads audit archives.
type Exporter struct {
	pool     *pgxpool.Pool
	s3       *gos3.Client
	signer   *Signer
	renderer *render.Engine
	bucket   string
	now      func() time.Time
	log      zerolog.Logger
}

// NewExporter wires the exporter. All dependencies are required except the
// renderer, which falls back to a plain-text summary when nil.
func NewExporter(pool *pgxpool.Pool, s3 *gos3.Client, signer *Signer, renderer *render.Engine, bucket string, log zerolog.Logger) (*Exporter, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if s3 == nil {
		return nil, errors.New("s3 client is required")
	}
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}

	return &Exporter{
		pool:     pool,
		s3:       s3,
		signer:   signer,
		renderer: renderer,
		bucket:   bucket,
		now:      time.Now,
		log:      log,
	}, nil
}

// Export archives all audit events in [from, to), uploads the archive, and
// returns a presigned download URL.
func (e *Exporter) Export(ctx context.Context, from, to time.Time) (*ExportResult, error) {
	if !to.After(from) {
		return nil, errors.New("export window must not be empty")
	}

	var rows []EventRow
	err := db.WithTimeout(ctx, 30*time.Second, func(ctx context.Context) error {
		return db.Select(ctx, e.pool, &rows,
			`SELECT event_id, session_id, kind, actor, amount, fee_amount, pathway, reason, at
			 FROM audit_events
			 WHERE at >= $1 AND at < $2
			 ORDER BY at, id`, from, to)
	})
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}

	var events bytes.Buffer
	enc := json.NewEncoder(&events)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("encode event %s: %w", row.EventID, err)
		}
	}

	digest := sha256.Sum256(events.Bytes())
	eventsSHA := hex.EncodeToString(digest[:])
	now := e.now().UTC()

	manifest := Manifest{
		Version:          manifestVersion,
		CreatedAt:        now.Truncate(time.Second),
		WindowFrom:       from.UTC(),
		WindowTo:         to.UTC(),
		EventCount:       len(rows),
		EventsSHA256:     eventsSHA,
		Signer:           e.signer.Recipient(),
		SigningPublicKey: e.signer.PublicKeyBase64(),
	}

	payload, err := manifest.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal manifest for signing: %w", err)
	}
	sig, err := e.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign manifest: %w", err)
	}
	manifest.Signature = sig

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	summary, err := e.renderSummary(manifest, rows)
	if err != nil {
		return nil, err
	}

	archive, err := buildArchive(manifestBytes, events.Bytes(), summary, now)
	if err != nil {
		return nil, err
	}

	archiveDigest := sha256.Sum256(archive)
	archiveSHA := hex.EncodeToString(archiveDigest[:])
	key := fmt.Sprintf("audit/%s/escrowd-audit-%s.tar.zst",
		now.Format("2006/01"), now.Format("20060102T150405Z"))

	if err := e.s3.PutObject(ctx, e.bucket, key, bytes.NewReader(archive), int64(len(archive)), archiveSHA); err != nil {
		return nil, fmt.Errorf("upload archive: %w", err)
	}

	url, err := e.s3.PresignGet(ctx, e.bucket, key, presignURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign archive: %w", err)
	}

	e.log.Info().
		Str("key", key).
		Int("events", len(rows)).
		Msg("exported audit archive")

	return &ExportResult{
		Key:         key,
		DownloadURL: url,
		EventCount:  len(rows),
		SHA256:      archiveSHA,
		Signature:   sig,
		WindowFrom:  manifest.WindowFrom,
		WindowTo:    manifest.WindowTo,
	}, nil
}

type summaryData struct {
	Manifest Manifest
	Totals   map[string]uint64
	Refunds  int
}

func (e *Exporter) renderSummary(manifest Manifest, rows []EventRow) ([]byte, error) {
	totals := make(map[string]uint64)
	refunds := 0
	for _, row := range rows {
		if row.Amount > 0 || row.FeeAmount > 0 {
			totals[row.Pathway] += row.Amount + row.FeeAmount
		}
		if row.Kind == "session.refund_processed" {
			refunds++
		}
	}

	if e.renderer == nil {
		return []byte(fmt.Sprintf("escrowd audit export %s: %d events, %d refunds\n",
			manifest.CreatedAt.Format(time.RFC3339), manifest.EventCount, refunds)), nil
	}

	out, err := e.renderer.Render("export_summary.tmpl", summaryData{
		Manifest: manifest,
		Totals:   totals,
		Refunds:  refunds,
	})
	if err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}
	return []byte(out), nil
}
