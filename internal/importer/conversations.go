package importer

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Napageneral/chatlog/internal/db"
	"github.com/Napageneral/chatlog/internal/export"
	"github.com/Napageneral/chatlog/internal/linearize"
	"github.com/Napageneral/chatlog/internal/metrics"
	"github.com/Napageneral/chatlog/internal/search"
)

const (
	DefaultBatchSize = 1000

	readBufferSize  = 256 * 1024
	maxContextBytes = 160
)

var (
	// ErrInputNotFound is returned before any store mutation when the input file is missing.
	ErrInputNotFound = errors.New("input file not found")
	// ErrStream wraps failures of the top-level array framing, I/O errors and cancellation.
	// Batches committed before the failure stay in the store.
	ErrStream = errors.New("conversation stream failed")
)

type Options struct {
	BatchSize    int // conversations per transaction
	Order        linearize.Order
	TimeFallback linearize.TimeFallback
	Now          func() time.Time
	SkipIndex    bool // leave messages_fts untouched

	Logger   *zap.Logger
	Metrics  *metrics.Ingest
	Progress func(Progress) // called after every committed batch
}

// Progress reports cumulative committed totals after a batch.
type Progress struct {
	Batch         int
	Conversations int
	Messages      int
}

type Result struct {
	Conversations int
	Messages      int
	Skipped       int
	Batches       int
	Indexed       int64
	Duration      time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Order == "" {
		o.Order = linearize.OrderTree
	}
	if o.TimeFallback == "" {
		o.TimeFallback = linearize.FallbackNow
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Ingestor streams conversation records into the store. Its batch buffers live only
// for the duration of one Ingest call and are cleared after every commit.
type Ingestor struct {
	db   *sql.DB
	opts Options

	convs  []linearize.Conversation
	msgs   []linearize.Message
	result Result
}

func New(d *sql.DB, opts Options) *Ingestor {
	return &Ingestor{db: d, opts: opts.withDefaults()}
}

// CheckInput verifies the input exists and is a regular file.
func CheckInput(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("input %s is a directory", path)
	}
	return info, nil
}

// ImportFile ingests the export at path. A missing file fails before the store is touched.
func ImportFile(ctx context.Context, d *sql.DB, path string, opts Options) (Result, error) {
	if _, err := CheckInput(path); err != nil {
		return Result{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	return New(d, opts).Ingest(ctx, f)
}

// Ingest reads a JSON array of conversation records from r. Only one record is held
// in decoded form at a time; committed rows are bounded by BatchSize conversations.
func (in *Ingestor) Ingest(ctx context.Context, r io.Reader) (Result, error) {
	start := time.Now()
	in.reset()

	res, err := in.ingest(ctx, r)
	res.Duration = time.Since(start)
	in.opts.Metrics.ObserveRun(res.Duration, err == nil)
	return res, err
}

func (in *Ingestor) ingest(ctx context.Context, r io.Reader) (Result, error) {
	log := in.opts.Logger
	dec := json.NewDecoder(bufio.NewReaderSize(r, readBufferSize))

	tok, err := dec.Token()
	if err != nil {
		return in.result, fmt.Errorf("%w: read opening token: %w", ErrStream, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return in.result, fmt.Errorf("%w: top-level value must be an array, got %v", ErrStream, tok)
	}

	index := 0
	for dec.More() {
		select {
		case <-ctx.Done():
			return in.result, fmt.Errorf("%w: %w", ErrStream, ctx.Err())
		default:
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return in.result, fmt.Errorf("%w: record %d: %w", ErrStream, index, err)
		}

		in.add(index, raw)
		index++

		if len(in.convs) >= in.opts.BatchSize {
			if err := in.flush(ctx); err != nil {
				return in.result, err
			}
		}
	}

	if _, err := dec.Token(); err != nil {
		return in.result, fmt.Errorf("%w: read closing token: %w", ErrStream, err)
	}

	if err := in.flush(ctx); err != nil {
		return in.result, err
	}

	if !in.opts.SkipIndex {
		n, err := search.Rebuild(ctx, in.db)
		if err != nil {
			return in.result, err
		}
		in.result.Indexed = n
	}

	log.Debug("ingest finished",
		zap.Int("records", index),
		zap.Int("conversations", in.result.Conversations),
		zap.Int("messages", in.result.Messages),
		zap.Int("skipped", in.result.Skipped),
		zap.Int("batches", in.result.Batches),
	)
	return in.result, nil
}

// add linearizes one raw record into the batch buffers. Failures skip the record.
func (in *Ingestor) add(index int, raw json.RawMessage) {
	rec, err := export.DecodeRecord(raw)
	if err == nil {
		var conv linearize.Conversation
		var msgs []linearize.Message
		conv, msgs, err = linearize.Linearize(rec, linearize.Options{
			Order:        in.opts.Order,
			TimeFallback: in.opts.TimeFallback,
			Now:          in.opts.Now,
		})
		if err == nil {
			in.convs = append(in.convs, conv)
			in.msgs = append(in.msgs, msgs...)
			return
		}
	}

	in.result.Skipped++
	in.opts.Metrics.ObserveSkip()
	in.opts.Logger.Warn("skipping conversation record",
		zap.Int("record", index),
		zap.String("context", recordContext(raw)),
		zap.Error(err),
	)
}

// flush upserts the buffered conversations, then their messages, in one transaction.
func (in *Ingestor) flush(ctx context.Context) error {
	if len(in.convs) == 0 {
		return nil
	}

	tx, err := in.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsertConv, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations (id, title, create_time, tags, total_char_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			create_time = excluded.create_time,
			tags = excluded.tags,
			total_char_count = excluded.total_char_count
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare conversation upsert: %w", err)
	}
	defer upsertConv.Close()

	upsertMsg, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, create_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			role = excluded.role,
			content = excluded.content,
			create_time = excluded.create_time
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare message upsert: %w", err)
	}
	defer upsertMsg.Close()

	for _, c := range in.convs {
		if _, err := upsertConv.ExecContext(ctx, c.ID, c.Title, db.FormatTime(c.CreateTime), c.Tags, c.TotalCharCount); err != nil {
			return fmt.Errorf("failed to upsert conversation %s: %w", c.ID, err)
		}
	}
	for _, m := range in.msgs {
		if _, err := upsertMsg.ExecContext(ctx, m.ID, m.ConversationID, m.Role, m.Content, db.FormatTime(m.CreateTime)); err != nil {
			return fmt.Errorf("failed to upsert message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	in.result.Batches++
	in.result.Conversations += len(in.convs)
	in.result.Messages += len(in.msgs)
	in.opts.Metrics.ObserveBatch(len(in.convs), len(in.msgs))
	if in.opts.Progress != nil {
		in.opts.Progress(Progress{
			Batch:         in.result.Batches,
			Conversations: in.result.Conversations,
			Messages:      in.result.Messages,
		})
	}

	clear(in.convs)
	clear(in.msgs)
	in.convs = in.convs[:0]
	in.msgs = in.msgs[:0]
	return nil
}

func (in *Ingestor) reset() {
	in.convs = nil
	in.msgs = nil
	in.result = Result{}
}

// recordContext returns a short prefix of the raw record for log lines.
func recordContext(raw json.RawMessage) string {
	var head struct {
		ID             any `json:"id"`
		ConversationID any `json:"conversation_id"`
		Title          any `json:"title"`
	}
	if json.Unmarshal(raw, &head) == nil && (head.ID != nil || head.ConversationID != nil || head.Title != nil) {
		return fmt.Sprintf("id=%v conversation_id=%v title=%v", head.ID, head.ConversationID, head.Title)
	}
	if len(raw) > maxContextBytes {
		return string(raw[:maxContextBytes]) + "..."
	}
	return string(raw)
}
