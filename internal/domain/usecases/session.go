package usecases

import (
	"context"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

// State is the lifecycle state of a session.
type State int

const (
	StateIdle State = iota
	StateIngesting
	StateReady
	StateQuerying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIngesting:
		return "ingesting"
	case StateReady:
		return "ready"
	case StateQuerying:
		return "querying"
	default:
		return "unknown"
	}
}

// SessionConfig holds the per-session limits.
type SessionConfig struct {
	RowLimit int // <= 0 loads every row
	TopK     int // similar rows per question
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	SessionID      string
	FileName       string
	State          State
	Progress       entities.Progress
	RowsIndexed    int
	Warnings       int
	EmbeddingModel string
	LastError      error
}

// Session owns the index of the most recently uploaded file and answers
// questions about it. Safe for concurrent use.
type Session struct {
	loader    ports.RowLoader
	indexer   *Indexer
	retriever *Retriever
	chat      *ChatEngine
	cfg       SessionConfig

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	id         string
	name       string
	state      State
	table      *entities.Table
	index      ports.VectorIndex
	progress   entities.Progress
	history    []entities.ChatTurn
	lastErr    error
	inFlight   int
}

// NewSession creates an idle session.
func NewSession(loader ports.RowLoader, indexer *Indexer, retriever *Retriever, chat *ChatEngine, cfg SessionConfig) *Session {
	if cfg.TopK < 1 {
		cfg.TopK = 10
	}
	return &Session{
		loader:    loader,
		indexer:   indexer,
		retriever: retriever,
		chat:      chat,
		cfg:       cfg,
		state:     StateIdle,
	}
}

// Upload replaces the session's file with the CSV read from r and builds its
// index. It blocks until ingestion finishes. An ingestion already running is
// cancelled. On failure the session is Idle and the error wraps
// errs.ErrIngestionFailed.
func (s *Session) Upload(ctx context.Context, name string, r io.Reader) error {
	ctx, gen, _ := s.begin(ctx, name)
	return s.ingest(ctx, gen, name, r)
}

// StartUpload is Upload in the background. It returns the id of the new
// upload and a channel that receives the ingestion result.
func (s *Session) StartUpload(ctx context.Context, name string, r io.Reader) (string, <-chan error) {
	ctx, gen, id := s.begin(ctx, name)
	done := make(chan error, 1)
	go func() {
		done <- s.ingest(ctx, gen, name, r)
	}()
	return id, done
}

func (s *Session) ingest(ctx context.Context, gen uint64, name string, r io.Reader) error {
	start := time.Now()
	log.Info("upload received", "file", name)

	table, err := s.loader.Load(ctx, r, name, s.cfg.RowLimit)
	if err != nil {
		return s.fail(gen, fmt.Errorf("error reading CSV file: %w", err))
	}
	s.update(gen, func() {
		s.table = table
		s.progress = entities.Progress{RowsTotal: len(table.Rows)}
	})

	index, err := s.indexer.Build(ctx, table.Rows, ports.ProgressFunc(func(done, total int) {
		s.update(gen, func() { s.progress = entities.Progress{RowsDone: done, RowsTotal: total} })
	}))
	if err != nil {
		return s.fail(gen, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return errs.InPhase(errs.PhaseIngestion, fmt.Errorf("%w: superseded by a newer upload", errs.ErrIngestionFailed))
	}
	s.finishIngestion()
	s.index = index
	s.state = StateReady
	log.Info("file ready", "file", name, "rows", index.Len(), "warnings", len(table.Warnings), "elapsed", time.Since(start))
	return nil
}

// UploadFile uploads the CSV at path under its base name.
func (s *Session) UploadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		_, gen, _ := s.begin(ctx, filepath.Base(path))
		return s.fail(gen, fmt.Errorf("error reading CSV file: %w: %w", errs.ErrLoad, err))
	}
	defer f.Close()
	return s.Upload(ctx, filepath.Base(path), f)
}

// begin moves the session to Ingesting for a new file, discarding the previous one.
func (s *Session) begin(ctx context.Context, name string) (context.Context, uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		log.Info("cancelling previous ingestion", "file", s.name)
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)

	s.generation++
	s.cancel = cancel
	s.id = uuid.NewString()
	s.name = name
	s.state = StateIngesting
	s.table = nil
	s.index = nil
	s.progress = entities.Progress{}
	s.history = nil
	s.lastErr = nil
	s.inFlight = 0
	return ctx, s.generation, s.id
}

// fail returns the session to Idle unless a newer upload took over.
func (s *Session) fail(gen uint64, cause error) error {
	err := errs.InPhase(errs.PhaseIngestion, fmt.Errorf("%w: %w", errs.ErrIngestionFailed, cause))

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return err
	}
	s.finishIngestion()
	s.index = nil
	s.state = StateIdle
	s.lastErr = err
	log.Error("ingestion failed", "file", s.name, "error", cause)
	return err
}

// finishIngestion releases the ingestion context. Callers hold mu.
func (s *Session) finishIngestion() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// update runs fn under the lock if gen is still the current upload.
func (s *Session) update(gen uint64, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		fn()
	}
}

// acquire snapshots the index for a question and marks the session Querying.
func (s *Session) acquire(question string) (ports.VectorIndex, uint64, error) {
	if strings.TrimSpace(question) == "" {
		return nil, 0, errs.InPhase(errs.PhaseRetrieval, errs.ErrEmptyQuestion)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateIngesting:
		return nil, 0, errs.InPhase(errs.PhaseRetrieval, errs.ErrIngestionInProgress)
	case StateIdle:
		return nil, 0, errs.InPhase(errs.PhaseRetrieval, errs.ErrEmptyIndex)
	}
	s.inFlight++
	s.state = StateQuerying
	return s.index, s.generation, nil
}

// release ends a question started by acquire and records turn when non-nil.
func (s *Session) release(gen uint64, turn *entities.ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	if turn != nil {
		s.history = append(s.history, *turn)
	}
	s.inFlight--
	if s.inFlight <= 0 && s.state == StateQuerying {
		s.inFlight = 0
		s.state = StateReady
	}
}

// Ask answers question from the current file. Failures leave the session Ready.
func (s *Session) Ask(ctx context.Context, question string) (*entities.ChatTurn, error) {
	index, gen, err := s.acquire(question)
	if err != nil {
		return nil, err
	}
	var turn *entities.ChatTurn
	defer func() { s.release(gen, turn) }()

	rows, err := s.retriever.Retrieve(ctx, index, question, s.cfg.TopK)
	if err != nil {
		log.Error("retrieval failed", "error", err)
		return nil, errs.InPhase(errs.PhaseRetrieval, err)
	}

	answer, err := s.chat.Answer(ctx, question, rows)
	if err != nil {
		log.Error("answer generation failed", "error", err)
		return nil, errs.InPhase(errs.PhaseAnswer, err)
	}

	turn = &entities.ChatTurn{
		Question:  question,
		Retrieved: rows,
		Answer:    answer,
		AskedAt:   time.Now(),
	}
	return turn, nil
}

// AskStream retrieves rows for question and streams the answer. The turn is
// recorded in the history once the stream completes successfully.
func (s *Session) AskStream(ctx context.Context, question string) (entities.RetrievalResult, <-chan ports.StreamToken, error) {
	index, gen, err := s.acquire(question)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.retriever.Retrieve(ctx, index, question, s.cfg.TopK)
	if err != nil {
		s.release(gen, nil)
		return nil, nil, errs.InPhase(errs.PhaseRetrieval, err)
	}

	upstream, err := s.chat.AnswerStream(ctx, question, rows)
	if err != nil {
		s.release(gen, nil)
		return nil, nil, errs.InPhase(errs.PhaseAnswer, err)
	}

	out := make(chan ports.StreamToken, cap(upstream))
	go func() {
		defer close(out)
		var turn *entities.ChatTurn
		defer func() { s.release(gen, turn) }()

		var sb strings.Builder
		for tok := range upstream {
			if tok.Error != nil {
				tok.Error = errs.InPhase(errs.PhaseAnswer, tok.Error)
			} else {
				sb.WriteString(tok.Content)
			}
			if tok.Done && tok.Error == nil {
				turn = &entities.ChatTurn{Question: question, Retrieved: rows, Answer: sb.String(), AskedAt: time.Now()}
			}
			select {
			case out <- tok:
			case <-ctx.Done():
				return
			}
			if tok.Done {
				return
			}
		}
	}()
	return rows, out, nil
}

// ID returns the id of the current upload, empty before the first one.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Snapshot returns the current session status.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:      s.id,
		FileName:       s.name,
		State:          s.state,
		Progress:       s.progress,
		EmbeddingModel: s.indexer.Model(),
		LastError:      s.lastErr,
	}
	if s.index != nil {
		snap.RowsIndexed = s.index.Len()
	}
	if s.table != nil {
		snap.Warnings = len(s.table.Warnings)
	}
	return snap
}

// Preview returns the header and first rows of the current file.
func (s *Session) Preview() (header []string, rows [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return nil, nil
	}
	return append([]string(nil), s.table.Header...), append([][]string(nil), s.table.Preview...)
}

// Warnings returns the rows skipped while loading the current file.
func (s *Session) Warnings() []entities.RowWarning {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return nil
	}
	return append([]entities.RowWarning(nil), s.table.Warnings...)
}

// History returns the question/answer turns about the current file.
func (s *Session) History() []entities.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.ChatTurn(nil), s.history...)
}

// Close cancels any running ingestion.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishIngestion()
}
