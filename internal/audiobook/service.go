// Package audiobook turns documents into spoken audio in the background and
// answers status and catalog queries about the results.
package audiobook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"astra/backend/internal/apperr"
	"astra/backend/internal/database"
	"astra/backend/internal/models"
)

// PageSource returns the raw text of every page of a document, in order.
type PageSource interface {
	Pages(ctx context.Context, path string) ([]string, error)
}

// Publisher copies a finished audiobook to remote storage.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (remoteID string, err error)
	Remove(ctx context.Context, remoteID string) error
}

type Deps struct {
	Documents  database.DocumentStore
	Voices     database.VoiceStore
	Audiobooks database.AudiobookStore
	Pages      PageSource
	Engine     Engine
	Runner     *Runner
	Locker     Locker
	Publisher  Publisher // optional
	Dir        string
	Logger     zerolog.Logger
	Now        func() time.Time
}

type Service struct {
	docs      database.DocumentStore
	voices    database.VoiceStore
	books     database.AudiobookStore
	pages     PageSource
	engine    Engine
	runner    *Runner
	locker    Locker
	publisher Publisher
	dir       string
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		docs:      d.Documents,
		voices:    d.Voices,
		books:     d.Audiobooks,
		pages:     d.Pages,
		engine:    d.Engine,
		runner:    d.Runner,
		locker:    d.Locker,
		publisher: d.Publisher,
		dir:       d.Dir,
		log:       d.Logger,
		now:       d.Now,
	}
	if s.runner == nil {
		s.runner = NewRunner(1)
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// OutputPath is the deterministic location of the audio for a document and voice.
func OutputPath(dir, documentID, voiceID string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.wav", documentID, voiceID))
}

type GenerateRequest struct {
	DocumentID string
	VoiceID    string
	UserID     string
}

type GenerateResult struct {
	Audiobook *models.Audiobook
	// Existing is set when a row for the request key was already stored.
	Existing bool
}

type job struct {
	id     string
	source string
	voice  string
	model  string
	output string
}

// Generate returns the audiobook for the request key, creating the row and
// scheduling synthesis when none exists. A failed row is reset and
// rescheduled; an unfinished row whose job is no longer running is
// resubmitted.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	existing, err := s.books.FindAudiobook(ctx, req.DocumentID, req.VoiceID, req.UserID)
	switch {
	case err == nil:
		return s.resume(ctx, req, existing)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, fmt.Errorf("find audiobook: %w", err)
	}

	j, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	row := &models.Audiobook{
		DocumentID: req.DocumentID,
		VoiceID:    req.VoiceID,
		UserID:     req.UserID,
		FilePath:   j.output,
		Status:     models.AudiobookPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.books.CreateAudiobook(ctx, row); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			winner, ferr := s.books.FindAudiobook(ctx, req.DocumentID, req.VoiceID, req.UserID)
			if ferr != nil {
				return nil, fmt.Errorf("find audiobook after duplicate insert: %w", ferr)
			}
			return &GenerateResult{Audiobook: winner, Existing: true}, nil
		}
		return nil, fmt.Errorf("create audiobook: %w", err)
	}

	j.id = row.ID
	if err := s.schedule(ctx, j); err != nil {
		return nil, err
	}
	return &GenerateResult{Audiobook: row}, nil
}

func (s *Service) resume(ctx context.Context, req GenerateRequest, row *models.Audiobook) (*GenerateResult, error) {
	result := &GenerateResult{Audiobook: row, Existing: true}
	retry := row.Status == models.AudiobookFailed
	stale := (row.Status == models.AudiobookPending || row.Status == models.AudiobookProcessing) && !s.runner.Running(row.ID)
	if !retry && !stale {
		return result, nil
	}

	j, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	j.id = row.ID
	j.output = row.FilePath

	if retry {
		s.log.Info().Str("audiobook_id", row.ID).Msg("retrying failed audiobook")
		if err := s.books.SetAudiobookStatus(ctx, row.ID, models.AudiobookResult{Status: models.AudiobookPending}); err != nil {
			return nil, fmt.Errorf("reset audiobook: %w", err)
		}
		if err := s.books.UpdateAudiobookProgress(ctx, row.ID, 0); err != nil {
			return nil, fmt.Errorf("reset audiobook: %w", err)
		}
		row.Status = models.AudiobookPending
		row.Error = ""
		row.Progress = 0
	} else {
		s.log.Info().Str("audiobook_id", row.ID).Msg("resubmitting unfinished audiobook")
	}

	if err := s.schedule(ctx, j); err != nil {
		return nil, err
	}
	return result, nil
}

// prepare checks everything that must hold before a row is written.
func (s *Service) prepare(ctx context.Context, req GenerateRequest) (job, error) {
	doc, err := s.docs.GetDocument(ctx, req.DocumentID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return job{}, apperr.NotFound("document")
		}
		return job{}, fmt.Errorf("get document: %w", err)
	}
	if doc.OwnerID != req.UserID {
		return job{}, apperr.NotFound("document")
	}

	voice, err := s.voices.GetVoice(ctx, req.VoiceID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return job{}, apperr.NotFound("voice")
		}
		return job{}, fmt.Errorf("get voice: %w", err)
	}

	model, err := s.engine.Resolve(voice.Name)
	if err != nil {
		return job{}, &apperr.SynthesisError{Voice: voice.Name, Err: err}
	}

	return job{
		source: doc.FilePath,
		voice:  voice.Name,
		model:  model,
		output: OutputPath(s.dir, req.DocumentID, req.VoiceID),
	}, nil
}

func (s *Service) schedule(ctx context.Context, j job) error {
	err := s.runner.Submit(j.id, func(jobCtx context.Context) { s.process(jobCtx, j) })
	if err == nil {
		return nil
	}
	if serr := s.books.SetAudiobookStatus(ctx, j.id, models.AudiobookResult{
		Status: models.AudiobookFailed,
		Error:  err.Error(),
	}); serr != nil {
		s.log.Error().Err(serr).Str("audiobook_id", j.id).Msg("failed to record scheduling error")
	}
	return fmt.Errorf("schedule audiobook: %w", err)
}

func (s *Service) process(ctx context.Context, j job) {
	log := s.log.With().Str("audiobook_id", j.id).Str("voice", j.voice).Logger()
	start := time.Now()

	res, err := s.render(ctx, j, log)
	if err != nil {
		log.Error().Err(err).Msg("audiobook generation failed")
		res = models.AudiobookResult{Status: models.AudiobookFailed, Error: err.Error()}
	} else {
		log.Info().Float64("duration_s", res.Duration).Dur("elapsed", time.Since(start)).Msg("audiobook generated")
	}

	pctx, cancel := persistContext()
	defer cancel()
	if err := s.books.SetAudiobookStatus(pctx, j.id, res); err != nil {
		log.Warn().Err(err).Msg("could not persist audiobook result")
	}
}

func (s *Service) render(ctx context.Context, j job, log zerolog.Logger) (models.AudiobookResult, error) {
	pctx, cancel := persistContext()
	err := s.books.SetAudiobookStatus(pctx, j.id, models.AudiobookResult{Status: models.AudiobookProcessing})
	cancel()
	if err != nil {
		return models.AudiobookResult{}, fmt.Errorf("mark processing: %w", err)
	}

	unlock, err := s.locker.Lock(ctx, j.output)
	if err != nil {
		return models.AudiobookResult{}, fmt.Errorf("lock output: %w", err)
	}
	defer unlock()

	if fileExists(j.output) {
		d, err := wavDuration(j.output)
		if err != nil {
			return models.AudiobookResult{}, err
		}
		log.Debug().Str("path", j.output).Msg("audio already rendered")
		return models.AudiobookResult{Status: models.AudiobookCompleted, Duration: d}, nil
	}

	pages, err := s.pages.Pages(ctx, j.source)
	if err != nil {
		return models.AudiobookResult{}, fmt.Errorf("extract pages: %w", err)
	}

	var segments []Segment
	for i, raw := range pages {
		if err := ctx.Err(); err != nil {
			return models.AudiobookResult{}, err
		}
		page := i + 1
		path := PagePath(j.output, page)
		ok, err := synthesizePage(ctx, s.engine, j.voice, j.model, Sanitize(raw), path)
		if err != nil {
			return models.AudiobookResult{}, fmt.Errorf("page %d: %w", page, err)
		}
		if !ok {
			log.Debug().Int("page", page).Msg("skipping page with no speakable text")
		} else {
			segments = append(segments, Segment{Page: page, Path: path})
		}
		s.setProgress(j.id, float64(page)/float64(len(pages)+1))
	}
	if len(segments) == 0 {
		return models.AudiobookResult{}, errors.New("document has no speakable text")
	}

	duration, err := Assemble(segments, j.output)
	if err != nil {
		return models.AudiobookResult{}, err
	}

	res := models.AudiobookResult{Status: models.AudiobookCompleted, Duration: duration}
	if s.publisher != nil {
		remoteID, err := s.publisher.Publish(ctx, j.output)
		if err != nil {
			log.Warn().Err(err).Msg("remote publish failed, keeping local copy only")
		} else {
			res.RemoteID = remoteID
		}
	}
	return res, nil
}

func (s *Service) setProgress(id string, p float64) {
	ctx, cancel := persistContext()
	defer cancel()
	if err := s.books.UpdateAudiobookProgress(ctx, id, p); err != nil {
		s.log.Warn().Err(err).Str("audiobook_id", id).Msg("could not update progress")
	}
}

// StatusInProgress is reported for rows that are neither finished nor failed.
const StatusInProgress = "in_progress"

type StatusReport struct {
	Status   string  `json:"status"`
	FilePath string  `json:"file_path,omitempty"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// Status reports completed once the audio exists at the stored path, failed
// when the job recorded an error, and in_progress otherwise.
func (s *Service) Status(ctx context.Context, id string) (*StatusReport, error) {
	row, err := s.books.GetAudiobook(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("audiobook")
		}
		return nil, fmt.Errorf("get audiobook: %w", err)
	}

	switch {
	case fileExists(row.FilePath):
		return &StatusReport{Status: string(models.AudiobookCompleted), FilePath: row.FilePath, Progress: 1}, nil
	case row.Status == models.AudiobookFailed:
		return &StatusReport{Status: string(models.AudiobookFailed), Progress: row.Progress, Error: row.Error}, nil
	default:
		return &StatusReport{Status: StatusInProgress, Progress: row.Progress}, nil
	}
}

type CatalogEntry struct {
	AudiobookID   string                 `json:"audiobook_id"`
	DocumentID    string                 `json:"document_id"`
	DocumentTitle string                 `json:"document_title"`
	VoiceID       string                 `json:"voice_id"`
	FilePath      string                 `json:"file_path"`
	Status        models.AudiobookStatus `json:"status"`
	Progress      float64                `json:"progress"`
	Duration      float64                `json:"duration"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Catalog lists a user's audiobooks, one per document and voice, oldest
// first. A user with no rows is reported as not found.
func (s *Service) Catalog(ctx context.Context, userID string) ([]CatalogEntry, error) {
	rows, err := s.books.ListAudiobooksByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list audiobooks: %w", err)
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("audiobooks for user")
	}

	type pair struct{ doc, voice string }
	seen := make(map[pair]bool, len(rows))
	titles := map[string]string{}
	entries := make([]CatalogEntry, 0, len(rows))
	for _, row := range rows {
		key := pair{row.DocumentID, row.VoiceID}
		if seen[key] {
			continue
		}
		seen[key] = true

		title, ok := titles[row.DocumentID]
		if !ok {
			if doc, err := s.docs.GetDocument(ctx, row.DocumentID); err == nil {
				title = doc.Title
			}
			titles[row.DocumentID] = title
		}
		entries = append(entries, CatalogEntry{
			AudiobookID:   row.ID,
			DocumentID:    row.DocumentID,
			DocumentTitle: title,
			VoiceID:       row.VoiceID,
			FilePath:      row.FilePath,
			Status:        row.Status,
			Progress:      row.Progress,
			Duration:      row.Duration,
			CreatedAt:     row.CreatedAt,
		})
	}
	return entries, nil
}

// Delete cancels any running job for the audiobook and removes its row. The
// audio file goes too unless another row still points at it.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	row, err := s.books.GetAudiobook(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.NotFound("audiobook")
		}
		return fmt.Errorf("get audiobook: %w", err)
	}
	if row.UserID != userID {
		return apperr.NotFound("audiobook")
	}

	s.runner.Cancel(id)
	unlock, err := s.locker.Lock(ctx, row.FilePath)
	if err != nil {
		return fmt.Errorf("lock output: %w", err)
	}
	defer unlock()

	if err := s.books.DeleteAudiobook(ctx, id); err != nil {
		return fmt.Errorf("delete audiobook: %w", err)
	}

	siblings, err := s.books.ListAudiobooksByDocument(ctx, row.DocumentID)
	if err != nil {
		return fmt.Errorf("list audiobooks: %w", err)
	}
	for _, other := range siblings {
		if other.FilePath == row.FilePath {
			return nil
		}
	}

	s.removeOutput(row.FilePath)
	if row.RemoteID != "" && s.publisher != nil {
		if err := s.publisher.Remove(ctx, row.RemoteID); err != nil {
			s.log.Warn().Err(err).Str("remote_id", row.RemoteID).Msg("could not remove remote copy")
		}
	}
	return nil
}

// removeOutput deletes the audio at output together with any page segments
// and temp files an interrupted render left next to it.
func (s *Service) removeOutput(output string) {
	paths := []string{output}
	for _, pattern := range []string{output + "_page_*.wav", output + ".tmp-*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			s.log.Warn().Err(err).Str("pattern", pattern).Msg("could not list leftover files")
			continue
		}
		paths = append(paths, matches...)
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", p).Msg("could not remove audiobook file")
		}
	}
}

// DeleteForDocument removes every audiobook of a document, used when the
// document itself is deleted.
func (s *Service) DeleteForDocument(ctx context.Context, documentID string) error {
	rows, err := s.books.ListAudiobooksByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list audiobooks: %w", err)
	}
	for _, row := range rows {
		if err := s.Delete(ctx, row.ID, row.UserID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
	}
	return nil
}

// persistContext bounds datastore writes made from a job, which may run
// after the job's own context is cancelled.
func persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	d, err := wav.NewDecoder(f).Duration()
	if err != nil {
		return 0, fmt.Errorf("read duration of %s: %w", path, err)
	}
	return d.Seconds(), nil
}
