package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/kryote/support-chat/internal/ai"
	"github.com/kryote/support-chat/internal/logger"
)

// ErrSessionNotFound covers both a missing session and a session owned by
// someone else. The two are indistinguishable on purpose: a 404 never
// confirms existence to an unauthorized caller.
var ErrSessionNotFound = errors.New("chat session not found")

// FallbackReply is persisted as the assistant message whenever the completion
// upstream fails. A turn always produces a reply, degraded or not.
const FallbackReply = "I apologize, but I'm having trouble processing your request right now. Please try again later or contact customer support."

type ServiceOptions struct {
	ContextWindowSize int
	PageSize          int
	PageMax           int
	CompletionTimeout time.Duration
	TitleTimeout      time.Duration
}

func (o *ServiceOptions) applyDefaults() {
	if o.ContextWindowSize <= 0 || o.ContextWindowSize > 100 {
		o.ContextWindowSize = 6
	}
	if o.PageSize <= 0 {
		o.PageSize = 30
	}
	if o.PageMax <= 0 {
		o.PageMax = 100
	}
	if o.CompletionTimeout <= 0 {
		o.CompletionTimeout = 60 * time.Second
	}
	if o.TitleTimeout <= 0 {
		o.TitleTimeout = 20 * time.Second
	}
}

// Service is the chat core: session CRUD, keyset history paging, and the turn
// orchestrator that fans out to the completion and title upstreams.
type Service struct {
	repo       *Repo
	completion ai.CompletionClient
	titler     ai.TitleClient
	log        *logger.Logger
	opts       ServiceOptions
}

func NewService(repo *Repo, completion ai.CompletionClient, titler ai.TitleClient, log *logger.Logger, opts ServiceOptions) *Service {
	opts.applyDefaults()
	return &Service{
		repo:       repo,
		completion: completion,
		titler:     titler,
		log:        log.With("component", "chat.service"),
		opts:       opts,
	}
}

func (s *Service) CreateSession(ctx context.Context, ownerUserID string) (*Session, error) {
	sid, err := NewSessionID()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:          sid,
		OwnerUserID: ownerUserID,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, ownerUserID string, limit int) ([]Session, error) {
	return s.repo.ListSessionsByOwner(ctx, ownerUserID, limit)
}

// getOwnedSession loads the session and enforces ownership. Missing and
// foreign both come back as ErrSessionNotFound.
func (s *Service) getOwnedSession(ctx context.Context, ownerUserID, sessionID string) (*Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if sess.OwnerUserID != ownerUserID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// History returns one page of the session's messages in ascending id order.
// beforeID == 0 means the newest page. hasMore is true iff the page came back
// full; a session with exactly limit older messages reports one extra
// fetchable page that turns out empty, which callers must treat as a normal
// end of scroll.
func (s *Service) History(ctx context.Context, ownerUserID, sessionID string, beforeID uint64, limit int) ([]Message, bool, error) {
	if limit <= 0 {
		limit = s.opts.PageSize
	}
	if limit > s.opts.PageMax {
		limit = s.opts.PageMax
	}

	if _, err := s.getOwnedSession(ctx, ownerUserID, sessionID); err != nil {
		return nil, false, err
	}

	desc, err := s.repo.ListMessagesBefore(ctx, sessionID, beforeID, limit)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(desc) == limit

	asc := make([]Message, len(desc))
	for i, m := range desc {
		asc[len(desc)-1-i] = m
	}
	return asc, hasMore, nil
}

// SubmitTurn runs one full turn: persist the user message, fan out to the
// completion and (when the session is untitled) title upstreams, and persist
// exactly one assistant message. Upstream failures degrade — a failed
// completion becomes the fallback reply, a failed title call leaves the title
// null. Only persistence failures are returned.
func (s *Service) SubmitTurn(ctx context.Context, ownerUserID, sessionID, userText string) (assistantMsgID uint64, err error) {
	sess, err := s.getOwnedSession(ctx, ownerUserID, sessionID)
	if err != nil {
		return 0, err
	}

	userMsg := &Message{
		ChatSessionID: sessionID,
		Role:          RoleUser,
		Content:       userText,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return 0, fmt.Errorf("insert user message: %w", err)
	}
	// Bump activity now so recent-sessions ordering reflects the turn even if
	// everything upstream fails.
	if err := s.repo.TouchSession(ctx, sessionID, time.Now()); err != nil {
		s.log.Warn("touch session failed", "session_id", sessionID, "error", err)
	}

	history, err := s.historyWindow(ctx, sessionID, userMsg.ID)
	if err != nil {
		return 0, err
	}

	needsTitle := sess.Title == nil
	completion, titleResult := s.fanOut(ctx, userText, history, needsTitle)

	assistantMsg := s.assistantMessage(sessionID, completion)
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		return 0, fmt.Errorf("insert assistant message: %w", err)
	}
	if err := s.repo.TouchSession(ctx, sessionID, time.Now()); err != nil {
		s.log.Warn("touch session failed", "session_id", sessionID, "error", err)
	}

	// A title is only worth setting when there is real assistant content
	// behind it; after a fallback reply the generated title is discarded.
	if titleResult.attempted && titleResult.err == nil && completion.err == nil {
		if set, terr := s.repo.SetTitleIfNull(ctx, sessionID, titleResult.title, time.Now()); terr != nil {
			s.log.Warn("set title failed", "session_id", sessionID, "error", terr)
		} else if !set {
			s.log.Debug("title already set, keeping existing", "session_id", sessionID)
		}
	}

	return assistantMsg.ID, nil
}

// historyWindow loads the bounded conversation context for the completion
// call: the newest messages strictly older than the just-inserted user
// message, in ascending order. The current message travels separately, so the
// cursor guarantees it is never duplicated into its own context.
func (s *Service) historyWindow(ctx context.Context, sessionID string, beforeID uint64) ([]ai.Turn, error) {
	desc, err := s.repo.ListMessagesBefore(ctx, sessionID, beforeID, s.opts.ContextWindowSize)
	if err != nil {
		return nil, fmt.Errorf("load history window: %w", err)
	}
	turns := make([]ai.Turn, 0, len(desc))
	for i := len(desc) - 1; i >= 0; i-- {
		turns = append(turns, ai.Turn{Role: desc[i].Role, Content: desc[i].Content})
	}
	return turns, nil
}

type completionResult struct {
	completion *ai.Completion
	err        error
}

type titleResult struct {
	attempted bool
	title     string
	err       error
}

// fanOut issues the completion call and, when wanted, the title call as two
// independent goroutines and settles both. Neither branch can cancel the
// other, and both run on contexts detached from the caller's: a client
// disconnect does not abort in-flight upstream work, only the per-branch
// timeouts do.
func (s *Service) fanOut(ctx context.Context, userText string, history []ai.Turn, wantTitle bool) (completionResult, titleResult) {
	base := context.WithoutCancel(ctx)

	var (
		wg sync.WaitGroup
		cr completionResult
		tr titleResult
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(base, s.opts.CompletionTimeout)
		defer cancel()
		cr.completion, cr.err = s.completion.Complete(cctx, userText, history)
	}()

	if wantTitle {
		tr.attempted = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			tctx, cancel := context.WithTimeout(base, s.opts.TitleTimeout)
			defer cancel()
			tr.title, tr.err = s.titler.GenerateTitle(tctx, userText)
		}()
	}

	wg.Wait()

	if cr.err != nil {
		s.log.Warn("completion upstream failed, using fallback reply", "error", cr.err)
	}
	if tr.attempted && tr.err != nil {
		s.log.Warn("title upstream failed, leaving title unset", "error", tr.err)
	}
	return cr, tr
}

func (s *Service) assistantMessage(sessionID string, cr completionResult) *Message {
	m := &Message{
		ChatSessionID: sessionID,
		Role:          RoleAssistant,
	}
	if cr.err != nil {
		m.Content = FallbackReply
		return m
	}

	m.Content = cr.completion.Reply
	if cr.completion.Reasoning != "" {
		reasoning := cr.completion.Reasoning
		m.Reasoning = &reasoning
	}
	if len(cr.completion.Sources) > 0 {
		if b, err := json.Marshal(cr.completion.Sources); err == nil {
			m.ContextUsed = b
		} else {
			s.log.Warn("marshal retrieval sources failed", "session_id", sessionID, "error", err)
		}
	}
	return m
}

// Turn job plumbing for the async submit path.

func (s *Service) EnqueueTurn(ctx context.Context, ownerUserID, sessionID, userText string, idempotencyKey *string) (*TurnJob, bool, error) {
	if _, err := s.getOwnedSession(ctx, ownerUserID, sessionID); err != nil {
		return nil, false, err
	}

	id, err := NewTurnJobID()
	if err != nil {
		return nil, false, err
	}
	job := &TurnJob{
		ID:             id,
		UserID:         ownerUserID,
		ChatSessionID:  sessionID,
		UserText:       userText,
		IdempotencyKey: idempotencyKey,
		Status:         TurnJobQueued,
	}
	return s.repo.CreateTurnJobOrGetExisting(ctx, job)
}

// GetTurnJobForUser hides foreign jobs the same way sessions are hidden.
func (s *Service) GetTurnJobForUser(ctx context.Context, ownerUserID, jobID string) (*TurnJob, error) {
	job, err := s.repo.GetTurnJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if job.UserID != ownerUserID {
		return nil, ErrSessionNotFound
	}
	return job, nil
}

// RunTurnJob executes one queued job end to end. Ownership is re-checked
// through SubmitTurn, which also absorbs all upstream failures, so a job
// fails only on persistence problems. Delivery is at-least-once; a job that
// lost the queued->running claim was already picked up and is skipped.
func (s *Service) RunTurnJob(ctx context.Context, jobID string) error {
	claimed, err := s.repo.MarkTurnJobRunning(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		s.log.Info("turn job already claimed, skipping redelivery", "job_id", jobID)
		return nil
	}
	job, err := s.repo.GetTurnJob(ctx, jobID)
	if err != nil {
		return err
	}

	assistantID, err := s.SubmitTurn(ctx, job.UserID, job.ChatSessionID, job.UserText)
	if err != nil {
		if merr := s.repo.MarkTurnJobFailed(ctx, jobID, err.Error()); merr != nil {
			s.log.Error("mark turn job failed errored", "job_id", jobID, "error", merr)
		}
		return err
	}
	return s.repo.MarkTurnJobSucceeded(ctx, jobID, assistantID)
}
