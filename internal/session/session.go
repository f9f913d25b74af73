// Package session orchestrates the question pipeline: snapshot the schema,
// build the prompt, translate, validate, execute, present. One session
// serves many questions against a single backend connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/backend"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/executor"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/history"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/observability"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/present"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/prompt"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/schema"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/sqlcheck"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/translate"
)

type Deps struct {
	Connector  backend.Connector
	Translator translate.Translator // nil disables natural-language questions
	History    history.Repository   // nil disables history recording
	Logger     *slog.Logger

	// PrincipalFromContext names the caller for history entries. Optional.
	PrincipalFromContext func(context.Context) string
}

type Options struct {
	MaxRows         int
	QueryTimeout    time.Duration
	AllowMutation   bool
	TranslateRounds int
	MaxTables       int
	MaxColumns      int
}

const maxTranslateRounds = 3

type Session struct {
	deps Deps
	opts Options
	exec *executor.Executor

	mu       sync.Mutex
	snapshot *schema.Snapshot
}

func New(deps Deps, opts Options) (*Session, error) {
	if deps.Connector == nil {
		return nil, fmt.Errorf("backend connector is required")
	}
	if opts.TranslateRounds <= 0 {
		opts.TranslateRounds = 2
	}
	if opts.TranslateRounds > maxTranslateRounds {
		opts.TranslateRounds = maxTranslateRounds
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Session{
		deps: deps,
		opts: opts,
		exec: executor.New(deps.Connector.DB(), executor.Options{
			MaxRows: opts.MaxRows,
			Timeout: opts.QueryTimeout,
		}),
	}, nil
}

// Schema returns the cached snapshot, introspecting the backend on first
// use. The snapshot is capped to the configured table and column limits.
func (s *Session) Schema(ctx context.Context) (schema.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil {
		return *s.snapshot, nil
	}
	return s.introspectLocked(ctx)
}

// RefreshSchema drops the cached snapshot and introspects again.
func (s *Session) RefreshSchema(ctx context.Context) (schema.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = nil
	return s.introspectLocked(ctx)
}

func (s *Session) introspectLocked(ctx context.Context) (schema.Snapshot, error) {
	snap, err := s.deps.Connector.Introspect(ctx)
	if err != nil {
		return schema.Snapshot{}, err
	}
	snap = schema.Truncate(snap, s.opts.MaxTables, s.opts.MaxColumns)
	observability.SetSchemaSnapshotInfo(len(snap.Tables), snap.Truncated)
	s.snapshot = &snap
	return snap, nil
}

// MaxRows reports the row cap applied to results.
func (s *Session) MaxRows() int { return s.exec.MaxRows() }

// Connector exposes the backend for callers that need samples or pings.
func (s *Session) Connector() backend.Connector { return s.deps.Connector }

// Ask answers a natural-language question. The response always reports the
// stage reached and, once a statement exists, the SQL that was attempted.
func (s *Session) Ask(ctx context.Context, question string) present.Response {
	start := time.Now()
	question = strings.TrimSpace(question)

	resp := s.ask(ctx, question)
	observability.ObserveAsk(resp.Stage, resp.OK)
	s.record(ctx, resp, time.Since(start))
	return resp
}

func (s *Session) ask(ctx context.Context, question string) present.Response {
	if question == "" {
		return present.Failure(question, "", present.StageTranslate, &translate.Error{
			Kind: translate.KindNoStatementFound,
			Err:  errors.New("question is empty"),
		})
	}
	if s.deps.Translator == nil {
		return present.Failure(question, "", present.StageTranslate, &translate.Error{
			Kind: translate.KindServiceError,
			Err:  errors.New("translation is not configured: set an AI api key and enable it"),
		})
	}

	snap, err := s.Schema(ctx)
	if err != nil {
		return present.Failure(question, "", present.StageIntrospect, err)
	}

	var (
		resp        present.Response
		translateMS int64
		provider    string
		model       string
		priorSQL    string
		priorReason string
		rounds      int
	)

	for round := 1; round <= s.opts.TranslateRounds; round++ {
		rounds = round
		messages := prompt.Build(prompt.Request{
			Question:    question,
			Snapshot:    snap,
			Dialect:     s.deps.Connector.Kind(),
			RowLimit:    s.MaxRows(),
			PriorSQL:    priorSQL,
			PriorReason: priorReason,
		})

		trStart := time.Now()
		result, err := s.deps.Translator.Translate(ctx, translate.Request{Messages: messages})
		translateMS += time.Since(trStart).Milliseconds()
		if err != nil {
			resp = present.Failure(question, priorSQL, present.StageTranslate, err)
			break
		}
		provider = result.Provider
		model = result.Model

		verdict := sqlcheck.Check(result.SQL, snap, sqlcheck.Options{AllowMutation: s.opts.AllowMutation})
		observability.ObserveValidateVerdict(verdict.MetricLabel())
		if !verdict.Allowed {
			// Only an unknown identifier earns a correction round. A
			// non-read or injection-risk statement means the model went
			// somewhere the user cannot have asked for.
			if verdict.Reason == sqlcheck.ReasonUnknownIdentifier && round < s.opts.TranslateRounds {
				priorSQL = verdict.Normalized
				priorReason = verdict.Detail
				s.deps.Logger.DebugContext(ctx, "retranslating after unknown identifier",
					slog.String("detail", verdict.Detail),
					slog.Int("round", round),
				)
				continue
			}
			resp = present.Rejection(question, verdict.Normalized, verdict)
			break
		}

		resp = s.execute(ctx, question, verdict)
		break
	}

	resp.Rounds = rounds
	resp.TranslateMS = translateMS
	resp.Provider = provider
	resp.Model = model
	return resp
}

// RunSQL validates and executes caller-provided SQL, bypassing translation.
func (s *Session) RunSQL(ctx context.Context, sqlText string) present.Response {
	start := time.Now()

	resp := s.runSQL(ctx, sqlText)
	s.record(ctx, resp, time.Since(start))
	return resp
}

func (s *Session) runSQL(ctx context.Context, sqlText string) present.Response {
	snap, err := s.Schema(ctx)
	if err != nil {
		return present.Failure("", sqlText, present.StageIntrospect, err)
	}

	verdict := sqlcheck.Check(sqlText, snap, sqlcheck.Options{AllowMutation: s.opts.AllowMutation})
	observability.ObserveValidateVerdict(verdict.MetricLabel())
	if !verdict.Allowed {
		return present.Rejection("", verdict.Normalized, verdict)
	}
	return s.execute(ctx, "", verdict)
}

func (s *Session) execute(ctx context.Context, question string, verdict sqlcheck.Verdict) present.Response {
	var resp present.Response
	if verdict.Mutation {
		res, err := s.exec.RunExec(ctx, verdict.Normalized)
		if err != nil {
			resp = present.Failure(question, verdict.Normalized, present.StageExecute, err)
		} else {
			resp = present.ExecSuccess(question, verdict.Normalized, res)
		}
	} else {
		res, err := s.exec.Run(ctx, verdict.Normalized)
		if err != nil {
			resp = present.Failure(question, verdict.Normalized, present.StageExecute, err)
		} else {
			resp = present.Success(question, verdict.Normalized, res)
		}
	}
	if len(verdict.Warnings) > 0 {
		resp.Warnings = append(resp.Warnings, verdict.Warnings...)
	}
	return resp
}

// record stores the outcome in history. Recording is best effort; a
// storage failure never alters the response.
func (s *Session) record(ctx context.Context, resp present.Response, elapsed time.Duration) {
	if s.deps.History == nil {
		return
	}

	entry := history.Entry{
		AskedAt:    time.Now().UTC(),
		Question:   resp.Question,
		SQL:        resp.SQL,
		Stage:      resp.Stage,
		ErrorCode:  resp.ErrorCode,
		OK:         resp.OK,
		Rounds:     resp.Rounds,
		RowCount:   resp.RowCount,
		DurationMS: elapsed.Milliseconds(),
	}
	if s.deps.PrincipalFromContext != nil {
		entry.Principal = s.deps.PrincipalFromContext(ctx)
	}

	if _, err := s.deps.History.Insert(ctx, entry); err != nil {
		s.deps.Logger.WarnContext(ctx, "history insert failed", slog.Any("error", err))
	}
}
