package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-lobby-service/internal/domain"
)

// SessionResult is the session_results row written when a game finishes.
type SessionResult struct {
	bun.BaseModel `bun:"table:session_results"`

	SessionID      string                `bun:"session_id,pk"`
	LobbyCode      string                `bun:"lobby_code,notnull"`
	QuestionSetID  string                `bun:"question_set_id,notnull"`
	TotalQuestions int                   `bun:"total_questions,notnull"`
	StartedAt      time.Time             `bun:"started_at,notnull"`
	FinishedAt     time.Time             `bun:"finished_at,notnull"`
	Standings      []domain.Standing     `bun:"standings,type:jsonb,notnull"`
	Answers        []domain.AnswerRecord `bun:"answers,type:jsonb,notnull"`
}

// ResultsArchive stores finished sessions through bun.
type ResultsArchive struct {
	db *bun.DB
}

func NewResultsArchive(db *bun.DB) *ResultsArchive {
	return &ResultsArchive{db: db}
}

// Record inserts the summary. Replays of the same session are ignored, so
// retries are safe.
func (a *ResultsArchive) Record(ctx context.Context, summary domain.SessionSummary) error {
	row := &SessionResult{
		SessionID:      summary.SessionID,
		LobbyCode:      summary.LobbyCode,
		QuestionSetID:  summary.QuestionSetID,
		TotalQuestions: summary.TotalQuestions,
		StartedAt:      summary.StartedAt,
		FinishedAt:     summary.FinishedAt,
		Standings:      summary.Standings,
		Answers:        summary.Answers,
	}
	if row.Answers == nil {
		row.Answers = []domain.AnswerRecord{}
	}
	if _, err := a.db.NewInsert().Model(row).On("CONFLICT (session_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert session result: %w", err)
	}
	return nil
}

// Get loads an archived session.
func (a *ResultsArchive) Get(ctx context.Context, sessionID string) (domain.SessionSummary, error) {
	var row SessionResult
	if err := a.db.NewSelect().Model(&row).Where("session_id = ?", sessionID).Scan(ctx); err != nil {
		return domain.SessionSummary{}, fmt.Errorf("load session result: %w", err)
	}
	return domain.SessionSummary{
		SessionID:      row.SessionID,
		LobbyCode:      row.LobbyCode,
		QuestionSetID:  row.QuestionSetID,
		TotalQuestions: row.TotalQuestions,
		StartedAt:      row.StartedAt,
		FinishedAt:     row.FinishedAt,
		Standings:      row.Standings,
		Answers:        row.Answers,
	}, nil
}
