package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/zhifu/sumup-terminal/models"
)

// AttemptRecorder persists outgoing checkout attempts.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt models.TransactionAttempt) error
}

// TransactionLog appends one tab separated line per attempt:
// timestamp, user, terminal, amount, outcome.
type TransactionLog struct {
	file string
}

func NewTransactionLog(file string) *TransactionLog {
	return &TransactionLog{file: file}
}

func (l *TransactionLog) Record(_ context.Context, a models.TransactionAttempt) error {
	ts := a.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	terminal := a.TerminalLabel
	if a.TerminalID != "" {
		terminal = fmt.Sprintf("%s (%s)", a.TerminalLabel, a.TerminalID)
	}
	line := strings.Join([]string{
		ts.Format(time.RFC3339),
		logField(a.Username),
		logField(terminal),
		logField(strings.TrimSpace(a.Amount + " " + a.Currency)),
		logField(a.Outcome),
	}, "\t") + "\n"

	return withFileLock(l.file, func() error {
		f, err := os.OpenFile(l.file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o664)
		if err != nil {
			return fmt.Errorf("open transaction log: %w", err)
		}
		if _, err := f.WriteString(line); err != nil {
			f.Close()
			return fmt.Errorf("write transaction log: %w", err)
		}
		return f.Close()
	})
}

// logField keeps a value on one line and inside its column.
func logField(s string) string {
	return strings.NewReplacer("\t", " ", "\r", " ", "\n", " ").Replace(s)
}

// GormLedger mirrors attempts into the transaction_attempts table.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

func (g *GormLedger) Record(ctx context.Context, a models.TransactionAttempt) error {
	if err := g.db.WithContext(ctx).Create(&a).Error; err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// MultiRecorder fans an attempt out to several recorders and reports every
// failure.
type MultiRecorder []AttemptRecorder

func (m MultiRecorder) Record(ctx context.Context, a models.TransactionAttempt) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
