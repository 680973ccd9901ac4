package excel

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/example/wordgo/pkg/models"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the exported workbook
const (
	ProgressSheet = "Progress"
	DailySheet    = "Daily"
	SavedSheet    = "Saved"
)

// Source is where exported data is read from
type Source interface {
	GetAllLanguageProgress(ctx context.Context, userID int64) ([]models.LanguageProgress, error)
	GetLearnedWords(ctx context.Context, userID int64, language string) ([]models.ProgressRecord, error)
	GetDailyStats(ctx context.Context, userID int64, from, to string) ([]models.DailyStat, error)
	GetSavedWords(ctx context.Context, userID int64, language string) ([]models.SavedWord, error)
}

// ExportResult holds the result of an export operation
type ExportResult struct {
	Words int
	Days  int
	Saved int
}

var (
	progressHeader = []interface{}{"Language", "Word", "Learned at", "Reviews", "Last reviewed", "Mastery"}
	dailyHeader    = []interface{}{"Date", "Words learned", "Words reviewed", "Study time (s)", "Streak"}
	savedHeader    = []interface{}{"Language", "Word", "Index", "Saved at", "Notes"}
)

// ExportProgress writes a user's learned words, daily stats and bookmarks as an Excel workbook
func ExportProgress(ctx context.Context, source Source, userID int64, w io.Writer) (*ExportResult, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", ProgressSheet)
	f.NewSheet(DailySheet)
	f.NewSheet(SavedSheet)

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	result := &ExportResult{}

	// Learned words, grouped by language
	languages, err := source.GetAllLanguageProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get language progress: %w", err)
	}
	var rows [][]interface{}
	for _, lp := range languages {
		words, err := source.GetLearnedWords(ctx, userID, lp.Language)
		if err != nil {
			return nil, fmt.Errorf("failed to get learned words for %s: %w", lp.Language, err)
		}
		for _, p := range words {
			rows = append(rows, []interface{}{
				p.Language, p.Word, formatTime(&p.LearnedAt), p.ReviewCount, formatTime(p.LastReviewed), p.MasteryLevel,
			})
		}
	}
	if err := writeSheet(f, ProgressSheet, progressHeader, rows, bold); err != nil {
		return nil, err
	}
	result.Words = len(rows)

	stats, err := source.GetDailyStats(ctx, userID, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	rows = rows[:0]
	for _, s := range stats {
		rows = append(rows, []interface{}{s.Date, s.WordsLearned, s.WordsReviewed, s.StudyTimeSeconds, s.StreakDays})
	}
	if err := writeSheet(f, DailySheet, dailyHeader, rows, bold); err != nil {
		return nil, err
	}
	result.Days = len(rows)

	saved, err := source.GetSavedWords(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get saved words: %w", err)
	}
	rows = rows[:0]
	for _, s := range saved {
		notes := ""
		if s.Notes != nil {
			notes = *s.Notes
		}
		rows = append(rows, []interface{}{s.Language, s.Word, s.WordIndex, formatTime(&s.SavedAt), notes})
	}
	if err := writeSheet(f, SavedSheet, savedHeader, rows, bold); err != nil {
		return nil, err
	}
	result.Saved = len(rows)

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return result, nil
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
