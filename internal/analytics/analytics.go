package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"giga-chatter/internal/storage"
)

// DailyStats содержит статистику за день
type DailyStats struct {
	Date             string         `json:"date"`
	TotalTurns       int            `json:"total_turns"`
	SuccessfulTurns  int            `json:"successful_turns"`
	FailedTurns      int            `json:"failed_turns"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
	TurnsByModel     map[string]int `json:"turns_by_model"`
	Errors           map[string]int `json:"errors"`
}

// AnalyzeDailyLogs анализирует журнал ходов за указанную дату
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	// Нормализуем дату до начала дня
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:         startOfDay.Format("2006-01-02"),
		TurnsByModel: make(map[string]int),
		Errors:       make(map[string]int),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		// Записи без сообщения пользователя не являются ходами диалога
		if event.UserMessage == "" {
			continue
		}

		stats.TotalTurns++
		if event.Failed() {
			stats.FailedTurns++
			stats.Errors[event.Error]++
			continue
		}

		stats.SuccessfulTurns++
		stats.PromptTokens += event.PromptTokens
		stats.CompletionTokens += event.CompletionTokens
		stats.TotalTokens += event.TotalTokens
		if event.Model != "" {
			stats.TurnsByModel[event.Model]++
		}
	}

	return stats
}

// GenerateReportSummary создает текстовое резюме для журнала
func (ds *DailyStats) GenerateReportSummary() string {
	summary := fmt.Sprintf(`Статистика GigaChat за %s:

Общая активность:
- Всего ходов: %d
- Успешных: %d
- С ошибкой: %d
- Токенов: %d (промпт %d, ответ %d)
`, ds.Date, ds.TotalTurns, ds.SuccessfulTurns, ds.FailedTurns, ds.TotalTokens, ds.PromptTokens, ds.CompletionTokens)

	if len(ds.TurnsByModel) > 0 {
		summary += "\nМодели:\n"
		for _, model := range sortedKeys(ds.TurnsByModel) {
			summary += fmt.Sprintf("- %s: %d\n", model, ds.TurnsByModel[model])
		}
	}

	if len(ds.Errors) > 0 {
		summary += "\nОшибки:\n"
		for _, msg := range sortedKeys(ds.Errors) {
			summary += fmt.Sprintf("- %s: %d раз\n", msg, ds.Errors[msg])
		}
	}

	return summary
}

// ToJSON сериализует статистику в одну строку JSON для журнала
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.Marshal(ds)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DailyReport возвращает задачу для планировщика: прочитать журнал и
// вывести сводку за текущий день (UTC).
func DailyReport(rec storage.Recorder, now func() time.Time, logf func(format string, args ...interface{})) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		events, err := rec.LoadInteractions()
		if err != nil {
			return fmt.Errorf("load transcript: %w", err)
		}
		stats := AnalyzeDailyLogs(events, now().UTC())
		logf("📊 %s", stats.GenerateReportSummary())

		data, err := stats.ToJSON()
		if err != nil {
			return fmt.Errorf("encode stats: %w", err)
		}
		slog.DebugContext(ctx, "usage report", "date", stats.Date, "stats", data)
		return nil
	}
}
