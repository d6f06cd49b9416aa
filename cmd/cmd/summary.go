package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"digestline/internal/core"
	"digestline/internal/logger"
	"digestline/internal/pipeline"
)

// cobraLogger prints the teacher's human-readable stdout summary in
// addition to the structured slog lines logger.ForStage already emits,
// matching the teacher's practice of layering a CLI-ergonomics view on
// top of structured logging rather than replacing it.
type cobraLogger struct {
	headerStyle lipgloss.Style
	okStyle     lipgloss.Style
	warnStyle   lipgloss.Style
	failStyle   lipgloss.Style
}

func newCobraLogger() *cobraLogger {
	return &cobraLogger{
		headerStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("105")),
		okStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("71")),
		warnStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		failStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
}

func (l *cobraLogger) summarize(result pipeline.Result, opts pipeline.Options) {
	rs := result.RunState
	fmt.Fprintln(os.Stdout, l.headerStyle.Render(fmt.Sprintf("digestline run %s", rs.RunID)))
	fmt.Fprintf(os.Stdout, "  started:  %s\n", rs.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(os.Stdout, "  status:   %s\n", l.statusStyle(rs.Status).Render(string(rs.Status)))

	var totalDuration int64
	var totalTokens, totalCalls int
	for _, s := range rs.Stats {
		totalDuration += s.DurationMS
		totalTokens += s.TotalTokens
		totalCalls += s.LLMCalls
		row := fmt.Sprintf("  %-12s in=%-4d out=%-4d failed=%-3d llm_calls=%-3d tokens=%-6d %dms",
			s.Stage, s.InputCount, s.OutputCount, s.FailedItems, s.LLMCalls, s.TotalTokens, s.DurationMS)
		if s.FailedItems > 0 {
			fmt.Fprintln(os.Stdout, l.warnStyle.Render(row))
		} else {
			fmt.Fprintln(os.Stdout, l.okStyle.Render(row))
		}
	}
	fmt.Fprintf(os.Stdout, "  totals:   %dms, %d llm calls, %d tokens\n", totalDuration, totalCalls, totalTokens)
	fmt.Fprintf(os.Stdout, "  articles: %d (multi-source topics: %d)\n", len(result.Newsletter.Articles), result.Newsletter.MultiSourceTopics)

	for _, w := range rs.Warnings {
		fmt.Fprintln(os.Stdout, l.warnStyle.Render("  warning: "+w))
	}

	logger.Get().Info("run summary", "run_id", rs.RunID, "status", string(rs.Status),
		"articles", len(result.Newsletter.Articles), "tokens", totalTokens, "llm_calls", totalCalls)
}

func (l *cobraLogger) statusStyle(status core.RunStatus) lipgloss.Style {
	switch status {
	case core.RunStatusSuccess:
		return l.okStyle
	case core.RunStatusPartial:
		return l.warnStyle
	default:
		return l.failStyle
	}
}
