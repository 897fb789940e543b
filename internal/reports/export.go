package reports

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/umbusk1/bibliofep/internal/stats"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
)

// Export formats.
const (
	FormatCSV      = "csv"
	FormatMarkdown = "md"
)

// ContentType returns the response content type for format.
func ContentType(format string) string {
	if format == FormatMarkdown {
		return "text/markdown; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

// ParseFormat normalizes a requested export format. Empty means csv.
func ParseFormat(raw string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(raw)); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatMarkdown:
		return f, nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "unsupported format %q (use csv or md)", raw)
	}
}

// Render writes the report's stats in the given format. CSV output is one
// section per chart, separated by blank lines.
func Render(w io.Writer, r *Report, format string) error {
	format, err := ParseFormat(format)
	if err != nil {
		return err
	}
	var st stats.Stats
	if len(r.StatsData) > 0 {
		if err := json.Unmarshal(r.StatsData, &st); err != nil {
			return fmt.Errorf("decoding stats of report %d: %w", r.ID, err)
		}
	}
	if format == FormatMarkdown {
		return renderMarkdown(w, r, &st)
	}
	return renderCSV(w, &st)
}

func renderCSV(w io.Writer, st *stats.Stats) error {
	cw := csv.NewWriter(w)
	for i, sec := range sections(st) {
		if i > 0 {
			cw.Write(nil)
		}
		cw.Write([]string{sec.name})
		cw.Write(sec.header)
		cw.WriteAll(sec.rows)
	}
	cw.Flush()
	return cw.Error()
}

func renderMarkdown(w io.Writer, r *Report, st *stats.Stats) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	if r.PeriodStart != nil && r.PeriodEnd != nil {
		fmt.Fprintf(&b, "Periodo: %s a %s\n\n", day(r.PeriodStart), day(r.PeriodEnd))
	}
	fmt.Fprintf(&b, "Publicado: %s\n", r.PublishedAt.UTC().Format(time.RFC3339))
	for _, sec := range sections(st) {
		fmt.Fprintf(&b, "\n## %s\n\n", sec.title)
		b.WriteString("| " + strings.Join(sec.header, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(sec.header)) + "\n")
		for _, row := range sec.rows {
			escaped := make([]string, len(row))
			for i, cell := range row {
				escaped[i] = strings.ReplaceAll(cell, "|", `\|`)
			}
			b.WriteString("| " + strings.Join(escaped, " | ") + " |\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

type section struct {
	name   string
	title  string
	header []string
	rows   [][]string
}

func sections(st *stats.Stats) []section {
	g := st.General
	general := section{
		name: "general", title: "Resumen",
		header: []string{"metric", "value"},
		rows: [][]string{
			{"total_conversations", strconv.FormatInt(g.TotalConversations, 10)},
			{"total_messages", strconv.FormatInt(g.TotalMessages, 10)},
			{"avg_messages_per_conversation", num(g.AvgMessagesPerConversation)},
			{"first_conversation", stamp(g.FirstConversation)},
			{"last_conversation", stamp(g.LastConversation)},
		},
	}

	byDay := section{name: "conversationsByDay", title: "Conversaciones por día", header: []string{"date", "count"}}
	for _, d := range st.ConversationsByDay {
		byDay.rows = append(byDay.rows, []string{d.Date, strconv.FormatInt(d.Count, 10)})
	}
	countries := section{name: "countries", title: "Países", header: []string{"country", "count"}}
	for _, c := range st.Countries {
		countries.rows = append(countries.rows, []string{c.Country, strconv.FormatInt(c.Count, 10)})
	}
	avg := section{name: "avgMessagesByDay", title: "Promedio de mensajes por día", header: []string{"date", "avg_messages"}}
	for _, d := range st.AvgMessagesByDay {
		avg.rows = append(avg.rows, []string{d.Date, num(d.AvgMessages)})
	}
	topics := section{name: "topics", title: "Temas", header: []string{"topic_name", "count"}}
	for _, t := range st.Topics {
		topics.rows = append(topics.rows, []string{t.TopicName, strconv.FormatInt(t.Count, 10)})
	}
	return []section{general, byDay, countries, avg, topics}
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func stamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func day(t *time.Time) string {
	return t.UTC().Format("2006-01-02")
}
