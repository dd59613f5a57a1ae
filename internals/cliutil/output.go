package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Oudwins/taskforge/internals/prs"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/workspaces"
)

var (
	statusColors = map[string]lipgloss.Color{
		"todo":       "#AAAAAA",
		"inprogress": "#5B8DEF",
		"inreview":   "#E5C07B",
		"done":       "#98C379",
		"cancelled":  "#888888",
		"open":       "#5B8DEF",
		"merged":     "#98C379",
		"closed":     "#FF6B6B",
		"pending":    "#E5C07B",
		"retrying":   "#E5C07B",
		"success":    "#98C379",
		"failed":     "#FF6B6B",
		"ready":      "#98C379",
		"running":    "#5B8DEF",
		"completed":  "#98C379",
	}
)

// Printer renders API results either as tables or, with JSON set, as
// indented JSON. Colour follows the writer: pipes and buffers get plain text.
type Printer struct {
	W    io.Writer
	JSON bool
	Now  func() time.Time

	r           *lipgloss.Renderer
	headerStyle lipgloss.Style
	labelStyle  lipgloss.Style
	dimStyle    lipgloss.Style
}

func NewPrinter(w io.Writer, asJSON bool) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		W:           w,
		JSON:        asJSON,
		Now:         time.Now,
		r:           r,
		headerStyle: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		labelStyle:  r.NewStyle().Foreground(lipgloss.Color("#888888")),
		dimStyle:    r.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
	}
}

func (p *Printer) encode(v any) error {
	enc := json.NewEncoder(p.W)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, p.Now(), "ago", "from now")
}

func (p *Printer) status(s string) string {
	color, ok := statusColors[s]
	if !ok {
		return s
	}
	return p.r.NewStyle().Foreground(color).Render(s)
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// table pads every column to its widest cell. Widths are measured with
// lipgloss so styled cells line up.
func (p *Printer) table(headers []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(p.W, p.dimStyle.Render("(none)"))
		return err
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	line := func(cells []string, style *lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if style != nil {
				cell = style.Render(cell)
			}
			pad := widths[i] - lipgloss.Width(cell)
			if pad < 0 {
				pad = 0
			}
			parts[i] = cell + strings.Repeat(" ", pad)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}
	if _, err := fmt.Fprintln(p.W, line(headers, &p.headerStyle)); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(p.W, line(row, nil)); err != nil {
			return err
		}
	}
	return nil
}

// fields prints aligned label/value pairs.
func (p *Printer) fields(pairs ...[2]string) error {
	width := 0
	for _, pair := range pairs {
		if len(pair[0]) > width {
			width = len(pair[0])
		}
	}
	for _, pair := range pairs {
		label := p.labelStyle.Render(pair[0] + ":" + strings.Repeat(" ", width-len(pair[0])))
		if _, err := fmt.Fprintf(p.W, "%s %s\n", label, pair[1]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) Projects(list []store.Project) error {
	if p.JSON {
		return p.encode(list)
	}
	rows := make([][]string, 0, len(list))
	for _, project := range list {
		rows = append(rows, []string{project.ID, project.Name, p.ago(project.CreatedAt)})
	}
	return p.table([]string{"ID", "NAME", "CREATED"}, rows)
}

func (p *Printer) Repos(list []store.Repo) error {
	if p.JSON {
		return p.encode(list)
	}
	rows := make([][]string, 0, len(list))
	for _, repo := range list {
		rows = append(rows, []string{repo.ID, repo.Name, repo.DefaultTargetBranch, repo.Path})
	}
	return p.table([]string{"ID", "NAME", "TARGET", "PATH"}, rows)
}

func (p *Printer) Tasks(list []store.Task) error {
	if p.JSON {
		return p.encode(list)
	}
	rows := make([][]string, 0, len(list))
	for _, task := range list {
		rows = append(rows, []string{task.ID, p.status(string(task.Status)), deref(task.Assignee), task.Title, p.ago(task.UpdatedAt)})
	}
	return p.table([]string{"ID", "STATUS", "ASSIGNEE", "TITLE", "UPDATED"}, rows)
}

func (p *Printer) Task(task *store.Task) error {
	if p.JSON {
		return p.encode(task)
	}
	return p.fields(
		[2]string{"id", task.ID},
		[2]string{"title", task.Title},
		[2]string{"status", p.status(string(task.Status))},
		[2]string{"assignee", deref(task.Assignee)},
		[2]string{"description", deref(task.Description)},
		[2]string{"parent", deref(task.ParentWorkspaceID)},
		[2]string{"created", p.ago(task.CreatedAt)},
		[2]string{"updated", p.ago(task.UpdatedAt)},
	)
}

func (p *Printer) History(list []store.HistoryEntry) error {
	if p.JSON {
		return p.encode(list)
	}
	rows := make([][]string, 0, len(list))
	for _, entry := range list {
		rows = append(rows, []string{p.ago(entry.ChangedAt), entry.FieldChanged, deref(entry.OldValue), deref(entry.NewValue), entry.ChangedBy})
	}
	return p.table([]string{"WHEN", "FIELD", "FROM", "TO", "BY"}, rows)
}

func (p *Printer) Comments(list []store.Comment) error {
	if p.JSON {
		return p.encode(list)
	}
	for _, comment := range list {
		header := p.headerStyle.Render(comment.Author) + " " + p.dimStyle.Render(p.ago(comment.CreatedAt))
		if _, err := fmt.Fprintf(p.W, "%s\n%s\n\n", header, comment.Content); err != nil {
			return err
		}
	}
	return nil
}

func (p *Printer) Activity(list []store.ActivityEntry) error {
	if p.JSON {
		return p.encode(list)
	}
	rows := make([][]string, 0, len(list))
	for _, entry := range list {
		rows = append(rows, []string{p.ago(entry.Timestamp), entry.AgentName, entry.Action, deref(entry.Summary)})
	}
	return p.table([]string{"WHEN", "AGENT", "ACTION", "SUMMARY"}, rows)
}

func (p *Printer) Workspaces(list []store.Workspace) error {
	if p.JSON {
		return p.encode(list)
	}
	rows := make([][]string, 0, len(list))
	for i := range list {
		ws := &list[i]
		rows = append(rows, []string{ws.ID, string(ws.Mode), p.status(ws.SetupState()), ws.BranchName, p.ago(ws.LastActivityAt)})
	}
	return p.table([]string{"ID", "MODE", "SETUP", "BRANCH", "ACTIVE"}, rows)
}

func (p *Printer) Started(result *workspaces.StartResult) error {
	if p.JSON {
		return p.encode(result)
	}
	if err := p.fields(
		[2]string{"workspace", result.Workspace.ID},
		[2]string{"session", result.Session.ID},
		[2]string{"mode", string(result.Workspace.Mode)},
		[2]string{"setup", p.status(result.Workspace.SetupState())},
		[2]string{"branch", result.Workspace.BranchName},
	); err != nil {
		return err
	}
	rows := make([][]string, 0, len(result.Repos))
	for _, repo := range result.Repos {
		rows = append(rows, []string{repo.RepoName, repo.BaseBranch, repo.WorkingDirectory})
	}
	return p.table([]string{"REPO", "BASE", "DIRECTORY"}, rows)
}

func (p *Printer) Workspace(details *workspaces.Details) error {
	if p.JSON {
		return p.encode(details)
	}
	pairs := [][2]string{
		{"id", details.ID},
		{"task", details.TaskID},
		{"mode", string(details.Mode)},
		{"setup", p.status(details.SetupState)},
		{"branch", details.BranchName},
		{"container", deref(details.ContainerRef)},
		{"last active", p.ago(details.LastActivityAt)},
	}
	if details.SetupError != nil {
		pairs = append(pairs, [2]string{"setup error", *details.SetupError})
	}
	if details.CleanedAt != nil {
		pairs = append(pairs, [2]string{"cleaned", p.ago(*details.CleanedAt)})
	}
	if err := p.fields(pairs...); err != nil {
		return err
	}
	rows := make([][]string, 0, len(details.Repos))
	for _, repo := range details.Repos {
		rows = append(rows, []string{repo.RepoID, repo.RepoName, repo.TargetBranch, repo.RepoPath})
	}
	if err := p.table([]string{"REPO", "NAME", "TARGET", "PATH"}, rows); err != nil {
		return err
	}
	sessions := make([][]string, 0, len(details.Sessions))
	for _, session := range details.Sessions {
		sessions = append(sessions, []string{session.ID, session.Executor, p.status(string(session.Status)), p.ago(session.CreatedAt)})
	}
	return p.table([]string{"SESSION", "EXECUTOR", "STATUS", "STARTED"}, sessions)
}

func (p *Printer) PRStatus(s *prs.Status) error {
	if p.JSON {
		return p.encode(s)
	}
	if !s.HasPR {
		_, err := fmt.Fprintln(p.W, p.dimStyle.Render("no pull request"))
		return err
	}
	pairs := [][2]string{{"status", p.status(string(s.Status))}}
	if s.PRNumber != nil {
		pairs = append(pairs, [2]string{"number", "#" + strconv.FormatInt(*s.PRNumber, 10)})
	}
	if s.PRURL != nil {
		pairs = append(pairs, [2]string{"url", Link(*s.PRURL, *s.PRURL)})
	}
	if s.MergedAt != nil {
		pairs = append(pairs, [2]string{"merged", *s.MergedAt})
	}
	return p.fields(pairs...)
}

func (p *Printer) Merges(list []store.MergeRecord) error {
	if p.JSON {
		return p.encode(list)
	}
	rows := make([][]string, 0, len(list))
	for i := range list {
		record := &list[i]
		kind, state, ref := "-", "-", "-"
		switch merge := record.Merge.(type) {
		case *store.PRMerge:
			kind, state, ref = string(store.MergeKindPR), p.status(string(merge.Status)), Link("#"+strconv.FormatInt(merge.Number, 10), merge.URL)
		case *store.DirectMerge:
			kind, state, ref = string(store.MergeKindDirect), p.status("merged"), merge.CommitHash
		}
		rows = append(rows, []string{record.RepoID, kind, state, ref, record.TargetBranch, p.ago(record.CreatedAt)})
	}
	return p.table([]string{"REPO", "KIND", "STATUS", "REF", "TARGET", "CREATED"}, rows)
}

func (p *Printer) Webhooks(list []store.Webhook) error {
	if p.JSON {
		return p.encode(list)
	}
	rows := make([][]string, 0, len(list))
	for _, hook := range list {
		events := "*"
		if len(hook.Events) > 0 {
			events = strings.Join(hook.Events, ",")
		}
		active := "yes"
		if !hook.IsActive {
			active = "no"
		}
		rows = append(rows, []string{hook.ID, hook.URL, events, active})
	}
	return p.table([]string{"ID", "URL", "EVENTS", "ACTIVE"}, rows)
}

func (p *Printer) Deliveries(list []store.Delivery) error {
	if p.JSON {
		return p.encode(list)
	}
	rows := make([][]string, 0, len(list))
	for _, d := range list {
		code := "-"
		if d.ResponseStatus != nil {
			code = strconv.Itoa(*d.ResponseStatus)
		}
		next := "-"
		if d.NextRetryAt != nil {
			next = p.ago(*d.NextRetryAt)
		}
		rows = append(rows, []string{d.ID, d.EventType, p.status(string(d.Status)), strconv.Itoa(d.Attempts), code, next, p.ago(d.CreatedAt)})
	}
	return p.table([]string{"ID", "EVENT", "STATUS", "ATTEMPTS", "HTTP", "NEXT RETRY", "CREATED"}, rows)
}

// Any prints v as JSON regardless of mode. Used for results with no table
// form.
func (p *Printer) Any(v any) error {
	return p.encode(v)
}
