package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"voicestudio/internal/client"
	"voicestudio/internal/domain"
)

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	watchOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	watchPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type (
	jobMsg    struct{ job *client.Job }
	pollErr   struct{ err error }
	tickMsg   struct{}
	cancelMsg struct{ err error }
)

type watchModel struct {
	ctx      context.Context
	client   *client.Client
	jobID    string
	interval time.Duration
	bar      progress.Model

	job        *client.Job
	lastErr    error
	fatal      error
	cancelling bool
	detached   bool
}

func newWatchModel(ctx context.Context, c *client.Client, jobID string, interval time.Duration) watchModel {
	return watchModel{
		ctx:      ctx,
		client:   c,
		jobID:    jobID,
		interval: interval,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(48)),
	}
}

func watchInteractive(ctx context.Context, c *client.Client, jobID string, interval time.Duration) (*client.Job, error) {
	final, err := tea.NewProgram(newWatchModel(ctx, c, jobID, interval), tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, err
	}
	m := final.(watchModel)
	if m.fatal != nil {
		return nil, m.fatal
	}
	if m.detached {
		return nil, nil
	}
	return m.job, nil
}

func (m watchModel) Init() tea.Cmd {
	return m.poll()
}

func (m watchModel) poll() tea.Cmd {
	return func() tea.Msg {
		job, err := m.client.Status(m.ctx, m.jobID)
		if err != nil {
			return pollErr{err: err}
		}
		return jobMsg{job: job}
	}
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-8, 64))
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.detached = true
			return m, tea.Quit
		case "c":
			if m.cancelling || (m.job != nil && m.job.Status.Terminal()) {
				return m, nil
			}
			m.cancelling = true
			return m, func() tea.Msg {
				_, err := m.client.Cancel(m.ctx, m.jobID)
				return cancelMsg{err: err}
			}
		}
		return m, nil
	case jobMsg:
		m.job = msg.job
		m.lastErr = nil
		if m.job.Status.Terminal() {
			return m, tea.Quit
		}
		return m, m.tick()
	case pollErr:
		var apiErr *client.APIError
		if errors.As(msg.err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			m.fatal = msg.err
			return m, tea.Quit
		}
		m.lastErr = msg.err
		return m, m.tick()
	case cancelMsg:
		if msg.err != nil {
			m.cancelling = false
			m.lastErr = msg.err
		}
		return m, nil
	case tickMsg:
		return m, m.poll()
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(watchTitleStyle.Render("generation " + m.jobID))
	b.WriteString("\n\n")

	if m.job == nil {
		b.WriteString(watchMutedStyle.Render("loading..."))
	} else {
		j := m.job
		b.WriteString(m.bar.ViewAs(j.Progress / 100))
		b.WriteString("\n")
		b.WriteString(statusText(j))
		b.WriteString("\n")
		var details []string
		if j.TotalChunks > 0 {
			details = append(details, fmt.Sprintf("chunk %d/%d  %.0f%%", min(j.CurrentChunk+1, j.TotalChunks), j.TotalChunks, j.ChunkProgress))
		}
		if eta := j.ETA(); eta > 0 && !j.Status.Terminal() {
			details = append(details, "eta "+eta.Round(time.Second).String())
		}
		if j.CancelRequested && !j.Status.Terminal() {
			details = append(details, "cancel requested")
		}
		if len(details) > 0 {
			b.WriteString(watchMutedStyle.Render(strings.Join(details, "  ·  ")))
			b.WriteString("\n")
		}
	}
	if m.lastErr != nil {
		b.WriteString(watchErrorStyle.Render("retrying: " + m.lastErr.Error()))
		b.WriteString("\n")
	}

	hints := "q detach"
	if m.job == nil || !m.job.Status.Terminal() {
		hints += " · c cancel job"
	}
	return watchPanelStyle.Render(b.String()) + "\n" + watchMutedStyle.Render(hints) + "\n"
}

func statusText(j *client.Job) string {
	switch j.Status {
	case domain.JobStatusCompleted:
		return watchOKStyle.Render("completed")
	case domain.JobStatusFailed:
		return watchErrorStyle.Render("failed: " + j.ErrorMessage)
	case domain.JobStatusCancelled:
		return watchErrorStyle.Render("cancelled")
	case domain.JobStatusQueued:
		return "waiting in queue"
	case domain.JobStatusLoadingModel:
		return "loading model"
	case domain.JobStatusGenerating:
		return "generating audio"
	case domain.JobStatusStitching:
		return "stitching chunks"
	}
	return string(j.Status)
}
