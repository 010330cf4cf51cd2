package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/mhfrantz/travopt/internal/codec"
	"github.com/mhfrantz/travopt/internal/engine"
)

var tuiCmd = &cobra.Command{
	Use:   "tui <pipeline.json>",
	Short: "Interactively compare a pipeline before and after optimization",
	Long: `Opens a terminal UI showing the serialized pipeline before and
after the strategy catalog runs over it, side by side. Press tab to
switch focus between panes, arrow keys or j/k to scroll, q to quit.`,
	Args: cobra.ExactArgs(1),
	RunE: runTUI,
}

var (
	tuiBorderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())
	tuiActiveStyle = tuiBorderStyle.BorderForeground(lipgloss.Color("205"))
	tuiTitleStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

type pane int

const (
	paneBefore pane = iota
	paneAfter
)

type tuiModel struct {
	before, after viewport.Model
	focused       pane
	width, height int
}

func runTUI(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read pipeline file: %w", err)
	}
	p, err := codec.UnmarshalJSON(data)
	if err != nil {
		return fmt.Errorf("decode pipeline: %w", err)
	}
	beforeJSON, err := codec.MarshalJSON(p)
	if err != nil {
		return fmt.Errorf("encode pipeline: %w", err)
	}

	tag, err := resolveEngineTag(applyEngine)
	if err != nil {
		return err
	}
	binding, err := engine.NewBinding(tag)
	if err != nil {
		return fmt.Errorf("build strategy binding: %w", err)
	}
	if err := binding.Apply(p); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	afterJSON, err := codec.MarshalJSON(p)
	if err != nil {
		return fmt.Errorf("encode optimized pipeline: %w", err)
	}

	before := viewport.New(40, 20)
	before.SetContent(string(beforeJSON))
	after := viewport.New(40, 20)
	after.SetContent(string(afterJSON))

	m := tuiModel{before: before, after: after, focused: paneBefore}

	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err = prog.Run()
	return err
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		half := (msg.Width / 2) - 4
		m.before.Width, m.after.Width = half, half
		m.before.Height, m.after.Height = msg.Height-6, msg.Height-6
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			if m.focused == paneBefore {
				m.focused = paneAfter
			} else {
				m.focused = paneBefore
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.focused == paneBefore {
		m.before, cmd = m.before.Update(msg)
	} else {
		m.after, cmd = m.after.Update(msg)
	}
	return m, cmd
}

func (m tuiModel) View() string {
	beforeStyle, afterStyle := tuiBorderStyle, tuiBorderStyle
	if m.focused == paneBefore {
		beforeStyle = tuiActiveStyle
	} else {
		afterStyle = tuiActiveStyle
	}

	beforePane := beforeStyle.Render(tuiTitleStyle.Render("before") + "\n" + m.before.View())
	afterPane := afterStyle.Render(tuiTitleStyle.Render("after") + "\n" + m.after.View())

	return lipgloss.JoinHorizontal(lipgloss.Top, beforePane, afterPane) +
		"\n" + lipgloss.NewStyle().Faint(true).Render("tab: switch pane  ↑/↓ j/k: scroll  q: quit")
}
