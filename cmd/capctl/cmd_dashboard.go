// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/capgateway/internal/api"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "interactive terminal view of live ranked results and per-head weights",
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

// runDashboard loops: prompt for an intent with a huh form, rank it against
// the connected gatewayd instance, then show the ranked list and per-head
// weights in a bubbletea table view until the operator asks for another
// query or quits.
func runDashboard(cmd *cobra.Command, _ []string) error {
	c := newClient(addrFlag)

	for {
		intent, ok, err := promptIntent()
		if err != nil {
			return fmt.Errorf("reading intent: %w", err)
		}
		if !ok {
			return nil
		}

		resp, err := c.rank(context.Background(), api.RankRequest{Intent: intent, Limit: 20})
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "rank failed: %v\n", err)
			continue
		}

		again, err := showResults(intent, resp)
		if err != nil {
			return fmt.Errorf("running dashboard view: %w", err)
		}
		if !again {
			return nil
		}
	}
}

// promptIntent shows a huh form asking for the next intent to rank.
// ok is false when the operator cancels (Esc/Ctrl+C), ending the loop.
func promptIntent() (intent string, ok bool, err error) {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Intent").
				Description("Describe the task capgateway should rank candidates for").
				Value(&intent),
		),
	)
	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			return "", false, nil
		}
		return "", false, err
	}
	if strings.TrimSpace(intent) == "" {
		return "", false, nil
	}
	return intent, true, nil
}

type dashboardModel struct {
	intent  string
	table   table.Model
	results []api.RankResultDTO
	again   bool
}

func newDashboardModel(intent string, resp api.RankResponse) dashboardModel {
	cols := []table.Column{
		{Title: "ID", Width: 28},
		{Title: "Kind", Width: 12},
		{Title: "Score", Width: 8},
		{Title: "Semantic", Width: 10},
		{Title: "Graph", Width: 8},
		{Title: "Reliability", Width: 12},
		{Title: "Head Weights", Width: 30},
	}
	rows := make([]table.Row, 0, len(resp.Results))
	for _, r := range resp.Results {
		rows = append(rows, table.Row{
			r.ID, r.Kind,
			fmt.Sprintf("%.3f", r.Score),
			fmt.Sprintf("%.3f", r.Semantic),
			fmt.Sprintf("%.3f", r.Graph),
			fmt.Sprintf("%.3f", r.Reliability),
			formatHeadWeights(r.HeadWeights),
		})
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(len(rows)+1, 20)),
	)
	style := table.DefaultStyles()
	style.Header = style.Header.BorderStyle(lipgloss.NormalBorder()).Bold(true)
	style.Selected = style.Selected.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6"))
	t.SetStyles(style)

	return dashboardModel{intent: intent, table: t, results: resp.Results}
}

func formatHeadWeights(weights []float64) string {
	if len(weights) == 0 {
		return "-"
	}
	parts := make([]string, len(weights))
	for i, w := range weights {
		parts[i] = fmt.Sprintf("%.2f", w)
	}
	return strings.Join(parts, " ")
}

func (m dashboardModel) Init() tea.Cmd { return nil }

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "n":
			m.again = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

var dashboardTitleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var dashboardHintStyle = lipgloss.NewStyle().Faint(true).Padding(1, 1, 0)

func (m dashboardModel) View() string {
	var b strings.Builder
	b.WriteString(dashboardTitleStyle.Render(fmt.Sprintf("capgateway — ranked for %q", m.intent)))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(dashboardHintStyle.Render("n: new query   q: quit"))
	return b.String()
}

// showResults runs the bubbletea table view for one rank response. It
// returns again=true when the operator pressed "n" to rank another intent.
func showResults(intent string, resp api.RankResponse) (again bool, err error) {
	model := newDashboardModel(intent, resp)
	finalModel, err := tea.NewProgram(model).Run()
	if err != nil {
		return false, err
	}
	return finalModel.(dashboardModel).again, nil
}
