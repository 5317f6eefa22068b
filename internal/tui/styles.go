package tui

import "charm.land/lipgloss/v2"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))

	userLabelStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5DADE2"))
	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#58D68D"))
	toolStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("#AF7AC5")).Faint(true)
	mediaStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F"))
	bookmarkStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#F1C40F"))
	selectedStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C")).Bold(true)
	cursorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)

	activeBorder   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#7D56F4"))
	inactiveBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444"))

	sidebarItemStyle     = lipgloss.NewStyle()
	sidebarSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	sidebarOpenStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#58D68D"))
)
