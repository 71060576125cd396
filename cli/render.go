package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/projdex/projdex/index"
)

var (
	nameStyle = lipgloss.NewStyle().Bold(true)
	pathStyle = lipgloss.NewStyle().Faint(true)
)

// renderTag colors a tag with its registry color when one is set.
func renderTag(eng *index.Engine, tag string) string {
	if c, ok := eng.TagColor(tag); ok {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex())).Render(tag)
	}
	return tag
}

func renderTagList(eng *index.Engine, tagList []string) string {
	parts := make([]string, 0, len(tagList))
	for _, t := range tagList {
		parts = append(parts, renderTag(eng, t))
	}
	return strings.Join(parts, ", ")
}

// tagSwatch renders a small color block for tag listings.
func tagSwatch(c index.TagColor) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex())).Render("██")
}
