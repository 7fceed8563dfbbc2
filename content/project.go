// Package content holds the structured portfolio records the assistant
// indexes: the case-study projects edited through the admin panel.
package content

import (
	"fmt"
	"strings"
	"time"
)

type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
	Enabled bool   `json:"enabled"`
}

type Project struct {
	ID          string
	Title       string
	Tags        []string
	Year        int
	Description string
	Sections    []Section
	Featured    bool
	SortOrder   int
	UpdatedAt   time.Time
}

// SearchText synthesizes the text blob the project is embedded under. The
// field order is fixed so re-syncing an unchanged project produces an
// identical blob: title, tags, year, description, enabled sections.
func (p Project) SearchText() string {
	var sb strings.Builder

	sb.WriteString(p.Title)
	if len(p.Tags) > 0 {
		sb.WriteString("\nTags: ")
		sb.WriteString(strings.Join(p.Tags, ", "))
	}
	if p.Year > 0 {
		sb.WriteString(fmt.Sprintf("\nYear: %d", p.Year))
	}
	if strings.TrimSpace(p.Description) != "" {
		sb.WriteString("\n")
		sb.WriteString(p.Description)
	}
	for _, section := range p.Sections {
		if !section.Enabled {
			continue
		}
		if strings.TrimSpace(section.Body) == "" {
			continue
		}
		sb.WriteString("\n")
		if section.Heading != "" {
			sb.WriteString(section.Heading)
			sb.WriteString(": ")
		}
		sb.WriteString(section.Body)
	}

	return sb.String()
}
