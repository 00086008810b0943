package gemini

import "strings"

// maxIdeas caps how many parsed ideas a response can yield.
const maxIdeas = 5

// Idea is one structured content suggestion parsed from provider text.
type Idea struct {
	Title  string `json:"title"`
	Format string `json:"format"`
	Angle  string `json:"angle"`
}

// ParseIdeas extracts up to five ideas from the provider's free text.
// Sections are split on every "---" occurrence; within a section,
// title/format/angle prefixes are matched case-insensitively. A section
// is kept only when all three fields are present; malformed sections
// are skipped without error. This is a best-effort parse, not a grammar.
func ParseIdeas(raw string) []Idea {
	ideas := make([]Idea, 0, maxIdeas)
	for _, section := range strings.Split(raw, "---") {
		idea, ok := parseSection(section)
		if !ok {
			continue
		}
		ideas = append(ideas, idea)
		if len(ideas) == maxIdeas {
			break
		}
	}
	return ideas
}

// parseSection scans one delimited section for the three idea fields.
func parseSection(section string) (Idea, bool) {
	var idea Idea
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		lowered := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lowered, "title:"):
			idea.Title = strings.TrimSpace(line[len("title:"):])
		case strings.HasPrefix(lowered, "format:"):
			idea.Format = strings.TrimSpace(line[len("format:"):])
		case strings.HasPrefix(lowered, "angle:"):
			idea.Angle = strings.TrimSpace(line[len("angle:"):])
		}
	}
	if idea.Title == "" || idea.Format == "" || idea.Angle == "" {
		return Idea{}, false
	}
	return idea, true
}
