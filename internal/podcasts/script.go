package podcasts

import (
	"fmt"
	"strings"

	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
)

// Segment is one spoken unit of the script with its assigned voice.
type Segment struct {
	Voice string
	Text  string
}

// Voices assigned per style. Conversational scripts alternate two hosts.
const (
	voiceHostA    = "alloy"
	voiceHostB    = "onyx"
	voiceNarrator = "nova"
)

const scriptSystemPrompt = `You are a scriptwriter for short business-intelligence podcasts.
Write natural spoken language: no markdown, no headings, no stage directions.
Spell out numbers and abbreviations the way a presenter would say them.`

// scriptPrompt builds the completion request text for a podcast script.
func scriptPrompt(report reports.Report, style string, targetWords int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a podcast script of roughly %d words covering the report %q.\n", targetWords, report.Title)
	fmt.Fprintf(&b, "Companies: %s.\n\n", strings.Join(report.Companies, ", "))

	if style == StyleConversational {
		b.WriteString("Format it as a dialogue between two hosts. Prefix every line with \"HOST A:\" or \"HOST B:\" and alternate naturally.\n\n")
	} else {
		b.WriteString("Format it as a single narrator's monologue in plain paragraphs.\n\n")
	}

	b.WriteString("Source material:\n\n")
	for _, section := range report.Sections {
		content, ok := report.Content[section]
		if !ok || content == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n%s\n\n", section, strings.TrimSpace(content))
	}
	return b.String()
}

// parseScript splits a generated script into voiced segments. Conversational
// scripts split on host markers; narrated scripts split on blank lines.
func parseScript(script, style string) []Segment {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil
	}

	if style != StyleConversational {
		segments := make([]Segment, 0, 8)
		for _, paragraph := range strings.Split(script, "\n\n") {
			paragraph = strings.TrimSpace(paragraph)
			if paragraph == "" {
				continue
			}
			segments = append(segments, Segment{Voice: voiceNarrator, Text: paragraph})
		}
		return segments
	}

	segments := make([]Segment, 0, 16)
	var current *Segment
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		voice, text, marked := splitHostLine(line)
		if marked {
			if current != nil {
				segments = append(segments, *current)
			}
			current = &Segment{Voice: voice, Text: text}
			continue
		}
		if current != nil {
			current.Text += " " + line
			continue
		}
		// Preamble before the first marker reads in the first host's voice.
		current = &Segment{Voice: voiceHostA, Text: line}
	}
	if current != nil {
		segments = append(segments, *current)
	}
	return segments
}

func splitHostLine(line string) (voice, text string, ok bool) {
	upper := strings.ToUpper(line)
	for prefix, v := range map[string]string{
		"HOST A:": voiceHostA,
		"HOST B:": voiceHostB,
	} {
		if strings.HasPrefix(upper, prefix) {
			return v, strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", "", false
}

// estimateDurationSeconds approximates spoken length at presenter pace.
func estimateDurationSeconds(segments []Segment) int {
	words := 0
	for _, segment := range segments {
		words += len(strings.Fields(segment.Text))
	}
	// ~150 words per minute.
	return words * 60 / 150
}
