// Package format renders query results for the tool surface: compact
// text, JSON, and a TOON tabular encoding that large result sets switch
// to automatically.
package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/toon-format/toon-go"
)

// Output selects the wire rendering of a tool result.
type Output string

const (
	OutputJSON    Output = "json"
	OutputText    Output = "text"
	OutputCompact Output = "compact"
	OutputAuto    Output = "auto"
)

// autoCompactThreshold is the row count at which auto mode switches
// from text to the tabular encoding.
const autoCompactThreshold = 20

// ParseOutput validates an output selector, defaulting empty to auto.
func ParseOutput(s string) (Output, error) {
	switch Output(s) {
	case OutputJSON, OutputText, OutputCompact, OutputAuto:
		return Output(s), nil
	case "":
		return OutputAuto, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// Render serializes value per the selected output. rowCount drives the
// auto switch; textRender produces the human layout.
func Render(output Output, value any, rowCount int, textRender func() string) (string, error) {
	switch output {
	case OutputJSON:
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal json: %w", err)
		}
		return string(data), nil

	case OutputCompact:
		return MarshalTOON(value), nil

	case OutputText:
		return textRender(), nil

	default: // auto
		if rowCount >= autoCompactThreshold {
			return MarshalTOON(value), nil
		}
		return textRender(), nil
	}
}

// MarshalTOON converts a value into the TOON tabular text encoding,
// which round-trips losslessly back to the structured form. Failures
// return a readable error string so tools always answer.
func MarshalTOON(value any) string {
	out, err := toon.MarshalString(value, toon.WithLengthMarkers(true))
	if err != nil {
		return fmt.Sprintf("error: failed to marshal to TOON: %v", err)
	}
	return out
}

// UnmarshalTOON decodes a TOON document back into a value.
func UnmarshalTOON(data string, target any) error {
	return toon.Unmarshal([]byte(data), target)
}

// Line builds one compact location line: "path:line → detail".
func Line(path string, line int, detail string) string {
	return fmt.Sprintf("%s:%d → %s", path, line, detail)
}

// Section renders a titled block of lines with two-space indentation.
func Section(title string, lines []string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for _, l := range lines {
		b.WriteString("  ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}
