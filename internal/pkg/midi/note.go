package midi

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var stringToNoteRegex = regexp.MustCompile(`^([a-gA-G]#?)(-?\d+)$`)

var pitchToVal = map[string]int{
	"C": 0, "C#": 1, "D": 2, "D#": 3,
	"E": 4, "F": 5, "F#": 6, "G": 7,
	"G#": 8, "A": 9, "A#": 10, "B": 11,
}

// StringToNote parses note names like "C#-2", "d1" or "G8" into a note number.
func StringToNote(note string) (byte, error) {
	match := stringToNoteRegex.FindStringSubmatch(note)
	if len(match) == 0 {
		return 0, fmt.Errorf("unsupported note format: %q", note)
	}

	val, ok := pitchToVal[strings.ToUpper(match[1])]
	if !ok {
		return 0, fmt.Errorf("unknown pitch: %q", match[1])
	}
	octave, err := strconv.Atoi(match[2])
	if err != nil {
		return 0, fmt.Errorf("parsing octave failed: %w", err)
	}

	calculated := (octave+2)*12 + val
	if calculated < 0 || calculated > MaxValue {
		return 0, fmt.Errorf("note outside of midi range 0-127: %d", calculated)
	}
	return byte(calculated), nil
}

// ParseNote accepts either a plain note number or a note name.
func ParseNote(s string) (byte, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > MaxValue {
			return 0, fmt.Errorf("note outside of midi range 0-127: %d", n)
		}
		return byte(n), nil
	}
	return StringToNote(s)
}
