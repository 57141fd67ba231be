package cardstream

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	trailingObjectPattern = regexp.MustCompile(`\{[\s\S]*?\}\s*$`)
	widestObjectPattern   = regexp.MustCompile(`\{[\s\S]*\}`)
	codeFencePattern      = regexp.MustCompile("```json|```")
	trailingCommaPattern  = regexp.MustCompile(`,\s*([}\]])`)
)

// maxRepairCuts bounds how many times a truncated buffer is shortened before giving up.
const maxRepairCuts = 8

type flashcardEnvelope struct {
	Flashcards []FlashcardDraft `json:"flashcards"`
}

type parseResult struct {
	cards []FlashcardDraft
	// lastOpen is set when the final array element was cut off mid-object.
	lastOpen bool
}

// locateObject finds the JSON object span, preferring one that ends the buffer so
// trailing whitespace after the object is skipped.
func locateObject(buffer string) (string, bool) {
	if m := trailingObjectPattern.FindString(buffer); m != "" {
		return m, true
	}
	if m := widestObjectPattern.FindString(buffer); m != "" {
		return m, true
	}
	return "", false
}

func stripFences(s string) string {
	return strings.TrimSpace(codeFencePattern.ReplaceAllString(s, ""))
}

func decodeEnvelope(text string) ([]FlashcardDraft, error) {
	var env flashcardEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, err
	}
	return env.Flashcards, nil
}

// parseStructured runs the strict parse and the trailing-comma repair.
func parseStructured(buffer string) (parseResult, error) {
	span, ok := locateObject(buffer)
	if !ok {
		return parseResult{}, ErrNoJSONObject
	}
	text := stripFences(span)

	cards, err := decodeEnvelope(text)
	if err == nil {
		return parseResult{cards: cards}, nil
	}

	fixed := trailingCommaPattern.ReplaceAllString(text, "$1")
	cards, err = decodeEnvelope(fixed)
	if err == nil {
		return parseResult{cards: cards}, nil
	}
	return parseResult{}, ErrInvalidFormat
}

// parseTruncated closes an unterminated response (open string, open brackets) and
// decodes it. A dangling key or partial escape is cut back to the previous member.
func parseTruncated(buffer string) (parseResult, error) {
	start := strings.Index(buffer, "{")
	if start < 0 {
		return parseResult{}, ErrNoJSONObject
	}
	text := stripFences(buffer[start:])

	for i := 0; i < maxRepairCuts; i++ {
		closed, cardOpen := closeOpenJSON(text)
		if cards, err := decodeEnvelope(closed); err == nil {
			return parseResult{cards: cards, lastOpen: cardOpen}, nil
		}
		shorter, ok := cutToPreviousMember(text)
		if !ok {
			break
		}
		text = shorter
	}
	return parseResult{}, ErrInvalidFormat
}

type openContainer struct {
	kind byte
	// key is the object member this container is the value of, if any.
	key string
}

// closeOpenJSON appends whatever is needed to balance s. cardOpen reports whether a
// card object inside the flashcards array was still open.
func closeOpenJSON(s string) (closed string, cardOpen bool) {
	var stack []openContainer
	inString, escaped := false, false
	strStart, escStart, hexLeft := 0, 0, 0
	lastKey := ""

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case hexLeft > 0:
				hexLeft--
			case escaped:
				escaped = false
				if c == 'u' {
					hexLeft = 4
				}
			case c == '\\':
				escaped = true
				escStart = i
			case c == '"':
				inString = false
				lastKey = s[strStart+1 : i]
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			strStart = i
		case '{', '[':
			key := ""
			if n := len(stack); n > 0 && stack[n-1].kind == '{' {
				key = lastKey
			}
			stack = append(stack, openContainer{kind: c, key: key})
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	out := s
	if inString {
		// A partial escape cannot be closed; drop it with the quote added after it.
		if escaped || hexLeft > 0 {
			out = out[:escStart]
		}
		b.WriteString(out)
		b.WriteByte('"')
	} else {
		out = strings.TrimRight(out, " \t\r\n")
		out = strings.TrimSuffix(out, ",")
		b.WriteString(out)
		if strings.HasSuffix(out, ":") {
			b.WriteString("null")
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].kind == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}

	cardOpen = len(stack) >= 3 &&
		stack[1].kind == '[' && stack[1].key == "flashcards" &&
		stack[2].kind == '{'
	return b.String(), cardOpen
}

// cutToPreviousMember drops the last partial member of s: everything from the last
// comma outside a string, or everything after the last opening bracket.
func cutToPreviousMember(s string) (string, bool) {
	inString, escaped := false, false
	cut := -1

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			cut = i
		case '{', '[':
			if i+1 < len(s) {
				cut = i + 1
			}
		}
	}

	if cut <= 0 || cut >= len(s) {
		return "", false
	}
	return s[:cut], true
}
