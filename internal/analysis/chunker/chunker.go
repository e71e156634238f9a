package chunker

import (
	"path/filepath"
	"strings"
)

// Mode selects a chunking strategy.
type Mode string

const (
	// ModeWord packs whole sentences while the word estimate stays under the limit.
	ModeWord Mode = "word"
	// ModeHeader emits one chunk per paragraph, prefixed with the governing header.
	ModeHeader Mode = "header"
	// ModeAuto picks ModeHeader for markdown sources and ModeWord otherwise.
	ModeAuto Mode = "auto"
)

const (
	sentenceSeparator = "."
	sentenceJoiner    = ". "
	headerMarker      = "#"
)

// ParseMode normalizes a configured mode, defaulting to ModeAuto.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeWord:
		return ModeWord, true
	case ModeHeader:
		return ModeHeader, true
	case ModeAuto, "":
		return ModeAuto, true
	default:
		return "", false
	}
}

// ModeForPath resolves ModeAuto against the source file extension.
func ModeForPath(mode Mode, path string) Mode {
	if mode != ModeAuto {
		return mode
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return ModeHeader
	default:
		return ModeWord
	}
}

// Chunk splits text with the requested strategy. ModeAuto falls back to ModeWord
// because there is no path to inspect.
func Chunk(text string, maxWords int, mode Mode) []string {
	if mode == ModeHeader {
		return HeaderAware(text, maxWords)
	}
	return WordBounded(text, maxWords)
}

// WordBounded splits text on sentence boundaries and packs sentences into
// chunks whose word estimate stays within maxWords. A sentence that alone
// exceeds maxWords becomes its own chunk.
func WordBounded(text string, maxWords int) []string {
	text = strings.ToValidUTF8(text, "")

	var (
		chunks  []string
		current []string
		count   int
	)
	for _, raw := range strings.Split(text, sentenceSeparator) {
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}

		words := WordCount(sentence)
		if count+words <= maxWords || len(current) == 0 {
			current = append(current, sentence)
			count += words
			continue
		}

		chunks = append(chunks, strings.Join(current, sentenceJoiner))
		current = []string{sentence}
		count = words
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, sentenceJoiner))
	}
	return chunks
}

// HeaderAware walks text line by line. Header lines become the running prefix,
// blank lines close paragraphs, and every chunk reads "{header}\n{paragraph}".
// When maxWords is positive a growing paragraph is also closed at the line
// boundary that would push it past the limit.
func HeaderAware(text string, maxWords int) []string {
	text = strings.ToValidUTF8(text, "")

	var (
		chunks    []string
		header    string
		paragraph []string
		count     int
	)
	flush := func() {
		if len(paragraph) > 0 {
			chunks = append(chunks, header+"\n"+strings.Join(paragraph, "\n"))
		}
		paragraph = paragraph[:0]
		count = 0
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		switch {
		case strings.HasPrefix(line, headerMarker):
			flush()
			header = line
		case line == "":
			flush()
		default:
			words := WordCount(line)
			if maxWords > 0 && len(paragraph) > 0 && count+words > maxWords {
				flush()
			}
			paragraph = append(paragraph, line)
			count += words
		}
	}
	flush()
	return chunks
}

// WordCount estimates tokens as whitespace-delimited words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
