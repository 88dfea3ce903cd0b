package reassembly

import "unicode/utf8"

// Split cuts text into consecutive fragments of at most size characters,
// the way a store with a fixed text column width would emit it. Cuts fall
// on rune boundaries. A size of zero or less yields the whole text as one
// fragment; empty text yields no fragments.
func Split(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}

	out := make([]string, 0, utf8.RuneCountInString(text)/size+1)
	start, runes := 0, 0
	for i := range text {
		if runes == size {
			out = append(out, text[start:i])
			start, runes = i, 0
		}
		runes++
	}
	return append(out, text[start:])
}
