package systemlog

import "strings"

// ExtractSection returns the lines from the first one containing begin
// through the next one containing end, both inclusive, concatenated. If end
// never appears the section runs to the end of lines. If begin never appears
// the result is empty.
func ExtractSection(lines []string, begin, end string) string {
	start := -1
	for i, l := range lines {
		if strings.Contains(l, begin) {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(lines[start])
	for _, l := range lines[start+1:] {
		b.WriteString(l)
		if strings.Contains(l, end) {
			break
		}
	}
	return b.String()
}

// IsBootBanner reports whether line is the kernel's boot banner, i.e. it
// carries both the kernel tag and the banner phrase.
func IsBootBanner(line, kernelTag, bootMarker string) bool {
	return strings.Contains(line, kernelTag) && strings.Contains(line, bootMarker)
}

// CountBootBanners counts boot banners in a block of log text.
func CountBootBanners(text, kernelTag, bootMarker string) int {
	n := 0
	for _, l := range strings.Split(text, "\n") {
		if IsBootBanner(l, kernelTag, bootMarker) {
			n++
		}
	}
	return n
}
