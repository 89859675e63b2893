// Package release identifies the running distribution and kernel.
package release

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

var (
	releasePattern   = regexp.MustCompile(`^(?P<product>[a-zA-Z ]+)release\s+(?P<number>[0-9.]+)\s*(?P<label>Beta?)*`)
	previewPattern   = regexp.MustCompile(`^(?P<product>[a-zA-Z ]+)\([a-zA-Z ]+release\s+(?P<number>[0-9.]+)\)`)
	trailerPattern   = regexp.MustCompile(`^(?P<candidate>[^()]*)(\((?P<name>[a-zA-Z0-9 ]+)\))?`)
	kernelTagPattern = regexp.MustCompile(`(?P<product>\.ael|\.el|\.fc|\.aa)(?P<version>[0-9]+[a-z]?)`)
)

// Release is the parsed first line of a release file such as
// "Red Hat Enterprise Linux release 9.2 (Plow)".
type Release struct {
	Text      string
	Product   string
	Version   int
	Update    int
	HasUpdate bool
	Label     string
	CodeName  string
	Candidate string
	Valid     bool
}

// Parse never fails; text that does not look like a release line yields
// Valid=false.
func Parse(text string) Release {
	text = strings.TrimRight(strings.SplitN(text, "\n", 2)[0], "\r")
	r := Release{Text: text}
	if text == "" {
		return r
	}

	re := releasePattern
	m := re.FindStringSubmatchIndex(text)
	if m == nil {
		re = previewPattern
		m = re.FindStringSubmatchIndex(text)
	}
	if m == nil {
		return r
	}

	group := func(name string) (string, int) {
		i := re.SubexpIndex(name)
		if i < 0 || m[2*i] < 0 {
			return "", -1
		}
		return text[m[2*i]:m[2*i+1]], m[2*i+1]
	}

	product, _ := group("product")
	number, numberEnd := group("number")
	label, _ := group("label")

	r.Product = strings.TrimSpace(product)
	r.Label = strings.TrimSpace(label)

	parts := strings.Split(number, ".")
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return r
	}
	r.Version = major
	if len(parts) > 1 {
		if minor, err := strconv.Atoi(parts[1]); err == nil {
			r.Update = minor
			r.HasUpdate = true
		}
	}
	r.Valid = r.Product != "" && r.Version > 0

	if numberEnd >= 0 {
		rest := strings.TrimSpace(text[numberEnd:])
		if tm := trailerPattern.FindStringSubmatch(rest); tm != nil {
			r.Candidate = strings.TrimSpace(tm[trailerPattern.SubexpIndex("candidate")])
			r.CodeName = strings.TrimSpace(tm[trailerPattern.SubexpIndex("name")])
		}
	}
	return r
}

// VersionString is "major.update", or just "major" when the release has no
// update number.
func (r Release) VersionString() string {
	if r.HasUpdate {
		return strconv.Itoa(r.Version) + "." + strconv.Itoa(r.Update)
	}
	return strconv.Itoa(r.Version)
}

// AtLeast compares the release version against min. An invalid release is
// never at least anything.
func (r Release) AtLeast(min string) bool {
	if !r.Valid {
		return false
	}
	return versionAtLeast(r.VersionString(), min)
}

func versionAtLeast(have, min string) bool {
	h, err := version.NewVersion(have)
	if err != nil {
		return false
	}
	m, err := version.NewVersion(min)
	if err != nil {
		return false
	}
	return h.GreaterThanOrEqual(m)
}

// ProductFromKernel derives the product family and major version from a
// kernel release string such as "5.14.0-362.el9.x86_64".
func ProductFromKernel(kernel string) (product string, major int, ok bool) {
	m := kernelTagPattern.FindStringSubmatch(kernel)
	if m == nil {
		return "", 0, false
	}
	tag := m[kernelTagPattern.SubexpIndex("product")]
	switch {
	case strings.HasPrefix(tag, ".aa") || strings.HasSuffix(kernel, "arch64"):
		product = "Enterprise Linux for ARM"
	case tag == ".el":
		product = "Enterprise Linux"
	case tag == ".ael":
		product = "Enterprise Linux Asterisk Extension Logic"
	case tag == ".fc":
		product = "Fedora"
	}
	v := m[kernelTagPattern.SubexpIndex("version")]
	major, _ = strconv.Atoi(strings.TrimRight(v, "abcdefghijklmnopqrstuvwxyz"))
	return product, major, true
}
