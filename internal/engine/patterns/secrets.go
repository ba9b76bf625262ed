package patterns

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"pyscan/internal/engine/defect"
	"pyscan/internal/engine/ir"
)

type tokenShape struct {
	name string
	re   *regexp.Regexp
}

var (
	tokenShapes = []tokenShape{
		{"AWS access key id", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
		{"GitHub personal access token", regexp.MustCompile(`\bghp_[A-Za-z0-9]{36}\b`)},
		{"GitHub fine-grained token", regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{82}\b`)},
		{"Stripe live secret key", regexp.MustCompile(`\bsk_live_[A-Za-z0-9]{16,}\b`)},
		{"Slack token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
		{"private key", regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`)},
	}
	opaqueTokenRE = regexp.MustCompile(`^[A-Za-z0-9_\-+=/]+$`)
	placeholders  = []string{"example", "sample", "dummy", "placeholder", "changeme", "notasecret", "test", "xxxx"}
)

const (
	minTokenLength   = 20
	entropyThreshold = 4.0
)

// detectLeakedSecret flags string literals that carry a known credential
// format or an opaque high-entropy token.
func detectLeakedSecret(n *ir.Node, fc *FileContext) ([]defect.Defect, error) {
	if n.Kind != ir.KindConstant || n.Const == nil || n.Const.Kind != ir.ConstString || isInterpolated(n) {
		return nil, nil
	}
	s := n.Const.Str
	if len(s) < minTokenLength || containsAny(s, placeholders) {
		return nil, nil
	}
	for _, shape := range tokenShapes {
		if m := shape.re.FindString(s); m != "" {
			desc := fmt.Sprintf("string literal contains a %s (%s)", shape.name, maskValue(m))
			return []defect.Defect{fc.finding(n, desc, n.Text)}, nil
		}
	}
	if !opaqueTokenRE.MatchString(s) || !hasLetterAndDigit(s) {
		return nil, nil
	}
	if e := shannonEntropy(s); e >= entropyThreshold {
		desc := fmt.Sprintf("string literal looks like an embedded token (%s, entropy %.1f)", maskValue(s), e)
		return []defect.Defect{fc.finding(n, desc, n.Text)}, nil
	}
	return nil, nil
}

func hasLetterAndDigit(s string) bool {
	letter, digit := false, false
	for _, r := range s {
		letter = letter || unicode.IsLetter(r)
		digit = digit || unicode.IsDigit(r)
		if letter && digit {
			return true
		}
	}
	return false
}

// shannonEntropy returns the bits per character of s.
func shannonEntropy(s string) float64 {
	freq := make(map[rune]float64)
	total := 0.0
	for _, r := range s {
		freq[r]++
		total++
	}
	if total == 0 {
		return 0
	}
	e := 0.0
	for _, c := range freq {
		p := c / total
		e -= p * math.Log2(p)
	}
	return e
}

func maskValue(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..." + s[len(s)-4:]
}
