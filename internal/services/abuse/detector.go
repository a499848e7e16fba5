package abuse

import (
	"regexp"
	"strings"
	"unicode"
)

type Config struct {
	StuffingRatio  float64
	MinTokens      int
	CapsRatio      float64
	SymbolRatio    float64
	MinLetters     int
	PhoneMinDigits int
	PromoPhrases   []string
}

type Surface string

const (
	SurfaceListing Surface = "listing"
	SurfaceInquiry Surface = "inquiry"
	SurfaceReport  Surface = "report"
)

type Payload struct {
	Surface Surface
	Title   string
	Body    string
	// SellerActiveTitles are the titles of the author's other active listings.
	SellerActiveTitles []string
	ImageHashes        []string
	// OthersActiveHashes are hashes already present on other sellers' active listings.
	OthersActiveHashes []string
	// ContactProhibited is set where off-platform contact is not allowed, e.g. a
	// first-contact inquiry.
	ContactProhibited bool
}

// Finding is never persisted. Reason is set only when Blocked.
type Finding struct {
	Blocked        bool
	TriggeredRules []RuleID
	Reason         Reason
	SoftFlags      []RuleID
}

var (
	emailPattern = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	linkPattern  = regexp.MustCompile(`(?i)(?:\bhttps?://|\bwww\.)\S+|\b[a-z0-9][a-z0-9\-]*\.(?:com|net|org|io|me|ly|gg|co|info|biz|app|link|shop|site|ru)\b(?:/\S*)?`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{6,}\d`)
)

type Detector struct {
	cfg   Config
	promo []string
}

func NewDetector(cfg Config) *Detector {
	if cfg.StuffingRatio <= 0 {
		cfg.StuffingRatio = 0.3
	}
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = 6
	}
	if cfg.CapsRatio <= 0 {
		cfg.CapsRatio = 0.7
	}
	if cfg.SymbolRatio <= 0 {
		cfg.SymbolRatio = 0.3
	}
	if cfg.MinLetters <= 0 {
		cfg.MinLetters = 12
	}
	if cfg.PhoneMinDigits <= 0 {
		cfg.PhoneMinDigits = 9
	}

	promo := make([]string, 0, len(cfg.PromoPhrases))
	for _, phrase := range cfg.PromoPhrases {
		if p := normalizeText(phrase); p != "" {
			promo = append(promo, p)
		}
	}

	return &Detector{cfg: cfg, promo: promo}
}

// KeywordStuffing flags a dominant repeated token, mostly upper-case letters or
// a high share of symbols.
func (d *Detector) KeywordStuffing(text string) bool {
	tokens := tokenize(text)
	if len(tokens) >= d.cfg.MinTokens {
		counts := make(map[string]int, len(tokens))
		top := 0
		for _, tok := range tokens {
			counts[tok]++
			if counts[tok] > top {
				top = counts[tok]
			}
		}
		if float64(top)/float64(len(tokens)) > d.cfg.StuffingRatio {
			return true
		}
	}

	var letters, upper, visible, symbols int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		switch {
		case unicode.IsLetter(r):
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		case unicode.IsDigit(r):
		default:
			symbols++
		}
	}
	if letters >= d.cfg.MinLetters && float64(upper)/float64(letters) > d.cfg.CapsRatio {
		return true
	}
	if visible >= d.cfg.MinLetters && float64(symbols)/float64(visible) > d.cfg.SymbolRatio {
		return true
	}
	return false
}

// DuplicateTitle compares case- and whitespace-normalized titles for equality.
func DuplicateTitle(title string, sellerActiveTitles []string) bool {
	needle := normalizeText(title)
	if needle == "" {
		return false
	}
	for _, existing := range sellerActiveTitles {
		if normalizeText(existing) == needle {
			return true
		}
	}
	return false
}

// DuplicateImage returns the hashes that also appear in othersActiveHashes.
func DuplicateImage(hashes, othersActiveHashes []string) []string {
	if len(hashes) == 0 || len(othersActiveHashes) == 0 {
		return nil
	}
	others := make(map[string]struct{}, len(othersActiveHashes))
	for _, h := range othersActiveHashes {
		others[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	var matched []string
	for _, h := range hashes {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, ok := others[key]; ok && key != "" {
			matched = append(matched, key)
		}
	}
	return matched
}

// DisallowedContent reports the first off-platform contact rule the message
// breaks. It only applies where contact is prohibited.
func (d *Detector) DisallowedContent(message string, contactProhibited bool) (RuleID, bool) {
	if !contactProhibited || strings.TrimSpace(message) == "" {
		return "", false
	}

	if emailPattern.MatchString(message) {
		return RuleContactDetails, true
	}
	if linkPattern.MatchString(message) {
		return RuleExternalLink, true
	}
	for _, candidate := range phonePattern.FindAllString(message, -1) {
		if countDigits(candidate) >= d.cfg.PhoneMinDigits {
			return RuleContactDetails, true
		}
	}

	normalized := normalizeText(message)
	for _, phrase := range d.promo {
		if strings.Contains(normalized, phrase) {
			return RulePromotional, true
		}
	}
	return "", false
}

// EvaluateContent runs every detector that applies to the payload surface.
func (d *Detector) EvaluateContent(p Payload) Finding {
	var f Finding
	text := strings.TrimSpace(p.Title + "\n" + p.Body)

	block := func(rule RuleID) {
		f.TriggeredRules = append(f.TriggeredRules, rule)
		if !f.Blocked {
			f.Blocked = true
			f.Reason = ReasonFor(rule)
		}
	}
	soft := func(rule RuleID) {
		f.TriggeredRules = append(f.TriggeredRules, rule)
		f.SoftFlags = append(f.SoftFlags, rule)
	}

	if rule, ok := d.DisallowedContent(text, p.ContactProhibited); ok {
		block(rule)
	}

	if p.Surface == SurfaceListing {
		if DuplicateTitle(p.Title, p.SellerActiveTitles) {
			block(RuleDuplicateTitle)
		}
		if d.KeywordStuffing(p.Title) || d.KeywordStuffing(p.Body) {
			block(RuleKeywordStuffing)
		}
		if len(DuplicateImage(p.ImageHashes, p.OthersActiveHashes)) > 0 {
			soft(RuleDuplicateImage)
		}
		return f
	}

	if d.KeywordStuffing(text) {
		soft(RuleKeywordStuffing)
	}
	return f
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
