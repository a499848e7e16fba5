package abuse

import "testing"

func newTestDetector() *Detector {
	return NewDetector(Config{
		StuffingRatio:  0.3,
		MinTokens:      6,
		CapsRatio:      0.7,
		SymbolRatio:    0.3,
		MinLetters:     12,
		PhoneMinDigits: 9,
		PromoPhrases:   []string{"Pay   outside", "whatsapp"},
	})
}

func TestKeywordStuffing(t *testing.T) {
	d := newTestDetector()

	cases := []struct {
		name string
		text string
		want bool
	}{
		{"plain", "Solid oak dining table with four matching chairs", false},
		{"repeated token", "cheap cheap cheap sofa cheap sale cheap now", true},
		{"shouting", "BRAND NEW IPHONE BEST PRICE EVER", true},
		{"short shouting ignored", "NEW SOFA", false},
		{"symbols", "$$$ !!! *** deal ### $$$ !!! ***", true},
		{"normal punctuation", "Bike, barely used. Pick-up only!", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := d.KeywordStuffing(tc.text); got != tc.want {
				t.Fatalf("KeywordStuffing(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestDuplicateTitleNormalizesCaseAndWhitespace(t *testing.T) {
	titles := []string{"Vintage  Road Bike", "Lamp"}
	if !DuplicateTitle("  vintage road   BIKE ", titles) {
		t.Fatalf("expected duplicate title match")
	}
	if DuplicateTitle("Vintage road bikes", titles) {
		t.Fatalf("near match must not count as duplicate")
	}
	if DuplicateTitle("   ", titles) {
		t.Fatalf("blank title must not match")
	}
}

func TestDuplicateImage(t *testing.T) {
	matched := DuplicateImage([]string{"AA", "bb", "cc"}, []string{"aa", "dd"})
	if len(matched) != 1 || matched[0] != "aa" {
		t.Fatalf("unexpected matches: %v", matched)
	}
	if DuplicateImage(nil, []string{"aa"}) != nil {
		t.Fatalf("expected no matches without hashes")
	}
}

func TestDisallowedContent(t *testing.T) {
	d := newTestDetector()

	cases := []struct {
		name    string
		message string
		rule    RuleID
		blocked bool
	}{
		{"clean", "Hi, is the table still available?", "", false},
		{"url", "See more at https://example.org/item", RuleExternalLink, true},
		{"bare domain", "check mystore.shop for photos", RuleExternalLink, true},
		{"email", "write me at jane.doe@mail.example", RuleContactDetails, true},
		{"phone", "call +1 (555) 123-4567 tonight", RuleContactDetails, true},
		{"short number", "I can pay 1200 today", "", false},
		{"promo", "Ping me on WhatsApp please", RulePromotional, true},
		{"promo collapsed whitespace", "we can PAY OUTSIDE the site", RulePromotional, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule, blocked := d.DisallowedContent(tc.message, true)
			if blocked != tc.blocked || rule != tc.rule {
				t.Fatalf("DisallowedContent(%q) = (%q, %v), want (%q, %v)", tc.message, rule, blocked, tc.rule, tc.blocked)
			}
		})
	}

	if _, blocked := d.DisallowedContent("https://example.org", false); blocked {
		t.Fatalf("links are allowed where contact is not prohibited")
	}
}

func TestEvaluateContentListing(t *testing.T) {
	d := newTestDetector()

	f := d.EvaluateContent(Payload{
		Surface:            SurfaceListing,
		Title:              "Mountain bike",
		Body:               "21 gears, new tyres.",
		SellerActiveTitles: []string{"mountain   bike"},
		ImageHashes:        []string{"h1"},
		OthersActiveHashes: []string{"h1"},
	})
	if !f.Blocked || f.Reason.Rule != RuleDuplicateTitle || f.Reason.Category != CategoryDuplicate {
		t.Fatalf("expected duplicate title block, got %+v", f)
	}
	if len(f.SoftFlags) != 1 || f.SoftFlags[0] != RuleDuplicateImage {
		t.Fatalf("expected duplicate image soft flag, got %v", f.SoftFlags)
	}
}

func TestEvaluateContentDuplicateImageNeverBlocks(t *testing.T) {
	d := newTestDetector()

	f := d.EvaluateContent(Payload{
		Surface:            SurfaceListing,
		Title:              "Desk lamp",
		Body:               "Works fine.",
		ImageHashes:        []string{"h1", "h2"},
		OthersActiveHashes: []string{"h1", "h2"},
	})
	if f.Blocked {
		t.Fatalf("duplicate image must not hard block")
	}
	if len(f.SoftFlags) != 1 {
		t.Fatalf("expected one soft flag, got %v", f.SoftFlags)
	}
}

func TestEvaluateContentInquiry(t *testing.T) {
	d := newTestDetector()

	first := d.EvaluateContent(Payload{
		Surface:           SurfaceInquiry,
		Body:              "Interested! Text me on 555 123 4567",
		ContactProhibited: true,
	})
	if !first.Blocked || first.Reason.Category != CategoryOffPlatformContact {
		t.Fatalf("expected off-platform block on first contact, got %+v", first)
	}

	later := d.EvaluateContent(Payload{
		Surface: SurfaceInquiry,
		Body:    "SURE, CALL ME AT 555 123 4567 ANY TIME",
	})
	if later.Blocked {
		t.Fatalf("follow-up inquiry must not be blocked, got %+v", later)
	}
	if len(later.SoftFlags) != 1 || later.SoftFlags[0] != RuleKeywordStuffing {
		t.Fatalf("expected stuffing soft flag on inquiry, got %v", later.SoftFlags)
	}
}

func TestEvaluateContentIsDeterministic(t *testing.T) {
	d := newTestDetector()
	p := Payload{Surface: SurfaceListing, Title: "BUY BUY BUY BUY BUY BUY", SellerActiveTitles: []string{"other"}}

	first := d.EvaluateContent(p)
	for i := 0; i < 10; i++ {
		again := d.EvaluateContent(p)
		if again.Blocked != first.Blocked || len(again.TriggeredRules) != len(first.TriggeredRules) {
			t.Fatalf("evaluation differs between runs")
		}
	}
}
