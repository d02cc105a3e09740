package browser

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FieldSelectors lists CSS candidates per logical field, most specific first
var FieldSelectors = map[string][]string{
	"first_name": {
		`input[name*="first" i][name*="name" i]`,
		`input[id*="first" i][id*="name" i]`,
		`input[placeholder*="first" i][placeholder*="name" i]`,
		`input[name="firstName"]`,
	},
	"last_name": {
		`input[name*="last" i][name*="name" i]`,
		`input[id*="last" i][id*="name" i]`,
		`input[placeholder*="last" i][placeholder*="name" i]`,
		`input[name="lastName"]`,
	},
	"full_name": {
		`input[name="name"]`,
		`input[id="name"]`,
		`input[placeholder*="full" i][placeholder*="name" i]`,
		`input[name*="fullname" i]`,
	},
	"email": {
		`input[type="email"]`,
		`input[name*="email" i]`,
		`input[id*="email" i]`,
		`input[placeholder*="email" i]`,
	},
	"phone": {
		`input[type="tel"]`,
		`input[name*="phone" i]`,
		`input[id*="phone" i]`,
		`input[placeholder*="phone" i]`,
		`input[name*="mobile" i]`,
	},
	"city": {
		`input[name*="city" i]`,
		`input[id*="city" i]`,
		`input[placeholder*="city" i]`,
	},
	"location": {
		`input[name*="location" i]`,
		`input[id*="location" i]`,
	},
	"linkedin": {
		`input[name*="linkedin" i]`,
		`input[id*="linkedin" i]`,
		`input[placeholder*="linkedin" i]`,
	},
	"website": {
		`input[name*="website" i]`,
		`input[id*="website" i]`,
		`input[name*="portfolio" i]`,
		`input[type="url"]`,
	},
	"resume_upload": {
		`input[type="file"][name*="resume" i]`,
		`input[type="file"][id*="resume" i]`,
		`input[type="file"][name*="cv" i]`,
		`input[type="file"][id*="cv" i]`,
		`input[type="file"]`,
	},
	"cover_letter": {
		`textarea[name*="cover" i]`,
		`textarea[id*="cover" i]`,
		`textarea[name*="letter" i]`,
	},
	"experience_years": {
		`input[name*="experience" i][type="number"]`,
		`input[id*="experience" i]`,
	},
}

// FieldLabels are normalized label fragments used when no selector matched
var FieldLabels = map[string][]string{
	"first_name":       {"first name", "given name"},
	"last_name":        {"last name", "family name", "surname"},
	"full_name":        {"full name", "your name"},
	"email":            {"email", "e-mail"},
	"phone":            {"phone", "mobile", "telephone"},
	"city":             {"city"},
	"location":         {"location", "where do you live"},
	"linkedin":         {"linkedin"},
	"website":          {"website", "portfolio"},
	"resume_upload":    {"resume", "cv"},
	"cover_letter":     {"cover letter"},
	"experience_years": {"years of experience", "how many years"},
}

// Normalize lowercases, strips diacritics and collapses whitespace so labels
// like "Số điện thoại" and "so dien thoai" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}
	result = strings.ReplaceAll(result, "đ", "d")
	result = strings.ReplaceAll(result, "Đ", "D")
	return strings.Join(strings.Fields(strings.ToLower(result)), " ")
}

// MatchLabel reports which logical field a visible label belongs to, "" if none
func MatchLabel(label string) string {
	l := Normalize(label)
	if l == "" {
		return ""
	}
	// first/last before generic name matches
	for _, hint := range []string{"first_name", "last_name", "full_name", "email", "phone", "linkedin", "website", "cover_letter", "experience_years", "resume_upload", "city", "location"} {
		for _, frag := range FieldLabels[hint] {
			if strings.Contains(l, frag) {
				return hint
			}
		}
	}
	return ""
}
