package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
)

var (
	digitRun  = regexp.MustCompile(`[0-9]+`)
	fourDigit = regexp.MustCompile(`^[0-9]{4}$`)

	// Characters the site uses as thousands separators or padding inside numbers.
	specialSpace = strings.NewReplacer(
		"\u00a0", "",
		"\u202f", "",
		"\u2009", "",
		"\u00c2", "",
	)
)

const saleDatePrefix = "Såld "

// ExtractNumber returns the first run of digits in text after separators between
// digits are removed. No digits yields nil.
func ExtractNumber(text string) *int {
	text = joinDigitGroups(specialSpace.Replace(text))
	match := digitRun.FindString(text)
	if match == "" {
		return nil
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &n
}

// joinDigitGroups drops plain spaces that sit between two digits, so "2 500 000" reads
// as one number while "3 rum" is left alone.
func joinDigitGroups(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i, r := range runes {
		if r == ' ' && i > 0 && i < len(runes)-1 && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func leadingNumber(token string) *int {
	end := 0
	for end < len(token) && token[end] >= '0' && token[end] <= '9' {
		end++
	}
	if end == 0 {
		return nil
	}
	n, err := strconv.Atoi(token[:end])
	if err != nil {
		return nil
	}
	return &n
}

// ParseFloor reads "<floor>" or "<floor> av <total>". The total is only reported when
// the "av" separator is followed by a third token.
func ParseFloor(text string) (floor, total *int) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	floor = leadingNumber(tokens[0])
	if len(tokens) >= 3 && strings.EqualFold(tokens[1], "av") {
		total = leadingNumber(tokens[2])
	}
	return floor, total
}

// ParseBuilt reads a four digit construction year. Anything else is unknown.
func ParseBuilt(text string) *time.Time {
	text = strings.TrimSpace(text)
	if !fourDigit.MatchString(text) {
		return nil
	}
	t, err := time.Parse("2006", text)
	if err != nil {
		return nil
	}
	return &t
}

// ParseSaleDate strips the "Såld " prefix and parses the remaining ISO date.
func ParseSaleDate(text string) (time.Time, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(text), saleDatePrefix)
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: sale date %q: %w", crawler.ErrMalformedPage, text, err)
	}
	return t, nil
}

// jsonText accepts a JSON string, number or boolean and keeps its text form. Null
// leaves it empty.
type jsonText string

func (t *jsonText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode text: %w", err)
		}
		*t = jsonText(s)
		return nil
	}
	switch data[0] {
	case '{', '[':
		return fmt.Errorf("unexpected json value %s", data)
	}
	*t = jsonText(data)
	return nil
}

func (t jsonText) String() string {
	return string(t)
}

func (t jsonText) Float() (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float %q: %w", string(t), err)
	}
	return f, nil
}

func clean(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}
