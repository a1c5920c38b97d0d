package types

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Field limits
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MaxStoryTitleLength  = 200
	MaxUsernameLength    = 50
	MaxWheelNameLength   = 100
	MaxWheelItems        = 50
	MaxWheelItemLength   = 100
	MaxMessageContent    = 2000
)

// DefaultDeck is the card deck used when none is configured.
var DefaultDeck = []string{"0", "0.5", "1", "2", "3", "5", "8", "13", "20", "40", "100", "?", "☕", "pass"}

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Deck is the set of cards a participant may play.
type Deck struct {
	cards []string
	index map[string]struct{}
}

// NewDeck builds a deck from card labels; blank and duplicate labels are dropped.
// An empty input yields DefaultDeck.
func NewDeck(cards []string) *Deck {
	if len(cards) == 0 {
		cards = DefaultDeck
	}
	d := &Deck{index: make(map[string]struct{}, len(cards))}
	for _, c := range cards {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := d.index[c]; dup {
			continue
		}
		d.index[c] = struct{}{}
		d.cards = append(d.cards, c)
	}
	return d
}

// Cards returns the card labels in deck order.
func (d *Deck) Cards() []string {
	out := make([]string, len(d.cards))
	copy(out, d.cards)
	return out
}

// Contains reports whether value is a card in the deck.
func (d *Deck) Contains(value string) bool {
	_, ok := d.index[value]
	return ok
}

// ValidateEstimate accepts any card in the deck or a non-negative number.
func (d *Deck) ValidateEstimate(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrInvalidEstimate
	}
	if d.Contains(value) {
		return nil
	}
	if _, ok := ParseNumericCard(value); ok {
		return nil
	}
	return ErrInvalidEstimate
}

// ParseNumericCard parses a card label as a non-negative decimal.
func ParseNumericCard(value string) (decimal.Decimal, bool) {
	n, err := decimal.NewFromString(value)
	if err != nil || n.IsNegative() {
		return decimal.Decimal{}, false
	}
	return n, true
}

// IsValidUsername checks the opaque principal supplied by the caller.
func IsValidUsername(username string) bool {
	if len(username) < 1 || len(username) > MaxUsernameLength {
		return false
	}
	return usernameRegex.MatchString(username)
}

// ValidateSessionInput checks the create-session payload.
func ValidateSessionInput(title, description string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(title))
	if n < 1 || n > MaxTitleLength {
		return ErrInvalidTitle
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return ErrInvalidDescription
	}
	return nil
}

// ValidateStoryTitle checks a round label; blank is allowed and defaulted later.
func ValidateStoryTitle(title string) error {
	if utf8.RuneCountInString(strings.TrimSpace(title)) > MaxStoryTitleLength {
		return ErrInvalidTitle
	}
	return nil
}

// Validate checks a wheel configuration. Duplicate items are allowed.
func (w *WheelConfig) Validate() error {
	n := utf8.RuneCountInString(strings.TrimSpace(w.Name))
	if n < 1 || n > MaxWheelNameLength {
		return ErrInvalidWheel
	}
	if len(w.Items) < 1 || len(w.Items) > MaxWheelItems {
		return ErrInvalidWheel
	}
	for _, item := range w.Items {
		l := utf8.RuneCountInString(strings.TrimSpace(item))
		if l < 1 || l > MaxWheelItemLength {
			return ErrInvalidWheel
		}
	}
	return nil
}
