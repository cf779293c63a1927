// Package policy implements the content policy filter.
// Classification is a pure function over the message text and its attachment
// flags; it has no side effects and no external dependencies.
package policy

import (
	"regexp"
	"strings"

	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
)

// salesKeywords flags account-selling and trading chatter. A match only counts
// when the message carries an image or video; text-only mentions are ordinary
// conversation.
var salesKeywords = []string{
	"sell", "sale", "selling", "buy", "buying", "trade", "trading", "swap", "swapping", "exchange", "price",
	"available for sale", "dm for price", "account for sale", "selling my account", "who wants to buy", "how much?",
	"$", "₦", "paypal", "btc",
}

// linkRegex matches URL-shaped tokens: full URLs, www-prefixed hosts,
// shortened links, transport invite links and bare domains.
var linkRegex = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|wa\.me/\S+|chat\.whatsapp\.com/\S+|t\.me/\S+|bit\.ly/\S+|[\w-]+\.(com|net|org|info|biz|xyz|live|tv|me|link)(/\S*)?)`)

// Media describes the attachment flags of a message
type Media struct {
	HasImage bool
	HasVideo bool
}

// HasVisual returns true when the message carries an image or video
func (m Media) HasVisual() bool {
	return m.HasImage || m.HasVideo
}

// Classify returns the violation category for a message, or empty when the
// message is clean. Link detection takes precedence when both rules match;
// only one category is ever recorded per message.
func Classify(text string, media Media) models.Category {
	if linkRegex.MatchString(text) {
		return models.CategoryLink
	}

	if media.HasVisual() && containsSalesKeyword(text) {
		return models.CategorySales
	}

	return ""
}

func containsSalesKeyword(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range salesKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
