package policy

import (
	"testing"

	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/models"
)

func TestClassify(t *testing.T) {
	withImage := Media{HasImage: true}
	withVideo := Media{HasVideo: true}
	noMedia := Media{}

	tests := []struct {
		name     string
		text     string
		media    Media
		expected models.Category
	}{
		{"clean message", "hola, ¿cómo están todos?", noMedia, ""},
		{"clean message with image", "mira esta foto del torneo", withImage, ""},
		{"sales keyword with image", "Selling my account, DM me", withImage, models.CategorySales},
		{"sales keyword with video", "who wants to buy this skin?", withVideo, models.CategorySales},
		{"sales keyword uppercase", "ACCOUNT FOR SALE!!!", withImage, models.CategorySales},
		{"sales keyword without media is not flagged", "I want to sell my bike", noMedia, ""},
		{"currency symbol with image", "only 50$ today", withImage, models.CategorySales},
		{"http link", "check http://spam.example/offer", noMedia, models.CategoryLink},
		{"https link", "https://evil.example.com", noMedia, models.CategoryLink},
		{"www link", "visit www.dodgy.biz now", noMedia, models.CategoryLink},
		{"group invite link", "join chat.whatsapp.com/AbCdEf123", noMedia, models.CategoryLink},
		{"telegram link", "t.me/freestuff", noMedia, models.CategoryLink},
		{"shortened link", "bit.ly/3xYzAbC", noMedia, models.CategoryLink},
		{"bare domain", "go to freebies.xyz for more", noMedia, models.CategoryLink},
		{"link does not require media", "wa.me/15551234567", noMedia, models.CategoryLink},
		{"link takes precedence over sales", "selling cheap, see www.shop.me", withImage, models.CategoryLink},
		{"empty text", "", withImage, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.text, tt.media); got != tt.expected {
				t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.expected)
			}
		})
	}
}

func TestClassifyIsStateless(t *testing.T) {
	// el regex global no debe guardar estado entre llamadas
	for i := 0; i < 3; i++ {
		if got := Classify("https://spam.example", Media{}); got != models.CategoryLink {
			t.Fatalf("iteration %d: Classify() = %q, want %q", i, got, models.CategoryLink)
		}
		if got := Classify("mensaje normal", Media{}); got != "" {
			t.Fatalf("iteration %d: Classify() = %q, want empty", i, got)
		}
	}
}
