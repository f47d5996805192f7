package tokenizer

import (
	"testing"
)

func TestNewEstimator(t *testing.T) {
	estimator := NewEstimator()

	if estimator == nil {
		t.Fatal("NewEstimator returned nil")
	}

	if estimator.charsPerToken != 4.0 {
		t.Errorf("expected charsPerToken 4.0, got %f", estimator.charsPerToken)
	}
}

func TestEstimateTokens(t *testing.T) {
	estimator := NewEstimator()

	tests := []struct {
		name     string
		text     string
		minToken int
		maxToken int
	}{
		{"empty string", "", 0, 0},
		{"single word", "hello", 1, 5},
		{"sentence", "Hello, how are you today?", 3, 15},
		{"long text", "This is a longer piece of text that contains multiple sentences. It should produce more tokens.", 15, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := estimator.EstimateTokens(tt.text)
			if tokens < tt.minToken || tokens > tt.maxToken {
				t.Errorf("token count %d not in expected range [%d, %d]", tokens, tt.minToken, tt.maxToken)
			}
		})
	}
}

func TestEstimateByChars(t *testing.T) {
	estimator := NewEstimator()

	// 16 chars / 4 chars per token = 4 tokens
	text := "1234567890123456"
	tokens := estimator.estimateByChars(text)

	if tokens != 4 {
		t.Errorf("expected 4 tokens, got %d", tokens)
	}
}

func TestEstimateByWords(t *testing.T) {
	estimator := NewEstimator()

	text := "one two three four five"
	tokens := estimator.estimateByWords(text)

	// 5 words * 1.4 = 7
	if tokens != 7 {
		t.Errorf("expected 7 tokens, got %d", tokens)
	}
}

func TestEstimateByRunes(t *testing.T) {
	estimator := NewEstimator()

	text := "Hello World!"
	tokens := estimator.estimateByRunes(text)

	// Should count word segments and punctuation
	if tokens <= 0 {
		t.Error("should produce positive token count")
	}
}

func TestEstimateWithASSTags(t *testing.T) {
	estimator := NewEstimator()

	textWithTags := `{\an8}Hello World{\b1}`
	textWithoutTags := "Hello World"

	tokensWithTags := estimator.EstimateTokens(textWithTags)
	tokensWithoutTags := estimator.EstimateTokens(textWithoutTags)

	// Text with ASS tags should produce more tokens
	if tokensWithTags <= tokensWithoutTags {
		t.Error("text with ASS tags should produce more tokens")
	}
}

func TestEstimateUnicode(t *testing.T) {
	estimator := NewEstimator()

	// Japanese text
	japaneseText := "こんにちは世界"
	tokens := estimator.EstimateTokens(japaneseText)

	if tokens <= 0 {
		t.Error("should estimate tokens for unicode text")
	}

	// Portuguese with accents
	portugueseText := "Olá, como você está? Tudo bem?"
	ptTokens := estimator.EstimateTokens(portugueseText)

	if ptTokens <= 0 {
		t.Error("should estimate tokens for Portuguese text")
	}
}
