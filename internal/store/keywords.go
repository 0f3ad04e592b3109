package store

import (
	"fmt"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/registry"
)

// keywordAnalyzer is the English chain without the stemmer, so keywords
// stay the surface forms a caller can highlight in the chunk text.
const keywordAnalyzer = "amandocs_keywords"

// MaxKeywords caps how many keywords are attached to a result.
const MaxKeywords = 16

// KeywordExtractor turns a query into the terms used for highlighting.
type KeywordExtractor interface {
	Keywords(text string) []string
}

// BleveKeywords extracts keywords with a bleve analyzer: unicode word
// tokens, possessive and stop word removal, lowercased. Terms are not stemmed.
type BleveKeywords struct {
	analyzer analysis.Analyzer
}

// NewBleveKeywords defines the keyword analyzer in a fresh registry cache.
func NewBleveKeywords() (*BleveKeywords, error) {
	cache := registry.NewCache()
	analyzer, err := cache.DefineAnalyzer(keywordAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{en.PossessiveName, lowercase.Name, en.StopName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to define %s analyzer: %w", keywordAnalyzer, err)
	}
	return &BleveKeywords{analyzer: analyzer}, nil
}

// Keywords returns distinct analyzed terms in first-seen order.
func (b *BleveKeywords) Keywords(text string) []string {
	if text == "" {
		return nil
	}

	tokens := b.analyzer.Analyze([]byte(text))
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		term := string(tok.Term)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

var _ KeywordExtractor = (*BleveKeywords)(nil)
