// Package normalize detects article language, optionally translates to
// a target language, and counts words.
package normalize

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"github.com/headlinehq/newsflow/engine/article"
)

const (
	// detectSample caps the text sent to the external detector.
	detectSample = 1000
	// translateCap caps the text sent for translation.
	translateCap = 2000
	// detectConfidence is the threshold above which the external
	// detector overrides the statistical one.
	detectConfidence = 0.8
)

// Translator is the external translation service.
type Translator interface {
	// Detect returns the language code of text and a confidence in [0,1].
	Detect(ctx context.Context, text string) (lang string, confidence float64, err error)
	// Translate returns text translated into the target language.
	Translate(ctx context.Context, text, target string) (string, error)
}

// Config controls translation behavior.
type Config struct {
	EnableTranslation bool
	TargetLanguage    string
}

// Deps holds the external dependencies of the normalizer.
type Deps struct {
	Translator Translator // may be nil
	// Publish sends one normalized article to the normalized topic.
	Publish func(ctx context.Context, a article.NormalizedArticle) error
	Logger  *slog.Logger
}

// Normalizer turns cleaned articles into normalized articles.
type Normalizer struct {
	translate  bool
	target     string
	translator Translator
	publish    func(ctx context.Context, a article.NormalizedArticle) error
	log        *slog.Logger
}

// New creates a Normalizer. Translation requires both the config flag
// and a constructed translator.
func New(cfg Config, deps Deps) *Normalizer {
	target := cfg.TargetLanguage
	if target == "" {
		target = "en"
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{
		translate:  cfg.EnableTranslation && deps.Translator != nil,
		target:     target,
		translator: deps.Translator,
		publish:    deps.Publish,
		log:        log,
	}
}

// Handle normalizes one cleaned article and publishes it.
func (n *Normalizer) Handle(ctx context.Context, c article.CleanedArticle) error {
	lang := n.detectLanguage(ctx, c.Text)

	var translatedTitle, translatedText *string
	if n.translate && lang != n.target {
		if s, err := n.translator.Translate(ctx, c.Title, n.target); err != nil {
			n.log.Warn("title translation failed", "article_id", c.ID, "error", err)
		} else {
			translatedTitle = &s
		}
		if s, err := n.translator.Translate(ctx, firstRunes(c.Text, translateCap), n.target); err != nil {
			n.log.Warn("text translation failed", "article_id", c.ID, "error", err)
		} else {
			translatedText = &s
		}
	}

	var target any
	if n.translate {
		target = n.target
	}
	norm := map[string]any{
		"detected_language":   lang,
		"translation_enabled": n.translate,
		"target_language":     target,
	}

	out := c.Normalized(lang, translatedTitle, translatedText, CountWords(c.Text), norm)
	n.log.Debug("normalized article", "article_id", out.ID, "language", out.Language, "words", out.WordCount)
	return n.publish(ctx, out)
}

// detectLanguage runs the statistical detector and, when the external
// translator is available, prefers its high-confidence detection on a
// sample of the text. Defaults to en.
func (n *Normalizer) detectLanguage(ctx context.Context, text string) string {
	lang := "en"
	if info := whatlanggo.Detect(text); info.Lang.Iso6391() != "" {
		lang = info.Lang.Iso6391()
	}

	if n.translate {
		detected, confidence, err := n.translator.Detect(ctx, firstRunes(text, detectSample))
		if err != nil {
			n.log.Debug("external language detection failed", "error", err)
		} else if confidence > detectConfidence && detected != "" {
			lang = detected
		}
	}
	return lang
}

// CountWords counts whitespace-separated non-empty tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// firstRunes returns at most n leading runes of s.
func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
