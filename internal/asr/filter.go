// Package asr implements the hallucination filter (C3), the transcription
// retry strategy (C4), and the ASR worker (C5).
package asr

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FilterConfig holds the tunable constants for the seven C3 detectors.
// Defaults match spec §4.3.
type FilterConfig struct {
	BannedPhrases []string
	GreetingPhrases []string

	MinCharRepetition           int
	ShortMaxPatternLen          int
	PatternSearchStartPositions int
	MinShortRepetition          int
	RepetitionRatioThreshold    float64
	LongMinPatternLen           int
	LongMaxPatternLen           int
	MinLongRepetition           int
	MinTokenRepetition          int
	ShortTextThreshold          int
	LowLogprobThreshold         float64
	LongAudioThreshold          float64
	ExtremeLowLogprobThreshold  float64
}

// DefaultFilterConfig returns the spec's canonical defaults, tuned for
// Japanese ASR output.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		BannedPhrases: []string{
			"ご視聴ありがとうございました",
			"ご視聴ありがとうございます",
			"チャンネル登録",
			"高評価",
			"字幕視聴者",
			"最後までご視聴",
			"Thanks for watching",
			"subscribe",
			"[BLANK_AUDIO]",
			"[音楽]",
			"[拍手]",
		},
		GreetingPhrases: []string{
			"おやすみなさい",
			"こんにちは",
			"こんばんは",
			"おはようございます",
			"ありがとうございました",
		},
		MinCharRepetition:           10,
		ShortMaxPatternLen:          10,
		PatternSearchStartPositions: 50,
		MinShortRepetition:          5,
		RepetitionRatioThreshold:    0.5,
		LongMinPatternLen:           11,
		LongMaxPatternLen:           50,
		MinLongRepetition:           3,
		MinTokenRepetition:          5,
		ShortTextThreshold:          15,
		LowLogprobThreshold:         -0.8,
		LongAudioThreshold:          5.0,
		ExtremeLowLogprobThreshold:  -1.7,
	}
}

// Filter applies the seven ordered hallucination detectors.
type Filter struct {
	cfg FilterConfig
}

// NewFilter constructs a Filter.
func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Evaluate returns ("", true) when text is accepted, or (reason, false)
// naming the first detector that rejected it.
func (f *Filter) Evaluate(text string, avgLogprob *float64, audioDuration float64) (reason string, accepted bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", true
	}

	if r, ok := f.bannedPhrase(trimmed); ok {
		return r, false
	}
	if r, ok := f.charRepetition(trimmed); ok {
		return r, false
	}
	if r, ok := f.shortPatternRepetition(trimmed); ok {
		return r, false
	}
	if r, ok := f.longPatternRepetition(trimmed); ok {
		return r, false
	}
	if r, ok := f.tokenRepetitionAtEnd(trimmed); ok {
		return r, false
	}
	if r, ok := f.contextlessGreeting(trimmed, avgLogprob, audioDuration); ok {
		return r, false
	}
	if r, ok := f.extremeLowConfidence(avgLogprob); ok {
		return r, false
	}

	return "", true
}

func (f *Filter) bannedPhrase(text string) (string, bool) {
	for _, phrase := range f.cfg.BannedPhrases {
		if strings.Contains(text, phrase) {
			return fmt.Sprintf("Banned phrase detected: %q", phrase), true
		}
	}
	return "", false
}

// charRepetition scans in O(n) for any single rune repeated
// MinCharRepetition times consecutively.
func (f *Filter) charRepetition(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) == 0 {
		return "", false
	}
	count := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			count++
			if count >= f.cfg.MinCharRepetition {
				return fmt.Sprintf("Character repetition: %q repeated %d times", string(runes[i]), count), true
			}
		} else {
			count = 1
		}
	}
	return "", false
}

func (f *Filter) shortPatternRepetition(text string) (string, bool) {
	runes := []rune(text)
	n := len(runes)
	if n < 20 {
		return "", false
	}

	maxL := f.cfg.ShortMaxPatternLen
	if bound := n / 3; bound < maxL {
		maxL = bound
	}

	for l := 2; l <= maxL; l++ {
		maxStart := n - 3*l
		if maxStart < 0 {
			continue
		}
		startLimit := f.cfg.PatternSearchStartPositions
		if maxStart < startLimit {
			startLimit = maxStart
		}
		for start := 0; start < startLimit; start++ {
			pattern := string(runes[start : start+l])
			if strings.TrimSpace(pattern) == "" {
				continue
			}
			count := strings.Count(text, pattern)
			if count >= f.cfg.MinShortRepetition && float64(l*count) >= float64(n)*f.cfg.RepetitionRatioThreshold {
				return fmt.Sprintf("Short-pattern repetition: %q repeated %d times", pattern, count), true
			}
		}
	}
	return "", false
}

func (f *Filter) longPatternRepetition(text string) (string, bool) {
	runes := []rune(text)
	n := len(runes)
	if n < 60 {
		return "", false
	}

	maxL := f.cfg.LongMaxPatternLen
	if bound := n / 3; bound < maxL {
		maxL = bound
	}

	for l := f.cfg.LongMinPatternLen; l <= maxL; l += 5 {
		if l > n {
			break
		}
		pattern := string(runes[0:l])
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		count := strings.Count(text, pattern)
		if count >= f.cfg.MinLongRepetition && float64(l*count) >= float64(n)*f.cfg.RepetitionRatioThreshold {
			return fmt.Sprintf("Long-pattern repetition: pattern of length %d repeated %d times", l, count), true
		}
	}
	return "", false
}

func (f *Filter) tokenRepetitionAtEnd(text string) (string, bool) {
	tokens := splitTokens(text)
	n := len(tokens)
	k := f.cfg.MinTokenRepetition
	if n < k {
		return "", false
	}
	last := tokens[n-1]
	if last == "" {
		return "", false
	}
	for i := n - k; i < n; i++ {
		if tokens[i] != last {
			return "", false
		}
	}
	return fmt.Sprintf("Token repetition at end: %q repeated %d times", last, k), true
}

func splitTokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '。', '、', '!', '?':
			return true
		}
		return unicode.IsSpace(r)
	})
}

func (f *Filter) contextlessGreeting(text string, avgLogprob *float64, audioDuration float64) (string, bool) {
	normalized := normalizeForGreeting(text)
	if utf8.RuneCountInString(normalized) > f.cfg.ShortTextThreshold {
		return "", false
	}

	matched := false
	for _, phrase := range f.cfg.GreetingPhrases {
		if strings.Contains(normalized, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	lowConfidence := avgLogprob != nil && *avgLogprob < f.cfg.LowLogprobThreshold
	longAudio := audioDuration >= f.cfg.LongAudioThreshold

	if lowConfidence {
		return "Contextless greeting with low confidence", true
	}
	if longAudio {
		return "Contextless greeting with long audio duration", true
	}
	return "", false
}

func normalizeForGreeting(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsPunct(r) || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (f *Filter) extremeLowConfidence(avgLogprob *float64) (string, bool) {
	if avgLogprob != nil && *avgLogprob < f.cfg.ExtremeLowLogprobThreshold {
		return "Extreme low confidence", true
	}
	return "", false
}

// SegmentMetrics is the subset of raw ASR-engine per-segment metrics used
// for metric extraction.
type SegmentMetrics struct {
	AvgLogprob       *float64
	CompressionRatio *float64
	NoSpeechProb     *float64
}

// ExtractMetrics returns the mean of available avg_logprob values, the max
// of available compression_ratio values, and the max of available
// no_speech_prob values. A nil is returned for any metric with no present
// values.
func ExtractMetrics(segments []SegmentMetrics) (avgLogprob, maxCompression, maxNoSpeech *float64) {
	var logSum float64
	var logCount int
	var maxComp, maxNS float64
	var haveComp, haveNS bool

	for _, s := range segments {
		if s.AvgLogprob != nil {
			logSum += *s.AvgLogprob
			logCount++
		}
		if s.CompressionRatio != nil {
			if !haveComp || *s.CompressionRatio > maxComp {
				maxComp = *s.CompressionRatio
				haveComp = true
			}
		}
		if s.NoSpeechProb != nil {
			if !haveNS || *s.NoSpeechProb > maxNS {
				maxNS = *s.NoSpeechProb
				haveNS = true
			}
		}
	}

	if logCount > 0 {
		mean := logSum / float64(logCount)
		avgLogprob = &mean
	}
	if haveComp {
		maxCompression = &maxComp
	}
	if haveNS {
		maxNoSpeech = &maxNS
	}
	return
}
