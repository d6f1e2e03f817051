package session

import (
	"encoding/json"
	"math"
	"os"
	"time"
)

type segmentDoc struct {
	Text             string   `json:"text"`
	StartTime        string   `json:"start_time"`
	EndTime          string   `json:"end_time"`
	AudioDuration    float64  `json:"audio_duration"`
	ProcessingTime   float64  `json:"processing_time"`
	AvgLogprob       *float64 `json:"avg_logprob,omitempty"`
	CompressionRatio *float64 `json:"compression_ratio,omitempty"`
	NoSpeechProb     *float64 `json:"no_speech_prob,omitempty"`
}

type errorDoc struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

type summaryDoc struct {
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

type document struct {
	SessionStart   string       `json:"session_start"`
	SessionEnd     string       `json:"session_end"`
	TotalSegments  int          `json:"total_segments"`
	TotalErrors    int          `json:"total_errors"`
	Segments       []segmentDoc `json:"segments"`
	Errors         []errorDoc   `json:"errors"`
	Summaries      []summaryDoc `json:"summaries"`
	FinalSummary   *summaryDoc  `json:"final_summary,omitempty"`
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func roundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r := round(*v, places)
	return &r
}

// toDocument builds the persisted JSON shape described in spec §6: numbers
// rounded (durations to 2 decimals, metrics to 3), UTF-8, non-ASCII
// preserved (encoding/json writes non-ASCII text unescaped; WriteFile also
// turns off HTML escaping).
func (s *Session) toDocument(end time.Time) document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := document{
		SessionStart:  s.start.Format(time.RFC3339),
		SessionEnd:    end.Format(time.RFC3339),
		TotalSegments: len(s.segments),
		TotalErrors:   len(s.errors),
		Segments:      make([]segmentDoc, 0, len(s.segments)),
		Errors:        make([]errorDoc, 0, len(s.errors)),
		Summaries:     make([]summaryDoc, 0, len(s.summaries)),
	}

	for _, seg := range s.segments {
		doc.Segments = append(doc.Segments, segmentDoc{
			Text:             seg.Text,
			StartTime:        seg.StartTime.Format(time.RFC3339),
			EndTime:          seg.EndTime.Format(time.RFC3339),
			AudioDuration:    round(seg.AudioDuration, 2),
			ProcessingTime:   round(seg.ProcessingTime, 2),
			AvgLogprob:       roundPtr(seg.AvgLogprob, 3),
			CompressionRatio: roundPtr(seg.CompressionRatio, 3),
			NoSpeechProb:     roundPtr(seg.NoSpeechProb, 3),
		})
	}
	for _, e := range s.errors {
		doc.Errors = append(doc.Errors, errorDoc{Timestamp: e.Timestamp.Format(time.RFC3339), Message: e.Message})
	}
	for _, sm := range s.summaries {
		doc.Summaries = append(doc.Summaries, summaryDoc{Timestamp: sm.Timestamp.Format(time.RFC3339), Content: sm.Content})
	}
	if s.final != nil {
		doc.FinalSummary = &summaryDoc{Timestamp: s.final.Timestamp.Format(time.RFC3339), Content: s.final.Content}
	}

	return doc
}

// WriteFile persists the session to path as UTF-8 JSON, preserving
// non-ASCII characters (e.g. Japanese transcripts) unescaped.
func (s *Session) WriteFile(path string, end time.Time) error {
	doc := s.toDocument(end)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// DefaultFilename returns "transcription_YYYYMMDD_HHMMSS.json" for now.
func DefaultFilename(now time.Time) string {
	return "transcription_" + now.Format("20060102_150405") + ".json"
}
