package summarizer

import (
	"fmt"
	"strings"

	"github.com/yujixr/stream-scribe/internal/bus"
)

// formatSegments renders segments as "[HH:MM:SS] text" lines, one per line,
// in the order given.
func formatSegments(segments []bus.TranscriptionSegment) string {
	lines := make([]string, len(segments))
	for i, s := range segments {
		lines[i] = fmt.Sprintf("[%s] %s", s.StartTime.Format("15:04:05"), s.Text)
	}
	return strings.Join(lines, "\n")
}

// PromptStrategy builds the system/user prompt pair for one LLM call. Two
// concrete strategies exist: rolling realtime updates, and a single
// end-of-session summary.
type PromptStrategy interface {
	SystemPrompt() string
}

// RealtimePromptStrategy integrates newly transcribed segments into the
// running summary, favoring detail on the active topic and compression of
// concluded ones.
type RealtimePromptStrategy struct{}

func (RealtimePromptStrategy) SystemPrompt() string {
	return `リアルタイム会話を構造化し、議事録を更新してください。

# 制約
- 修正報告・挨拶・前置き・思考過程を出力しないこと
- 指定フォーマット以外のテキストを含めないこと

# ノイズ補正
音声認識の誤変換・フィラー（"えー"等）を文脈から判断して修正・削除してください。

# 構造化ルール
- アクティブな話題: 詳細に記録
- 完了した話題: 大トピックと結論のみ残す（圧縮）

# 出力（Markdown）
## 🚀 現在の焦点
(現在話されている内容を1行で)

## 🌳 トピック・ツリー
- **話題1 (完了)**
  - [結論] 〇〇
- **話題2 (進行中)**
  - 議論ポイントA
    - [ToDo] 担当者・内容

## ⏱️ 直近ログ
(補正済み発言を時系列で3件程度)`
}

// BuildUserPrompt composes the rolling-summary user turn: the previous
// summary (if any), a recent window of already-summarized segments for
// continuity, and the newly pending segments to integrate.
func (RealtimePromptStrategy) BuildUserPrompt(previousSummary string, processedSegments, newSegments []bus.TranscriptionSegment) string {
	summaryText := previousSummary
	if summaryText == "" {
		summaryText = "(まだ議事録はありません)"
	}

	var transcript string
	if len(processedSegments) > 0 {
		transcript = fmt.Sprintf("%s\n\n--- ここから新しい発言 ---\n\n%s", formatSegments(processedSegments), formatSegments(newSegments))
	} else {
		transcript = formatSegments(newSegments)
	}

	return fmt.Sprintf(`【現在の議事録】
%s

【直近の発言テキスト（音声認識生データ・誤字含む）】
%s`, summaryText, transcript)
}

// FinalSummaryPromptStrategy produces one comprehensive end-of-session
// summary over the entire transcript.
type FinalSummaryPromptStrategy struct{}

func (FinalSummaryPromptStrategy) SystemPrompt() string {
	return `会話全体を俯瞰し、包括的なサマリを生成してください。

# 制約
- 修正報告・挨拶・前置き・思考過程を出力しないこと
- 指定フォーマット以外のテキストを含めないこと

# ノイズ補正
音声認識の誤変換・フィラーを文脈から判断して修正・削除してください。

# 構造化
会話の性質（会議/講義/雑談/インタビュー等）を推定し、適切に構造化してください。

# 出力（Markdown）
## 📋 会話の概要
(全体を2-3行で。性質も含む)

## 🌳 トピック・ツリー
- **メイントピック1**
  - サブトピック1-1
    - [結論/要点] 〇〇
    - [ToDo] 担当者・内容

## 💡 重要ポイント
- [決定] 〇〇
- [ToDo] 担当者・内容（期限）
- [疑問] 未解決事項

## 🔑 キーワード
` + "`キーワード1`, `キーワード2`, ...（5-10個）"
}

// BuildUserPrompt composes the final-summary user turn over the full
// segment history.
func (FinalSummaryPromptStrategy) BuildUserPrompt(segments []bus.TranscriptionSegment) string {
	return fmt.Sprintf(`以下は、会話の全文です（音声認識生データ・誤字含む）。
会話全体を俯瞰して、包括的なサマリを生成してください。

【全発言テキスト】
%s`, formatSegments(segments))
}
