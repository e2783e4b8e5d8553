package attendance

import (
	"fmt"
	"strings"

	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

// Display strings shared with the report.
const (
	NotClockedOut  = "未退勤"
	NoWorkTime     = "-"
	historyMissing = "未記録"

	historyLimit = 5
)

const (
	msgAlreadyClockedIn = "既に出勤済みです。先に退勤を記録してください。"
	msgNotClockedIn     = "出勤記録がありません。先に出勤を記録してください。"
	msgNoHistory        = "まだ勤怠記録がありません。"
	msgStorageFailed    = "記録に失敗しました。しばらくしてからもう一度お試しください。"

	msgHelp = "📱 出退勤管理Bot 使い方\n\n" +
		"「出勤」→ 出勤時刻を記録\n" +
		"「退勤」→ 退勤時刻を記録\n" +
		"「勤怠確認」or「履歴」→ 直近の記録を表示\n" +
		"「ヘルプ」→ この使い方を表示\n\n" +
		"※時刻は自動的に記録されます"

	msgFallback = "コマンドが認識できませんでした。\n\n" +
		"利用可能なコマンド:\n" +
		"・出勤\n" +
		"・退勤\n" +
		"・勤怠確認\n" +
		"・ヘルプ"
)

func clockedInMessage(display string) string {
	return fmt.Sprintf("✅ 出勤を記録しました\n時刻: %s\n\n今日も一日頑張りましょう！", display)
}

func clockedOutMessage(s schema.Session) string {
	return fmt.Sprintf("✅ 退勤を記録しました\n時刻: %s\n勤務時間: %s\n\nお疲れ様でした！",
		*s.EndedAtDisplay, FormatElapsed(s.StartedAt, *s.EndedAt))
}

// historyMessage lists the last sessions, most recent first, numbered from
// the count down to 1.
func historyMessage(sessions []schema.Session) string {
	if len(sessions) == 0 {
		return msgNoHistory
	}
	recent := sessions
	if len(recent) > historyLimit {
		recent = recent[len(recent)-historyLimit:]
	}

	var b strings.Builder
	b.WriteString("📊 直近の勤怠記録\n\n")
	for i := len(recent) - 1; i >= 0; i-- {
		s := recent[i]
		fmt.Fprintf(&b, "【%d】\n", i+1)
		fmt.Fprintf(&b, "出勤: %s\n", s.StartedAtDisplay)
		if s.IsOpen() {
			fmt.Fprintf(&b, "退勤: %s\n", historyMissing)
		} else {
			fmt.Fprintf(&b, "退勤: %s\n", *s.EndedAtDisplay)
			fmt.Fprintf(&b, "勤務時間: %s\n", WorkTime(s))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// WorkTime renders a session's duration for reports: NoWorkTime while the
// session is open, DurationUnavailable if its instants are unusable.
func WorkTime(s schema.Session) string {
	if s.IsOpen() {
		return NoWorkTime
	}
	return FormatElapsed(s.StartedAt, *s.EndedAt)
}
