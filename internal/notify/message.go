package notify

import (
	"fmt"
	"strings"
	"time"
)

// Outcome summarises a finished task for a notification.
type Outcome struct {
	// Subject is the user-facing task label, e.g. "日报" or "上班打卡".
	Subject     string
	Username    string
	At          time.Time
	Succeeded   bool
	AlreadyDone bool
	Err         error
}

// Compose renders the title and markdown body for an outcome.
func Compose(o Outcome) (string, string) {
	date := o.At.Format("2006年01月02日")
	clock := fmt.Sprintf("%s (%s)", o.At.Format("15:04:05"), zoneLabel(o.At))

	var b strings.Builder
	if o.Succeeded {
		fmt.Fprintf(&b, "**%s完成！**\n\n", o.Subject)
	} else {
		fmt.Fprintf(&b, "**%s失败！**\n\n", o.Subject)
	}
	fmt.Fprintf(&b, "📅 **日期**: %s\n", date)
	fmt.Fprintf(&b, "⏰ **时间**: %s\n", clock)
	fmt.Fprintf(&b, "👤 **用户**: %s\n", o.Username)

	switch {
	case o.Succeeded && o.AlreadyDone:
		fmt.Fprintf(&b, "✨ **状态**: 今日%s此前已完成，无需重复提交", o.Subject)
		return fmt.Sprintf("%s完成 ✅", o.Subject), b.String()
	case o.Succeeded:
		fmt.Fprintf(&b, "✨ **状态**: %s已成功提交", o.Subject)
		return fmt.Sprintf("%s完成 ✅", o.Subject), b.String()
	}

	fmt.Fprintf(&b, "❌ **状态**: %s提交失败，请检查日志\n", o.Subject)
	if o.Err != nil {
		fmt.Fprintf(&b, "🔍 **原因**: %s\n", strings.TrimSpace(o.Err.Error()))
	}
	fmt.Fprintf(&b, "\n请及时处理或手动提交%s。", o.Subject)
	return fmt.Sprintf("%s未完成 ❌", o.Subject), b.String()
}

func zoneLabel(t time.Time) string {
	if t.Location().String() == "Asia/Shanghai" {
		return "北京时间"
	}
	name, _ := t.Zone()
	return name
}
