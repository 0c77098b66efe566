package browser

import (
	"fmt"
	"strings"

	"daka/internal/core"
)

// hasClass matches elements whose class list contains class.
func hasClass(class string) string {
	return fmt.Sprintf(`contains(concat(" ", normalize-space(@class), " "), " %s ")`, class)
}

// withText builds an XPath for tag elements, optionally with class, whose
// text contains text.
func withText(tag, class, text string) string {
	var b strings.Builder
	b.WriteString("//" + tag)
	if class != "" {
		b.WriteString("[" + hasClass(class) + "]")
	}
	fmt.Fprintf(&b, `[contains(normalize-space(.), "%s")]`, text)
	return b.String()
}

// leafWithText matches the innermost element carrying text.
func leafWithText(text string) string {
	return fmt.Sprintf(`//*[not(*)][contains(normalize-space(.), "%s")]`, text)
}

func toast(text string) Locator {
	return XPath("toast "+text, withText("div", "van-toast__text", text))
}

// Login page.
var (
	usernameInput = CSS("username input", `input[type="text"][placeholder="请输入用户名"]`)
	passwordInput = CSS("password input", `input[type="password"][placeholder="请输入密码"]`)
	captchaInput  = CSS("captcha input", `input[type="text"][placeholder="请输入验证码"]`)
	captchaImage  = CSS("captcha image", `div.captcha-image img`)

	loginButtons = Candidates{
		XPath("login button", withText("button", "", "登录")),
		XPath("login button (traditional)", withText("button", "", "登錄")),
		CSS("login button class", `.login-btn`),
		CSS("submit button class", `.submit-btn`),
	}

	noticeDialog = XPath("notice dialog", withText("button", "van-dialog__confirm", "我知道了"))
)

// Account list shared by both flows.
var (
	accountNav = XPath("account list nav", withText("span", "nav-text", "账号列表"))

	expandButtons = Candidates{
		CSS("expand icon", `div.expand-icon`),
		XPath("expand image parent", `//img[@alt="展开"]/..`),
		XPath("frame image parent", `//img[contains(@src, "Frame.png")]/..`),
	}

	confirmDialog = XPath("confirm dialog", withText("button", "van-dialog__confirm", "确认"))
)

// Daily report.
var (
	generateReportButtons = Candidates{
		XPath("generate report action", withText("button", "action-btn", "生成报告")),
		XPath("generate report button", withText("button", "", "生成报告")),
		XPath("generate report in account actions", `//div[`+hasClass("account-actions")+`]//button[contains(normalize-space(.), "生成报告")]`),
		XPath("generate report text", `//button[contains(text(), "生成报告")]`),
	}

	recentTab     = XPath("recent records tab", withText("div", "tab-item", "最近记录"))
	refreshButton = CSS("refresh button", `button.refresh-btn`)
	reportDate    = CSS("latest report date", `span.report-date`)
	generateTab   = XPath("generate report tab", withText("div", "tab-item", "生成报告"))

	aiButton       = XPath("AI generate button", withText("button", "ai-generate-btn", "AI生成报告"))
	aiGenerating   = toast("AI生成中")
	aiDone         = toast("AI生成完成")
	aiFailed       = toast("AI生成失败")
	reportTextarea = CSS("report content", `textarea`)

	submitButton = XPath("submit report button", withText("button", "submit-btn", "提交报告"))
	submitDone   = toast("报告提交成功")
)

// Check-in.
var (
	checkinDone = toast("打卡成功")
)

func checkinButtons(variant string) Candidates {
	label := "上班打卡"
	if variant == core.VariantEvening {
		label = "下班打卡"
	}
	return Candidates{
		XPath(label+" button", withText("button", "", label)),
		XPath("check-in button", `//button[normalize-space(.)="打卡"]`),
	}
}

func checkedInMarkers(variant string) Candidates {
	label := "上班已打卡"
	if variant == core.VariantEvening {
		label = "下班已打卡"
	}
	return Candidates{
		XPath(label, leafWithText(label)),
		XPath("今日已打卡", leafWithText("今日已打卡")),
	}
}
