package browser

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daka/internal/config"
	"daka/internal/core"
	"daka/internal/logging"
)

const (
	testLoginURL = "https://example.test/login"
	testHomeURL  = "https://example.test/home"
)

var (
	shanghai = time.FixedZone("CST", 8*3600)
	creds    = config.Credentials{Username: "alice", Password: "secret"}
	pngBytes = []byte{0x89, 'P', 'N', 'G'}
)

func newTestDriver(page Page, solver CaptchaSolver) *Driver {
	now := time.Date(2026, 10, 19, 17, 30, 0, 0, shanghai)
	return NewDriver(page, solver, Options{
		LoginURL:   testLoginURL,
		AIAttempts: 3,
		AIPolls:    3,
		Location:   shanghai,
		Now:        func() time.Time { return now },
	}, logging.Discard())
}

func loginPage() *fakePage {
	p := newFakePage()
	p.show(usernameInput, passwordInput, captchaInput, captchaImage, loginButtons[0])
	p.attrs[captchaImage.Query+"@src"] = "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	return p
}

func TestDecodeDataURL(t *testing.T) {
	data, err := decodeDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	for _, bad := range []string{"https://example.test/captcha.png", "data:image/png,raw", "data:image/png;base64,@@@"} {
		_, err := decodeDataURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoginFirstAttempt(t *testing.T) {
	p := loginPage()
	p.onClick[loginButtons[0].Query] = func(p *fakePage) { p.url = testHomeURL }
	solver := &scriptedSolver{answers: []string{" ab12 "}}

	require.NoError(t, newTestDriver(p, solver).Login(context.Background(), creds))

	assert.Equal(t, []string{testLoginURL}, p.navigated)
	assert.Equal(t, "alice", p.fills[usernameInput.Query])
	assert.Equal(t, "secret", p.fills[passwordInput.Query])
	assert.Equal(t, "ab12", p.fills[captchaInput.Query])
	assert.Equal(t, 1, solver.calls)
}

func TestLoginRetriesUntilURLChanges(t *testing.T) {
	p := loginPage()
	attempts := 0
	p.onClick[loginButtons[0].Query] = func(p *fakePage) {
		attempts++
		if attempts == 3 {
			p.url = testHomeURL
		}
	}

	require.NoError(t, newTestDriver(p, &scriptedSolver{answers: []string{"x9"}}).Login(context.Background(), creds))
	assert.Equal(t, 3, attempts)
}

func TestLoginReloadsOnEmptyCaptcha(t *testing.T) {
	p := loginPage()
	p.onClick[loginButtons[0].Query] = func(p *fakePage) { p.url = testHomeURL }
	solver := &scriptedSolver{answers: []string{"", "k7m2"}}

	require.NoError(t, newTestDriver(p, solver).Login(context.Background(), creds))

	assert.Equal(t, 1, p.reloads)
	assert.Equal(t, 2, solver.calls)
	assert.Equal(t, 1, p.clickCount(loginButtons[0]), "no submit with an empty captcha")
	assert.Equal(t, "k7m2", p.fills[captchaInput.Query])
}

func TestLoginPressesEnterWithoutButton(t *testing.T) {
	p := loginPage()
	p.hide(loginButtons[0])
	p.onEnter = func(p *fakePage) { p.url = testHomeURL }

	require.NoError(t, newTestDriver(p, &scriptedSolver{answers: []string{"ab12"}}).Login(context.Background(), creds))
	assert.Equal(t, 1, p.enters)
}

func TestLoginDismissesNoticeDialog(t *testing.T) {
	p := loginPage()
	p.onClick[loginButtons[0].Query] = func(p *fakePage) {
		p.url = testHomeURL
		p.visible[noticeDialog.Query] = true
	}

	require.NoError(t, newTestDriver(p, &scriptedSolver{answers: []string{"ab12"}}).Login(context.Background(), creds))
	assert.Equal(t, 1, p.clickCount(noticeDialog))
}

func TestLoginStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := loginPage()
	attempts := 0
	p.onClick[loginButtons[0].Query] = func(*fakePage) {
		attempts++
		if attempts == 2 {
			cancel()
		}
	}

	err := newTestDriver(p, &scriptedSolver{answers: []string{"ab12"}}).Login(ctx, creds)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestLoginPausesBetweenFailedAttempts(t *testing.T) {
	p := loginPage()
	attempts := 0
	p.onClick[loginButtons[0].Query] = func(p *fakePage) {
		attempts++
		if attempts == 3 {
			p.url = testHomeURL
		}
	}
	timings := Timings{LoginResult: 60 * time.Millisecond, RetryBackoff: 40 * time.Millisecond}
	d := NewDriver(p, &scriptedSolver{answers: []string{"x9"}}, Options{
		LoginURL: testLoginURL,
		Location: shanghai,
		Timings:  timings,
	}, logging.Discard())

	require.NoError(t, d.Login(context.Background(), creds))

	require.Len(t, p.clickedAt, 3)
	for i := 1; i < len(p.clickedAt); i++ {
		gap := p.clickedAt[i].Sub(p.clickedAt[i-1])
		assert.GreaterOrEqual(t, gap, timings.LoginResult+timings.RetryBackoff, "gap before attempt %d", i+1)
	}
}

func TestLoginRetriesWhenLoginPageFailsToOpen(t *testing.T) {
	p := loginPage()
	p.navigateErrs = 2
	p.onClick[loginButtons[0].Query] = func(p *fakePage) { p.url = testHomeURL }

	require.NoError(t, newTestDriver(p, &scriptedSolver{answers: []string{"ab12"}}).Login(context.Background(), creds))

	assert.Equal(t, []string{testLoginURL, testLoginURL, testLoginURL}, p.navigated)
	assert.Equal(t, 1, p.clickCount(loginButtons[0]))
}

func reportPage() *fakePage {
	p := newFakePage()
	p.show(accountNav, expandButtons[0], generateReportButtons[1], recentTab, refreshButton,
		reportDate, confirmDialog, generateTab, aiButton, submitButton)
	p.texts[reportDate.Query] = "2026-10-18"
	p.onClick[aiButton.Query] = func(p *fakePage) { p.visible[aiDone.Query] = true }
	p.onClick[submitButton.Query] = func(p *fakePage) { p.visible[submitDone.Query] = true }
	return p
}

func TestSubmitReport(t *testing.T) {
	p := reportPage()

	outcome, err := newTestDriver(p, nil).SubmitReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeSubmitted, outcome)
	for _, loc := range []Locator{accountNav, expandButtons[0], generateReportButtons[1], recentTab, refreshButton, confirmDialog, generateTab, aiButton, submitButton} {
		assert.Equal(t, 1, p.clickCount(loc), loc.Desc)
	}
}

func TestSubmitReportSkipsWhenTodayAlreadySubmitted(t *testing.T) {
	p := reportPage()
	p.texts[reportDate.Query] = " 2026-10-19 "

	outcome, err := newTestDriver(p, nil).SubmitReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeAlreadyDone, outcome)
	assert.Zero(t, p.clickCount(aiButton))
	assert.Zero(t, p.clickCount(submitButton))
}

func TestSubmitReportRetriesFailedGeneration(t *testing.T) {
	p := reportPage()
	clicks := 0
	p.onClick[aiButton.Query] = func(p *fakePage) {
		clicks++
		if clicks < 3 {
			p.visible[aiFailed.Query] = true
			return
		}
		delete(p.visible, aiFailed.Query)
		p.visible[aiDone.Query] = true
	}

	outcome, err := newTestDriver(p, nil).SubmitReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeSubmitted, outcome)
	assert.Equal(t, 3, p.clickCount(aiButton))
	assert.Equal(t, 1, p.clickCount(submitButton))
}

func TestSubmitReportGivesUpAfterAttempts(t *testing.T) {
	p := reportPage()
	p.onClick[aiButton.Query] = func(p *fakePage) { p.visible[aiFailed.Query] = true }

	_, err := newTestDriver(p, nil).SubmitReport(context.Background())
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, 3, p.clickCount(aiButton))
	assert.Zero(t, p.clickCount(submitButton))
}

func TestSubmitReportAcceptsFilledTextareaWithoutToast(t *testing.T) {
	p := reportPage()
	p.onClick[aiButton.Query] = nil
	p.values[reportTextarea.Query] = "今日完成了接口联调与测试用例的编写，修复了两个线上问题。"

	outcome, err := newTestDriver(p, nil).SubmitReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSubmitted, outcome)
	assert.Equal(t, 1, p.clickCount(aiButton))
}

func TestSubmitReportRejectsShortTextarea(t *testing.T) {
	p := reportPage()
	p.onClick[aiButton.Query] = nil
	p.values[reportTextarea.Query] = strings.Repeat("短", MinReportLength-1)

	_, err := newTestDriver(p, nil).SubmitReport(context.Background())
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestSubmitReportWithoutConfirmationToastSucceeds(t *testing.T) {
	p := reportPage()
	p.onClick[submitButton.Query] = nil

	outcome, err := newTestDriver(p, nil).SubmitReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSubmitted, outcome)
}

func TestSubmitReportFailsWithoutGenerateButton(t *testing.T) {
	p := reportPage()
	p.hide(generateReportButtons[1])

	_, err := newTestDriver(p, nil).SubmitReport(context.Background())
	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.Zero(t, p.clickCount(submitButton))
}

func TestSubmitReportToleratesMissingOptionalSteps(t *testing.T) {
	p := reportPage()
	p.hide(accountNav, expandButtons[0], recentTab, confirmDialog, generateTab)
	p.show(expandButtons[2])

	outcome, err := newTestDriver(p, nil).SubmitReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSubmitted, outcome)
	assert.Equal(t, 1, p.clickCount(expandButtons[2]))
}

func checkinPage(variant string) *fakePage {
	p := newFakePage()
	p.show(accountNav, expandButtons[0], checkinButtons(variant)[0])
	p.onClick[checkinButtons(variant)[0].Query] = func(p *fakePage) {
		p.visible[confirmDialog.Query] = true
	}
	p.onClick[confirmDialog.Query] = func(p *fakePage) {
		p.visible[checkinDone.Query] = true
	}
	return p
}

func TestCheckin(t *testing.T) {
	for _, variant := range []string{core.VariantMorning, core.VariantEvening} {
		p := checkinPage(variant)

		outcome, err := newTestDriver(p, nil).Checkin(context.Background(), variant)
		require.NoError(t, err, variant)
		assert.Equal(t, core.OutcomeSubmitted, outcome)
		assert.Equal(t, 1, p.clickCount(checkinButtons(variant)[0]), variant)
		assert.Equal(t, 1, p.clickCount(confirmDialog), variant)
	}
	assert.Contains(t, checkinButtons(core.VariantEvening)[0].Query, "下班打卡")
	assert.Contains(t, checkinButtons(core.VariantMorning)[0].Query, "上班打卡")
}

func TestCheckinAlreadyDone(t *testing.T) {
	p := checkinPage(core.VariantMorning)
	p.show(checkedInMarkers(core.VariantMorning)[0])

	outcome, err := newTestDriver(p, nil).Checkin(context.Background(), core.VariantMorning)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeAlreadyDone, outcome)
	assert.Zero(t, p.clickCount(checkinButtons(core.VariantMorning)[0]))
}

func TestCheckinFallsBackToGenericButton(t *testing.T) {
	p := checkinPage(core.VariantEvening)
	p.hide(checkinButtons(core.VariantEvening)[0])
	p.show(checkinButtons(core.VariantEvening)[1])

	outcome, err := newTestDriver(p, nil).Checkin(context.Background(), core.VariantEvening)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSubmitted, outcome)
	assert.Equal(t, 1, p.clickCount(checkinButtons(core.VariantEvening)[1]))
}

func TestCheckinFailsWithoutButton(t *testing.T) {
	p := checkinPage(core.VariantMorning)
	p.hide(checkinButtons(core.VariantMorning)[0])

	_, err := newTestDriver(p, nil).Checkin(context.Background(), core.VariantMorning)
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestFirstReturnsFirstVisibleCandidate(t *testing.T) {
	p := newFakePage()
	p.show(expandButtons[1], expandButtons[2])

	loc, err := First(context.Background(), p, expandButtons, time.Second)
	require.NoError(t, err)
	assert.Equal(t, expandButtons[1], loc)

	_, err = First(context.Background(), p, loginButtons, time.Second)
	assert.ErrorIs(t, err, ErrElementNotFound)
}
