package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daka/internal/config"
)

func TestWxPusherSendsMarkdownPayload(t *testing.T) {
	var got wxPusherRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"code":1000,"msg":"处理成功","success":true}`)
	}))
	defer srv.Close()

	wx, err := NewWxPusherNotifier(srv.URL, "AT_token", "UID_1")
	require.NoError(t, err)
	require.NoError(t, wx.Send(context.Background(), "日报完成 ✅", "**body**"))

	assert.Equal(t, "AT_token", got.AppToken)
	assert.Equal(t, "# 日报完成 ✅\n\n**body**", got.Content)
	assert.Equal(t, "日报完成 ✅", got.Summary)
	assert.Equal(t, 3, got.ContentType)
	assert.Equal(t, []string{"UID_1"}, got.UIDs)
	assert.False(t, got.VerifyPay)
}

func TestWxPusherRejectsNonOKCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":1001,"msg":"appToken错误"}`)
	}))
	defer srv.Close()

	wx, err := NewWxPusherNotifier(srv.URL, "bad", "UID_1")
	require.NoError(t, err)
	err = wx.Send(context.Background(), "t", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appToken错误")
}

func TestNewWxPusherRequiresTokenAndUID(t *testing.T) {
	_, err := NewWxPusherNotifier("", "", "uid")
	assert.Error(t, err)
}

func TestBarkPostsForm(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
	}))
	defer srv.Close()

	bark, err := NewBarkNotifier(srv.URL + "/")
	require.NoError(t, err)
	require.NoError(t, bark.Send(context.Background(), "title", "**状态**: ok"))

	assert.Equal(t, "title", form.Get("title"))
	assert.Equal(t, "状态: ok", form.Get("body"))
	assert.Equal(t, "daka", form.Get("group"))
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Send(context.Context, string, string) error {
	f.calls++
	return errors.New("boom")
}

type countingNotifier struct{ calls int }

func (c *countingNotifier) Send(context.Context, string, string) error {
	c.calls++
	return nil
}

func TestMultiNotifierContinuesAfterFailure(t *testing.T) {
	bad := &failingNotifier{}
	good := &countingNotifier{}
	err := NewMultiNotifier(bad, good).Send(context.Background(), "t", "b")

	assert.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, good.calls)
}

func TestFromConfig(t *testing.T) {
	n, err := FromConfig(config.NotificationConfig{})
	require.NoError(t, err)
	assert.IsType(t, &NoOpNotifier{}, n)

	n, err = FromConfig(config.NotificationConfig{
		WxPusher: config.WxPusherConfig{AppToken: "a", UID: "u"},
		Bark:     config.BarkConfig{URL: "https://api.day.app/key"},
	})
	require.NoError(t, err)
	multi, ok := n.(*MultiNotifier)
	require.True(t, ok)
	assert.Equal(t, 2, multi.Len())
}

func TestComposeSuccess(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	title, body := Compose(Outcome{
		Subject:   "日报",
		Username:  "alice",
		At:        time.Date(2026, 10, 19, 17, 31, 5, 0, loc),
		Succeeded: true,
	})

	assert.Equal(t, "日报完成 ✅", title)
	assert.Contains(t, body, "2026年10月19日")
	assert.Contains(t, body, "17:31:05 (CST)")
	assert.Contains(t, body, "alice")
	assert.Contains(t, body, "日报已成功提交")
}

func TestComposeFailureIncludesReason(t *testing.T) {
	title, body := Compose(Outcome{
		Subject:  "上班打卡",
		Username: "bob",
		At:       time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		Err:      errors.New("check-in button not found"),
	})

	assert.Equal(t, "上班打卡未完成 ❌", title)
	assert.Contains(t, body, "check-in button not found")
	assert.Contains(t, body, "请及时处理或手动提交上班打卡。")
}
