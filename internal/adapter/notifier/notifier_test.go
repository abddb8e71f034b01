package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	. "github.com/smartystreets/goconvey/convey"
)

type stubChannel struct {
	name  string
	err   error
	calls int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Notify(ctx context.Context, subject, body string) error {
	s.calls++
	return s.err
}

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Warnf(template string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(template, args...))
}

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

func TestMulti(t *testing.T) {
	Convey("Given several channels", t, func() {
		ctx := context.Background()
		ok := &stubChannel{name: "ok"}
		broken := &stubChannel{name: "broken", err: errors.New("refused")}
		last := &stubChannel{name: "last"}
		logger := &recordingLogger{}
		m := NewMulti(logger, ok, broken, last)

		Convey("Every channel is attempted even when one fails", func() {
			err := m.Notify(ctx, "Backup Notification", "done")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "broken: refused")
			So(ok.calls, ShouldEqual, 1)
			So(broken.calls, ShouldEqual, 1)
			So(last.calls, ShouldEqual, 1)
			So(logger.lines, ShouldHaveLength, 1)
		})

		Convey("No channels means nothing to report", func() {
			So(NewMulti(nil).Notify(ctx, "s", "b"), ShouldBeNil)
		})
	})
}

func TestWebhook(t *testing.T) {
	Convey("Given a webhook endpoint", t, func() {
		var (
			mu          sync.Mutex
			got         Event
			contentType string
		)
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			_ = json.Unmarshal(body, &got)
			contentType = r.Header.Get("Content-Type")
			code := status
			mu.Unlock()
			w.WriteHeader(code)
		}))
		defer srv.Close()

		w := NewWebhook(srv.URL)

		Convey("The event is posted as JSON", func() {
			So(w.Notify(context.Background(), "Restore Notification", "tables mismatch"), ShouldBeNil)
			mu.Lock()
			defer mu.Unlock()
			So(contentType, ShouldEqual, "application/json")
			So(got.Subject, ShouldEqual, "Restore Notification")
			So(got.Body, ShouldEqual, "tables mismatch")
			So(got.Time.IsZero(), ShouldBeFalse)
		})

		Convey("A non-2xx status is an error", func() {
			mu.Lock()
			status = http.StatusBadGateway
			mu.Unlock()
			err := w.Notify(context.Background(), "s", "b")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "502")
		})
	})
}

func TestEmail(t *testing.T) {
	Convey("Given an email channel with a captured transport", t, func() {
		var addr, from string
		var to []string
		var msg []byte
		e := NewEmail(EmailOptions{Host: "smtp.example.com", Port: 587, Username: "ops", Password: "pw", From: "backup@example.com", To: []string{"a@example.com", "b@example.com"}})
		e.sendMail = func(_ context.Context, a string, auth smtp.Auth, f string, t []string, m []byte) error {
			addr, from, to, msg = a, f, t, m
			return nil
		}

		Convey("The message carries subject and body", func() {
			So(e.Notify(context.Background(), "Backup Notification", "line1\nline2"), ShouldBeNil)
			So(addr, ShouldEqual, "smtp.example.com:587")
			So(from, ShouldEqual, "backup@example.com")
			So(to, ShouldResemble, []string{"a@example.com", "b@example.com"})
			So(string(msg), ShouldContainSubstring, "Subject: Backup Notification\r\n")
			So(string(msg), ShouldContainSubstring, "line1\r\nline2")
		})

		Convey("Header injection through the subject is neutralized", func() {
			So(e.Notify(context.Background(), "x\r\nBcc: evil@example.com", "b"), ShouldBeNil)
			So(strings.Contains(string(msg), "\r\nBcc:"), ShouldBeFalse)
		})

		Convey("Missing recipients fail fast", func() {
			e.opts.To = nil
			So(e.Notify(context.Background(), "s", "b"), ShouldNotBeNil)
		})
	})
}

func TestTelegram(t *testing.T) {
	Convey("Given a telegram channel", t, func() {
		bot := &fakeBot{}
		tg := &Telegram{bot: bot, chatID: 42}

		Convey("Subject and body are sent to the chat", func() {
			So(tg.Notify(context.Background(), "Backup Notification", "ok"), ShouldBeNil)
			So(bot.sent, ShouldHaveLength, 1)
			msg := bot.sent[0].(tgbotapi.MessageConfig)
			So(msg.ChatID, ShouldEqual, 42)
			So(msg.Text, ShouldEqual, "Backup Notification\n\nok")
		})

		Convey("Send failures are wrapped", func() {
			bot.err = errors.New("forbidden")
			err := tg.Notify(context.Background(), "s", "b")
			So(err.Error(), ShouldContainSubstring, "forbidden")
		})

		Convey("A non-numeric chat id is rejected", func() {
			_, err := NewTelegram("token", "channel")
			So(err, ShouldNotBeNil)
		})
	})
}
