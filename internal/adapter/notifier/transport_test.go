package notifier

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// lineServer accepts connections and hands each one to serve.
type lineServer struct {
	ln net.Listener

	mu       sync.Mutex
	received []string
}

func newLineServer(t *testing.T, serve func(s *lineServer, conn net.Conn)) *lineServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &lineServer{ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				serve(s, conn)
			}()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *lineServer) record(v string) {
	s.mu.Lock()
	s.received = append(s.received, v)
	s.mu.Unlock()
}

func (s *lineServer) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func (s *lineServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// serveNATS speaks enough of the NATS client protocol for connect, publish
// and flush.
func serveNATS(s *lineServer, conn net.Conn) {
	fmt.Fprint(conn, "INFO {\"server_id\":\"test\",\"version\":\"2.10.0\",\"proto\":1,\"max_payload\":1048576}\r\n")
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "PING"):
			fmt.Fprint(conn, "PONG\r\n")
		case strings.HasPrefix(line, "PUB "):
			fields := strings.Fields(line)
			n, _ := strconv.Atoi(fields[len(fields)-1])
			payload := make([]byte, n+2)
			if _, err := io.ReadFull(r, payload); err != nil {
				return
			}
			s.record(fields[1] + " " + string(payload[:n]))
		}
	}
}

func TestNATS(t *testing.T) {
	Convey("Given a NATS server", t, func() {
		srv := newLineServer(t, serveNATS)
		n, err := NewNATS(fmt.Sprintf("nats://127.0.0.1:%d", srv.port()), "dumpcycle.events")
		So(err, ShouldBeNil)
		defer n.Close()

		Convey("An event is published even without a caller deadline", func() {
			ctx := context.WithoutCancel(context.Background())
			So(n.Notify(ctx, "Backup Notification", "Backup Operation finished"), ShouldBeNil)

			got := srv.all()
			So(got, ShouldHaveLength, 1)
			subject, payload, _ := strings.Cut(got[0], " ")
			So(subject, ShouldEqual, "dumpcycle.events")

			var ev Event
			So(json.Unmarshal([]byte(payload), &ev), ShouldBeNil)
			So(ev.Subject, ShouldEqual, "Backup Notification")
			So(ev.Body, ShouldEqual, "Backup Operation finished")
		})

		Convey("A caller deadline is honoured", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			So(n.Notify(ctx, "Restore Notification", "ok"), ShouldBeNil)
		})
	})
}

// serveSMTP accepts a single plain-text message and records its DATA.
func serveSMTP(s *lineServer, conn net.Conn) {
	fmt.Fprint(conn, "220 test ESMTP\r\n")
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		verb := strings.ToUpper(strings.Fields(line + " x")[0])
		switch verb {
		case "EHLO", "HELO":
			fmt.Fprint(conn, "250-test\r\n250 8BITMIME\r\n")
		case "MAIL", "RCPT", "RSET", "NOOP":
			fmt.Fprint(conn, "250 ok\r\n")
		case "DATA":
			fmt.Fprint(conn, "354 go ahead\r\n")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			s.record(data.String())
			fmt.Fprint(conn, "250 queued\r\n")
		case "QUIT":
			fmt.Fprint(conn, "221 bye\r\n")
			return
		default:
			fmt.Fprint(conn, "502 unsupported\r\n")
		}
	}
}

func TestEmailDelivery(t *testing.T) {
	Convey("Given an SMTP server", t, func() {
		Convey("A message is delivered over the wire", func() {
			srv := newLineServer(t, serveSMTP)
			e := NewEmail(EmailOptions{Host: "127.0.0.1", Port: srv.port(), From: "backup@example.com", To: []string{"ops@example.com"}})

			So(e.Notify(context.Background(), "Backup Notification", "Backup Operation finished"), ShouldBeNil)
			got := srv.all()
			So(got, ShouldHaveLength, 1)
			So(got[0], ShouldContainSubstring, "Subject: Backup Notification\r\n")
			So(got[0], ShouldContainSubstring, "Backup Operation finished")
		})

		Convey("A silent server does not block past the deadline", func() {
			srv := newLineServer(t, func(_ *lineServer, conn net.Conn) {
				_, _ = io.Copy(io.Discard, conn)
			})
			e := NewEmail(EmailOptions{Host: "127.0.0.1", Port: srv.port(), From: "backup@example.com", To: []string{"ops@example.com"}})

			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			start := time.Now()
			err := e.Notify(ctx, "s", "b")
			So(err, ShouldNotBeNil)
			So(time.Since(start), ShouldBeLessThan, 5*time.Second)
		})
	})
}
