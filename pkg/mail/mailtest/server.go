// Package mailtest provides a minimal in-process SMTP server for tests.
package mailtest

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
)

// Envelope is one message accepted by the server.
type Envelope struct {
	From string
	To   []string
	Data string
}

// Server is a minimal SMTP server on a random local port. It implements
// only the commands gomail issues against a relay without TLS or AUTH.
type Server struct {
	Host string
	Port int

	// RejectRecipient, when set, makes RCPT TO fail with 550 for matching addresses.
	RejectRecipient func(addr string) bool

	ln net.Listener
	wg sync.WaitGroup

	mu       sync.Mutex
	messages []Envelope
}

// NewServer starts a server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	s := &Server{Host: "127.0.0.1", Port: addr.Port, ln: ln}

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Close stops accepting connections and waits for open sessions to end.
func (s *Server) Close() {
	_ = s.ln.Close()
	s.wg.Wait()
}

// Messages returns a copy of every accepted message.
func (s *Server) Messages() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Envelope, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	fmt.Fprintf(conn, "220 localhost Test SMTP Service Ready\r\n")

	var env Envelope
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			fmt.Fprintf(conn, "250-localhost Hello\r\n250 OK\r\n")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			env = Envelope{From: trimAddr(line[len("MAIL FROM:"):])}
			fmt.Fprintf(conn, "250 OK\r\n")
		case strings.HasPrefix(upper, "RCPT TO:"):
			addr := trimAddr(line[len("RCPT TO:"):])
			if s.RejectRecipient != nil && s.RejectRecipient(addr) {
				fmt.Fprintf(conn, "550 5.1.1 Recipient rejected\r\n")
				continue
			}
			env.To = append(env.To, addr)
			fmt.Fprintf(conn, "250 OK\r\n")
		case upper == "DATA":
			fmt.Fprintf(conn, "354 End data with <CR><LF>.<CR><LF>\r\n")
			var data strings.Builder
			for {
				dline, derr := r.ReadString('\n')
				if derr != nil {
					return
				}
				if strings.TrimRight(dline, "\r\n") == "." {
					break
				}
				data.WriteString(dline)
			}
			env.Data = data.String()
			s.mu.Lock()
			s.messages = append(s.messages, env)
			s.mu.Unlock()
			fmt.Fprintf(conn, "250 OK: queued\r\n")
		case upper == "QUIT":
			fmt.Fprintf(conn, "221 Bye\r\n")
			return
		default:
			fmt.Fprintf(conn, "250 OK\r\n")
		}
	}
}

func trimAddr(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, " "); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(s, "<>")
}
