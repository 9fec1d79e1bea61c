package ftp

import (
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeServer speaks the subset of FTP the client uses: login, FEAT, TYPE,
// SIZE, EPSV and RETR.
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	files map[string][]byte
	// sizes overrides the SIZE reply for a path.
	sizes map[string]int64
	// user and pass are required when set; otherwise any login is accepted.
	user, pass string
	noSize     bool

	mu     sync.Mutex
	logins [][2]string
}

func newFakeServer(t *testing.T, files map[string][]byte, opts ...func(*fakeServer)) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{t: t, ln: ln, files: files, sizes: map[string]int64{}}
	for _, opt := range opts {
		opt(s)
	}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeServer) URL(path string) string {
	return "ftp://" + s.ln.Addr().String() + path
}

func (s *fakeServer) Logins() [][2]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]string(nil), s.logins...)
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	tp := textproto.NewConn(conn)
	reply := func(format string, args ...interface{}) { _ = tp.PrintfLine(format, args...) }

	reply("220 fake ftp ready")
	var user string
	var data net.Listener
	defer func() {
		if data != nil {
			_ = data.Close()
		}
	}()

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(cmd) {
		case "USER":
			user = arg
			reply("331 password required")
		case "PASS":
			s.mu.Lock()
			s.logins = append(s.logins, [2]string{user, arg})
			s.mu.Unlock()
			if s.user != "" && (user != s.user || arg != s.pass) {
				reply("530 login incorrect")
				continue
			}
			reply("230 logged in")
		case "TYPE":
			reply("200 type set")
		case "SIZE":
			if s.noSize {
				reply("502 command not implemented")
				continue
			}
			body, ok := s.files[arg]
			if !ok {
				reply("550 no such file")
				continue
			}
			size := int64(len(body))
			if override, ok := s.sizes[arg]; ok {
				size = override
			}
			reply("213 %d", size)
		case "EPSV":
			if data != nil {
				_ = data.Close()
			}
			data, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 cannot open data connection")
				continue
			}
			_, port, _ := net.SplitHostPort(data.Addr().String())
			p, _ := strconv.Atoi(port)
			reply("229 Entering Extended Passive Mode (|||%d|)", p)
		case "RETR":
			body, ok := s.files[arg]
			if !ok || data == nil {
				if data != nil {
					_ = data.Close()
					data = nil
				}
				reply("550 no such file")
				continue
			}
			dc, err := data.Accept()
			_ = data.Close()
			data = nil
			if err != nil {
				reply("425 cannot open data connection")
				continue
			}
			reply("150 opening data connection")
			_, _ = dc.Write(body)
			_ = dc.Close()
			reply("226 transfer complete")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 %s not implemented", cmd)
		}
	}
}

func (s *fakeServer) String() string {
	return fmt.Sprintf("fake ftp at %s", s.ln.Addr())
}
