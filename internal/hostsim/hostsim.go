// Package hostsim is a test-only stand-in for the physical NFC/USB
// transport: it runs the framed APDU exchange a real card speaks, but
// over a loopback websocket connection instead of radio, so
// integration tests can drive cardsession.Transport without hardware.
package hostsim

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/x1vault/core/internal/cardsession"
)

// CardHandler answers one APDU exchange for a simulated card. A
// Server has one handler per card number (1..4).
type CardHandler func(frame []byte) ([]byte, error)

const (
	msgSelect   = "SELECT"
	msgDeselect = "DESELECT"
)

// Server runs a websocket listener that dispatches SELECT/EXCHANGE/
// DESELECT control messages to the registered per-card handlers.
type Server struct {
	upgrader websocket.Upgrader
	listener net.Listener
	httpSrv  *http.Server

	mu       sync.Mutex
	handlers map[uint8]CardHandler
}

// NewServer starts a Server listening on a system-assigned loopback
// port. Addr reports the address to Dial.
func NewServer() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("hostsim: listen: %w", err)
	}

	s := &Server{
		listener: ln,
		handlers: make(map[uint8]CardHandler),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/card", s.serveConn)
	s.httpSrv = &http.Server{Handler: mux}

	go s.httpSrv.Serve(ln)
	return s, nil
}

// Addr returns the ws:// URL Dial should connect to.
func (s *Server) Addr() string {
	return "ws://" + s.listener.Addr().String() + "/card"
}

// Handle registers the responder for cardNumber (1..4), replacing any
// prior registration.
func (s *Server) Handle(cardNumber uint8, h CardHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[cardNumber] = h
}

// Close shuts the listener down.
func (s *Server) Close() error {
	return s.httpSrv.Close()
}

func (s *Server) handlerFor(cardNumber uint8) (CardHandler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[cardNumber]
	return h, ok
}

func (s *Server) serveConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("hostsim: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var selected uint8
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch kind {
		case websocket.TextMessage:
			text := string(data)
			switch {
			case strings.HasPrefix(text, msgSelect+":"):
				n, err := strconv.Atoi(strings.TrimPrefix(text, msgSelect+":"))
				if err != nil || n < 1 || n > 4 {
					conn.WriteMessage(websocket.TextMessage, []byte("ERR:bad card number"))
					continue
				}
				selected = uint8(n)
				conn.WriteMessage(websocket.TextMessage, []byte("OK"))
			case text == msgDeselect:
				selected = 0
				conn.WriteMessage(websocket.TextMessage, []byte("OK"))
			default:
				conn.WriteMessage(websocket.TextMessage, []byte("ERR:unknown control message"))
			}

		case websocket.BinaryMessage:
			if selected == 0 {
				conn.WriteMessage(websocket.TextMessage, []byte("ERR:no card selected"))
				continue
			}
			h, ok := s.handlerFor(selected)
			if !ok {
				conn.WriteMessage(websocket.TextMessage, []byte("ERR:card removed"))
				continue
			}
			resp, err := h(data)
			if err != nil {
				conn.WriteMessage(websocket.TextMessage, []byte("ERR:"+err.Error()))
				continue
			}
			conn.WriteMessage(websocket.BinaryMessage, resp)
		}
	}
}

// Client implements cardsession.Transport over a websocket connection
// to a Server.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to a Server's Addr.
func Dial(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("hostsim: dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) control(msg string) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return err
	}
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		return err
	}
	if kind != websocket.TextMessage {
		return fmt.Errorf("hostsim: unexpected control reply frame type %d", kind)
	}
	reply := string(data)
	if strings.HasPrefix(reply, "ERR:") {
		return classifyError(strings.TrimPrefix(reply, "ERR:"))
	}
	return nil
}

// Select implements cardsession.Transport.
func (c *Client) Select(ctx context.Context, cardNumber uint8) error {
	return c.control(fmt.Sprintf("%s:%d", msgSelect, cardNumber))
}

// Deselect implements cardsession.Transport.
func (c *Client) Deselect(ctx context.Context) error {
	return c.control(msgDeselect)
}

// Exchange implements cardsession.Transport.
func (c *Client) Exchange(ctx context.Context, frame []byte) ([]byte, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, err
	}
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind == websocket.TextMessage {
		reply := string(data)
		if strings.HasPrefix(reply, "ERR:") {
			return nil, classifyError(strings.TrimPrefix(reply, "ERR:"))
		}
		return nil, fmt.Errorf("hostsim: unexpected control reply during exchange: %s", reply)
	}
	return data, nil
}

func classifyError(msg string) error {
	switch msg {
	case "no card selected", "card removed":
		return cardsession.NewTransportError(cardsession.TransportCardRemoved, msg)
	default:
		return cardsession.NewTransportError(cardsession.TransportGeneric, msg)
	}
}

var _ cardsession.Transport = (*Client)(nil)
