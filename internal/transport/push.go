package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clipfeed/admin-dashboard/internal/snapshot"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB
)

// readWait bounds the silence tolerated between inbound messages. The
// backend pings every 30 seconds, so a peer quiet for this long is dead
// and the connection must surface as closed rather than hang forever.
var readWait = 90 * time.Second

// Sink receives what the push connection produces. The reconnect decision
// on close belongs to the owner, never to the transport itself.
type Sink interface {
	AcceptUpdate(snap snapshot.Snapshot)
	TransportClosed(err error)
}

// Push is a live push connection to the backend admin channel.
type Push struct {
	conn     *websocket.Conn
	sink     Sink
	clientID string
	logger   *zap.Logger

	writeMu sync.Mutex
	closed  sync.Once
}

// DialPush opens the push connection and sends the subscribe handshake.
// On success the caller must run ReadPump exactly once.
func DialPush(ctx context.Context, url string, sink Sink, logger *zap.Logger) (*Push, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	p := &Push{
		conn:     conn,
		sink:     sink,
		clientID: uuid.New().String(),
		logger:   logger,
	}

	if err := p.write(buildSubscribeMessage(p.clientID)); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Debug("push transport connected",
		zap.String("url", url),
		zap.String("clientID", p.clientID),
	)
	return p, nil
}

// ClientID returns the generated id sent in the subscribe handshake.
func (p *Push) ClientID() string {
	return p.clientID
}

// ReadPump reads messages from the push connection until it closes. Data
// updates go to the sink; keep-alive pings are answered with a pong and not
// treated as data; malformed payloads are dropped with a warning.
func (p *Push) ReadPump() {
	defer p.conn.Close()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(readWait))

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.Debug("push read error",
					zap.String("clientID", p.clientID),
					zap.Error(err),
				)
			}
			p.sink.TransportClosed(err)
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(readWait))
		p.handleMessage(message)
	}
}

// handleMessage processes an incoming downstream message.
func (p *Push) handleMessage(data []byte) {
	msg, err := parseServerMessage(data)
	if err != nil {
		p.logger.Warn("dropping malformed push message",
			zap.String("clientID", p.clientID),
			zap.Error(err),
		)
		return
	}

	switch m := msg.(type) {
	case *pingMessage:
		if err := p.write(buildPongMessage()); err != nil {
			p.logger.Debug("pong write failed",
				zap.String("clientID", p.clientID),
				zap.Error(err),
			)
		}

	case *dataUpdate:
		p.sink.AcceptUpdate(m.snap)
	}
}

func (p *Push) write(payload []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close actively closes the connection. ReadPump unblocks and reports
// TransportClosed; owners stopping for good ignore that signal.
func (p *Push) Close() {
	p.closed.Do(func() {
		p.writeMu.Lock()
		p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		p.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		p.writeMu.Unlock()
		p.conn.Close()
	})
}
