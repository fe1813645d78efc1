package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/ports"
	"uplinkpolicy/internal/infrastructure/rtcpfeed"
	rlog "uplinkpolicy/pkg/logger"
	"uplinkpolicy/pkg/tracing"
	"uplinkpolicy/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	MessageJoined   = "joined"
	MessageUplink   = "uplink"
	MessageRTCP     = "rtcp"
	MessageDecision = "decision"
	MessageError    = "error"
)

var errRateLimited = errors.New("report rate limit exceeded")

// ConnectionObserver is told when senders attach and detach.
type ConnectionObserver interface {
	SenderConnected()
	SenderDisconnected()
}

type Options struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration

	// ReportsPerSecond of zero disables report throttling.
	ReportsPerSecond float64
	Burst            int
	MaxMessageSize   int64

	// AllowedOrigins of nil or containing "*" accepts any origin.
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 16 * 1024,
	}
}

// WebSocketServer receives uplink estimates from senders and pushes back
// the simulcast decision whenever it changes.
type WebSocketServer struct {
	uplink   ports.UplinkService
	observer ConnectionObserver
	upgrader websocket.Upgrader
	opts     Options

	connections map[domain.SenderID]*senderConn
	mu          sync.RWMutex

	// Connection logs carry the request, session and sender IDs from ctx.
	cl *rlog.ContextLogger
}

type senderConn struct {
	session domain.SessionID
	sender  domain.SenderID
	conn    *websocket.Conn
	limiter *rate.Limiter
}

type SignalMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type UplinkPayload struct {
	UplinkKbps   int `json:"uplink_kbps"`
	Participants int `json:"participants"`
}

// RTCPPayload carries a compound RTCP packet; JSON encodes it as base64.
type RTCPPayload struct {
	Packet       []byte `json:"packet"`
	Participants int    `json:"participants"`
}

type JoinedMessage struct {
	Type      string           `json:"type"`
	SessionID domain.SessionID `json:"session_id"`
	SenderID  domain.SenderID  `json:"sender_id"`
}

type DecisionMessage struct {
	Type     string          `json:"type"`
	Decision domain.Decision `json:"decision"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewWebSocketServer(uplink ports.UplinkService, observer ConnectionObserver, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	defaults := DefaultOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaults.PingInterval
	}
	if opts.PongTimeout <= opts.PingInterval {
		opts.PongTimeout = 2 * opts.PingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaults.MaxMessageSize
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}

	s := &WebSocketServer{
		uplink:      uplink,
		observer:    observer,
		opts:        opts,
		connections: make(map[domain.SenderID]*senderConn),
		cl:          rlog.NewContextLogger(logger.Desugar()),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *WebSocketServer) newLimiter() *rate.Limiter {
	if s.opts.ReportsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(s.opts.ReportsPerSecond), s.opts.Burst)
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	sessionID := query.Get("session_id")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	senderID := query.Get("sender_id")
	if senderID == "" {
		senderID = uuid.New().String()
	}
	if err := validation.ValidateSenderID(senderID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := rlog.WithSender(r.Context(), sessionID, senderID)
	log := s.cl.Sugar(ctx)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sc := &senderConn{
		session: domain.SessionID(sessionID),
		sender:  domain.SenderID(senderID),
		conn:    conn,
		limiter: s.newLimiter(),
	}

	s.mu.Lock()
	existing, isReconnect := s.connections[sc.sender]
	s.connections[sc.sender] = sc
	s.mu.Unlock()
	if isReconnect {
		existing.conn.Close()
		log.Info("closing old connection for reconnecting sender")
	}

	s.uplink.Join(sc.session, sc.sender)
	if s.observer != nil {
		s.observer.SenderConnected()
	}
	log.Infow("sender connected via websocket", "reconnect", isReconnect)

	s.serve(ctx, sc)
	s.cleanup(ctx, sc)
}

func (s *WebSocketServer) serve(ctx context.Context, sc *senderConn) {
	log := s.cl.Sugar(ctx)
	conn := sc.conn
	conn.SetReadLimit(s.opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	if err := s.write(sc, JoinedMessage{Type: MessageJoined, SessionID: sc.session, SenderID: sc.sender}); err != nil {
		log.Infow("error sending join acknowledgement", "error", err)
		return
	}

	pingTicker := time.NewTicker(s.opts.PingInterval)
	defer pingTicker.Stop()

	messages := make(chan SignalMessage, 10)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			var msg SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
			select {
			case messages <- msg:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case msg := <-messages:
			if err := s.handleMessage(ctx, sc, msg); err != nil {
				log.Infow("error handling message from sender", "type", msg.Type, "error", err)
				if err := s.write(sc, ErrorMessage{Type: MessageError, Message: err.Error()}); err != nil {
					return
				}
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Infow("error sending ping", "error", err)
				return
			}

		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Infow("error reading message from sender", "error", err)
			}
			return
		}
	}
}

func (s *WebSocketServer) cleanup(ctx context.Context, sc *senderConn) {
	s.mu.Lock()
	current, ok := s.connections[sc.sender]
	replaced := ok && current != sc
	if !replaced {
		delete(s.connections, sc.sender)
	}
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.SenderDisconnected()
	}
	// A reconnect keeps the sender joined under its new connection.
	if !replaced {
		s.uplink.Leave(sc.session, sc.sender)
	}
	s.cl.Sugar(ctx).Info("sender disconnected")
}

func (s *WebSocketServer) handleMessage(ctx context.Context, sc *senderConn, msg SignalMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}

	ctx, span := tracing.TraceWebSocketMessage(ctx, msg.Type, string(sc.sender))
	defer span.End()

	var (
		report domain.UplinkReport
		err    error
	)
	switch msg.Type {
	case MessageUplink:
		report, err = s.uplinkReport(sc, msg.Payload)
	case MessageRTCP:
		report, err = s.rtcpReport(sc, msg.Payload)
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return err
	}

	if !sc.limiter.Allow() {
		return errRateLimited
	}

	decision, changed, err := s.uplink.Report(ctx, report)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("failed to apply uplink report: %w", err)
	}
	tracing.RecordMatchResult(ctx, decision.RuleIndex, decision.Fallback, decision.ActiveStreams.String())

	if !changed {
		return nil
	}
	return s.write(sc, DecisionMessage{Type: MessageDecision, Decision: decision})
}

func (s *WebSocketServer) uplinkReport(sc *senderConn, raw json.RawMessage) (domain.UplinkReport, error) {
	var payload UplinkPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.UplinkReport{}, fmt.Errorf("invalid uplink payload: %w", err)
	}
	return s.newReport(sc, payload.UplinkKbps, payload.Participants)
}

func (s *WebSocketServer) rtcpReport(sc *senderConn, raw json.RawMessage) (domain.UplinkReport, error) {
	var payload RTCPPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.UplinkReport{}, fmt.Errorf("invalid rtcp payload: %w", err)
	}
	estimate, err := rtcpfeed.UplinkFromRTCP(payload.Packet)
	if err != nil {
		return domain.UplinkReport{}, err
	}
	return s.newReport(sc, estimate.UplinkKbps, payload.Participants)
}

func (s *WebSocketServer) newReport(sc *senderConn, uplinkKbps, participants int) (domain.UplinkReport, error) {
	if err := validation.ValidateBitrate(uplinkKbps); err != nil {
		return domain.UplinkReport{}, err
	}
	if err := validation.ValidateParticipants(participants); err != nil {
		return domain.UplinkReport{}, err
	}
	return domain.UplinkReport{
		Session:      sc.session,
		Sender:       sc.sender,
		UplinkKbps:   uplinkKbps,
		Participants: participants,
	}, nil
}

func (s *WebSocketServer) write(sc *senderConn, v interface{}) error {
	sc.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	return sc.conn.WriteJSON(v)
}

// HandleDisconnect closes the sender's connection, or removes the sender
// directly when it is not connected here.
func (s *WebSocketServer) HandleDisconnect(ctx context.Context, session domain.SessionID, sender domain.SenderID) {
	s.mu.RLock()
	sc, ok := s.connections[sender]
	s.mu.RUnlock()

	if ok && sc.session == session {
		sc.conn.Close()
		return
	}
	s.uplink.Leave(session, sender)
}

func (s *WebSocketServer) ConnectedSenders() []domain.SenderID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	senders := make([]domain.SenderID, 0, len(s.connections))
	for sender := range s.connections {
		senders = append(senders, sender)
	}
	return senders
}

func (s *WebSocketServer) IsSenderConnected(sender domain.SenderID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.connections[sender]
	return ok
}

var _ ports.WebSocketHandler = (*WebSocketServer)(nil)
