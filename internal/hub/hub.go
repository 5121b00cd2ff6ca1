package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"hokmd/internal/game"
	"hokmd/internal/protocol"
	"hokmd/internal/store"
)

const storeOpTimeout = 2 * time.Second

// Hub accepts upgraded connections, decodes their frames, and routes them to
// room actors. It owns the registry and the room table; rooms own their
// boards.
type Hub struct {
	cfg      Settings
	registry *Registry
	store    *store.Store
	logger   *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room

	closed atomic.Bool
}

// New builds a hub over the given store.
func New(st *store.Store, cfg Settings, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:      cfg.withDefaults(),
		registry: NewRegistry(),
		store:    st,
		logger:   logger,
		rooms:    make(map[string]*Room),
	}
}

// Serve takes ownership of an upgraded connection and starts its pumps. The
// connection stays anonymous until a join or a revalidated action attaches
// it to a player.
func (h *Hub) Serve(conn *websocket.Conn) {
	if h.closed.Load() {
		conn.Close()
		return
	}
	c := newClient(conn)
	go c.writePump()
	go c.readPump(h)
}

// RoomCount reports how many room actors are live.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// ConnectionCount reports how many connections are attached to a player.
func (h *Hub) ConnectionCount() int {
	return h.registry.Len()
}

// route dispatches one inbound frame from a connection.
func (h *Hub) route(c *Client, data []byte) {
	msg, decErr := protocol.Decode(data)
	if decErr != nil {
		h.deliver(c, "", protocol.NewErrorMessage(decErr))
		return
	}

	switch m := msg.(type) {
	case *protocol.Join:
		h.handleJoin(c, m)
	case *protocol.Heartbeat:
		h.handleHeartbeat(c, m)
	case *protocol.ChooseTrump:
		h.submitAction(c, m.RoomCode, m.PlayerID, request{kind: reqChooseTrump, suit: m.Suit})
	case *protocol.PlayCard:
		h.submitAction(c, m.RoomCode, m.PlayerID, request{kind: reqPlayCard, card: m.Card})
	case *protocol.Leave:
		h.submitAction(c, m.RoomCode, m.PlayerID, request{kind: reqLeave})
	}
}

func (h *Hub) handleJoin(c *Client, m *protocol.Join) {
	room, err := h.roomFor(m.RoomCode)
	if err != nil {
		h.deliver(c, "", protocol.NewErrorMessage(err))
		return
	}
	req := request{kind: reqJoin, playerID: m.PlayerID, name: m.DisplayName, client: c}
	if serr := room.Submit(req); serr != nil {
		h.deliver(c, "", protocol.NewErrorMessage(serr))
	}
}

// handleHeartbeat refreshes the session liveness record. Heartbeats never
// enter a room queue and get no reply.
func (h *Hub) handleHeartbeat(c *Client, m *protocol.Heartbeat) {
	if ident, ok := h.registry.Resolve(c); ok {
		if m.PlayerID != ident.playerID {
			h.deliver(c, "", protocol.NewErrorMessage(game.ErrUnauthenticated))
			return
		}
	} else {
		verdict, _, err := h.validate(m.PlayerID)
		if err != nil || (verdict != store.VerdictValid && verdict != store.VerdictRecoverable) {
			h.deliver(c, "", protocol.NewErrorMessage(game.ErrUnauthenticated))
			c.closeWith(CloseUnauthenticated, "unauthenticated")
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	if err := h.store.TouchHeartbeat(ctx, m.PlayerID); err != nil {
		h.logger.Debug("heartbeat touch failed", "player", m.PlayerID, "error", err)
	}
}

// submitAction authenticates an action frame and queues it. Resolution runs
// in tiers: the registry for attached connections, then the session store
// for survivors of a server restart, and finally a rejecting close.
func (h *Hub) submitAction(c *Client, roomCode, claimedID string, req request) {
	if ident, ok := h.registry.Resolve(c); ok {
		if claimedID != ident.playerID {
			h.deliver(c, "", protocol.NewErrorMessage(game.ErrUnauthenticated))
			return
		}
		if roomCode != ident.roomCode {
			h.deliver(c, "", protocol.NewErrorMessage(game.ErrNotInRoom))
			return
		}
		req.playerID = ident.playerID
		h.submitTo(c, ident.roomCode, req)
		return
	}

	verdict, sess, err := h.validate(claimedID)
	if err != nil {
		h.logger.Warn("session validation unavailable", "player", claimedID, "error", err)
	}
	if (verdict == store.VerdictValid || verdict == store.VerdictRecoverable) && sess.RoomCode == roomCode {
		room, rerr := h.roomFor(roomCode)
		if rerr != nil {
			h.deliver(c, "", protocol.NewErrorMessage(rerr))
			return
		}
		// Reattach first, then the action, in arrival order.
		if serr := room.Submit(request{kind: reqJoin, playerID: claimedID, client: c}); serr != nil {
			h.deliver(c, "", protocol.NewErrorMessage(serr))
			return
		}
		req.playerID = claimedID
		if serr := room.Submit(req); serr != nil {
			h.deliver(c, "", protocol.NewErrorMessage(serr))
		}
		return
	}

	h.deliver(c, "", protocol.NewErrorMessage(game.ErrUnauthenticated))
	c.closeWith(CloseUnauthenticated, "unauthenticated")
}

func (h *Hub) validate(playerID string) (store.Verdict, *store.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	return h.store.ValidateSession(ctx, playerID)
}

func (h *Hub) submitTo(c *Client, roomCode string, req request) {
	room := h.roomIfLive(roomCode)
	if room == nil {
		h.deliver(c, "", protocol.NewErrorMessage(game.ErrNotInRoom))
		return
	}
	if err := room.Submit(req); err != nil {
		h.deliver(c, "", protocol.NewErrorMessage(err))
	}
}

func (h *Hub) roomIfLive(code string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[code]
}

// roomFor returns the live actor for a code, resuming a persisted board or
// starting a fresh lobby when none is running.
func (h *Hub) roomFor(code string) (*Room, error) {
	h.mu.Lock()
	if room, ok := h.rooms[code]; ok {
		h.mu.Unlock()
		return room, nil
	}
	h.mu.Unlock()

	// Load outside the table lock; a racing caller may do the same work and
	// the insert below keeps whichever got there first.
	board, err := h.loadBoard(code)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[code]; ok {
		return room, nil
	}
	room := NewRoom(board, roomGateway{h}, h.store, h.cfg, h.logger, h.removeRoom)
	h.rooms[code] = room
	room.Start()
	return room, nil
}

func (h *Hub) loadBoard(code string) (*game.Board, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	board, err := h.store.LoadRoom(ctx, code)
	switch {
	case err == nil:
		// Resumed after a restart; nobody from the snapshot is attached yet.
		for _, p := range board.Players {
			board.MarkDisconnected(p.ID)
		}
		h.logger.Info("room resumed from store", "room", code, "phase", board.Phase, "round", board.Round)
		return board, nil
	case errors.Is(err, store.ErrNotFound):
		return game.NewBoard(code), nil
	case errors.Is(err, store.ErrCorruptState):
		h.logger.Error("room state quarantined", "room", code, "error", err)
		return nil, &game.Error{Code: game.CodeServerError, Reason: "room state could not be restored"}
	default:
		// Store down: carry on from memory, background saves will catch up.
		h.logger.Warn("store unavailable, starting room from memory", "room", code, "error", err)
		return game.NewBoard(code), nil
	}
}

func (h *Hub) removeRoom(code string) {
	h.mu.Lock()
	delete(h.rooms, code)
	h.mu.Unlock()
}

// dropClient runs when a connection's read pump exits for any reason: page
// close, network drop, or a close we initiated.
func (h *Hub) dropClient(c *Client) {
	c.shutdown()
	ident, ok := h.registry.Detach(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	if err := h.store.MarkDisconnected(ctx, ident.playerID); err != nil {
		h.logger.Debug("disconnect mark failed", "player", ident.playerID, "error", err)
	}
	cancel()

	if room := h.roomIfLive(ident.roomCode); room != nil {
		if err := room.Submit(request{kind: reqDisconnect, playerID: ident.playerID}); err != nil {
			h.logger.Warn("disconnect not delivered",
				"room", ident.roomCode,
				"player", ident.playerID,
				"error", err)
		}
	}
	h.logger.Info("connection closed", "player", ident.playerID, "room", ident.roomCode)
}

// Shutdown stops every room, which drains queues, saves state, and closes
// member connections, then closes whatever is still attached. Blocks until
// done or ctx expires.
func (h *Hub) Shutdown(ctx context.Context) {
	h.closed.Store(true)

	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, room := range rooms {
		wg.Add(1)
		go func(r *Room) {
			defer wg.Done()
			r.Stop(ctx)
		}(room)
	}
	wg.Wait()

	for _, c := range h.registry.AllClients() {
		c.closeWith(CloseServerShutdown, "server shutting down")
	}
	h.logger.Info("hub stopped", "rooms", len(rooms))
}

// deliver marshals and queues one frame for a connection. A full send buffer
// tears the connection down rather than blocking the caller.
func (h *Hub) deliver(c *Client, playerID string, frame any) {
	data, err := protocol.Encode(frame)
	if err != nil {
		h.logger.Error("frame encode failed", "player", playerID, "error", err)
		return
	}
	h.deliverRaw(c, playerID, data)
}

func (h *Hub) deliverRaw(c *Client, playerID string, data []byte) {
	if !c.enqueue(data) {
		h.logger.Warn("send buffer full, dropping connection", "player", playerID)
		c.shutdown()
	}
}

// roomGateway adapts the hub and registry to the delivery surface rooms use.
type roomGateway struct {
	h *Hub
}

func (g roomGateway) Attach(c *Client, playerID, roomCode string) {
	if old := g.h.registry.Attach(c, playerID, roomCode); old != nil {
		old.closeWith(CloseReplaced, "superseded by a newer connection")
	}
}

func (g roomGateway) Send(playerID string, frame any) {
	c, ok := g.h.registry.ClientFor(playerID)
	if !ok {
		return
	}
	g.h.deliver(c, playerID, frame)
}

func (g roomGateway) SendTo(c *Client, frame any) {
	g.h.deliver(c, "", frame)
}

func (g roomGateway) CloseTo(c *Client, code int, reason string) {
	c.closeWith(code, reason)
}

func (g roomGateway) ClosePlayer(playerID string, code int, reason string) {
	if c, ok := g.h.registry.ClientFor(playerID); ok {
		c.closeWith(code, reason)
	}
}

func (g roomGateway) Broadcast(roomCode string, frame any, except ...string) {
	data, err := protocol.Encode(frame)
	if err != nil {
		g.h.logger.Error("broadcast encode failed", "room", roomCode, "error", err)
		return
	}
	skip := make(map[string]bool, len(except))
	for _, pid := range except {
		skip[pid] = true
	}
	for pid, c := range g.h.registry.RoomClients(roomCode) {
		if skip[pid] {
			continue
		}
		g.h.deliverRaw(c, pid, data)
	}
}
