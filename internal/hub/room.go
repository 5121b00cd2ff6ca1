package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"hokmd/internal/game"
	"hokmd/internal/protocol"
	"hokmd/internal/store"
)

const (
	persistAttempts  = 5
	persistOpTimeout = 2 * time.Second
	drainTimeout     = 5 * time.Second
)

// Settings tune one room actor. Zero fields fall back to the defaults.
type Settings struct {
	TurnTimeout    time.Duration
	ReconnectGrace time.Duration
	QueueCapacity  int
}

func (s Settings) withDefaults() Settings {
	if s.TurnTimeout <= 0 {
		s.TurnTimeout = 60 * time.Second
	}
	if s.ReconnectGrace <= 0 {
		s.ReconnectGrace = 5 * time.Minute
	}
	if s.QueueCapacity <= 0 {
		s.QueueCapacity = 256
	}
	return s
}

// gateway is the delivery surface a room uses: attaching connections on join
// and sending frames. The hub implements it over the registry; tests record.
type gateway interface {
	Attach(c *Client, playerID, roomCode string)
	Send(playerID string, frame any)
	SendTo(c *Client, frame any)
	CloseTo(c *Client, code int, reason string)
	ClosePlayer(playerID string, code int, reason string)
	Broadcast(roomCode string, frame any, except ...string)
}

type requestKind int

const (
	reqJoin requestKind = iota
	reqChooseTrump
	reqPlayCard
	reqLeave
	reqDisconnect
	reqGraceExpired
)

// request is one queued unit of work for a room actor.
type request struct {
	kind     requestKind
	playerID string
	name     string    // join
	suit     game.Suit // choose_trump
	card     game.Card // play_card
	client   *Client   // join attaches this connection on success
}

// Room is the single-writer actor owning one board. All mutations funnel
// through the inbox and are applied sequentially by the run loop; nothing
// else touches the board once Start has been called.
type Room struct {
	code   string
	cfg    Settings
	board  *game.Board
	gw     gateway
	store  *store.Store
	logger *slog.Logger

	inbox chan request
	stop  chan struct{}
	done  chan struct{}

	stopOnce sync.Once

	// Actor-owned; only the run loop reads or writes these.
	turnTimer   *time.Timer
	turnC       <-chan time.Time
	graceTimers map[string]*time.Timer

	persist  chan *game.Board
	degraded atomic.Bool

	onEmpty func(code string)
}

// NewRoom wires an actor around a board. Call Start to launch it.
func NewRoom(board *game.Board, gw gateway, st *store.Store, cfg Settings, logger *slog.Logger, onEmpty func(string)) *Room {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Room{
		code:        board.RoomCode,
		cfg:         cfg,
		board:       board,
		gw:          gw,
		store:       st,
		logger:      logger,
		inbox:       make(chan request, cfg.QueueCapacity),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		graceTimers: make(map[string]*time.Timer),
		persist:     make(chan *game.Board, 1),
		onEmpty:     onEmpty,
	}
}

// Start launches the actor and its persistence worker.
func (r *Room) Start() {
	go r.run()
	go r.persistLoop()
}

// Code returns the room code.
func (r *Room) Code() string {
	return r.code
}

// Degraded reports whether background persistence is currently failing.
func (r *Room) Degraded() bool {
	return r.degraded.Load()
}

// Submit enqueues a request in FIFO order. Fails fast with room_overloaded
// when the queue is full; a full queue signals a pathological client.
func (r *Room) Submit(req request) error {
	select {
	case <-r.done:
		return game.ErrRoomAbandoned
	default:
	}
	select {
	case r.inbox <- req:
		return nil
	default:
		return game.ErrRoomOverloaded
	}
}

// Stop drains pending requests, persists the final state, closes member
// connections with the shutdown code, and waits for the actor to exit or ctx
// to run out.
func (r *Room) Stop(ctx context.Context) {
	r.stopOnce.Do(func() { close(r.stop) })
	select {
	case <-r.done:
	case <-ctx.Done():
	}
}

func (r *Room) run() {
	defer close(r.done)
	r.resume()
	for {
		select {
		case <-r.stop:
			r.shutdownDrain()
			return
		case req := <-r.inbox:
			r.apply(req)
			if r.reapIfDead() {
				return
			}
		case <-r.turnC:
			r.turnC = nil
			r.handleTurnDeadline()
			if r.reapIfDead() {
				return
			}
		}
	}
}

// resume arms the timers a freshly loaded board needs: a grace window for
// every disconnected player and the turn deadline.
func (r *Room) resume() {
	if r.board.Phase.Terminal() {
		return
	}
	for _, p := range r.board.Players {
		if !p.Connected() {
			r.armGrace(p.ID)
		}
	}
	r.armTimers()
}

// apply runs one request against the board. A panic inside a transition is
// caught, the board is rolled back to the pre-image, and the originator gets
// a server_error; the loop continues.
func (r *Room) apply(req request) {
	pre := r.board.Clone()
	defer func() {
		if rec := recover(); rec != nil {
			r.board = pre
			r.logger.Error("transition panicked, state rolled back",
				"room", r.code,
				"player", req.playerID,
				"panic", rec)
			frame := protocol.NewErrorMessage(fmt.Errorf("transition panic: %v", rec))
			if req.client != nil {
				r.gw.SendTo(req.client, frame)
			} else if req.playerID != "" {
				r.gw.Send(req.playerID, frame)
			}
		}
	}()

	switch req.kind {
	case reqJoin:
		r.handleJoin(req)
	case reqChooseTrump:
		r.handleChooseTrump(req)
	case reqPlayCard:
		r.handlePlayCard(req)
	case reqLeave:
		r.handleLeave(req)
	case reqDisconnect:
		r.handleDisconnect(req)
	case reqGraceExpired:
		r.handleGraceExpired(req)
	}
}

func (r *Room) handleJoin(req request) {
	if req.playerID != "" && r.board.HasPlayer(req.playerID) {
		r.handleRejoin(req)
		return
	}

	if req.playerID != "" {
		// Identity offered but unknown to this board: whatever game that
		// session belonged to is gone.
		verdict, sess, err := r.store.ValidateSession(context.Background(), req.playerID)
		if err != nil {
			r.logger.Warn("session validation unavailable", "room", r.code, "error", err)
		}
		if (verdict == store.VerdictValid || verdict == store.VerdictRecoverable) && sess.RoomCode != r.code {
			r.gw.SendTo(req.client, protocol.NewErrorMessage(game.ErrNotInRoom))
			return
		}
		r.gw.SendTo(req.client, protocol.NewErrorMessage(game.ErrSessionExpired))
		r.gw.CloseTo(req.client, CloseUnauthenticated, "session expired")
		return
	}

	playerID := uuid.NewString()
	res, err := r.board.Join(playerID, req.name)
	if err != nil {
		r.gw.SendTo(req.client, protocol.NewErrorMessage(err))
		return
	}

	r.gw.Attach(req.client, playerID, r.code)
	r.saveSession(res.Player)
	r.gw.SendTo(req.client, protocol.NewJoinSuccess(res.Player, r.board.ViewFor(playerID)))
	r.gw.Broadcast(r.code, protocol.NewPlayerJoined(res.Player), playerID)
	r.logger.Info("player joined",
		"room", r.code,
		"player", playerID,
		"seat", res.Player.Seat,
		"name", req.name)

	if res.Started {
		r.emitRoundStart(true)
	}
	r.armTimers()
	r.schedulePersist()
}

func (r *Room) handleRejoin(req request) {
	pid := req.playerID

	if r.board.Phase.Terminal() {
		// Nothing to reactivate; reattach so they can see how it ended.
		r.board.MarkConnected(pid)
		r.gw.Attach(req.client, pid, r.code)
		p := r.board.PlayerByID(pid)
		r.gw.SendTo(req.client, protocol.NewJoinSuccess(p, r.board.ViewFor(pid)))
		r.gw.SendTo(req.client, protocol.NewStateResync(r.board.ViewFor(pid)))
		return
	}

	res, err := r.board.Join(pid, req.name)
	if err != nil {
		r.gw.SendTo(req.client, protocol.NewErrorMessage(err))
		return
	}

	r.cancelGrace(pid)
	r.gw.Attach(req.client, pid, r.code)
	r.saveSession(res.Player)
	r.gw.SendTo(req.client, protocol.NewJoinSuccess(res.Player, r.board.ViewFor(pid)))
	r.gw.SendTo(req.client, protocol.NewStateResync(r.board.ViewFor(pid)))
	r.gw.Broadcast(r.code, protocol.NewPlayerReconnected(pid, res.Player.Seat), pid)
	r.logger.Info("player reconnected", "room", r.code, "player", pid, "seat", res.Player.Seat)
	r.schedulePersist()
}

func (r *Room) handleChooseTrump(req request) {
	res, err := r.board.ChooseTrump(req.playerID, req.suit)
	if err != nil {
		r.gw.Send(req.playerID, protocol.NewErrorMessage(err))
		return
	}
	r.logger.Info("trump selected", "room", r.code, "suit", res.Trump, "round", r.board.Round)
	r.emitTrumpResult(res)
	r.armTimers()
	r.schedulePersist()
}

func (r *Room) handlePlayCard(req request) {
	res, err := r.board.PlayCard(req.playerID, req.card)
	if err != nil {
		r.gw.Send(req.playerID, protocol.NewErrorMessage(err))
		return
	}
	r.emitPlayResult(res)
	r.armTimers()
	r.schedulePersist()
}

func (r *Room) handleLeave(req request) {
	res, err := r.board.Leave(req.playerID)
	if err != nil {
		r.gw.Send(req.playerID, protocol.NewErrorMessage(err))
		return
	}

	r.cancelGrace(req.playerID)
	ctx, cancel := context.WithTimeout(context.Background(), persistOpTimeout)
	if derr := r.store.DeleteSession(ctx, req.playerID); derr != nil {
		r.logger.Debug("session delete failed", "player", req.playerID, "error", derr)
	}
	cancel()
	r.gw.ClosePlayer(req.playerID, websocket.CloseNormalClosure, "left the room")
	r.logger.Info("player left", "room", r.code, "player", req.playerID)

	switch {
	case res.Abandoned:
		r.finishAbandon("player left mid-game")
	case r.board.Phase == game.PhaseLobby:
		// Seats shift when a lobby seat frees up; everyone gets a fresh view.
		r.gw.Broadcast(r.code, protocol.NewPlayerDisconnected(req.playerID, res.Player.Seat))
		for _, p := range r.board.Players {
			r.gw.Send(p.ID, protocol.NewStateResync(r.board.ViewFor(p.ID)))
		}
		r.schedulePersist()
	}
}

func (r *Room) handleDisconnect(req request) {
	p := r.board.PlayerByID(req.playerID)
	if p == nil || !p.Connected() {
		return
	}
	r.board.MarkDisconnected(req.playerID)
	r.gw.Broadcast(r.code, protocol.NewPlayerDisconnected(req.playerID, p.Seat), req.playerID)
	if !r.board.Phase.Terminal() {
		r.armGrace(req.playerID)
	}
	r.schedulePersist()
	r.logger.Info("player disconnected", "room", r.code, "player", req.playerID, "seat", p.Seat)
}

func (r *Room) handleGraceExpired(req request) {
	delete(r.graceTimers, req.playerID)
	p := r.board.PlayerByID(req.playerID)
	if p == nil || p.Connected() {
		return
	}
	r.logger.Info("reconnection window expired", "room", r.code, "player", req.playerID)

	switch {
	case r.board.Phase == game.PhaseLobby:
		// Free the seat as a graceful leave would.
		if _, err := r.board.Leave(req.playerID); err != nil {
			r.logger.Error("lobby seat release failed", "room", r.code, "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistOpTimeout)
		if derr := r.store.DeleteSession(ctx, req.playerID); derr != nil {
			r.logger.Debug("session delete failed", "player", req.playerID, "error", derr)
		}
		cancel()
		r.gw.Broadcast(r.code, protocol.NewPlayerDisconnected(req.playerID, p.Seat))
		for _, member := range r.board.Players {
			r.gw.Send(member.ID, protocol.NewStateResync(r.board.ViewFor(member.ID)))
		}
		r.schedulePersist()
	case r.board.Phase.Terminal():
		// Nothing to tear down.
	default:
		// Partial games are not continued with fewer than four players.
		r.finishAbandon("reconnection window expired")
	}
}

// finishAbandon ends the room for everyone: the board is marked abandoned,
// members are told, and the persisted keys are purged.
func (r *Room) finishAbandon(reason string) {
	r.board.Abandon()
	r.stopTimers()
	r.gw.Broadcast(r.code, protocol.NewErrorMessage(game.ErrRoomAbandoned))

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := r.store.DeleteRoom(ctx, r.code); err != nil {
		r.logger.Warn("room purge failed", "room", r.code, "error", err)
	}
	for _, p := range r.board.Players {
		if err := r.store.DeleteSession(ctx, p.ID); err != nil {
			r.logger.Debug("session delete failed", "player", p.ID, "error", err)
		}
	}
	r.logger.Warn("room abandoned", "room", r.code, "reason", reason)
}

// handleTurnDeadline plays on behalf of a player who let the clock run out:
// the lowest-index legal card in the playing phase, the longest suit when the
// hakem never answered the trump prompt.
func (r *Room) handleTurnDeadline() {
	switch r.board.Phase {
	case game.PhasePlaying:
		seat := r.board.CurrentTurn
		res, err := r.board.Autoplay()
		if err != nil {
			r.logger.Error("autoplay failed", "room", r.code, "seat", seat, "error", err)
			return
		}
		r.logger.Info("turn deadline expired, card autoplayed",
			"room", r.code,
			"seat", seat,
			"card", res.Play.Card.String())
		r.emitPlayResult(res)
		r.armTimers()
		r.schedulePersist()

	case game.PhaseTrumpSelection:
		hakem := r.board.PlayerBySeat(r.board.Hakem)
		if hakem == nil {
			return
		}
		suit := longestSuit(hakem.Hand)
		res, err := r.board.ChooseTrump(hakem.ID, suit)
		if err != nil {
			r.logger.Error("trump autoselect failed", "room", r.code, "error", err)
			return
		}
		r.logger.Info("trump deadline expired, suit autoselected", "room", r.code, "suit", suit)
		r.emitTrumpResult(res)
		r.armTimers()
		r.schedulePersist()
	}
}

// longestSuit picks the suit the hand holds most of, earliest suit on ties.
func longestSuit(hand []game.Card) game.Suit {
	counts := make(map[game.Suit]int, len(game.Suits))
	for _, c := range hand {
		counts[c.Suit]++
	}
	best := game.Suits[0]
	for _, s := range game.Suits[1:] {
		if counts[s] > counts[best] {
			best = s
		}
	}
	return best
}

// emitRoundStart announces a fresh deal: teams on the first round only, then
// each hand privately, then the trump prompt to the hakem.
func (r *Room) emitRoundStart(first bool) {
	if first {
		r.gw.Broadcast(r.code, protocol.NewTeamAssignment(r.board))
	}
	for _, p := range r.board.Players {
		r.gw.Send(p.ID, protocol.NewInitialDeal(append([]game.Card(nil), p.Hand...)))
	}
	if hakem := r.board.PlayerBySeat(r.board.Hakem); hakem != nil {
		r.gw.Send(hakem.ID, protocol.NewTrumpPrompt(hakem.ID))
	}
}

func (r *Room) emitTrumpResult(res *game.TrumpResult) {
	r.gw.Broadcast(r.code, protocol.NewTrumpSelected(res.Trump))
	for seat, cards := range res.Dealt {
		if p := r.board.PlayerBySeat(seat); p != nil {
			r.gw.Send(p.ID, protocol.NewFinalDeal(cards))
		}
	}
	r.emitTurnStart()
}

func (r *Room) emitPlayResult(res *game.PlayResult) {
	player := r.board.PlayerBySeat(res.Play.Seat)
	pid := ""
	if player != nil {
		pid = player.ID
	}
	r.gw.Broadcast(r.code, protocol.NewCardPlayed(pid, res.Play.Seat, res.Play.Card, res.LedSuit))

	if res.TrickClosed {
		winner := r.board.PlayerBySeat(res.TrickWinner)
		wid := ""
		if winner != nil {
			wid = winner.ID
		}
		counts := r.board.TrickCounts
		if res.HandComplete {
			// The board has already moved on; report the finished hand's
			// counts, not the next round's zeros.
			counts = res.HandTricks
		}
		r.gw.Broadcast(r.code, protocol.NewTrickComplete(wid, res.TrickWinner, counts))
	}

	if res.HandComplete {
		r.gw.Broadcast(r.code, protocol.NewHandComplete(res.HandWinner, res.HandTricks, r.board.RoundWins))
		r.logger.Info("hand complete",
			"room", r.code,
			"winnerTeam", res.HandWinner,
			"tricks", res.HandTricks,
			"roundWins", r.board.RoundWins)
	}

	if res.GameComplete {
		r.gw.Broadcast(r.code, protocol.NewGameComplete(res.HandWinner, r.board.RoundWins))
		r.logger.Info("game complete", "room", r.code, "winnerTeam", res.HandWinner, "rounds", r.board.Round)
		r.schedulePersist()
		return
	}

	if res.NewRound {
		r.emitRoundStart(false)
		return
	}

	r.emitTurnStart()
}

func (r *Room) emitTurnStart() {
	p := r.board.PlayerBySeat(r.board.CurrentTurn)
	if p == nil {
		return
	}
	r.gw.Broadcast(r.code, protocol.NewTurnStart(p.ID, p.Seat, r.board.LedSuit()))
}

// armTimers applies the post-transition timer rule: a deadline runs whenever
// the room waits on one player, otherwise nothing runs.
func (r *Room) armTimers() {
	switch r.board.Phase {
	case game.PhaseTrumpSelection, game.PhasePlaying:
		r.armTurnTimer()
	default:
		r.stopTurnTimer()
	}
}

func (r *Room) armTurnTimer() {
	r.stopTurnTimer()
	r.turnTimer = time.NewTimer(r.cfg.TurnTimeout)
	r.turnC = r.turnTimer.C
}

func (r *Room) stopTurnTimer() {
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
	r.turnC = nil
}

func (r *Room) armGrace(playerID string) {
	r.cancelGrace(playerID)
	r.graceTimers[playerID] = time.AfterFunc(r.cfg.ReconnectGrace, func() {
		select {
		case r.inbox <- request{kind: reqGraceExpired, playerID: playerID}:
		case <-r.done:
		}
	})
}

func (r *Room) cancelGrace(playerID string) {
	if t, ok := r.graceTimers[playerID]; ok {
		t.Stop()
		delete(r.graceTimers, playerID)
	}
}

func (r *Room) stopTimers() {
	r.stopTurnTimer()
	for pid, t := range r.graceTimers {
		t.Stop()
		delete(r.graceTimers, pid)
	}
}

// saveSession writes the player's attachment record. Best effort; the room
// state save is the one that is retried.
func (r *Room) saveSession(p *game.Player) {
	ctx, cancel := context.WithTimeout(context.Background(), persistOpTimeout)
	defer cancel()
	sess := &store.Session{
		PlayerID: p.ID,
		RoomCode: r.code,
		Seat:     p.Seat,
		Status:   p.Status,
	}
	if err := r.store.SaveSession(ctx, sess); err != nil {
		r.logger.Warn("session save failed", "room", r.code, "player", p.ID, "error", err)
	}
}

// schedulePersist hands the latest board snapshot to the persistence worker.
// Never blocks the actor; a pending stale snapshot is replaced.
func (r *Room) schedulePersist() {
	if r.board.Phase == game.PhaseAbandoned {
		// Abandoned rooms are purged, not saved.
		return
	}
	snap := r.board.Clone()
	for {
		select {
		case r.persist <- snap:
			return
		default:
			select {
			case <-r.persist:
			default:
			}
		}
	}
}

func (r *Room) persistLoop() {
	for {
		select {
		case <-r.done:
			return
		case snap := <-r.persist:
			err := store.Retry(context.Background(), persistAttempts, func() error {
				ctx, cancel := context.WithTimeout(context.Background(), persistOpTimeout)
				defer cancel()
				return r.store.SaveRoom(ctx, snap)
			})
			if err != nil {
				if r.degraded.CompareAndSwap(false, true) {
					r.logger.Error("room persistence degraded, running from memory", "room", r.code, "error", err)
				}
			} else if r.degraded.CompareAndSwap(true, false) {
				r.logger.Info("room persistence recovered", "room", r.code)
			}
		}
	}
}

// reapIfDead tears the actor down once nothing can happen in the room again:
// an emptied lobby, or a terminal board with no one attached.
func (r *Room) reapIfDead() bool {
	empty := r.board.Phase == game.PhaseLobby && len(r.board.Players) == 0
	finished := r.board.Phase.Terminal() && r.board.AllDisconnected()
	if !empty && !finished {
		return false
	}

	r.stopTimers()
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := r.store.DeleteRoom(ctx, r.code); err != nil {
		r.logger.Warn("room purge failed", "room", r.code, "error", err)
	}
	for _, p := range r.board.Players {
		if err := r.store.DeleteSession(ctx, p.ID); err != nil {
			r.logger.Debug("session delete failed", "player", p.ID, "error", err)
		}
	}
	if r.onEmpty != nil {
		r.onEmpty(r.code)
	}
	r.logger.Info("room closed", "room", r.code, "phase", r.board.Phase)
	return true
}

// shutdownDrain applies whatever is already queued, saves the final state,
// and closes member connections with the shutdown code.
func (r *Room) shutdownDrain() {
	deadline := time.Now().Add(drainTimeout)
	for time.Now().Before(deadline) {
		select {
		case req := <-r.inbox:
			r.apply(req)
			continue
		default:
		}
		break
	}
	r.stopTimers()

	if !r.board.Phase.Terminal() && len(r.board.Players) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		err := store.Retry(ctx, persistAttempts, func() error {
			return r.store.SaveRoom(ctx, r.board)
		})
		cancel()
		if err != nil {
			r.logger.Error("final state save failed", "room", r.code, "error", err)
		}
	}

	for _, p := range r.board.Players {
		r.gw.ClosePlayer(p.ID, CloseServerShutdown, "server shutting down")
	}
	r.logger.Info("room stopped", "room", r.code, "phase", r.board.Phase)
}
