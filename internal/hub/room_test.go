package hub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"hokmd/internal/game"
	"hokmd/internal/protocol"
	"hokmd/internal/store"
)

// recorder implements the gateway and keeps every delivery for assertions.
type recorder struct {
	mu     sync.Mutex
	events []delivery
}

type delivery struct {
	kind   string // attach, send, sendTo, broadcast, close, closePlayer
	player string
	code   int
	frame  any
	except []string
}

func (g *recorder) Attach(c *Client, playerID, roomCode string) {
	g.record(delivery{kind: "attach", player: playerID})
}

func (g *recorder) Send(playerID string, frame any) {
	g.record(delivery{kind: "send", player: playerID, frame: frame})
}

func (g *recorder) SendTo(c *Client, frame any) {
	g.record(delivery{kind: "sendTo", frame: frame})
}

func (g *recorder) CloseTo(c *Client, code int, reason string) {
	g.record(delivery{kind: "close", code: code})
}

func (g *recorder) ClosePlayer(playerID string, code int, reason string) {
	g.record(delivery{kind: "closePlayer", player: playerID, code: code})
}

func (g *recorder) Broadcast(roomCode string, frame any, except ...string) {
	g.record(delivery{kind: "broadcast", frame: frame, except: except})
}

func (g *recorder) record(d delivery) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, d)
}

func (g *recorder) snapshot() []delivery {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]delivery(nil), g.events...)
}

func (g *recorder) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = nil
}

// framesOf collects every recorded frame of one concrete type.
func framesOf[T any](evs []delivery) []T {
	var out []T
	for _, e := range evs {
		if f, ok := e.frame.(T); ok {
			out = append(out, f)
		}
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRoom(t *testing.T, code string, cfg Settings) (*Room, *recorder, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	st := store.New(client, store.Options{Logger: quietLogger()})
	gw := &recorder{}
	r := NewRoom(game.NewBoard(code), gw, st, cfg, quietLogger(), nil)
	return r, gw, mr
}

// seatFour joins four fresh players through the request path and returns
// their minted IDs in seat order.
func seatFour(t *testing.T, r *Room) []string {
	t.Helper()
	for _, name := range []string{"Ava", "Bijan", "Cora", "Dara"} {
		r.apply(request{kind: reqJoin, name: name, client: newClient(nil)})
	}
	if r.board.Phase != game.PhaseTrumpSelection {
		t.Fatalf("after four joins phase = %q, want %q", r.board.Phase, game.PhaseTrumpSelection)
	}
	ids := make([]string, 0, game.SeatsPerRoom)
	for _, p := range r.board.Players {
		ids = append(ids, p.ID)
	}
	return ids
}

// startPlay additionally has the hakem pick spades.
func startPlay(t *testing.T, r *Room) []string {
	t.Helper()
	ids := seatFour(t, r)
	hakem := r.board.Players[r.board.Hakem]
	r.apply(request{kind: reqChooseTrump, playerID: hakem.ID, suit: game.SuitSpades})
	if r.board.Phase != game.PhasePlaying {
		t.Fatalf("after trump choice phase = %q, want %q", r.board.Phase, game.PhasePlaying)
	}
	return ids
}

// legalCard picks a card the given seat may play right now.
func legalCard(b *game.Board, seat int) game.Card {
	p := b.PlayerBySeat(seat)
	if led := b.LedSuit(); led != "" {
		for _, c := range p.Hand {
			if c.Suit == led {
				return c
			}
		}
	}
	return p.Hand[0]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRoom_JoinEmissions(t *testing.T) {
	r, gw, mr := newTestRoom(t, "JOIN01", Settings{})
	ids := seatFour(t, r)

	evs := gw.snapshot()
	if got := len(framesOf[protocol.JoinSuccess](evs)); got != 4 {
		t.Errorf("Expected 4 join_success frames, got %d", got)
	}
	joined := framesOf[protocol.PlayerJoined](evs)
	if len(joined) != 4 {
		t.Errorf("Expected 4 player_joined broadcasts, got %d", len(joined))
	}
	if got := len(framesOf[protocol.TeamAssignment](evs)); got != 1 {
		t.Errorf("Expected 1 team_assignment broadcast, got %d", got)
	}

	deals := framesOf[protocol.InitialDeal](evs)
	if len(deals) != 4 {
		t.Fatalf("Expected 4 initial_deal frames, got %d", len(deals))
	}
	for i, d := range deals {
		if len(d.Cards) != 5 {
			t.Errorf("Deal %d carries %d cards, want 5", i, len(d.Cards))
		}
	}

	prompts := framesOf[protocol.TrumpPrompt](evs)
	if len(prompts) != 1 {
		t.Fatalf("Expected 1 trump_prompt, got %d", len(prompts))
	}
	hakemID := r.board.Players[r.board.Hakem].ID
	for _, e := range evs {
		if _, ok := e.frame.(protocol.TrumpPrompt); ok && e.player != hakemID {
			t.Errorf("trump_prompt went to %s, want hakem %s", e.player, hakemID)
		}
	}

	if r.turnC == nil {
		t.Error("Trump selection deadline not armed")
	}
	for _, id := range ids {
		if !mr.Exists("session:" + id) {
			t.Errorf("Session for %s not persisted", id)
		}
	}
}

func TestRoom_TrumpSelection(t *testing.T) {
	t.Run("only the hakem may choose", func(t *testing.T) {
		r, gw, _ := newTestRoom(t, "TRMP01", Settings{})
		ids := seatFour(t, r)
		wrong := ids[(r.board.Hakem+1)%game.SeatsPerRoom]
		gw.reset()

		r.apply(request{kind: reqChooseTrump, playerID: wrong, suit: game.SuitHearts})

		errs := framesOf[protocol.ErrorMessage](gw.snapshot())
		if len(errs) != 1 || errs[0].Code != string(game.CodeOnlyHakem) {
			t.Fatalf("Expected one %s error, got %+v", game.CodeOnlyHakem, errs)
		}
		if r.board.Phase != game.PhaseTrumpSelection {
			t.Errorf("Phase moved to %q on a rejected choice", r.board.Phase)
		}
	})

	t.Run("choice deals the rest and opens play", func(t *testing.T) {
		r, gw, _ := newTestRoom(t, "TRMP02", Settings{})
		seatFour(t, r)
		hakem := r.board.Players[r.board.Hakem]
		gw.reset()

		r.apply(request{kind: reqChooseTrump, playerID: hakem.ID, suit: game.SuitClubs})

		evs := gw.snapshot()
		sel := framesOf[protocol.TrumpSelected](evs)
		if len(sel) != 1 || sel[0].Suit != game.SuitClubs {
			t.Fatalf("Expected trump_selected clubs, got %+v", sel)
		}
		finals := framesOf[protocol.FinalDeal](evs)
		if len(finals) != 4 {
			t.Fatalf("Expected 4 final_deal frames, got %d", len(finals))
		}
		for i, d := range finals {
			if len(d.Cards) != 8 {
				t.Errorf("Final deal %d carries %d cards, want 8", i, len(d.Cards))
			}
		}
		turns := framesOf[protocol.TurnStart](evs)
		if len(turns) != 1 || turns[0].Seat != r.board.Hakem {
			t.Fatalf("Expected turn_start for hakem seat %d, got %+v", r.board.Hakem, turns)
		}
		for _, p := range r.board.Players {
			if len(p.Hand) != 13 {
				t.Errorf("Seat %d holds %d cards after final deal, want 13", p.Seat, len(p.Hand))
			}
		}
	})
}

func TestRoom_PlayEmissions(t *testing.T) {
	t.Run("full trick announces plays, winner, and next turn", func(t *testing.T) {
		r, gw, _ := newTestRoom(t, "PLAY01", Settings{})
		ids := startPlay(t, r)
		gw.reset()

		for i := 0; i < game.SeatsPerRoom; i++ {
			seat := r.board.CurrentTurn
			r.apply(request{kind: reqPlayCard, playerID: ids[seat], card: legalCard(r.board, seat)})
		}

		evs := gw.snapshot()
		if got := len(framesOf[protocol.CardPlayed](evs)); got != 4 {
			t.Errorf("Expected 4 card_played broadcasts, got %d", got)
		}
		tricks := framesOf[protocol.TrickComplete](evs)
		if len(tricks) != 1 {
			t.Fatalf("Expected 1 trick_complete, got %d", len(tricks))
		}
		if sum := tricks[0].Tricks[0] + tricks[0].Tricks[1]; sum != 1 {
			t.Errorf("Trick counts sum to %d after one trick, want 1", sum)
		}
		turns := framesOf[protocol.TurnStart](evs)
		if len(turns) != 4 {
			t.Fatalf("Expected 4 turn_start broadcasts, got %d", len(turns))
		}
		if last := turns[len(turns)-1]; last.Seat != tricks[0].WinnerSeat {
			t.Errorf("Next lead seat %d, want trick winner %d", last.Seat, tricks[0].WinnerSeat)
		}
	})

	t.Run("rejected play reaches only the offender", func(t *testing.T) {
		r, gw, _ := newTestRoom(t, "PLAY02", Settings{})
		ids := startPlay(t, r)
		offender := (r.board.CurrentTurn + 1) % game.SeatsPerRoom
		gw.reset()

		r.apply(request{kind: reqPlayCard, playerID: ids[offender], card: legalCard(r.board, offender)})

		evs := gw.snapshot()
		errs := framesOf[protocol.ErrorMessage](evs)
		if len(errs) != 1 || errs[0].Code != string(game.CodeNotYourTurn) {
			t.Fatalf("Expected one %s error, got %+v", game.CodeNotYourTurn, errs)
		}
		for _, e := range evs {
			if e.kind == "broadcast" {
				t.Errorf("Rejected play produced a broadcast: %+v", e.frame)
			}
		}
		if len(r.board.Trick.Plays) != 0 {
			t.Errorf("Rejected play mutated the trick")
		}
	})
}

func TestRoom_TurnDeadline(t *testing.T) {
	t.Run("playing phase autoplays for the stalled seat", func(t *testing.T) {
		r, gw, _ := newTestRoom(t, "AUTO01", Settings{})
		startPlay(t, r)
		stalled := r.board.CurrentTurn
		gw.reset()

		r.handleTurnDeadline()

		plays := framesOf[protocol.CardPlayed](gw.snapshot())
		if len(plays) != 1 || plays[0].Seat != stalled {
			t.Fatalf("Expected autoplay from seat %d, got %+v", stalled, plays)
		}
		if r.turnC == nil {
			t.Error("Deadline not re-armed for the next seat")
		}
	})

	t.Run("trump selection falls back to the longest suit", func(t *testing.T) {
		r, gw, _ := newTestRoom(t, "AUTO02", Settings{})
		seatFour(t, r)
		hakem := r.board.Players[r.board.Hakem]
		want := longestSuit(hakem.Hand)
		gw.reset()

		r.handleTurnDeadline()

		sel := framesOf[protocol.TrumpSelected](gw.snapshot())
		if len(sel) != 1 || sel[0].Suit != want {
			t.Fatalf("Expected autoselected trump %q, got %+v", want, sel)
		}
		if r.board.Phase != game.PhasePlaying {
			t.Errorf("Phase = %q after trump fallback, want playing", r.board.Phase)
		}
	})
}

func TestRoom_DisconnectAndRejoin(t *testing.T) {
	r, gw, _ := newTestRoom(t, "RECON1", Settings{})
	ids := startPlay(t, r)
	gw.reset()

	r.apply(request{kind: reqDisconnect, playerID: ids[2]})

	if r.board.Players[2].Connected() {
		t.Fatal("Player still marked active after disconnect")
	}
	if _, ok := r.graceTimers[ids[2]]; !ok {
		t.Fatal("No grace timer armed for the disconnected player")
	}
	gone := framesOf[protocol.PlayerDisconnected](gw.snapshot())
	if len(gone) != 1 || gone[0].Seat != 2 {
		t.Fatalf("Expected player_disconnected for seat 2, got %+v", gone)
	}

	gw.reset()
	r.apply(request{kind: reqJoin, playerID: ids[2], client: newClient(nil)})

	evs := gw.snapshot()
	if got := len(framesOf[protocol.JoinSuccess](evs)); got != 1 {
		t.Errorf("Expected join_success on rejoin, got %d", got)
	}
	resyncs := framesOf[protocol.StateResync](evs)
	if len(resyncs) != 1 {
		t.Fatalf("Expected state_resync on rejoin, got %d", len(resyncs))
	}
	if resyncs[0].State.Phase != game.PhasePlaying {
		t.Errorf("Resync carries phase %q, want playing", resyncs[0].State.Phase)
	}
	if len(resyncs[0].State.Hand) != len(r.board.Players[2].Hand) {
		t.Errorf("Resync hand has %d cards, want %d", len(resyncs[0].State.Hand), len(r.board.Players[2].Hand))
	}
	if got := len(framesOf[protocol.PlayerReconnected](evs)); got != 1 {
		t.Errorf("Expected player_reconnected broadcast, got %d", got)
	}
	if !r.board.Players[2].Connected() {
		t.Error("Player not reactivated by rejoin")
	}
	if _, ok := r.graceTimers[ids[2]]; ok {
		t.Error("Grace timer survived the rejoin")
	}
}

func TestRoom_GraceExpiry(t *testing.T) {
	t.Run("mid-game expiry abandons the room", func(t *testing.T) {
		r, gw, mr := newTestRoom(t, "GRACE1", Settings{})
		ids := startPlay(t, r)
		r.apply(request{kind: reqDisconnect, playerID: ids[0]})
		gw.reset()

		r.apply(request{kind: reqGraceExpired, playerID: ids[0]})

		if r.board.Phase != game.PhaseAbandoned {
			t.Fatalf("Phase = %q after grace expiry, want abandoned", r.board.Phase)
		}
		errs := framesOf[protocol.ErrorMessage](gw.snapshot())
		if len(errs) != 1 || errs[0].Code != string(game.CodeRoomAbandoned) {
			t.Fatalf("Expected %s broadcast, got %+v", game.CodeRoomAbandoned, errs)
		}
		if mr.Exists("room:GRACE1:state") {
			t.Error("Abandoned room state not purged")
		}
		for _, id := range ids {
			if mr.Exists("session:" + id) {
				t.Errorf("Session %s not purged with the room", id)
			}
		}
	})

	t.Run("expiry after rejoin is a no-op", func(t *testing.T) {
		r, gw, _ := newTestRoom(t, "GRACE2", Settings{})
		ids := startPlay(t, r)
		r.apply(request{kind: reqDisconnect, playerID: ids[1]})
		r.apply(request{kind: reqJoin, playerID: ids[1], client: newClient(nil)})
		gw.reset()

		r.apply(request{kind: reqGraceExpired, playerID: ids[1]})

		if r.board.Phase != game.PhasePlaying {
			t.Fatalf("Phase = %q, want playing untouched", r.board.Phase)
		}
		if evs := gw.snapshot(); len(evs) != 0 {
			t.Errorf("Expected no emissions, got %+v", evs)
		}
	})

	t.Run("lobby expiry frees the seat", func(t *testing.T) {
		r, gw, _ := newTestRoom(t, "GRACE3", Settings{})
		r.apply(request{kind: reqJoin, name: "Ava", client: newClient(nil)})
		r.apply(request{kind: reqJoin, name: "Bijan", client: newClient(nil)})
		first := r.board.Players[0].ID
		r.apply(request{kind: reqDisconnect, playerID: first})
		gw.reset()

		r.apply(request{kind: reqGraceExpired, playerID: first})

		if len(r.board.Players) != 1 {
			t.Fatalf("Lobby holds %d players after expiry, want 1", len(r.board.Players))
		}
		if r.board.Players[0].Seat != 0 {
			t.Errorf("Remaining player kept seat %d, want reseated to 0", r.board.Players[0].Seat)
		}
		if got := len(framesOf[protocol.StateResync](gw.snapshot())); got != 1 {
			t.Errorf("Expected 1 state_resync after reseating, got %d", got)
		}
	})
}

func TestRoom_Leave(t *testing.T) {
	t.Run("lobby leave reseats the rest", func(t *testing.T) {
		r, gw, mr := newTestRoom(t, "LEAVE1", Settings{})
		for _, name := range []string{"Ava", "Bijan", "Cora"} {
			r.apply(request{kind: reqJoin, name: name, client: newClient(nil)})
		}
		leaver := r.board.Players[1].ID
		gw.reset()

		r.apply(request{kind: reqLeave, playerID: leaver})

		if len(r.board.Players) != 2 {
			t.Fatalf("Lobby holds %d players, want 2", len(r.board.Players))
		}
		for i, p := range r.board.Players {
			if p.Seat != i || p.Team != i%2 {
				t.Errorf("Player %d reseated to seat %d team %d", i, p.Seat, p.Team)
			}
		}
		if mr.Exists("session:" + leaver) {
			t.Error("Leaver's session not deleted")
		}
		evs := gw.snapshot()
		if got := len(framesOf[protocol.StateResync](evs)); got != 2 {
			t.Errorf("Expected 2 state_resync frames, got %d", got)
		}
		var closed bool
		for _, e := range evs {
			if e.kind == "closePlayer" && e.player == leaver {
				closed = true
			}
		}
		if !closed {
			t.Error("Leaver's connection not closed")
		}
	})

	t.Run("mid-game leave abandons for everyone", func(t *testing.T) {
		r, gw, mr := newTestRoom(t, "LEAVE2", Settings{})
		ids := startPlay(t, r)
		gw.reset()

		r.apply(request{kind: reqLeave, playerID: ids[3]})

		if r.board.Phase != game.PhaseAbandoned {
			t.Fatalf("Phase = %q after mid-game leave, want abandoned", r.board.Phase)
		}
		errs := framesOf[protocol.ErrorMessage](gw.snapshot())
		if len(errs) != 1 || errs[0].Code != string(game.CodeRoomAbandoned) {
			t.Fatalf("Expected %s broadcast, got %+v", game.CodeRoomAbandoned, errs)
		}
		if mr.Exists("room:LEAVE2:state") {
			t.Error("Abandoned room state not purged")
		}
	})
}

func TestRoom_UnknownIdentityJoin(t *testing.T) {
	t.Run("no session anywhere means expired", func(t *testing.T) {
		r, gw, _ := newTestRoom(t, "GHOST1", Settings{})

		r.apply(request{kind: reqJoin, playerID: "no-such-player", client: newClient(nil)})

		evs := gw.snapshot()
		errs := framesOf[protocol.ErrorMessage](evs)
		if len(errs) != 1 || errs[0].Code != string(game.CodeSessionExpired) {
			t.Fatalf("Expected %s error, got %+v", game.CodeSessionExpired, errs)
		}
		var closed bool
		for _, e := range evs {
			if e.kind == "close" && e.code == CloseUnauthenticated {
				closed = true
			}
		}
		if !closed {
			t.Error("Connection with a dead identity not closed")
		}
	})

	t.Run("live session for another room is rejected without closing", func(t *testing.T) {
		r, gw, _ := newTestRoom(t, "GHOST2", Settings{})
		ctx := context.Background()
		err := r.store.SaveSession(ctx, &store.Session{
			PlayerID: "wanderer",
			RoomCode: "ELSEWHERE",
			Seat:     1,
			Status:   game.StatusActive,
		})
		if err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}

		r.apply(request{kind: reqJoin, playerID: "wanderer", client: newClient(nil)})

		evs := gw.snapshot()
		errs := framesOf[protocol.ErrorMessage](evs)
		if len(errs) != 1 || errs[0].Code != string(game.CodeNotInRoom) {
			t.Fatalf("Expected %s error, got %+v", game.CodeNotInRoom, errs)
		}
		for _, e := range evs {
			if e.kind == "close" {
				t.Error("Live session rejected with a close")
			}
		}
	})
}

func TestRoom_TerminalRoom(t *testing.T) {
	r, gw, mr := newTestRoom(t, "OVER01", Settings{})
	ids := startPlay(t, r)
	r.board.Phase = game.PhaseGameComplete
	var removed string
	r.onEmpty = func(code string) { removed = code }
	gw.reset()

	r.apply(request{kind: reqPlayCard, playerID: ids[0], card: r.board.Players[0].Hand[0]})

	errs := framesOf[protocol.ErrorMessage](gw.snapshot())
	if len(errs) != 1 || errs[0].Code != string(game.CodeIllegalPhase) {
		t.Fatalf("Expected %s after the game ended, got %+v", game.CodeIllegalPhase, errs)
	}
	if errs[0].CurrentPhase != game.PhaseGameComplete {
		t.Errorf("Error phase = %q, want game-complete", errs[0].CurrentPhase)
	}

	// A finished room still answers rejoins with the final state.
	gw.reset()
	r.apply(request{kind: reqJoin, playerID: ids[1], client: newClient(nil)})
	evs := gw.snapshot()
	if got := len(framesOf[protocol.JoinSuccess](evs)); got != 1 {
		t.Errorf("Expected join_success against a finished room, got %d", got)
	}
	resyncs := framesOf[protocol.StateResync](evs)
	if len(resyncs) != 1 || resyncs[0].State.Phase != game.PhaseGameComplete {
		t.Fatalf("Expected resync with the final phase, got %+v", resyncs)
	}

	// Reaped once the last member drops.
	for _, id := range ids {
		r.apply(request{kind: reqDisconnect, playerID: id})
	}
	if !r.reapIfDead() {
		t.Fatal("Finished room with no members not reaped")
	}
	if removed != "OVER01" {
		t.Errorf("onEmpty fired with %q, want OVER01", removed)
	}
	if mr.Exists("room:OVER01:state") {
		t.Error("Finished room state not purged on reap")
	}
}

func TestRoom_Submit(t *testing.T) {
	t.Run("overflow fails fast", func(t *testing.T) {
		r, _, _ := newTestRoom(t, "FULL01", Settings{QueueCapacity: 1})
		if err := r.Submit(request{kind: reqDisconnect}); err != nil {
			t.Fatalf("First submit failed: %v", err)
		}
		err := r.Submit(request{kind: reqLeave})
		if !errors.Is(err, game.ErrRoomOverloaded) {
			t.Fatalf("Expected room_overloaded, got %v", err)
		}
	})

	t.Run("stopped room rejects everything", func(t *testing.T) {
		r, _, _ := newTestRoom(t, "FULL02", Settings{})
		close(r.done)
		err := r.Submit(request{kind: reqLeave})
		if !errors.Is(err, game.ErrRoomAbandoned) {
			t.Fatalf("Expected room_abandoned from a stopped room, got %v", err)
		}
	})
}

func TestRoom_RunLoop(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	st := store.New(client, store.Options{Logger: quietLogger()})
	gw := &recorder{}
	cfg := Settings{TurnTimeout: 60 * time.Millisecond, ReconnectGrace: time.Second}
	r := NewRoom(game.NewBoard("RUN001"), gw, st, cfg, quietLogger(), nil)
	r.Start()

	for _, name := range []string{"Ava", "Bijan", "Cora", "Dara"} {
		if err := r.Submit(request{kind: reqJoin, name: name, client: newClient(nil)}); err != nil {
			t.Fatalf("Submit join failed: %v", err)
		}
	}

	waitFor(t, "the first deal", func() bool {
		return len(framesOf[protocol.InitialDeal](gw.snapshot())) == 4
	})
	// Nobody answers the trump prompt; the deadline picks for the hakem and
	// then starts autoplaying the stalled first turn.
	waitFor(t, "trump fallback", func() bool {
		return len(framesOf[protocol.TrumpSelected](gw.snapshot())) == 1
	})
	waitFor(t, "first autoplayed card", func() bool {
		return len(framesOf[protocol.CardPlayed](gw.snapshot())) >= 1
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.Stop(ctx)

	select {
	case <-r.done:
	default:
		t.Fatal("Actor still running after Stop")
	}
	var shutdownCloses int
	for _, e := range gw.snapshot() {
		if e.kind == "closePlayer" && e.code == CloseServerShutdown {
			shutdownCloses++
		}
	}
	if shutdownCloses != 4 {
		t.Errorf("Expected 4 shutdown closes, got %d", shutdownCloses)
	}
	if !mr.Exists("room:RUN001:state") {
		t.Error("In-flight game not persisted on shutdown")
	}
}

func TestRoom_ShutdownPersistsState(t *testing.T) {
	r, gw, mr := newTestRoom(t, "HALT01", Settings{})
	startPlay(t, r)
	gw.reset()

	r.shutdownDrain()

	if !mr.Exists("room:HALT01:state") {
		t.Fatal("Final state not saved")
	}
	var closes int
	for _, e := range gw.snapshot() {
		if e.kind == "closePlayer" && e.code == CloseServerShutdown {
			closes++
		}
	}
	if closes != 4 {
		t.Errorf("Expected 4 shutdown closes, got %d", closes)
	}
}
