package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"settlers/internal/engine"
	"settlers/internal/logging"
	"settlers/internal/protocol"
	"settlers/internal/store"
)

// ErrHubClosed is returned for calls into a game that has been shut down.
var ErrHubClosed = errors.New("game is closed")

// ErrSpectator is returned when a watching connection tries to act.
var ErrSpectator = errors.New("spectators cannot act; connect with ?player=")

// ErrMissingField is returned when an action lacks a parameter it needs.
var ErrMissingField = errors.New("missing field")

const persistTimeout = 5 * time.Second

// Persister stores game snapshots and event logs. *store.Store satisfies it.
type Persister interface {
	SaveGame(ctx context.Context, id string, snapshot []byte, finished bool) error
	AppendEvents(ctx context.Context, id string, events []engine.Event) error
}

// Archive is the read and cleanup side of a Persister. *store.Store
// satisfies it; Handlers use it when the configured Persister does too.
type Archive interface {
	Events(ctx context.Context, id string) ([]store.StoredEvent, error)
	DeleteGame(ctx context.Context, id string) error
}

// Outcome is what a player action produced.
type Outcome struct {
	Events []engine.Event
	Roll   *engine.RollResult
	State  engine.StateView
	Have   engine.Hand // set when the action failed for lack of resources
}

type call struct {
	fn   func()
	done chan struct{}
}

// Hub owns one game. Every read and write of the game happens on the Run
// goroutine, whether it comes from a WebSocket client or an HTTP handler.
type Hub struct {
	mu      sync.Mutex // guards clients
	clients map[*Client]bool

	gameID     string
	game       *engine.Game
	store      Persister
	onActivity func()
	log        zerolog.Logger

	register   chan *Client
	unregister chan *Client
	incoming   chan IncomingMessage
	calls      chan call
	quit       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

// NewHub wraps game. store may be nil.
func NewHub(game *engine.Game, store Persister) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		gameID:     game.ID,
		game:       game,
		store:      store,
		log:        logging.For("hub").With().Str("game", game.ID).Logger(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		incoming:   make(chan IncomingMessage, 256),
		calls:      make(chan call),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// GameID returns the id of the hub's game.
func (h *Hub) GameID() string {
	return h.gameID
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug().Str("conn", client.ID).Int("seat", client.Seat).Msg("client joined")
			h.sendStateToClient(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Debug().Str("conn", client.ID).Msg("client left")

		case msg := <-h.incoming:
			h.handleMessage(msg)

		case c := <-h.calls:
			c.fn()
			close(c.done)

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop ends Run, disconnects every client and waits for Run to return.
// It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.done
}

// Register hands a new connection to the hub. It reports false when the
// hub is already closed.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// do runs fn on the Run goroutine and waits for it to finish. ctx only
// bounds the wait for delivery: once Run has taken the call it always
// completes, so the caller must see its result.
func (h *Hub) do(ctx context.Context, fn func()) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case h.calls <- c:
	case <-h.quit:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-c.done
	return nil
}

// State returns a snapshot view of the game.
func (h *Hub) State(ctx context.Context) (engine.StateView, error) {
	var view engine.StateView
	err := h.do(ctx, func() { view = h.game.State() })
	return view, err
}

// Apply performs one action. A nil req.Player means the current player.
func (h *Hub) Apply(ctx context.Context, typ engine.ActionType, req protocol.ActionRequest) (Outcome, error) {
	var (
		out      Outcome
		applyErr error
	)
	if err := h.do(ctx, func() { out, applyErr = h.apply(typ, req) }); err != nil {
		return Outcome{}, err
	}
	return out, applyErr
}

// Legal lists where player could build kind right now. A nil player means
// the current player.
func (h *Hub) Legal(ctx context.Context, player *int, kind engine.BuildType) (protocol.LegalResponse, error) {
	var (
		resp     protocol.LegalResponse
		legalErr error
	)
	err := h.do(ctx, func() {
		pid := h.game.CurrentPlayer
		if player != nil {
			pid = *player
		}
		if h.game.GetPlayer(pid) == nil {
			legalErr = engine.ErrPlayerNotFound
			return
		}
		resp = protocol.LegalResponse{Player: pid, Type: string(kind)}
		switch kind {
		case engine.BuildSettlement:
			resp.Nodes = h.game.LegalSettlements(pid)
		case engine.BuildRoad:
			resp.Edges = h.game.LegalRoads(pid)
		default:
			legalErr = engine.ErrUnknownBuildType
		}
	})
	if err != nil {
		return protocol.LegalResponse{}, err
	}
	return resp, legalErr
}

// Checkpoint writes the current snapshot to the store.
func (h *Hub) Checkpoint(ctx context.Context) error {
	var saveErr error
	if err := h.do(ctx, func() { saveErr = h.persist(nil) }); err != nil {
		return err
	}
	return saveErr
}

func (h *Hub) apply(typ engine.ActionType, req protocol.ActionRequest) (Outcome, error) {
	pid := h.game.CurrentPlayer
	if req.Player != nil {
		pid = *req.Player
	}
	action, err := toAction(typ, req)
	if err != nil {
		return Outcome{State: h.game.State()}, err
	}

	events, err := h.game.Apply(pid, action)
	if err != nil {
		out := Outcome{State: h.game.State()}
		if errors.Is(err, engine.ErrNotEnoughResources) {
			if p := h.game.GetPlayer(pid); p != nil {
				out.Have = p.Resources.Clone()
			}
		}
		h.log.Debug().Err(err).Int("player", pid).Str("action", string(typ)).Msg("action rejected")
		return out, err
	}

	out := Outcome{Events: events, State: h.game.State()}
	if typ == engine.ActionRoll && h.game.LastRoll != nil {
		roll := *h.game.LastRoll
		out.Roll = &roll
	}
	h.log.Info().Int("player", pid).Str("action", string(typ)).Int("events", len(events)).Msg("action applied")

	if err := h.persist(events); err != nil {
		h.log.Error().Err(err).Msg("persist game")
	}
	if out.Roll != nil {
		h.broadcastAll(protocol.MustEnvelope(protocol.MsgRollResult, out.Roll))
	}
	h.broadcastEvents(events)
	h.broadcastState(out.State)
	if h.onActivity != nil {
		h.onActivity()
	}
	return out, nil
}

func toAction(typ engine.ActionType, req protocol.ActionRequest) (engine.Action, error) {
	action := engine.Action{Type: typ}
	switch typ {
	case engine.ActionRoll, engine.ActionEndTurn:
	case engine.ActionBuild:
		action.Build = engine.BuildType(req.Type)
		switch action.Build {
		case engine.BuildSettlement, engine.BuildCity:
			if req.Node == nil {
				return action, fmt.Errorf("%w: node", ErrMissingField)
			}
			action.Node = *req.Node
		case engine.BuildRoad:
			if req.Edge == nil {
				return action, fmt.Errorf("%w: edge", ErrMissingField)
			}
			action.Edge = *req.Edge
		default:
			return action, engine.ErrUnknownBuildType
		}
	case engine.ActionMoveRobber:
		if req.Tile == nil {
			return action, fmt.Errorf("%w: tile", ErrMissingField)
		}
		action.Tile = *req.Tile
	case engine.ActionTrade:
		action.Give, action.Get = req.Give, req.Get
	default:
		return action, engine.ErrInvalidAction
	}
	return action, nil
}

func (h *Hub) persist(events []engine.Event) error {
	if h.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	snap, err := h.game.Snapshot()
	if err != nil {
		return err
	}
	if err := h.store.SaveGame(ctx, h.gameID, snap, h.game.Phase == engine.PhaseGameOver); err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	return h.store.AppendEvents(ctx, h.gameID, events)
}

func (h *Hub) handleMessage(msg IncomingMessage) {
	switch msg.Envelope.Type {
	case protocol.MsgState:
		h.sendStateToClient(msg.Client)
	case protocol.MsgRoll, protocol.MsgBuild, protocol.MsgMoveRobber, protocol.MsgTrade, protocol.MsgEndTurn:
		var req protocol.ActionRequest
		if err := msg.Envelope.Decode(&req); err != nil {
			h.sendError(msg.Client, err, nil)
			return
		}
		if msg.Client.Seat == Spectator {
			h.sendError(msg.Client, ErrSpectator, nil)
			return
		}
		// A seated connection always acts as its own seat.
		seat := msg.Client.Seat
		req.Player = &seat
		out, err := h.apply(engine.ActionType(msg.Envelope.Type), req)
		if err != nil {
			h.sendError(msg.Client, err, out.Have)
		}
	default:
		h.sendError(msg.Client, fmt.Errorf("unknown message type %q", msg.Envelope.Type), nil)
	}
}

func (h *Hub) broadcastEvents(events []engine.Event) {
	for _, ev := range events {
		h.broadcastAll(protocol.MustEnvelope(protocol.MsgEvent, ev))
	}
}

func (h *Hub) broadcastState(view engine.StateView) {
	h.broadcastAll(protocol.MustEnvelope(protocol.MsgGameState, view))
}

func (h *Hub) sendStateToClient(client *Client) {
	client.SendEnvelope(protocol.MustEnvelope(protocol.MsgGameState, h.game.State()))
}

func (h *Hub) broadcastAll(env protocol.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error().Err(err).Str("type", env.Type).Msg("broadcast marshal error")
		return
	}
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.log.Warn().Str("conn", client.ID).Msg("client buffer full")
		}
	}
}

func (h *Hub) sendError(client *Client, err error, have engine.Hand) {
	client.SendEnvelope(protocol.MustEnvelope(protocol.MsgError, protocol.ErrorMsg{Error: err.Error(), Have: have}))
}
