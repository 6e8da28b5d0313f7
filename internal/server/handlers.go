package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"settlers/internal/config"
	"settlers/internal/engine"
	"settlers/internal/lobby"
	"settlers/internal/logging"
	"settlers/internal/protocol"
	qr "settlers/internal/qrcode"
	"settlers/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var errMissingPayload = errors.New("missing payload")

const maxBodySize = 1 << 16

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	Lobbies *lobby.Manager

	mu   sync.Mutex // guards hubs
	hubs map[string]*Hub

	store  Persister
	game   config.GameConfig
	server config.ServerConfig
	log    zerolog.Logger
}

// NewHandlers builds the handler set. store may be nil.
func NewHandlers(cfg config.Config, store Persister) *Handlers {
	return &Handlers{
		Lobbies: lobby.NewManager(),
		hubs:    make(map[string]*Hub),
		store:   store,
		game:    cfg.Game,
		server:  cfg.Server,
		log:     logging.For("http"),
	}
}

func (h *Handlers) startGame(game *engine.Game) *Hub {
	hub := NewHub(game, h.store)
	id := game.ID
	hub.onActivity = func() { h.Lobbies.Touch(id) }

	h.mu.Lock()
	h.hubs[id] = hub
	h.mu.Unlock()

	go hub.Run()
	return hub
}

// Restore reopens stored games. Records that fail to decode are skipped.
func (h *Handlers) Restore(records []store.Record) int {
	restored := 0
	for _, rec := range records {
		game, err := engine.Restore(rec.Snapshot, engine.NewDice(0))
		if err != nil {
			h.log.Warn().Err(err).Str("game", rec.ID).Msg("skip stored game")
			continue
		}
		players := make([]lobby.PlayerInfo, len(game.Players))
		for i, p := range game.Players {
			players[i] = lobby.PlayerInfo{ID: p.ID, Name: p.Name}
		}
		h.Lobbies.Adopt(game.ID, players, rec.UpdatedAt)
		h.startGame(game)
		restored++
	}
	return restored
}

// Close stops every hub.
func (h *Handlers) Close() {
	h.mu.Lock()
	hubs := make([]*Hub, 0, len(h.hubs))
	for id, hub := range h.hubs {
		hubs = append(hubs, hub)
		delete(h.hubs, id)
	}
	h.mu.Unlock()

	for _, hub := range hubs {
		hub.Stop()
	}
}

func (h *Handlers) sweep(ctx context.Context) {
	archive, _ := h.store.(Archive)
	for _, id := range h.Lobbies.Sweep(h.server.GameTTLDuration()) {
		h.mu.Lock()
		hub := h.hubs[id]
		delete(h.hubs, id)
		h.mu.Unlock()
		if hub != nil {
			hub.Stop()
		}
		if archive != nil {
			if err := archive.DeleteGame(ctx, id); err != nil {
				h.log.Error().Err(err).Str("game", id).Msg("delete expired game")
			}
		}
		h.log.Info().Str("game", id).Msg("expired idle game")
	}
}

// hubFor finds the game named by the "game" query parameter, or the
// current game when it is absent.
func (h *Handlers) hubFor(r *http.Request) (*Hub, error) {
	lob, err := h.Lobbies.Resolve(r.URL.Query().Get("game"))
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	hub, ok := h.hubs[lob.ID]
	if !ok {
		return nil, lobby.ErrNoGame
	}
	return hub, nil
}

// NewGame seats names (the configured names when empty), starts the game
// and makes it current. A zero seed falls back to the configured seed.
func (h *Handlers) NewGame(ctx context.Context, names []string, seed uint64) (*Hub, error) {
	if len(names) == 0 {
		names = h.game.Players
	}
	lob, err := h.Lobbies.Create(names)
	if err != nil {
		return nil, err
	}
	info := lob.GetPlayers()
	players := make([]*engine.Player, len(info))
	for i, p := range info {
		players[i] = engine.NewPlayer(p.ID, p.Name)
	}
	if seed == 0 {
		seed = h.game.Seed
	}

	hub := h.startGame(engine.NewGame(lob.ID, players, h.game.EngineConfig(), engine.NewDice(seed)))
	if err := hub.Checkpoint(ctx); err != nil {
		h.log.Error().Err(err).Str("game", lob.ID).Msg("save new game")
	}
	h.log.Info().Str("game", lob.ID).Int("players", len(players)).Msg("game created")
	h.sweep(ctx)
	return hub, nil
}

// EnsureGame starts a default game when there is no current one, so
// routes without ?game= always have a game to answer for.
func (h *Handlers) EnsureGame(ctx context.Context) error {
	if h.Lobbies.Current() != "" {
		return nil
	}
	_, err := h.NewGame(ctx, nil, 0)
	return err
}

// HandleNewGame starts a game and makes it current.
func (h *Handlers) HandleNewGame(w http.ResponseWriter, r *http.Request) {
	var req protocol.NewGameRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, errMissingPayload) {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	hub, err := h.NewGame(r.Context(), req.Players, req.Seed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}

	state, err := hub.State(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewGameResponse{Status: "ok", State: state})
}

// HandleState returns the full game state.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	hub, err := h.hubFor(r)
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	state, err := hub.State(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleRoll rolls the dice for the current player.
func (h *Handlers) HandleRoll(w http.ResponseWriter, r *http.Request) {
	out, ok := h.act(w, r, engine.ActionRoll, false)
	if !ok {
		return
	}
	resp := protocol.RollResponse{State: out.State, Events: out.Events, Distribution: []engine.Grant{}}
	if out.Roll != nil {
		resp.Dice = out.Roll.Dice
		resp.Total = out.Roll.Total
		if out.Roll.Distribution != nil {
			resp.Distribution = out.Roll.Distribution
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleBuild places a settlement, road or city.
func (h *Handlers) HandleBuild(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, engine.ActionBuild, true)
}

// HandleRobber moves the robber after a 7.
func (h *Handlers) HandleRobber(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, engine.ActionMoveRobber, true)
}

// HandleTrade trades with the bank.
func (h *Handlers) HandleTrade(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, engine.ActionTrade, true)
}

// HandleEndTurn passes play to the next player.
func (h *Handlers) HandleEndTurn(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, engine.ActionEndTurn, false)
}

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, typ engine.ActionType, needBody bool) {
	out, ok := h.act(w, r, typ, needBody)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, protocol.ResultResponse{Result: "ok", Events: out.Events, State: out.State})
}

// act decodes the request and applies it. It writes the error response
// itself and reports false on failure.
func (h *Handlers) act(w http.ResponseWriter, r *http.Request, typ engine.ActionType, needBody bool) (Outcome, bool) {
	var req protocol.ActionRequest
	if err := decodeBody(r, &req); err != nil {
		if needBody || !errors.Is(err, errMissingPayload) {
			writeError(w, http.StatusBadRequest, err, nil)
			return Outcome{}, false
		}
	}
	// {} and null carry nothing either.
	if needBody && req == (protocol.ActionRequest{}) {
		writeError(w, http.StatusBadRequest, errMissingPayload, nil)
		return Outcome{}, false
	}
	hub, err := h.hubFor(r)
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return Outcome{}, false
	}
	out, err := hub.Apply(r.Context(), typ, req)
	if err != nil {
		writeError(w, statusFor(err), err, out.Have)
		return Outcome{}, false
	}
	return out, true
}

// HandleLegal lists legal placements. Query: player (default current),
// type settlement or road (default settlement).
func (h *Handlers) HandleLegal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var player *int
	if s := q.Get("player"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid player %q", s), nil)
			return
		}
		player = &n
	}
	kind := engine.BuildType(q.Get("type"))
	if kind == "" {
		kind = engine.BuildSettlement
	}

	hub, err := h.hubFor(r)
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	resp, err := hub.Legal(r.Context(), player, kind)
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleBoard returns the static topology and the starting tiles.
func (h *Handlers) HandleBoard(w http.ResponseWriter, r *http.Request) {
	b := engine.StandardBoard()
	writeJSON(w, http.StatusOK, protocol.BoardResponse{
		Rows:  engine.RowLayout,
		Tiles: engine.StandardTiles(),
		Nodes: b.Nodes(),
		Edges: b.Edges(),
	})
}

// HandleGames lists known games.
func (h *Handlers) HandleGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.GamesResponse{
		Current: h.Lobbies.Current(),
		Games:   h.Lobbies.IDs(),
	})
}

// HandleEvents returns a game's stored event log.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	archive, ok := h.store.(Archive)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("event log disabled"), nil)
		return
	}
	hub, err := h.hubFor(r)
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	events, err := archive.Events(r.Context(), hub.GameID())
	if err != nil {
		h.log.Error().Err(err).Str("game", hub.GameID()).Msg("load events")
		writeError(w, http.StatusInternalServerError, err, nil)
		return
	}
	if events == nil {
		events = []store.StoredEvent{}
	}
	writeJSON(w, http.StatusOK, protocol.EventsResponse{Game: hub.GameID(), Events: events})
}

// HandleQR generates a QR code PNG for joining the game.
func (h *Handlers) HandleQR(w http.ResponseWriter, r *http.Request) {
	hub, err := h.hubFor(r)
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	base := h.server.PublicURL
	if base == "" {
		base = "http://" + r.Host
	}
	png, err := qr.Generate(qr.JoinURL(base, hub.GameID()), qr.DefaultSize)
	if err != nil {
		h.log.Error().Err(err).Msg("qr generation failed")
		http.Error(w, "QR generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// HandleWS handles WebSocket connections. Query: game, and player to take
// a seat; without player the client only watches.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	hub, err := h.hubFor(r)
	if err != nil {
		writeError(w, statusFor(err), err, nil)
		return
	}
	seat := Spectator
	if s := r.URL.Query().Get("player"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid player %q", s), nil)
			return
		}
		seat = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade error")
		return
	}

	client := NewClient(hub, conn, seat)
	if !hub.Register(client) {
		conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeBody reads a JSON object from the request. An empty body yields
// errMissingPayload.
func decodeBody(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return errMissingPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// statusFor maps an error from the hub or lobby to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lobby.ErrNoGame):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotYourTurn), errors.Is(err, engine.ErrWrongPhase):
		return http.StatusConflict
	case errors.Is(err, ErrHubClosed):
		return http.StatusGone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error, have engine.Hand) {
	writeJSON(w, status, protocol.ErrorMsg{Error: err.Error(), Have: have})
}

// requestTimeout bounds how long a handler waits on a busy hub.
const requestTimeout = 10 * time.Second

func withTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
