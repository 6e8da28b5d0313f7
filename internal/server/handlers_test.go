package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"settlers/internal/config"
	"settlers/internal/engine"
	"settlers/internal/protocol"
	"settlers/internal/store"
)

type memStore struct {
	mu     sync.Mutex
	saves  map[string][]byte
	done   map[string]bool
	events map[string][]engine.Event
}

func newMemStore() *memStore {
	return &memStore{
		saves:  make(map[string][]byte),
		done:   make(map[string]bool),
		events: make(map[string][]engine.Event),
	}
}

func (m *memStore) SaveGame(_ context.Context, id string, snapshot []byte, finished bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves[id] = snapshot
	m.done[id] = finished
	return nil
}

func (m *memStore) AppendEvents(_ context.Context, id string, events []engine.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = append(m.events[id], events...)
	return nil
}

func (m *memStore) eventCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events[id])
}

// testEnv runs a two-player game with scripted dice behind an httptest
// server.
type testEnv struct {
	t        *testing.T
	handlers *Handlers
	srv      *httptest.Server
	gameID   string
}

func newTestEnv(t *testing.T, dice engine.Dice, persist Persister) *testEnv {
	t.Helper()
	cfg := config.Default()
	s := New(cfg, persist)
	h := s.Handlers()

	lob, err := h.Lobbies.Create(nil)
	require.NoError(t, err)
	var players []*engine.Player
	for _, p := range lob.GetPlayers() {
		players = append(players, engine.NewPlayer(p.ID, p.Name))
	}
	h.startGame(engine.NewGame(lob.ID, players, cfg.Game.EngineConfig(), dice))

	srv := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return &testEnv{t: t, handlers: h, srv: srv, gameID: lob.ID}
}

func (e *testEnv) do(method, path string, body interface{}, out interface{}) int {
	e.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.t, err)
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(e.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(e.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) build(player int, kind string, node *int, edge *engine.Edge) int {
	e.t.Helper()
	req := protocol.ActionRequest{Player: &player, Type: kind, Node: node, Edge: edge}
	return e.do(http.MethodPost, "/api/build", req, nil)
}

func intp(n int) *int { return &n }

func edgep(a, b int) *engine.Edge {
	e := engine.NewEdge(a, b)
	return &e
}

func (e *testEnv) playSetup() {
	e.t.Helper()
	steps := []struct {
		player int
		node   int
		road   [2]int
	}{
		{0, 2, [2]int{1, 2}},
		{1, 13, [2]int{12, 13}},
		{1, 31, [2]int{31, 34}},
		{0, 25, [2]int{25, 26}},
	}
	for _, s := range steps {
		require.Equal(e.t, http.StatusOK, e.build(s.player, "settlement", intp(s.node), nil))
		require.Equal(e.t, http.StatusOK, e.build(s.player, "road", nil, edgep(s.road[0], s.road[1])))
	}
}

func TestFreshServerHasGame(t *testing.T) {
	s := New(config.Default(), nil)
	t.Cleanup(s.Handlers().Close)
	n, err := s.Prepare(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)

	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state engine.StateView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.Equal(t, "setup", state.Phase)
	require.Len(t, state.Tiles, 19)
	require.Len(t, state.Players, 2)

	// A second Prepare keeps the current game.
	current := s.Handlers().Lobbies.Current()
	_, err = s.Prepare(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, current, s.Handlers().Lobbies.Current())

	resp2, err := http.Get(srv.URL + "/api/state?game=nope")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestHandleNewGame(t *testing.T) {
	s := New(config.Default(), nil)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		srv.Close()
		s.Handlers().Close()
	})

	body, _ := json.Marshal(protocol.NewGameRequest{Players: []string{"Ann", "Bo", "Cy"}, Seed: 7})
	resp, err := http.Post(srv.URL+"/api/new_game", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got protocol.NewGameResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "ok", got.Status)
	require.Equal(t, "setup", got.State.Phase)
	require.Len(t, got.State.Players, 3)
	require.Equal(t, "Cy", got.State.Players[2].Name)
	require.Len(t, got.State.Tiles, 19)
	require.Len(t, got.State.Nodes, 54)
	require.Equal(t, s.Handlers().Lobbies.Current(), got.State.GameID)

	// No body falls back to the configured names.
	resp2, err := http.Post(srv.URL+"/api/new_game", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var games protocol.GamesResponse
	resp3, err := http.Get(srv.URL + "/api/games")
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&games))
	require.Len(t, games.Games, 2)
	require.Contains(t, games.Games, games.Current)
	require.NotEqual(t, got.State.GameID, games.Current)
}

func TestHandleNewGameRejectsBadPlayers(t *testing.T) {
	s := New(config.Default(), nil)
	srv := httptest.NewServer(s.Routes())
	defer srv.Close()

	body, _ := json.Marshal(protocol.NewGameRequest{Players: []string{"Solo"}})
	resp, err := http.Post(srv.URL+"/api/new_game", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetupAndRoll(t *testing.T) {
	mem := newMemStore()
	env := newTestEnv(t, &engine.FixedDice{Rolls: [][2]int{{2, 3}}}, mem)
	env.playSetup()

	var state engine.StateView
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/state", nil, &state))
	require.Equal(t, "roll", state.Phase)
	require.Equal(t, 0, state.CurrentPlayer)
	require.Equal(t, 2, state.Players[0].Resources[engine.Wheat])
	require.Equal(t, 1, state.Players[0].Resources[engine.Sheep])
	require.Equal(t, 1, state.Players[1].Resources[engine.Wood])
	require.Equal(t, 1, state.Players[1].Resources[engine.Ore])

	var roll protocol.RollResponse
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/roll", nil, &roll))
	require.Equal(t, [2]int{2, 3}, roll.Dice)
	require.Equal(t, 5, roll.Total)
	require.Equal(t, []engine.Grant{{Player: 0, Resource: engine.Wood, Node: 2, Amount: 1}}, roll.Distribution)
	require.Equal(t, "build", roll.State.Phase)

	require.Greater(t, mem.eventCount(env.gameID), 8)
}

func TestBuildErrors(t *testing.T) {
	env := newTestEnv(t, &engine.FixedDice{Rolls: [][2]int{{2, 3}}}, nil)

	var errMsg protocol.ErrorMsg
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/build", nil, &errMsg))
	require.Equal(t, "missing payload", errMsg.Error)
	for _, body := range []interface{}{map[string]interface{}{}, json.RawMessage("null")} {
		errMsg = protocol.ErrorMsg{}
		require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/build", body, &errMsg))
		require.Equal(t, "missing payload", errMsg.Error)
	}

	require.Equal(t, http.StatusBadRequest, env.build(0, "settlement", nil, nil), "node is required")
	require.Equal(t, http.StatusBadRequest, env.build(0, "castle", intp(2), nil))
	require.Equal(t, http.StatusConflict, env.build(1, "settlement", intp(2), nil), "not player 1's turn")

	env.playSetup()
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/roll", nil, nil))

	errMsg = protocol.ErrorMsg{}
	req := protocol.ActionRequest{Player: intp(0), Type: "road", Edge: edgep(2, 3)}
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/build", req, &errMsg))
	require.Equal(t, engine.ErrNotEnoughResources.Error(), errMsg.Error)
	require.Equal(t, 1, errMsg.Have[engine.Wood])
	require.Equal(t, 0, errMsg.Have[engine.Brick])
}

func TestRobberAndEndTurn(t *testing.T) {
	env := newTestEnv(t, &engine.FixedDice{Rolls: [][2]int{{3, 4}}}, nil)
	env.playSetup()

	var roll protocol.RollResponse
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/roll", nil, &roll))
	require.Equal(t, 7, roll.Total)
	require.Empty(t, roll.Distribution)
	var types []engine.EventType
	for _, ev := range roll.Events {
		types = append(types, ev.Type)
	}
	require.Contains(t, types, engine.EventRobber)
	require.Equal(t, "robber", roll.State.Phase)

	require.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/end_turn", nil, nil))
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/robber", protocol.ActionRequest{Tile: intp(engine.DesertIndex)}, nil))

	var res protocol.ResultResponse
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/robber", protocol.ActionRequest{Tile: intp(0)}, &res))
	require.Equal(t, 0, res.State.Robber)
	require.True(t, res.State.Tiles[0].Robbed)
	require.False(t, res.State.Tiles[engine.DesertIndex].Robbed)

	res = protocol.ResultResponse{}
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/end_turn", nil, &res))
	require.Equal(t, 1, res.State.CurrentPlayer)
	require.Equal(t, "roll", res.State.Phase)
}

func TestTrade(t *testing.T) {
	env := newTestEnv(t, &engine.FixedDice{Rolls: [][2]int{{2, 3}}}, nil)
	env.playSetup()
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/roll", nil, nil))

	// Player 0 holds wood:1 wheat:2 sheep:1, short of a 4:1 trade.
	req := protocol.ActionRequest{Give: engine.Wheat, Get: engine.Ore}
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/trade", req, nil))
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/trade", protocol.ActionRequest{Give: "gold", Get: engine.Ore}, nil))
}

func TestHandleLegal(t *testing.T) {
	env := newTestEnv(t, engine.NewDice(1), nil)

	var legal protocol.LegalResponse
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/legal", nil, &legal))
	require.Equal(t, 0, legal.Player)
	require.Equal(t, "settlement", legal.Type)
	require.Len(t, legal.Nodes, 54)

	require.Equal(t, http.StatusOK, env.build(0, "settlement", intp(2), nil))

	legal = protocol.LegalResponse{}
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/legal?player=0&type=road&game="+env.gameID, nil, &legal))
	require.ElementsMatch(t, []engine.Edge{{A: 1, B: 2}, {A: 2, B: 3}, {A: 2, B: 9}}, legal.Edges)

	require.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/legal?type=city", nil, nil))
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/legal?player=x", nil, nil))
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/legal?player=9", nil, nil))
	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/legal?game=nope", nil, nil))
}

func TestHandleBoard(t *testing.T) {
	env := newTestEnv(t, engine.NewDice(1), nil)

	var board protocol.BoardResponse
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/board", nil, &board))
	require.Equal(t, []int{3, 4, 5, 4, 3}, board.Rows)
	require.Len(t, board.Tiles, 19)
	require.Len(t, board.Nodes, 54)
	require.Len(t, board.Edges, 72)
}

func TestHandleQR(t *testing.T) {
	env := newTestEnv(t, engine.NewDice(1), nil)

	resp, err := http.Get(env.srv.URL + "/api/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, engine.NewDice(1), nil)
	require.Equal(t, http.StatusMethodNotAllowed, env.do(http.MethodGet, "/api/roll", nil, nil))
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", nil, nil))
}

func TestRestoreFromStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "games.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	env := newTestEnv(t, engine.NewDice(3), st)
	require.Equal(t, http.StatusOK, env.build(0, "settlement", intp(2), nil))

	records, err := st.LoadGames(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, records, 1)

	s := New(config.Default(), st)
	t.Cleanup(s.Handlers().Close)
	require.Equal(t, 1, s.Handlers().Restore(records))
	require.Equal(t, env.gameID, s.Handlers().Lobbies.Current())

	srv := httptest.NewServer(s.Routes())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var state engine.StateView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.Equal(t, []int{2}, state.Players[0].Settlements)
	require.Equal(t, 2, state.SetupNode)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusConflict, statusFor(engine.ErrWrongPhase))
	require.Equal(t, http.StatusGone, statusFor(ErrHubClosed))
	require.Equal(t, http.StatusServiceUnavailable, statusFor(context.DeadlineExceeded))
	require.Equal(t, http.StatusBadRequest, statusFor(engine.ErrNodeTooClose))
}

func TestHandleEvents(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "games.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	env := newTestEnv(t, &engine.FixedDice{Rolls: [][2]int{{2, 3}}}, st)
	env.playSetup()
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/roll", nil, nil))

	var got protocol.EventsResponse
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/events?game="+env.gameID, nil, &got))
	require.Equal(t, env.gameID, got.Game)
	require.Len(t, got.Events, 12)
	require.Equal(t, engine.EventSetupPlaced, got.Events[0].Type)
	require.Equal(t, engine.EventDiceRolled, got.Events[10].Type)

	noStore := newTestEnv(t, engine.NewDice(1), nil)
	require.Equal(t, http.StatusNotFound, noStore.do(http.MethodGet, "/api/events", nil, nil))
}
