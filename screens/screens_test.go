package screens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wikirace/gamedata"
	"wikirace/models"
	"wikirace/race"
	"wikirace/ranking"
	"wikirace/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router *gin.Engine
	store  store.Store
	coord  *race.Coordinator
}

func newTestServer(t *testing.T, st store.Store) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	data := gamedata.NewCache(gamedata.Static{Data: models.WikiData{
		StartPages: []string{"Brasil"},
		Themes:     []models.Theme{{Title: "Lua", Slug: "Lua"}},
	}}, logger)
	agg := ranking.NewAggregator(ranking.NewStoreRepository(st, logger), 30, logger)
	coord := race.NewCoordinator(st, data, logger, race.WithRanking(agg))

	router := gin.New()
	RegisterRoutes(router, coord, agg, st, NewUpgrader(), logger)
	return &testServer{router: router, store: st, coord: coord}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, store.NewMemoryStore())

	code, resp := s.do(t, http.MethodPost, "/rooms", map[string]any{"nickname": "ana", "maxPlayers": 2, "stopOnFirstWin": true})
	require.Equal(t, http.StatusCreated, code, resp)
	roomCode := resp["code"].(string)
	owner := resp["playerId"].(string)

	code, resp = s.do(t, http.MethodGet, "/rooms", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp["rooms"], 1)

	code, resp = s.do(t, http.MethodPost, "/rooms/"+roomCode+"/join", map[string]any{"nickname": "bia"})
	require.Equal(t, http.StatusOK, code, resp)
	guest := resp["playerId"].(string)

	code, resp = s.do(t, http.MethodPost, "/rooms/"+roomCode+"/join", map[string]any{"nickname": "caio"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "room_full", resp["status"])

	code, resp = s.do(t, http.MethodPost, "/rooms/"+roomCode+"/start", map[string]any{"playerId": guest})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "not_owner", resp["status"])

	code, _ = s.do(t, http.MethodPost, "/rooms/"+roomCode+"/start", map[string]any{"playerId": owner})
	require.Equal(t, http.StatusOK, code)

	code, resp = s.do(t, http.MethodPost, "/rooms/"+roomCode+"/start", map[string]any{"playerId": owner})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "game_already_started", resp["status"])

	code, _ = s.do(t, http.MethodPost, "/rooms/"+roomCode+"/progress", map[string]any{"playerId": guest, "clicks": 2})
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/rooms/"+roomCode+"/heartbeat", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = s.do(t, http.MethodPost, "/rooms/"+roomCode+"/win", map[string]any{"playerId": owner, "nickname": "ana", "timeMs": 500, "clicks": 3})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "implausible_result", resp["status"])

	code, _ = s.do(t, http.MethodPost, "/rooms/"+roomCode+"/win", map[string]any{"playerId": owner, "nickname": "ana", "timeMs": 30000, "clicks": 3, "stopOnFirstWin": true})
	require.Equal(t, http.StatusOK, code)

	code, resp = s.do(t, http.MethodGet, "/rooms/"+roomCode, nil)
	require.Equal(t, http.StatusOK, code)
	room := resp["room"].(map[string]any)
	assert.Equal(t, "finished", room["phase"])
	assert.Equal(t, owner, room["winner"].(map[string]any)["playerId"])

	code, resp = s.do(t, http.MethodGet, "/rankings?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	entries := resp["rankings"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "ana", entries[0].(map[string]any)["nick"])
	assert.Equal(t, float64(1), entries[0].(map[string]any)["totalWins"])

	for _, id := range []string{owner, guest} {
		code, _ = s.do(t, http.MethodPost, "/rooms/"+roomCode+"/leave", map[string]any{"playerId": id})
		require.Equal(t, http.StatusOK, code)
	}
	code, resp = s.do(t, http.MethodGet, "/rooms/"+roomCode, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "room_not_found", resp["status"])
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t, store.NewMemoryStore())

	code, resp := s.do(t, http.MethodPost, "/rooms", map[string]any{"maxPlayers": 2})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "request_binding_error", resp["status"])

	code, resp = s.do(t, http.MethodPost, "/rooms", map[string]any{"nickname": "ana", "visibility": "secret"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid_config", resp["status"])

	code, _ = s.do(t, http.MethodPost, "/rooms/12345/join", map[string]any{"nickname": "ana"})
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = s.do(t, http.MethodGet, "/rankings?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_limit", resp["status"])

	code, resp = s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp["status"])
}

type downStore struct {
	store.Store
}

func (downStore) Get(ctx context.Context, path string) ([]byte, error) {
	return nil, fmt.Errorf("dial tcp: %w", store.ErrUnavailable)
}

func (downStore) Ping(ctx context.Context) error {
	return fmt.Errorf("dial tcp: %w", store.ErrUnavailable)
}

func TestStoreUnavailableAsksForRetry(t *testing.T) {
	s := newTestServer(t, downStore{store.NewMemoryStore()})

	code, resp := s.do(t, http.MethodPost, "/rooms/12345/join", map[string]any{"nickname": "ana"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "store_unavailable", resp["status"])
	assert.Equal(t, true, resp["retry"])

	code, _ = s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestWatchRoomOverWebSocket(t *testing.T) {
	s := newTestServer(t, store.NewMemoryStore())
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx := context.Background()
	roomCode, owner, err := s.coord.CreateRoom(ctx, models.RoomConfig{}, "ana")
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + roomCode + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg models.WatchMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.WatchTypeRoom, msg.Type)
	require.NotNil(t, msg.Room)
	assert.Equal(t, owner, msg.Room.OwnerID)

	guest, err := s.coord.JoinRoom(ctx, roomCode, "bia")
	require.NoError(t, err)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Contains(t, msg.Room.Players, guest)

	require.NoError(t, s.coord.LeaveRoom(ctx, roomCode, owner))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, guest, msg.Room.OwnerID)

	require.NoError(t, s.coord.LeaveRoom(ctx, roomCode, guest))
	msg = models.WatchMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.WatchTypeClosed, msg.Type)
	assert.Nil(t, msg.Room)
}

func TestWatchRejectsInvalidCode(t *testing.T) {
	s := newTestServer(t, store.NewMemoryStore())
	req := httptest.NewRequest(http.MethodGet, "/rooms/abc/watch", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
