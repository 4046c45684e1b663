package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"focusroom/internal/db"
	"focusroom/internal/handler"
	"focusroom/internal/hub"
	"focusroom/internal/logging"
	"focusroom/internal/metrics"
	"focusroom/internal/middleware"
	"focusroom/internal/repository"
	"focusroom/internal/router"
	"focusroom/internal/service"
)

type memberView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	IsFocusing     bool   `json:"isFocusing"`
	FocusStartTime *int64 `json:"focusStartTime"`
	TotalFocusTime int64  `json:"totalFocusTime"`
}

type presenceEnvelope struct {
	Members  []memberView `json:"members"`
	RoomCode string       `json:"roomCode"`
	AsOf     int64        `json:"asOf"`
}

type sessionEnvelope struct {
	ID        string  `json:"id"`
	EndTime   *string `json:"endTime"`
	Duration  int64   `json:"duration"`
	Completed bool    `json:"completed"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestPresencePullFlow(t *testing.T) {
	engine := setupTestEngine(t)

	join(t, engine, "R1", "user-a")
	presence := getPresence(t, engine, "R1")
	if len(presence.Members) != 1 || presence.Members[0].IsFocusing || presence.Members[0].Name != "Ada" {
		t.Fatalf("expected one idle member, got %+v", presence.Members)
	}

	status, body := requestJSON(t, engine, http.MethodPut, "/api/presence", map[string]interface{}{
		"roomCode":   "R1",
		"userId":     "user-a",
		"isFocusing": true,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on status update, got %d: %s", status, body)
	}
	presence = getPresence(t, engine, "R1")
	if !presence.Members[0].IsFocusing || presence.Members[0].FocusStartTime == nil {
		t.Fatalf("expected focusing member, got %+v", presence.Members[0])
	}

	status, _ = requestJSON(t, engine, http.MethodPost, "/api/presence/heartbeat", map[string]string{
		"roomCode": "R1",
		"userId":   "user-a",
	})
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 on heartbeat, got %d", status)
	}

	for i := 0; i < 2; i++ {
		status, body = requestJSON(t, engine, http.MethodDelete, "/api/presence?roomCode=R1&userId=user-a", nil)
		if status != http.StatusOK || !strings.Contains(string(body), `"success":true`) {
			t.Fatalf("leave %d: expected success, got %d: %s", i, status, body)
		}
	}
	if presence = getPresence(t, engine, "R1"); len(presence.Members) != 0 {
		t.Fatalf("expected empty room after leave, got %+v", presence.Members)
	}

	status, body = requestJSON(t, engine, http.MethodDelete, "/api/presence?roomCode=nowhere&userId=user-a", nil)
	if status != http.StatusOK {
		t.Fatalf("leave of unknown room should succeed, got %d: %s", status, body)
	}

	empty := getPresence(t, engine, "R2")
	if empty.Members == nil || len(empty.Members) != 0 || empty.RoomCode != "R2" {
		t.Fatalf("expected empty members array for unknown room, got %+v", empty)
	}
}

func TestSessionEndpoints(t *testing.T) {
	engine := setupTestEngine(t)
	join(t, engine, "R1", "user-a")

	status, body := requestJSON(t, engine, http.MethodPost, "/api/session/start", map[string]string{
		"userId":   "user-a",
		"roomCode": "R1",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 on start, got %d: %s", status, body)
	}
	var started sessionEnvelope
	decode(t, body, &started)
	if started.ID == "" || started.EndTime != nil {
		t.Fatalf("expected open session, got %+v", started)
	}

	var closed sessionEnvelope
	for i := 0; i < 2; i++ {
		status, body = requestJSON(t, engine, http.MethodPatch, "/api/session/end", map[string]string{"sessionId": started.ID})
		if status != http.StatusOK {
			t.Fatalf("end %d: expected 200, got %d: %s", i, status, body)
		}
		var got sessionEnvelope
		decode(t, body, &got)
		if got.EndTime == nil || !got.Completed {
			t.Fatalf("expected completed session, got %+v", got)
		}
		if i == 1 && *got.EndTime != *closed.EndTime {
			t.Fatalf("second end changed the record: %+v vs %+v", got, closed)
		}
		closed = got
	}

	status, body = requestJSON(t, engine, http.MethodPatch, "/api/session/end", map[string]string{"sessionId": "missing"})
	if status != http.StatusNotFound || errorCode(t, body) != "session_not_found" {
		t.Fatalf("expected session_not_found, got %d: %s", status, body)
	}

	status, body = requestJSON(t, engine, http.MethodGet, "/api/sessions?userId=user-a&limit=5", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for sessions, got %d", status)
	}
	var history struct {
		Sessions []sessionEnvelope `json:"sessions"`
	}
	decode(t, body, &history)
	if len(history.Sessions) != 1 || history.Sessions[0].ID != started.ID {
		t.Fatalf("unexpected history %+v", history.Sessions)
	}

	status, body = requestJSON(t, engine, http.MethodGet, "/api/sessions?roomCode=R1", nil)
	if status != http.StatusOK || !strings.Contains(string(body), started.ID) {
		t.Fatalf("expected room history with the session, got %d: %s", status, body)
	}

	status, body = requestJSON(t, engine, http.MethodGet, "/api/sessions", nil)
	if status != http.StatusBadRequest || errorCode(t, body) != "missing_filter" {
		t.Fatalf("expected missing_filter, got %d: %s", status, body)
	}

	status, body = requestJSON(t, engine, http.MethodGet, "/api/stats?userId=user-a", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for stats, got %d", status)
	}
	var stats struct {
		TotalSessions int64 `json:"totalSessions"`
	}
	decode(t, body, &stats)
	if stats.TotalSessions != 1 {
		t.Fatalf("expected one session in stats, got %+v", stats)
	}
}

func TestValidationErrors(t *testing.T) {
	engine := setupTestEngine(t)

	cases := []struct {
		method, path string
		body         interface{}
		code         string
	}{
		{http.MethodPost, "/api/join", map[string]string{"userId": "user-a"}, "missing_roomCode"},
		{http.MethodPost, "/api/join", map[string]string{"roomCode": "R1"}, "missing_userId"},
		{http.MethodGet, "/api/presence", nil, "missing_roomCode"},
		{http.MethodPost, "/api/session/start", map[string]string{}, "missing_userId"},
		{http.MethodPatch, "/api/session/end", map[string]string{}, "missing_sessionId"},
		{http.MethodGet, "/api/stats", nil, "missing_userId"},
		{http.MethodGet, "/api/presence?roomCode=R1&asOf=soon", nil, "invalid_as_of"},
	}
	for _, tc := range cases {
		status, body := requestJSON(t, engine, tc.method, tc.path, tc.body)
		if status != http.StatusBadRequest || errorCode(t, body) != tc.code {
			t.Fatalf("%s %s: expected 400 %s, got %d: %s", tc.method, tc.path, tc.code, status, body)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/join", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest || errorCode(t, recorder.Body.Bytes()) != "invalid_json" {
		t.Fatalf("expected invalid_json, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestUsersAndRooms(t *testing.T) {
	engine := setupTestEngine(t)

	status, body := requestJSON(t, engine, http.MethodPost, "/api/users", map[string]string{
		"name":  "Ada",
		"color": "#FF6B6B",
		"email": "ada@example.com",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 for user, got %d: %s", status, body)
	}
	var user struct {
		ID string `json:"id"`
	}
	decode(t, body, &user)

	if status, _ = requestJSON(t, engine, http.MethodGet, "/api/users?id="+user.ID, nil); status != http.StatusOK {
		t.Fatalf("expected 200 for user lookup, got %d", status)
	}
	if status, _ = requestJSON(t, engine, http.MethodGet, "/api/users?id=ghost", nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", status)
	}

	status, body = requestJSON(t, engine, http.MethodPost, "/api/rooms", nil)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 for room, got %d: %s", status, body)
	}
	var room struct {
		RoomCode string `json:"roomCode"`
		Name     string `json:"name"`
	}
	decode(t, body, &room)
	if len(room.RoomCode) != 12 || room.Name != "Room "+room.RoomCode[:6] {
		t.Fatalf("unexpected generated room %+v", room)
	}

	if status, _ = requestJSON(t, engine, http.MethodGet, "/api/rooms?roomCode="+room.RoomCode, nil); status != http.StatusOK {
		t.Fatalf("expected 200 for room lookup, got %d", status)
	}
	status, body = requestJSON(t, engine, http.MethodGet, "/api/rooms?roomCode=nowhere", nil)
	if status != http.StatusNotFound || errorCode(t, body) != "room_not_found" {
		t.Fatalf("expected room_not_found, got %d: %s", status, body)
	}
}

func TestPushClientsSeeHTTPWrites(t *testing.T) {
	engine := setupTestEngine(t)
	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?roomCode=R1&userId=user-b&displayName=Bo"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	readEvent(t, conn, hub.EventRoomUsers)

	join(t, engine, "R1", "user-a")
	readEvent(t, conn, hub.EventUserJoined)

	status, body := requestJSON(t, engine, http.MethodPut, "/api/presence", map[string]interface{}{
		"roomCode":   "R1",
		"userId":     "user-a",
		"isFocusing": true,
	})
	if status != http.StatusOK {
		t.Fatalf("status update failed with %d: %s", status, body)
	}
	var update hub.MemberPayload
	decode(t, readEvent(t, conn, hub.EventUserUpdated), &update)
	if update.Member.ID != "user-a" || !update.Member.IsFocusing {
		t.Fatalf("unexpected pushed update %+v", update.Member)
	}

	// The push-joined member is visible to pull clients as well.
	presence := getPresence(t, engine, "R1")
	if len(presence.Members) != 2 {
		t.Fatalf("expected both members live, got %+v", presence.Members)
	}
}

func TestCORSPreflight(t *testing.T) {
	engine := setupTestEngine(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/session/end", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	recorder := httptest.NewRecorder()

	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("unexpected allow-origin header: %s", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(recorder.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Fatalf("PATCH must be allowed: %s", recorder.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	engine := setupTestEngine(t)

	if status, _ := requestJSON(t, engine, http.MethodGet, "/health", nil); status != http.StatusOK {
		t.Fatalf("expected 200 for health, got %d", status)
	}
	status, body := requestJSON(t, engine, http.MethodGet, "/metrics", nil)
	if status != http.StatusOK || !strings.Contains(string(body), "focusroom_http_requests_total") {
		t.Fatalf("expected request counter in metrics, got %d", status)
	}
}

func setupTestEngine(t *testing.T) http.Handler {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	if _, err := db.RunMigrations(database, migrationsDir, logging.Discard()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	logger := logging.Discard()
	m := metrics.New()

	userRepo := repository.NewUserRepository(database)
	roomService := service.NewRoomService(repository.NewRoomRepository(database), nil, logger)
	presenceService := service.NewPresenceService(roomService, userRepo, repository.NewMemberRepository(database), service.DefaultLivenessWindow, nil, logger)
	sessionService := service.NewSessionService(repository.NewSessionRepository(database), roomService, presenceService, nil, logger)
	sessionService.SetMetrics(m)

	pushHub := hub.New(presenceService, logger, hub.Options{Metrics: m})
	presenceService.SetNotifier(pushHub)
	t.Cleanup(pushHub.Close)

	origins := middleware.NewOrigins([]string{"http://localhost:3000"})
	return router.New(router.Handlers{
		Users:    handler.NewUserHandler(service.NewUserService(userRepo, nil)),
		Rooms:    handler.NewRoomHandler(roomService),
		Presence: handler.NewPresenceHandler(presenceService),
		Sessions: handler.NewSessionHandler(sessionService),
		WS:       handler.NewWSHandler(pushHub, origins, logger),
	}, m, logger, origins)
}

func join(t *testing.T, server http.Handler, roomCode, userID string) {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/join", map[string]interface{}{
		"roomCode":       roomCode,
		"userId":         userID,
		"displayName":    "Ada",
		"color":          "#FF6B6B",
		"isFocusing":     false,
		"totalFocusTime": 0,
	})
	if status != http.StatusOK {
		t.Fatalf("join %s failed with status %d: %s", userID, status, body)
	}
}

func getPresence(t *testing.T, server http.Handler, roomCode string) presenceEnvelope {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodGet, "/api/presence?roomCode="+roomCode, nil)
	if status != http.StatusOK {
		t.Fatalf("get presence failed with status %d: %s", status, body)
	}
	var resp presenceEnvelope
	decode(t, body, &resp)
	return resp
}

func readEvent(t *testing.T, conn *websocket.Conn, want string) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		var env hub.Envelope
		decode(t, message, &env)
		if env.Type == want {
			return env.Payload
		}
	}
}

func decode(t *testing.T, body []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("unmarshal %s: %v", string(body), err)
	}
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp apiErrorEnvelope
	decode(t, body, &resp)
	return resp.Error.Code
}

func requestJSON(
	t *testing.T,
	server http.Handler,
	method, path string,
	body interface{},
) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		payload = raw
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder.Code, recorder.Body.Bytes()
}
