package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"boardsync/internal/client"
	"boardsync/internal/config"
	"boardsync/internal/hub"
	"boardsync/internal/model"
	"boardsync/internal/store"
)

func TestMain(m *testing.M) {
	// プロジェクトルートの.envを読み込み
	_ = godotenv.Load("../../.env")
	os.Exit(m.Run())
}

type fakeCatalog struct {
	mu    sync.Mutex
	saved []model.BoardSummary
	err   error
}

func (c *fakeCatalog) SaveBoard(_ context.Context, b model.BoardSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, b)
	return c.err
}

// newTestHandler テスト用のHandlerを生成
func newTestHandler(t *testing.T) (*Handler, *fakeCatalog) {
	t.Helper()
	s := store.New(model.DefaultLimits())
	if _, err := s.CreateBoard("b1", "Board One"); err != nil {
		t.Fatalf("CreateBoard failed: %v", err)
	}
	cat := &fakeCatalog{}
	cfg := config.Config{
		AllowedOrigins: []string{"http://localhost:8080", "http://127.0.0.1:8080"},
	}
	return New(s, hub.New(s), cat, cfg), cat
}

// TestGetBoards ボード一覧取得テスト
func TestGetBoards(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.SetupRouter()

	req := httptest.NewRequest("GET", "/boards", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type: application/json, got %s", w.Header().Get("Content-Type"))
	}

	var boards []model.BoardSummary
	json.Unmarshal(w.Body.Bytes(), &boards)
	if len(boards) != 1 || boards[0].ID != "b1" || boards[0].Name != "Board One" {
		t.Errorf("Unexpected boards: %+v", boards)
	}
}

// TestCreateBoard_Success ボード作成成功テスト
func TestCreateBoard_Success(t *testing.T) {
	h, cat := newTestHandler(t)
	router := h.SetupRouter()

	body, _ := json.Marshal(map[string]string{"name": "Retro"})
	req := httptest.NewRequest("POST", "/boards", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var board model.Board
	json.Unmarshal(w.Body.Bytes(), &board)
	if board.ID == "" {
		t.Error("Expected auto-generated ID, got empty string")
	}
	if board.Name != "Retro" || board.NextZ != 1 {
		t.Errorf("Unexpected board: %+v", board)
	}

	if _, err := h.Store.GetBoard(board.ID); err != nil {
		t.Errorf("Board not in store: %v", err)
	}
	if len(cat.saved) != 1 || cat.saved[0].ID != board.ID {
		t.Errorf("Catalog not written: %+v", cat.saved)
	}
}

// TestCreateBoard_CatalogFailure カタログ書き込み失敗でもボードは作成される
func TestCreateBoard_CatalogFailure(t *testing.T) {
	h, cat := newTestHandler(t)
	cat.err = errors.New("catalog down")
	router := h.SetupRouter()

	body, _ := json.Marshal(map[string]string{"id": "b9", "name": "Offline"})
	req := httptest.NewRequest("POST", "/boards", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status %d, got %d", http.StatusCreated, w.Code)
	}
}

// TestCreateBoard_Duplicate 重複IDは409
func TestCreateBoard_Duplicate(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.SetupRouter()

	body, _ := json.Marshal(map[string]string{"id": "b1", "name": "Again"})
	req := httptest.NewRequest("POST", "/boards", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status %d, got %d", http.StatusConflict, w.Code)
	}
}

// TestCreateBoard_MissingName name 必須チェック
func TestCreateBoard_MissingName(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.SetupRouter()

	body, _ := json.Marshal(map[string]string{"name": "  "})
	req := httptest.NewRequest("POST", "/boards", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var errResp map[string]string
	json.Unmarshal(w.Body.Bytes(), &errResp)
	if errResp["error"] != "name is required" {
		t.Errorf("Expected error 'name is required', got %s", errResp["error"])
	}
}

// TestCreateBoard_InvalidJSON JSON パース失敗
func TestCreateBoard_InvalidJSON(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.SetupRouter()

	req := httptest.NewRequest("POST", "/boards", strings.NewReader("invalid json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

// TestCreateBoard_OversizedBody 1MB を超えるボディは拒否
func TestCreateBoard_OversizedBody(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.SetupRouter()

	huge := `{"name":"` + strings.Repeat("a", 2<<20) + `"}`
	req := httptest.NewRequest("POST", "/boards", strings.NewReader(huge))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

// TestGetBoard スナップショット取得
func TestGetBoard(t *testing.T) {
	h, _ := newTestHandler(t)
	box, _ := h.Store.CreateBox("b1", model.TypeText, model.Patch{})
	router := h.SetupRouter()

	req := httptest.NewRequest("GET", "/boards/b1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var board model.Board
	json.Unmarshal(w.Body.Bytes(), &board)
	if _, ok := board.Boxes[box.UUID]; !ok {
		t.Errorf("Snapshot missing box %s", box.UUID)
	}
}

// TestGetBoard_NotFound 存在しないボード
func TestGetBoard_NotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.SetupRouter()

	req := httptest.NewRequest("GET", "/boards/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

// TestDeleteBox ボックス削除テスト
func TestDeleteBox(t *testing.T) {
	h, _ := newTestHandler(t)
	box, _ := h.Store.CreateBox("b1", model.TypeText, model.Patch{})
	router := h.SetupRouter()

	req := httptest.NewRequest("DELETE", "/boards/b1/boxes/"+box.UUID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, w.Code)
	}

	// 二回目は 404
	req = httptest.NewRequest("DELETE", "/boards/b1/boxes/"+box.UUID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	req = httptest.NewRequest("DELETE", "/boards/missing/boxes/"+box.UUID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

// TestWebSocketConnection WebSocket 接続テスト
func TestWebSocketConnection(t *testing.T) {
	h, _ := newTestHandler(t)

	server := httptest.NewServer(h.SetupRouter())
	defer server.Close()

	url := strings.Replace(server.URL, "http://", "ws://", 1)

	header := http.Header{}
	header.Set("Origin", "http://localhost:8080")

	ws, _, err := websocket.DefaultDialer.Dial(url+"/ws", header)
	if err != nil {
		t.Fatalf("WebSocket connection failed: %v", err)
	}
	defer ws.Close()

	ws.WriteJSON(model.Message{Event: model.EventBoardListRequest, RequestID: "1"})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg model.Message
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if msg.Event != model.EventBoardList || msg.RequestID != "1" || len(msg.Boards) != 1 {
		t.Errorf("Unexpected reply: %+v", msg)
	}
}

// TestWebSocketOriginCheck Origin チェックテスト
func TestWebSocketOriginCheck(t *testing.T) {
	h, _ := newTestHandler(t)

	server := httptest.NewServer(h.SetupRouter())
	defer server.Close()

	url := strings.Replace(server.URL, "http://", "ws://", 1)

	// 許可されていない Origin で接続試行
	header := http.Header{}
	header.Set("Origin", "http://forbidden.example.com")

	_, _, err := websocket.DefaultDialer.Dial(url+"/ws", header)
	if err == nil {
		t.Error("WebSocket connection from forbidden origin should fail")
	}
}

// TestWebSocketEndToEnd 二つのエージェント間で作成・編集・削除が同期される
func TestWebSocketEndToEnd(t *testing.T) {
	h, _ := newTestHandler(t)

	server := httptest.NewServer(h.SetupRouter())
	defer server.Close()

	url := strings.Replace(server.URL, "http://", "ws://", 1) + "/ws"
	header := http.Header{}
	header.Set("Origin", "http://127.0.0.1:8080")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientA := client.New(client.WithHeader(header))
	clientB := client.New(client.WithHeader(header))
	for _, a := range []*client.Agent{clientA, clientB} {
		if err := a.Connect(ctx, url); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		defer a.Close()
		if _, err := a.RequestBoardData(ctx, "b1"); err != nil {
			t.Fatalf("RequestBoardData failed: %v", err)
		}
	}

	updates := make(chan model.BoardUpdate, 8)
	clientB.OnRemoteUpdate(func(u model.BoardUpdate) { updates <- u })
	deletes := make(chan string, 1)
	clientB.OnRemoteDelete(func(_, id string) { deletes <- id })

	id, err := clientA.GenerateBox(model.TypeText)
	if err != nil {
		t.Fatalf("GenerateBox failed: %v", err)
	}

	text := "hello"
	if err := clientA.UpdateBoardState(id, model.Patch{Text: &text}); err != nil {
		t.Fatalf("UpdateBoardState failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-updates:
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for update %d", i+1)
		}
	}

	box, ok := clientB.Box(id)
	if !ok || box.State.Text != "hello" || box.State.Z != 1 || box.State.X != 50 {
		t.Errorf("Client B state: %+v (present=%v)", box, ok)
	}

	if got := h.Hub.ConnectionCount("b1"); got != 2 {
		t.Errorf("Expected 2 bound connections, got %d", got)
	}

	req, _ := http.NewRequest("DELETE", server.URL+"/boards/b1/boxes/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, resp.StatusCode)
	}

	select {
	case got := <-deletes:
		if got != id {
			t.Errorf("Expected delete of %s, got %s", id, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Delete not broadcast")
	}
}
