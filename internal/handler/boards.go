package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"boardsync/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// GetBoards handles GET /boards
func (h *Handler) GetBoards(w http.ResponseWriter, r *http.Request) {
	boards := h.Store.ListBoards()
	log.Printf("[GET /boards] ✅ Returned %d boards", len(boards))
	writeJSON(w, http.StatusOK, boards)
}

// CreateBoard handles POST /boards
// id が空ならサーバー側で UUID を割り当てる
func (h *Handler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	// リクエストボディサイズを1MBに制限
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req model.BoardSummary
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[POST /boards] ❌ Bad Request: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		log.Printf("[POST /boards] ❌ Bad Request: missing or empty name")
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	board, err := h.Store.CreateBoard(req.ID, req.Name)
	if errors.Is(err, model.ErrDuplicateBoard) {
		log.Printf("[POST /boards] ❌ Conflict: %v", err)
		writeError(w, http.StatusConflict, "Board already exists")
		return
	}
	if err != nil {
		log.Printf("[POST /boards] ❌ Bad Request: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.Catalog != nil {
		if err := h.Catalog.SaveBoard(r.Context(), board.Summary()); err != nil {
			log.Printf("[POST /boards] ⚠️  Catalog write failed for %s: %v", board.ID, err)
		}
	}

	log.Printf("[POST /boards] ✅ Created board: ID=%s, Name=%q", board.ID, board.Name)
	writeJSON(w, http.StatusCreated, board)
}

// GetBoard handles GET /boards/{id}
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	board, err := h.Store.GetBoard(id)
	if err != nil {
		log.Printf("[GET /boards/%s] ❌ Not Found", id)
		writeError(w, http.StatusNotFound, "Board not found")
		return
	}

	log.Printf("[GET /boards/%s] ✅ Returned %d boxes", id, len(board.Boxes))
	writeJSON(w, http.StatusOK, board)
}

// DeleteBox handles DELETE /boards/{id}/boxes/{uuid}
func (h *Handler) DeleteBox(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	boardID, boxID := vars["id"], vars["uuid"]

	if err := h.Hub.RemoveBox(boardID, boxID); err != nil {
		log.Printf("[DELETE /boards/%s/boxes/%s] ❌ %v", boardID, boxID, err)
		switch {
		case errors.Is(err, model.ErrBoardNotFound):
			writeError(w, http.StatusNotFound, "Board not found")
		case errors.Is(err, model.ErrBoxNotFound):
			writeError(w, http.StatusNotFound, "Box not found")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to delete box")
		}
		return
	}

	// 削除は Hub 経由で接続中のクライアントに通知済み
	log.Printf("[DELETE /boards/%s/boxes/%s] ✅ Deleted successfully", boardID, boxID)
	w.WriteHeader(http.StatusNoContent)
}
