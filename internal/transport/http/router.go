package http

import "net/http"

// NewRouter mounts the websocket and REST endpoints.
func NewRouter(ws *WSHandler, rooms *RoomsHandler, quizzes *QuizzesHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /ws/{code}", ws.ServeWS)
	mux.HandleFunc("POST /rooms", rooms.CreateRoom)
	mux.HandleFunc("GET /rooms/{code}", rooms.GetRoom)
	mux.HandleFunc("GET /rooms/{code}/qr", rooms.RoomQR)
	mux.HandleFunc("GET /sessions/{id}", rooms.GetSession)
	mux.HandleFunc("GET /quizzes/{id}/sessions", quizzes.ListSessions)
	mux.HandleFunc("DELETE /quizzes/{id}/cache", quizzes.InvalidateCache)
	return mux
}
