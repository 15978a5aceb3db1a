package server

import (
	"net/http"
)

// setupRoutes configures all admin HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Knowledge base management
	mux.HandleFunc("/api/knowledge-bases", s.app.KnowledgeBaseHandler.CollectionHandler) // GET (list), POST (create)
	mux.HandleFunc("/api/knowledge-bases/", s.app.KnowledgeBaseHandler.ItemHandler)      // item, start, stop, status, sources

	// Source item management
	mux.HandleFunc("/api/sources/", s.app.SourceHandler.ItemHandler) // GET/PUT/DELETE /{id}

	// In-app chat
	mux.HandleFunc("/api/chat", s.app.ChatHandler.SendHandler)
	mux.HandleFunc("/api/chat/stream", s.app.ChatHandler.StreamHandler)
	mux.HandleFunc("/api/chat/history", s.app.ChatHandler.HistoryHandler)
	mux.HandleFunc("/api/chat/reset", s.app.ChatHandler.ResetHandler)
	mux.HandleFunc("/api/chat/attach", s.app.ChatHandler.AttachHandler)
	mux.HandleFunc("/api/chat/select", s.app.ChatHandler.SelectHandler)

	// Settings (API keys)
	mux.HandleFunc("/api/keys", s.app.KVHandler.CollectionHandler)
	mux.HandleFunc("/api/keys/", s.app.KVHandler.ItemHandler)

	// System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	return mux
}
