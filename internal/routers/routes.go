package routers

import (
	"github.com/go-chi/chi/v5"

	"studyhall/internal/api"
)

// RoomRoutes mounts the session coordination API on r.
func RoomRoutes(r chi.Router, h *api.Handlers) {
	r.Route("/api/v1/rooms", func(r chi.Router) {
		r.Post("/", h.CreateRoom)

		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", h.GetRoom)
			r.Get("/ws", h.RoomWS)
			r.Post("/join", h.JoinRoom)
			r.Post("/leave", h.LeaveRoom)
			r.Post("/chat", h.SendChat)
			r.Post("/notes", h.ShareNotes)
			r.Post("/notes/generate", h.GenerateNotes)
			r.Post("/permissions", h.SetPermission)

			r.Route("/quiz", func(r chi.Router) {
				r.Post("/start", h.StartQuiz)
				r.Post("/answer", h.SubmitAnswer)
				r.Post("/reveal", h.RevealAnswer)
				r.Post("/next", h.NextQuestion)
				r.Post("/end", h.EndQuiz)
				r.Post("/reset", h.ResetQuiz)
			})
		})
	})
}
