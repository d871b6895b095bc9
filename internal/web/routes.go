package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/vkravcenko/attendance/internal/gallery"
	"github.com/vkravcenko/attendance/internal/ledger"
	"github.com/vkravcenko/attendance/internal/session"
	"github.com/vkravcenko/attendance/internal/web/handlers"
)

func (s *Server) setupRoutes(controller *session.Controller, gal *gallery.Gallery, led *ledger.Ledger) {
	enrollHandler := handlers.NewEnrollHandler(gal)
	attendHandler := handlers.NewAttendHandler(controller)
	galleryHandler := handlers.NewGalleryHandler(gal)
	recordsHandler := handlers.NewRecordsHandler(led)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/enroll", enrollHandler.Enroll)
		r.Post("/attend", attendHandler.Attend)
		r.Get("/gallery", galleryHandler.List)
		r.Get("/records", recordsHandler.List)
		r.Post("/records/rebuild", recordsHandler.Rebuild)
	})
}
