package app

import (
	"context"
	"database/sql"
	"net/http"

	"school-timetable/internal/auth"
	transport "school-timetable/internal/http"
	"school-timetable/internal/http/handlers"
	"school-timetable/internal/repository"
	"school-timetable/internal/service"
)

type App struct {
	handler          http.Handler
	timetableService *service.TimetableService
}

func New(db *sql.DB, directoryBaseURL, jwtSecret string) *App {
	txManager := repository.NewPostgresTxManager(db)
	directory := service.NewDirectoryHTTPClient(directoryBaseURL, service.DefaultDirectoryHTTPClient())
	timetableService := service.NewTimetableService(txManager, directory)

	timetableHandler := handlers.NewTimetableHandler(timetableService)
	router := transport.NewRouter(timetableHandler, auth.Middleware(jwtSecret), db.Ping)

	return &App{handler: router.Handler(), timetableService: timetableService}
}

func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) DrainOutbox(ctx context.Context, limit int) ([]repository.OutboxRecord, error) {
	return a.timetableService.DrainOutbox(ctx, limit)
}
