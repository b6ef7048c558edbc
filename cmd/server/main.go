package main // Entry point package

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/vietbus/bus-ticket-reservation/internal/config"
	"github.com/vietbus/bus-ticket-reservation/internal/database"
	"github.com/vietbus/bus-ticket-reservation/internal/handler"
	"github.com/vietbus/bus-ticket-reservation/internal/middleware"
	"github.com/vietbus/bus-ticket-reservation/internal/queue"
	"github.com/vietbus/bus-ticket-reservation/internal/repository"
	"github.com/vietbus/bus-ticket-reservation/internal/router"
	"github.com/vietbus/bus-ticket-reservation/internal/service"
	"github.com/vietbus/bus-ticket-reservation/internal/ticket"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	// The seat lock store and reference counter live in Redis; without it
	// the reservation protocol cannot serialize checkouts.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Fatal("redis: connection failed; the seat lock store is required")
	}

	bookingRepo := repository.NewBookingRepo(db)
	tripRepo := repository.NewTripRepo(db)
	lockRepo := repository.NewSeatLockRepo(rdb)
	counterRepo := repository.NewReferenceCounterRepo(rdb)

	refs := service.NewReferenceGenerator(counterRepo, bookingRepo, cfg.ReferencePrefix)
	publisher := queue.NewPublisher(cfg.RabbitURL)
	bookingSvc := service.NewBookingService(
		bookingRepo, tripRepo, lockRepo, refs, publisher,
		cfg.SeatHoldTTL, cfg.ServiceFeePercent,
	)

	// Ticket worker: consumes ticket.generate, renders PDFs and writes the
	// artifact locations back onto bookings.  Runs for the process
	// lifetime with its own reconnect loop.
	renderer := ticket.NewGenerator(cfg.TicketDir, cfg.TicketBaseURL)
	worker := queue.NewTicketWorker(cfg.RabbitURL, renderer, bookingRepo)
	go func() {
		if err := worker.Run(); err != nil {
			log.Printf("ticket-worker stopped: %v", err)
		}
	}()

	e := echo.New()
	e.Validator = handler.NewRequestValidator()
	router.RegisterRoutes(e)

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	router.RegisterBooking(e, bookingHandler, cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
