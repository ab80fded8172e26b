// Package app assembles repositories, services and handlers into the HTTP API.
package app

import (
	"github.com/jmoiron/sqlx"
	"github.com/patrickmn/go-cache"
	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/therapyassist/therapy-api/internal/config"
	appointmentHandler "github.com/therapyassist/therapy-api/internal/handler/appointment"
	"github.com/therapyassist/therapy-api/internal/handler/health"
	patientHandler "github.com/therapyassist/therapy-api/internal/handler/patient"
	paymentHandler "github.com/therapyassist/therapy-api/internal/handler/payment"
	"github.com/therapyassist/therapy-api/internal/handler/prometheus"
	sessionNoteHandler "github.com/therapyassist/therapy-api/internal/handler/sessionnote"
	"github.com/therapyassist/therapy-api/internal/middleware"
	"github.com/therapyassist/therapy-api/internal/receipt"
	"github.com/therapyassist/therapy-api/internal/repository"
	"github.com/therapyassist/therapy-api/internal/repository/memory"
	"github.com/therapyassist/therapy-api/internal/repository/postgres"
	"github.com/therapyassist/therapy-api/internal/router"
	appointmentService "github.com/therapyassist/therapy-api/internal/service/appointment"
	eventService "github.com/therapyassist/therapy-api/internal/service/event"
	patientService "github.com/therapyassist/therapy-api/internal/service/patient"
	paymentService "github.com/therapyassist/therapy-api/internal/service/payment"
	sessionNoteService "github.com/therapyassist/therapy-api/internal/service/sessionnote"
	"github.com/therapyassist/therapy-api/pkg/auth"
	"github.com/therapyassist/therapy-api/pkg/logger"
	"github.com/therapyassist/therapy-api/pkg/metrics"
)

// MetricsNamespace prefixes every collector the binaries register.
const MetricsNamespace = "therapy"

// Repositories is one storage backend: either every field comes from the
// memory store or every field from postgres.
type Repositories struct {
	Tx           repository.Transactor
	Pinger       repository.Pinger
	Patients     repository.PatientRepository
	Appointments repository.AppointmentRepository
	Payments     repository.PaymentRepository
	Notes        repository.SessionNoteRepository
	Outbox       repository.OutboxRepository
}

func NewMemoryRepositories(store *memory.Store) *Repositories {
	return &Repositories{
		Tx:           store,
		Pinger:       store,
		Patients:     memory.NewPatientRepository(store),
		Appointments: memory.NewAppointmentRepository(store),
		Payments:     memory.NewPaymentRepository(store),
		Notes:        memory.NewSessionNoteRepository(store),
		Outbox:       memory.NewOutboxRepository(store),
	}
}

func NewPostgresRepositories(db *sqlx.DB) *Repositories {
	base := postgres.NewBaseRepository(db)
	return &Repositories{
		Tx:           base,
		Pinger:       base,
		Patients:     postgres.NewPatientRepository(base),
		Appointments: postgres.NewAppointmentRepository(base),
		Payments:     postgres.NewPaymentRepository(base),
		Notes:        postgres.NewSessionNoteRepository(base),
		Outbox:       postgres.NewOutboxRepository(base),
	}
}

type Services struct {
	Patients     *patientService.Service
	Appointments *appointmentService.Service
	Payments     *paymentService.Service
	Notes        *sessionNoteService.Service
}

func NewServices(cfg *config.Config, repos *Repositories, m *metrics.Metrics, log *logger.Logger) *Services {
	events := eventService.NewService(repos.Outbox)
	// Invalidation is per process, so replicated deployments set the TTL to 0.
	var stats *cache.Cache
	if cfg.Cache.StatisticsTTL > 0 {
		stats = cache.New(cfg.Cache.StatisticsTTL, cfg.Cache.CleanupInterval)
	}

	payments := paymentService.NewService(
		repos.Tx,
		repos.Payments,
		repos.Appointments,
		repos.Patients,
		events,
		stats,
		receipt.NewRenderer(cfg.Practice.Name),
		m,
		log.WithFields(map[string]interface{}{"component": "payments"}),
	)

	return &Services{
		Patients: patientService.NewService(repos.Tx, repos.Patients, repos.Appointments, repos.Payments,
			events, payments, log.WithFields(map[string]interface{}{"component": "patients"})),
		Appointments: appointmentService.NewService(
			repos.Tx,
			repos.Appointments,
			repos.Patients,
			repos.Notes,
			events,
			m,
			log.WithFields(map[string]interface{}{"component": "scheduling"}),
		),
		Payments: payments,
		Notes: sessionNoteService.NewService(repos.Tx, repos.Notes, repos.Patients,
			log.WithFields(map[string]interface{}{"component": "session_notes"})),
	}
}

// NewAPI wires the HTTP surface over repos. HTTP metrics are registered on
// registry, which /health/metrics exposes together with m.
func NewAPI(cfg *config.Config, repos *Repositories, registry *promclient.Registry, m *metrics.Metrics, log *logger.Logger) (*router.Router, error) {
	services := NewServices(cfg, repos, m, log)

	var authMiddleware *middleware.AuthMiddleware
	if cfg.Auth.Enabled {
		authMiddleware = middleware.NewAuthMiddleware(auth.NewHMACService(cfg.Auth.Secret, cfg.Auth.Issuer))
	}

	httpMetrics := prometheus.New(registry, MetricsNamespace)

	return router.NewRouter(
		cfg,
		authMiddleware,
		health.NewHandler(repos.Pinger, httpMetrics.Handler()),
		httpMetrics,
		patientHandler.NewHandler(services.Patients, services.Payments),
		appointmentHandler.NewHandler(services.Appointments),
		sessionNoteHandler.NewHandler(services.Notes),
		paymentHandler.NewHandler(services.Payments),
	)
}
