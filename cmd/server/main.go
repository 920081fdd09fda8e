package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	"github.com/walletmaster/backend/internal/advisor"
	"github.com/walletmaster/backend/internal/database"
	"github.com/walletmaster/backend/internal/gateway"
	"github.com/walletmaster/backend/internal/handlers"
	mW "github.com/walletmaster/backend/internal/middleware"
	"github.com/walletmaster/backend/internal/services"
	"github.com/walletmaster/backend/internal/store"
)

func initConfig() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.ReadInConfig()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("storage.backend", "STORAGE_BACKEND")
	viper.BindEnv("payment.gateway", "PAYMENT_GATEWAY")
	viper.BindEnv("payment.currency", "PAYMENT_CURRENCY")
	viper.BindEnv("payment.stripe_secret_key", "STRIPE_SECRET_KEY")
	viper.BindEnv("payment.paypal_client_id", "PAYPAL_CLIENT_ID")
	viper.BindEnv("payment.paypal_client_secret", "PAYPAL_CLIENT_SECRET")
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("static.dir", "STATIC_DIR")

	viper.SetDefault("jwt.secret_key", "development-secret-change-me")
	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	viper.SetDefault("storage.backend", "memory")
	viper.SetDefault("payment.gateway", "mock")
	viper.SetDefault("static.dir", "./dist/public")
}

// initStore picks the persistence backend. The in-memory store is the
// default; postgres is opt-in via STORAGE_BACKEND=postgres.
func initStore() store.Store {
	if viper.GetString("storage.backend") != "postgres" {
		log.Println("[STORE] Using in-memory store")
		return store.NewMemoryStore()
	}

	pg, err := store.OpenPostgres()
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	if err := pg.Seed(context.Background()); err != nil {
		log.Fatalf("Failed to seed categories: %v", err)
	}
	return pg
}

func initGateways() *gateway.Registry {
	defaultID := viper.GetString("payment.gateway")
	registry := gateway.NewRegistry(defaultID,
		gateway.NewMockGateway(),
		gateway.NewStripeGateway(),
		gateway.NewPayPalGateway(),
	)
	if _, err := registry.Default(); err != nil {
		log.Fatalf("Unknown payment gateway %q", defaultID)
	}
	log.Printf("[PAYMENT] Active gateway: %s", defaultID)
	return registry
}

func main() {
	initConfig()

	st := initStore()
	if pg, ok := st.(*store.PostgresStore); ok {
		defer pg.Close()
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	gateways := initGateways()

	authService := services.NewAuthService(st, redisClient)
	paymentService := services.NewPaymentService(st, gateways)
	advisorService := services.NewAdvisorService(st, advisor.NewClient(), redisClient)

	paymentHandler := handlers.NewPaymentHandler(paymentService, gateways)
	cardHandler := handlers.NewCardHandler(st)
	transactionHandler := handlers.NewTransactionHandler(st)
	categoryHandler := handlers.NewCategoryHandler(st)
	budgetHandler := handlers.NewBudgetHandler(st)
	goalHandler := handlers.NewGoalHandler(st)
	userHandler := handlers.NewUserHandler(st)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(mW.Metrics)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Get("/categories", categoryHandler.List)

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware(redisClient))

			r.Get("/auth/account", authService.GetUserAccount)
			r.Get("/users/find", userHandler.Find)

			r.Get("/cards", cardHandler.List)
			r.Post("/cards", cardHandler.Create)
			r.Put("/cards/{id}", cardHandler.Update)
			r.Delete("/cards/{id}", cardHandler.Delete)

			r.Get("/transactions", transactionHandler.List)
			r.Post("/transactions", transactionHandler.Create)

			r.Get("/budgets", budgetHandler.List)
			r.Post("/budgets", budgetHandler.Create)
			r.Put("/budgets/{id}", budgetHandler.Update)
			r.Delete("/budgets/{id}", budgetHandler.Delete)

			r.Get("/savings-goals", goalHandler.List)
			r.Post("/savings-goals", goalHandler.Create)
			r.Put("/savings-goals/{id}", goalHandler.Update)
			r.Delete("/savings-goals/{id}", goalHandler.Delete)

			r.Post("/payments/create-intent", paymentHandler.CreateIntent)
			r.Post("/payments/add-funds", paymentHandler.AddFunds)
			r.Post("/payments/pay-utility", paymentHandler.PayUtility)
			r.Post("/payments/transfer", paymentHandler.Transfer)
			r.Get("/payments/gateways", paymentHandler.ListGateways)

			r.Post("/ai/chat", advisorService.Chat)
			r.Get("/ai/messages", advisorService.History)
			r.Get("/ai/insights", advisorService.Insights)
			r.Get("/ai/spending-analysis", advisorService.SpendingAnalysis)
		})
	})

	// Anything that is not an API route serves the built web client
	r.NotFound(mW.SPAFileServer(viper.GetString("static.dir")).ServeHTTP)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
