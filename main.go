package main

import (
	"log"

	"github.com/scribbletales/storypay/alerts"
	"github.com/scribbletales/storypay/config"
	"github.com/scribbletales/storypay/controllers"
	"github.com/scribbletales/storypay/gateway"
	"github.com/scribbletales/storypay/reconcile"
	"github.com/scribbletales/storypay/routes"
	"github.com/scribbletales/storypay/store"
	"github.com/scribbletales/storypay/utils"
)

func main() {
	// Initialize logger
	if err := utils.InitLogger(); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	// Load environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("Error loading config: %v", err)
		log.Fatal("Error loading config:", err)
	}

	// Initialize database
	config.InitDB()

	// Create the initial operator account
	if err := controllers.CreateSampleAdmin(); err != nil {
		utils.LogError("Failed to create sample admin: %v", err)
		log.Fatal("Failed to create sample admin:", err)
	}

	// Wire the reconciliation core: one gateway client and one service for
	// the whole process, injected into the transport layer.
	gatewayClient := gateway.NewRazorpayClient(cfg.RazorpayKey, cfg.RazorpaySecret)
	orderStore := store.NewOrderStore(config.DB)
	eventStore := store.NewWebhookEventStore(config.DB)

	var alerter reconcile.Alerter
	if mailer := alerts.NewMailer(cfg); mailer != nil {
		alerter = mailer
	}

	service := reconcile.NewService(orderStore, eventStore, gatewayClient, alerter, reconcile.ServiceConfig{
		PaymentSecret:      cfg.RazorpaySecret,
		WebhookSecret:      cfg.RazorpayWebhookSecret,
		VerifyFetchPayment: cfg.VerifyFetchPayment,
	})

	payments := controllers.NewPaymentController(service, !cfg.IsProduction())

	// Set up router
	router := routes.SetupRouter(payments)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	utils.LogInfo("Server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		utils.LogError("Error starting server: %v", err)
		log.Fatal("Error starting server:", err)
	}
}
