package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/scribbletales/storypay/controllers"
	"github.com/scribbletales/storypay/middleware"
	"github.com/scribbletales/storypay/utils"
)

// SetupRouter initializes and returns the Gin router with all routes
func SetupRouter(payments *controllers.PaymentController) *gin.Engine {
	router := gin.New()

	router.Use(utils.LoggerMiddleware())
	router.Use(utils.CORSMiddleware())
	router.Use(utils.RecoveryMiddleware())
	router.Use(utils.RequestIDMiddleware())
	router.Use(utils.SecurityHeadersMiddleware())

	// API version group
	api := router.Group("/v1")
	{
		pay := api.Group("/payments")
		{
			pay.POST("/orders", payments.CreateOrder)
			pay.POST("/verify", payments.VerifyPayment)
			// The webhook authenticates itself through its signature, so
			// it stays outside any auth middleware.
			pay.POST("/webhook", payments.Webhook)
			pay.GET("/receipt/:razorpay_order_id", controllers.DownloadReceipt)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/login", controllers.AdminLogin)

			protected := admin.Group("")
			protected.Use(middleware.AdminAuthMiddleware())
			{
				protected.GET("/orders", controllers.ListOrders)
				protected.GET("/orders/:razorpay_order_id/attempts", controllers.ListPaymentAttempts)
				protected.GET("/anomalies", controllers.ListAnomalies)
				protected.GET("/reconciliation/excel", controllers.DownloadReconciliationExcel)
			}
		}
	}

	return router
}
