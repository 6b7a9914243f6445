package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jung-kurt/gofpdf"
	"github.com/scribbletales/storypay/config"
	"github.com/scribbletales/storypay/models"
	"github.com/scribbletales/storypay/utils"
)

// DownloadReceipt generates and returns a PDF payment receipt for a paid
// order
func DownloadReceipt(c *gin.Context) {
	utils.LogInfo("Starting receipt download process")

	razorpayOrderID := c.Param("razorpay_order_id")
	if razorpayOrderID == "" {
		utils.BadRequest(c, "razorpay_order_id is required", nil)
		return
	}
	utils.LogInfo("Processing receipt download for gateway order: %s", razorpayOrderID)

	var order models.Order
	if err := config.DB.Where("razorpay_order_id = ?", razorpayOrderID).First(&order).Error; err != nil {
		utils.LogError("Order not found for receipt download - Gateway order: %s", razorpayOrderID)
		utils.NotFound(c, "Order not found")
		return
	}

	if order.Status != models.OrderStatusPaid && order.Status != models.OrderStatusRefunded {
		utils.LogError("Receipt requested for unpaid order %d (status: %s)", order.ID, order.Status)
		utils.BadRequest(c, "Receipts are only available for paid orders", nil)
		return
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	// Store info
	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(100, 10, "ScribbleTales")
	pdf.SetFont("Arial", "", 12)
	pdf.Ln(8)
	pdf.Cell(100, 8, "Turning little artists into published authors")
	pdf.Ln(8)
	pdf.Cell(100, 8, "Email: support@scribbletales.in | Phone: +91-98765-43210")
	pdf.Ln(12)

	// Receipt title and order info
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(100, 10, "PAYMENT RECEIPT")
	pdf.Ln(12)
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(60, 8, "Order ID: "+strconv.Itoa(int(order.ID)))
	pdf.Cell(80, 8, "Order Date: "+order.CreatedAt.Format("2006-01-02 15:04:05"))
	pdf.Ln(8)
	pdf.Cell(60, 8, "Gateway Order: "+order.RazorpayOrderID)
	pdf.Cell(80, 8, "Receipt: "+order.Receipt)
	pdf.Ln(8)
	pdf.Cell(60, 8, "Payment ID: "+order.RazorpayPaymentID)
	pdf.Cell(80, 8, "Status: "+order.Status)
	pdf.Ln(12)

	// Amounts
	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(100, 8, "Payment Details")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(100, 8, fmt.Sprintf("Amount Paid: %s %.2f", order.Currency, float64(order.Amount)/100))
	pdf.Ln(6)
	if order.PaidAt != nil {
		pdf.Cell(100, 8, "Paid At: "+order.PaidAt.Format("2006-01-02 15:04:05"))
		pdf.Ln(6)
	}
	if order.Status == models.OrderStatusRefunded {
		pdf.Cell(100, 8, fmt.Sprintf("Refunded: %s %.2f (ref %s)", order.Currency, float64(order.RefundAmount)/100, order.RefundID))
		pdf.Ln(6)
		if order.RefundedAt != nil {
			pdf.Cell(100, 8, "Refunded At: "+order.RefundedAt.Format("2006-01-02 15:04:05"))
			pdf.Ln(6)
		}
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 10)
	pdf.Cell(100, 8, "Thank you for bringing your child's story to life with ScribbleTales.")

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=receipt-%d.pdf", order.ID))
	c.Header("Content-Type", "application/pdf")
	if err := pdf.Output(c.Writer); err != nil {
		utils.LogError("Failed to generate receipt PDF for order %d: %v", order.ID, err)
		c.Status(http.StatusInternalServerError)
		return
	}
	utils.LogInfo("Receipt PDF generated for order %d", order.ID)
}
