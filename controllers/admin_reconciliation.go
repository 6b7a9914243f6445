package controllers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scribbletales/storypay/config"
	"github.com/scribbletales/storypay/models"
	"github.com/scribbletales/storypay/utils"
	"github.com/tealeg/xlsx"
)

// ListOrders returns orders for the reconciliation dashboard, optionally
// filtered by status
func ListOrders(c *gin.Context) {
	utils.LogInfo("ListOrders called")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	status := c.Query("status")

	query := config.DB.Model(&models.Order{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.LogError("ListOrders: failed to count orders: %v", err)
		utils.InternalServerError(c, "Failed to fetch orders", nil)
		return
	}

	var orders []models.Order
	if err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&orders).Error; err != nil {
		utils.LogError("ListOrders: failed to fetch orders: %v", err)
		utils.InternalServerError(c, "Failed to fetch orders", nil)
		return
	}

	utils.LogInfo("ListOrders: returning %d of %d orders", len(orders), total)
	utils.SuccessWithPagination(c, "Orders retrieved successfully", orders, total, page, perPage)
}

// ListAnomalies returns webhook events that were flagged for operator
// review
func ListAnomalies(c *gin.Context) {
	utils.LogInfo("ListAnomalies called")

	var events []models.WebhookEvent
	if err := config.DB.Where("processing_error <> ''").
		Order("created_at DESC").Limit(200).
		Find(&events).Error; err != nil {
		utils.LogError("ListAnomalies: failed to fetch anomalies: %v", err)
		utils.InternalServerError(c, "Failed to fetch anomalies", nil)
		return
	}

	utils.Success(c, "Anomalies retrieved successfully", gin.H{
		"count":     len(events),
		"anomalies": events,
	})
}

// ListPaymentAttempts returns the audit trail for a gateway order
func ListPaymentAttempts(c *gin.Context) {
	utils.LogInfo("ListPaymentAttempts called")

	razorpayOrderID := c.Param("razorpay_order_id")
	if razorpayOrderID == "" {
		utils.BadRequest(c, "razorpay_order_id is required", nil)
		return
	}

	var attempts []models.PaymentAttempt
	if err := config.DB.Where("razorpay_order_id = ?", razorpayOrderID).
		Order("created_at ASC").Find(&attempts).Error; err != nil {
		utils.LogError("ListPaymentAttempts: failed to fetch attempts for %s: %v", razorpayOrderID, err)
		utils.InternalServerError(c, "Failed to fetch payment attempts", nil)
		return
	}

	utils.Success(c, "Payment attempts retrieved successfully", gin.H{
		"razorpay_order_id": razorpayOrderID,
		"attempts":          attempts,
	})
}

// DownloadReconciliationExcel exports orders in the selected period as an
// Excel sheet for offline reconciliation against gateway settlement reports
func DownloadReconciliationExcel(c *gin.Context) {
	utils.LogInfo("DownloadReconciliationExcel called")

	period := c.DefaultQuery("period", "day")
	utils.LogDebug("Generating Excel report for period: %s", period)

	now := time.Now()
	var startDate time.Time
	switch period {
	case "day":
		startDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case "week":
		startDate = now.AddDate(0, 0, -7)
	case "month":
		startDate = now.AddDate(0, -1, 0)
	default:
		utils.LogError("Invalid period specified: %s", period)
		utils.BadRequest(c, "Invalid period", "Period must be day, week, or month")
		return
	}

	var orders []models.Order
	if err := config.DB.Where("created_at >= ?", startDate).
		Order("created_at DESC").Find(&orders).Error; err != nil {
		utils.LogError("Failed to fetch orders for report: %v", err)
		utils.InternalServerError(c, "Failed to fetch orders", nil)
		return
	}
	utils.LogDebug("Retrieved %d orders for Excel report", len(orders))

	var summary struct {
		TotalOrders    int
		PaidOrders     int
		FailedOrders   int
		RefundedOrders int
		GrossPaise     int64
		RefundedPaise  int64
	}
	for _, order := range orders {
		summary.TotalOrders++
		switch order.Status {
		case models.OrderStatusPaid:
			summary.PaidOrders++
			summary.GrossPaise += order.Amount
		case models.OrderStatusPaymentFailed:
			summary.FailedOrders++
		case models.OrderStatusRefunded:
			summary.RefundedOrders++
			summary.GrossPaise += order.Amount
			summary.RefundedPaise += order.RefundAmount
		}
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Reconciliation")
	if err != nil {
		utils.LogError("Failed to create Excel sheet: %v", err)
		utils.InternalServerError(c, "Failed to generate report", nil)
		return
	}

	header := sheet.AddRow()
	for _, title := range []string{"Order ID", "Gateway Order ID", "Receipt", "Amount (paise)", "Currency", "Status", "Payment Status", "Payment ID", "Failure Code", "Refund ID", "Created At", "Paid At"} {
		header.AddCell().Value = title
	}

	for _, order := range orders {
		row := sheet.AddRow()
		row.AddCell().Value = strconv.FormatUint(uint64(order.ID), 10)
		row.AddCell().Value = order.RazorpayOrderID
		row.AddCell().Value = order.Receipt
		row.AddCell().Value = strconv.FormatInt(order.Amount, 10)
		row.AddCell().Value = order.Currency
		row.AddCell().Value = order.Status
		row.AddCell().Value = order.PaymentStatus
		row.AddCell().Value = order.RazorpayPaymentID
		row.AddCell().Value = order.FailureCode
		row.AddCell().Value = order.RefundID
		row.AddCell().Value = order.CreatedAt.Format("2006-01-02 15:04:05")
		if order.PaidAt != nil {
			row.AddCell().Value = order.PaidAt.Format("2006-01-02 15:04:05")
		} else {
			row.AddCell().Value = ""
		}
	}

	sheet.AddRow()
	summaryRow := sheet.AddRow()
	summaryRow.AddCell().Value = fmt.Sprintf("Total: %d, Paid: %d, Failed: %d, Refunded: %d, Gross: %d paise, Refunded: %d paise",
		summary.TotalOrders, summary.PaidOrders, summary.FailedOrders, summary.RefundedOrders, summary.GrossPaise, summary.RefundedPaise)

	filename := fmt.Sprintf("reconciliation-%s-%s.xlsx", period, now.Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := file.Write(c.Writer); err != nil {
		utils.LogError("Failed to write Excel report: %v", err)
	}
	utils.LogInfo("Excel reconciliation report generated for period: %s", period)
}
