package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/gerainchan/perfume-shop/internal/logging"
	"github.com/gerainchan/perfume-shop/internal/models"
	"github.com/gerainchan/perfume-shop/internal/mykafka"
	"github.com/gerainchan/perfume-shop/internal/service"
)

type PaymentHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

// CreatePayment is the direct creation path, used to attach a payment record
// before shipping (this is how COD is chosen at checkout). Amount and status
// are server-controlled; the one-payment-per-order rule is enforced here and
// by the unique index underneath.
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.create")

	userID, err := service.UserID(c)
	if err != nil {
		return err
	}

	var req struct {
		OrderID uint   `json:"order_id"`
		Method  string `json:"method"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	method := models.PaymentMethod(req.Method)
	if !method.IsValid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid method"})
	}

	var payment models.Payment
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.First(&order, req.OrderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if order.UserID != userID && !service.IsAdmin(c) {
			return ErrForbidden
		}

		var existing models.Payment
		err := tx.Where("order_id = ?", order.ID).First(&existing).Error
		if err == nil {
			return &DuplicatePaymentError{OrderID: order.ID}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		payment = models.Payment{
			OrderID: order.ID,
			Method:  method,
			Amount:  order.Total,
			Status:  models.PaymentPending,
		}
		return tx.Create(&payment).Error
	})
	if txErr != nil {
		var dup *DuplicatePaymentError
		switch {
		case errors.As(txErr, &dup):
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": dup.Error()})
		case errors.Is(txErr, ErrOrderNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		case errors.Is(txErr, ErrForbidden):
			return c.JSON(http.StatusForbidden, echo.Map{"detail": "You cannot create a payment for this order."})
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, txErr.Error())
		}
	}

	l.Info("payment_created", "paymentID", payment.ID, "orderID", payment.OrderID)
	h.publish(c, map[string]any{
		"type":      "payment_created",
		"paymentID": payment.ID,
		"orderID":   payment.OrderID,
		"method":    payment.Method,
	})
	return c.JSON(http.StatusCreated, payment)
}

func (h *PaymentHandler) ListPayments(c echo.Context) error {
	q := h.DB.Model(&models.Payment{}).Order("payments.created_at DESC")
	if !service.IsAdmin(c) {
		userID, err := service.UserID(c)
		if err != nil {
			return err
		}
		q = q.Joins("JOIN orders ON orders.id = payments.order_id").
			Where("orders.user_id = ?", userID)
	}

	var payments []models.Payment
	if err := q.Find(&payments).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, payments)
}

type adminPaymentRequest struct {
	Status        *string          `json:"status"`
	Method        *string          `json:"method"`
	TransactionID *string          `json:"transaction_id"`
	Amount        *decimal.Decimal `json:"amount"`
}

// AdminUpdatePayment edits payment fields directly, bypassing the buyer
// transitions, and keeps the order consistent for non-terminal orders:
//
//   - SUCCESS (non-COD) + order TO_PAY         -> order TO_SHIP
//   - FAILED + order not TO_PAY/CANCELLED      -> order back to TO_PAY
//   - CANCELLED / PENDING                      -> order untouched
func (h *PaymentHandler) AdminUpdatePayment(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.admin_update")

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req adminPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	var payment models.Payment
	var order models.Order
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&payment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}

		newStatus := payment.Status
		if req.Status != nil {
			newStatus = models.PaymentStatus(*req.Status)
		}
		newMethod := payment.Method
		if req.Method != nil {
			newMethod = models.PaymentMethod(*req.Method)
		}
		if !newStatus.IsValid() {
			return errInvalidStatusValue
		}
		if !newMethod.IsValid() {
			return errInvalidMethodValue
		}

		payment.Status = newStatus
		payment.Method = newMethod
		if req.TransactionID != nil {
			payment.TransactionID = *req.TransactionID
		}
		if req.Amount != nil {
			payment.Amount = *req.Amount
		}
		if err := tx.Save(&payment).Error; err != nil {
			return err
		}

		if err := tx.First(&order, payment.OrderID).Error; err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return nil
		}

		switch newStatus {
		case models.PaymentSuccess:
			if payment.Method != models.MethodCOD && order.Status == models.OrderToPay {
				if _, err := setStatus(tx, order.ID, order.Status, models.OrderToShip); err != nil {
					return err
				}
				order.Status = models.OrderToShip
			}
		case models.PaymentFailed:
			if order.Status != models.OrderToPay && order.Status != models.OrderCancelled {
				if err := tx.Model(&models.Order{}).
					Where("id = ?", order.ID).
					Update("status", models.OrderToPay).Error; err != nil {
					return err
				}
				order.Status = models.OrderToPay
			}
		}
		// CANCELLED and PENDING leave the order as-is.
		return nil
	})
	if txErr != nil {
		switch {
		case errors.Is(txErr, ErrPaymentNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "payment not found")
		case errors.Is(txErr, errInvalidStatusValue):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid status"})
		case errors.Is(txErr, errInvalidMethodValue):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid method"})
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, txErr.Error())
		}
	}

	l.Info("payment_updated", "paymentID", payment.ID, "status", payment.Status)
	h.publish(c, map[string]any{
		"type":      "payment_updated",
		"paymentID": payment.ID,
		"orderID":   payment.OrderID,
		"status":    payment.Status,
	})
	return c.JSON(http.StatusOK, echo.Map{"payment": payment, "order_status": order.Status})
}

// AdminDeletePayment removes the record without touching the order.
func (h *PaymentHandler) AdminDeletePayment(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.DB.Delete(&models.Payment{}, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
