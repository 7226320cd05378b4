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

type OrderHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

type orderItemRequest struct {
	ProductID uint `json:"product_id"`
	Quantity  uint `json:"quantity"`
}

type createOrderRequest struct {
	Fullname string             `json:"fullname"`
	Phone    string             `json:"phone"`
	Line1    string             `json:"line1"`
	Line2    string             `json:"line2"`
	Postcode string             `json:"postcode"`
	City     string             `json:"city"`
	State    string             `json:"state"`
	Country  string             `json:"country"`
	Items    []orderItemRequest `json:"items"`
}

func (r *createOrderRequest) validate() error {
	required := map[string]string{
		"fullname": r.Fullname,
		"phone":    r.Phone,
		"line1":    r.Line1,
		"postcode": r.Postcode,
		"city":     r.City,
		"state":    r.State,
		"country":  r.Country,
	}
	for field, v := range required {
		if v == "" {
			return errors.New(field + " is required")
		}
	}
	if len(r.Items) == 0 {
		return errors.New("items required")
	}
	for _, it := range r.Items {
		if it.ProductID == 0 {
			return errors.New("product_id required")
		}
		if it.Quantity == 0 {
			return errors.New("quantity must be > 0")
		}
	}
	return nil
}

// CreateOrder checks out a list of items: every line decrements product stock
// with a single conditional UPDATE, captures the current unit price and adds
// into the total. Any shortfall rolls the whole transaction back.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.create")

	userID, err := service.UserID(c)
	if err != nil {
		return err
	}

	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var orderID uint
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		order := models.Order{
			UserID:   userID,
			Status:   models.OrderToPay,
			Total:    decimal.Zero,
			Fullname: req.Fullname,
			Phone:    req.Phone,
			Line1:    req.Line1,
			Line2:    req.Line2,
			Postcode: req.Postcode,
			City:     req.City,
			State:    req.State,
			Country:  req.Country,
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		total := decimal.Zero
		for _, it := range req.Items {
			var p models.Product
			if err := tx.First(&p, it.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return echo.NewHTTPError(http.StatusBadRequest, "product not found")
				}
				return err
			}

			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", it.ProductID, it.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return &InsufficientStockError{Product: p.Name, Remaining: p.Stock}
			}

			item := models.OrderItem{
				OrderID:   order.ID,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				Price:     p.Price,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}

		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("total", total).Error; err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	if txErr != nil {
		var stockErr *InsufficientStockError
		if errors.As(txErr, &stockErr) {
			l.Warn("create_order_rejected", "reason", "insufficient_stock", "product", stockErr.Product)
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": stockErr.Error()})
		}
		if he, ok := txErr.(*echo.HTTPError); ok {
			return he
		}
		l.Error("create_order_failed", "error", txErr)
		return echo.NewHTTPError(http.StatusInternalServerError, txErr.Error())
	}

	snap, err := h.snapshot(orderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	l.Info("order_created", "orderID", orderID)
	h.publish(c, map[string]any{
		"type":    "order_created",
		"orderID": orderID,
		"userID":  userID,
		"total":   snap.Total,
	})
	return c.JSON(http.StatusCreated, snap)
}

func (h *OrderHandler) ListOrders(c echo.Context) error {
	q := h.DB.Model(&models.Order{}).
		Preload("Items").
		Preload("Payment").
		Order("created_at DESC")
	if !service.IsAdmin(c) {
		userID, err := service.UserID(c)
		if err != nil {
			return err
		}
		q = q.Where("user_id = ?", userID)
	}

	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	order, err := findOrder(h.DB.Preload("Items").Preload("Payment"), c, id)
	if err != nil {
		return transitionError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

type payRequest struct {
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
	// Success is strictly boolean; a missing field means a successful charge.
	Success *bool `json:"success"`
}

// Pay moves TO_PAY -> TO_SHIP on a successful charge. The order's single
// Payment row is created on first attempt and reused on retries; a declared
// failure marks it FAILED and leaves the order payable. Both branches commit.
func (h *OrderHandler) Pay(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.pay")

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req payRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	success := req.Success == nil || *req.Success

	var orderID uint
	failed := false
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		order, err := findOrder(tx, c, id)
		if err != nil {
			return err
		}
		if order.Status != models.OrderToPay {
			return ErrCannotBePaid
		}

		method := models.PaymentMethod(req.Method)
		if !method.IsBuyerInitiated() {
			return ErrInvalidMethod
		}

		var payment models.Payment
		err = tx.Where("order_id = ?", order.ID).First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			payment = models.Payment{
				OrderID: order.ID,
				Method:  method,
				Amount:  order.Total,
				Status:  models.PaymentPending,
			}
			if err := tx.Create(&payment).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		payment.Method = method
		payment.Amount = order.Total
		if req.TransactionID != "" {
			payment.TransactionID = req.TransactionID
		}

		if !success {
			payment.Status = models.PaymentFailed
			if err := tx.Save(&payment).Error; err != nil {
				return err
			}
			// Order stays TO_PAY so the buyer can retry.
			failed = true
			orderID = order.ID
			return nil
		}

		payment.Status = models.PaymentSuccess
		if payment.TransactionID == "" {
			payment.TransactionID = newTransactionID("PAY", order.ID)
		}
		if err := tx.Save(&payment).Error; err != nil {
			return err
		}

		next, _ := models.NextStatus(models.TransitionPay, order.Status)
		ok, err := setStatus(tx, order.ID, order.Status, next)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCannotBePaid
		}
		orderID = order.ID
		return nil
	})
	if txErr != nil {
		l.Warn("pay_rejected", "orderID", id, "error", txErr)
		return transitionError(c, txErr)
	}

	snap, err := h.snapshot(orderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if failed {
		l.Warn("payment_failed", "orderID", orderID)
		h.publish(c, map[string]any{
			"type":    "order_payment_failed",
			"orderID": orderID,
			"userID":  snap.UserID,
		})
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "Payment failed.", "order": snap})
	}

	l.Info("order_paid", "orderID", orderID)
	h.publish(c, map[string]any{
		"type":    "order_paid",
		"orderID": orderID,
		"userID":  snap.UserID,
		"status":  snap.Status,
	})
	return c.JSON(http.StatusOK, snap)
}

// Cancel restocks every line with an atomic increment and cancels an active
// payment. Only TO_PAY and TO_SHIP orders can be cancelled.
func (h *OrderHandler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.cancel")

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var orderID uint
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		order, err := findOrder(tx, c, id)
		if err != nil {
			return err
		}

		next, legal := models.NextStatus(models.TransitionCancel, order.Status)
		if !legal {
			return ErrCannotBeCancelled
		}
		ok, err := setStatus(tx, order.ID, order.Status, next)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCannotBeCancelled
		}

		var items []models.OrderItem
		if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.Model(&models.Product{}).
				Where("id = ?", item.ProductID).
				UpdateColumn("stock", gorm.Expr("stock + ?", item.Quantity)).Error; err != nil {
				return err
			}
		}

		var payment models.Payment
		err = tx.Where("order_id = ?", order.ID).First(&payment).Error
		if err == nil {
			if payment.Status == models.PaymentPending || payment.Status == models.PaymentSuccess {
				if err := tx.Model(&payment).Update("status", models.PaymentCancelled).Error; err != nil {
					return err
				}
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		orderID = order.ID
		return nil
	})
	if txErr != nil {
		l.Warn("cancel_rejected", "orderID", id, "error", txErr)
		return transitionError(c, txErr)
	}

	snap, err := h.snapshot(orderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	l.Info("order_cancelled", "orderID", orderID)
	h.publish(c, map[string]any{
		"type":    "order_cancelled",
		"orderID": orderID,
		"userID":  snap.UserID,
	})
	return c.JSON(http.StatusOK, snap)
}

// Ship is admin-only (enforced by the route group). A COD order ships with a
// pending payment; anything else needs a successful one.
func (h *OrderHandler) Ship(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.ship")

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	order, err := findOrder(h.DB, c, id)
	if err != nil {
		return transitionError(c, err)
	}

	next, legal := models.NextStatus(models.TransitionShip, order.Status)
	if !legal {
		return transitionError(c, ErrCannotBeShipped)
	}

	var payment models.Payment
	if err := h.DB.Where("order_id = ?", order.ID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return transitionError(c, ErrNoPayment)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if payment.Method != models.MethodCOD && payment.Status != models.PaymentSuccess {
		return transitionError(c, ErrPaymentNotReady)
	}

	ok, err := setStatus(h.DB, order.ID, order.Status, next)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return transitionError(c, ErrCannotBeShipped)
	}

	snap, err := h.snapshot(order.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	l.Info("order_shipped", "orderID", order.ID)
	h.publish(c, map[string]any{
		"type":    "order_shipped",
		"orderID": order.ID,
		"userID":  snap.UserID,
	})
	return c.JSON(http.StatusOK, snap)
}

// Deliver moves TO_RECEIVE -> TO_RATE. This is the only place a COD payment
// turns SUCCESS: delivery is its confirmation.
func (h *OrderHandler) Deliver(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.deliver")

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var orderID uint
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		order, err := findOrder(tx, c, id)
		if err != nil {
			return err
		}

		next, legal := models.NextStatus(models.TransitionDeliver, order.Status)
		if !legal {
			return ErrCannotBeDelivered
		}
		ok, err := setStatus(tx, order.ID, order.Status, next)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCannotBeDelivered
		}

		var payment models.Payment
		err = tx.Where("order_id = ?", order.ID).First(&payment).Error
		if err == nil {
			if payment.Method == models.MethodCOD && payment.Status != models.PaymentSuccess {
				payment.Status = models.PaymentSuccess
				if payment.TransactionID == "" {
					payment.TransactionID = newTransactionID("COD", order.ID)
				}
				if err := tx.Save(&payment).Error; err != nil {
					return err
				}
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		orderID = order.ID
		return nil
	})
	if txErr != nil {
		l.Warn("deliver_rejected", "orderID", id, "error", txErr)
		return transitionError(c, txErr)
	}

	snap, err := h.snapshot(orderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	l.Info("order_delivered", "orderID", orderID)
	h.publish(c, map[string]any{
		"type":    "order_delivered",
		"orderID": orderID,
		"userID":  snap.UserID,
	})
	return c.JSON(http.StatusOK, snap)
}

// Complete moves TO_RATE -> COMPLETED, the terminal state.
func (h *OrderHandler) Complete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.complete")

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	order, err := findOrder(h.DB, c, id)
	if err != nil {
		return transitionError(c, err)
	}

	next, legal := models.NextStatus(models.TransitionComplete, order.Status)
	if !legal {
		return transitionError(c, ErrCannotBeCompleted)
	}
	ok, err := setStatus(h.DB, order.ID, order.Status, next)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return transitionError(c, ErrCannotBeCompleted)
	}

	snap, err := h.snapshot(order.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	l.Info("order_completed", "orderID", order.ID)
	h.publish(c, map[string]any{
		"type":    "order_completed",
		"orderID": order.ID,
		"userID":  snap.UserID,
	})
	return c.JSON(http.StatusOK, snap)
}
