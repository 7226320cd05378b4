package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/gerainchan/perfume-shop/internal/models"
	"github.com/gerainchan/perfume-shop/internal/service"
)

func (h *OrderHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(event["orderID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

func (h *PaymentHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(event["orderID"]), event); err != nil {
		c.Logger().Errorf("Kafka publish error: %v", err)
	}
}

// findOrder loads an order scoped to the caller: admins see every order,
// buyers only their own.
func findOrder(tx *gorm.DB, c echo.Context, id int) (*models.Order, error) {
	q := tx.Model(&models.Order{})
	if !service.IsAdmin(c) {
		userID, err := service.UserID(c)
		if err != nil {
			return nil, err
		}
		q = q.Where("user_id = ?", userID)
	}

	var order models.Order
	if err := q.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// snapshot reloads the order with items and payment for the response body.
func (h *OrderHandler) snapshot(orderID uint) (*models.Order, error) {
	var order models.Order
	err := h.DB.
		Preload("Items").
		Preload("Payment").
		First(&order, orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// setStatus moves the order between two known statuses with a single
// conditional UPDATE, so a racing transition on the same order loses cleanly
// instead of overwriting.
func setStatus(tx *gorm.DB, orderID uint, from, to models.OrderStatus) (bool, error) {
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// newTransactionID synthesizes a transaction id unique per order, e.g.
// PAY-20240131094512-42.
func newTransactionID(prefix string, orderID uint) string {
	return fmt.Sprintf("%s-%s-%d", prefix, time.Now().Format("20060102150405"), orderID)
}

func transitionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrCannotBePaid),
		errors.Is(err, ErrCannotBeCancelled),
		errors.Is(err, ErrCannotBeShipped),
		errors.Is(err, ErrCannotBeDelivered),
		errors.Is(err, ErrCannotBeCompleted),
		errors.Is(err, ErrInvalidMethod),
		errors.Is(err, ErrNoPayment),
		errors.Is(err, ErrPaymentNotReady):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	default:
		return err
	}
}
