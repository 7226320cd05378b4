package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/gerainchan/perfume-shop/internal/models"
)

func initTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
	); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func newCtx(t *testing.T, e *echo.Echo, method, path string, body any, userID uint, role string) (echo.Context, *httptest.ResponseRecorder) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("userID", userID)
	c.Set("role", role)
	return c, rec
}

func withParamID(c echo.Context, id uint) {
	c.SetParamNames("id")
	c.SetParamValues(fmt.Sprint(id))
}

func seedProduct(t *testing.T, db *gorm.DB, name string, price string, stock uint) models.Product {
	p := models.Product{
		Name:     name,
		Category: "eau de parfum",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func checkoutBody(items ...map[string]any) map[string]any {
	return map[string]any{
		"fullname": "Aina Binti Rahim",
		"phone":    "0123456789",
		"line1":    "12 Jalan Melati",
		"postcode": "43650",
		"city":     "Bangi",
		"state":    "Selangor",
		"country":  "MY",
		"items":    items,
	}
}

func createOrder(t *testing.T, h *OrderHandler, e *echo.Echo, userID uint, items ...map[string]any) models.Order {
	c, rec := newCtx(t, e, http.MethodPost, "/orders", checkoutBody(items...), userID, "user")
	require.NoError(t, h.CreateOrder(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	return order
}

func orderStatus(t *testing.T, db *gorm.DB, id uint) models.OrderStatus {
	var order models.Order
	require.NoError(t, db.First(&order, id).Error)
	return order.Status
}

func productStock(t *testing.T, db *gorm.DB, id uint) uint {
	var p models.Product
	require.NoError(t, db.First(&p, id).Error)
	return p.Stock
}

func TestCreateOrderTotalAndStock(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	musk := seedProduct(t, db, "White Musk", "89.90", 5)

	order := createOrder(t, h, e, 1,
		map[string]any{"product_id": rose.ID, "quantity": 2},
		map[string]any{"product_id": musk.ID, "quantity": 1},
	)

	require.Equal(t, models.OrderToPay, order.Status)
	require.True(t, order.Total.Equal(decimal.RequireFromString("330.90")),
		"got total %s", order.Total)
	require.Len(t, order.Items, 2)

	require.Equal(t, uint(8), productStock(t, db, rose.ID))
	require.Equal(t, uint(4), productStock(t, db, musk.ID))
}

func TestCreateOrderPriceSnapshot(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	order := createOrder(t, h, e, 1, map[string]any{"product_id": rose.ID, "quantity": 1})

	require.NoError(t, db.Model(&models.Product{}).
		Where("id = ?", rose.ID).
		Update("price", decimal.RequireFromString("999.99")).Error)

	var item models.OrderItem
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&item).Error)
	require.True(t, item.Price.Equal(decimal.RequireFromString("120.50")))

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, order.ID).Error)
	require.True(t, reloaded.Total.Equal(decimal.RequireFromString("120.50")))
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	musk := seedProduct(t, db, "White Musk", "89.90", 1)

	c, rec := newCtx(t, e, http.MethodPost, "/orders", checkoutBody(
		map[string]any{"product_id": rose.ID, "quantity": 2},
		map[string]any{"product_id": musk.ID, "quantity": 3},
	), 1, "user")
	require.NoError(t, h.CreateOrder(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Not enough stock for White Musk. Remaining: 1", resp["detail"])

	// The whole checkout rolled back: earlier lines restored, nothing persisted.
	require.Equal(t, uint(10), productStock(t, db, rose.ID))
	require.Equal(t, uint(1), productStock(t, db, musk.ID))

	var orders int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orders).Error)
	require.Zero(t, orders)
}

func TestCreateOrderValidation(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}

	body := checkoutBody(map[string]any{"product_id": 1, "quantity": 1})
	body["fullname"] = ""
	c, _ := newCtx(t, e, http.MethodPost, "/orders", body, 1, "user")
	err := h.CreateOrder(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, he.Code)

	c, _ = newCtx(t, e, http.MethodPost, "/orders", checkoutBody(), 1, "user")
	err = h.CreateOrder(c)
	he, ok = err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusBadRequest, he.Code)
}

func TestPaySuccess(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	order := createOrder(t, h, e, 1, map[string]any{"product_id": rose.ID, "quantity": 1})

	c, rec := newCtx(t, e, http.MethodPost, "/orders/1/pay", map[string]any{"method": "CARD"}, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Pay(c))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, models.OrderToShip, orderStatus(t, db, order.ID))

	var payment models.Payment
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&payment).Error)
	require.Equal(t, models.PaymentSuccess, payment.Status)
	require.Equal(t, models.MethodCard, payment.Method)
	require.True(t, payment.Amount.Equal(order.Total))
	require.True(t, strings.HasPrefix(payment.TransactionID, "PAY-"))
}

func TestPayFailureKeepsOrderPayable(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	order := createOrder(t, h, e, 1, map[string]any{"product_id": rose.ID, "quantity": 1})

	fail := false
	c, rec := newCtx(t, e, http.MethodPost, "/orders/1/pay",
		map[string]any{"method": "FPX", "success": &fail}, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Pay(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	var detail string
	require.NoError(t, json.Unmarshal(resp["detail"], &detail))
	require.Equal(t, "Payment failed.", detail)

	// The failed attempt is committed; the order stays payable.
	require.Equal(t, models.OrderToPay, orderStatus(t, db, order.ID))
	var payment models.Payment
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&payment).Error)
	require.Equal(t, models.PaymentFailed, payment.Status)

	// A retry reuses the same payment row and succeeds.
	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/pay", map[string]any{"method": "CARD"}, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Pay(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	require.NoError(t, db.Where("order_id = ?", order.ID).First(&payment).Error)
	require.Equal(t, models.PaymentSuccess, payment.Status)
	require.Equal(t, models.MethodCard, payment.Method)
	require.Equal(t, models.OrderToShip, orderStatus(t, db, order.ID))
}

func TestPayGuards(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	order := createOrder(t, h, e, 1, map[string]any{"product_id": rose.ID, "quantity": 1})

	// COD cannot go through pay.
	c, rec := newCtx(t, e, http.MethodPost, "/orders/1/pay", map[string]any{"method": "COD"}, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Pay(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Invalid or missing payment method.", resp["error"])

	// Missing method.
	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/pay", map[string]any{}, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Pay(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Invalid or missing payment method.", resp["error"])

	// Paying an already paid order.
	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/pay", map[string]any{"method": "CARD"}, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Pay(c))
	require.Equal(t, http.StatusOK, rec.Code)

	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/pay", map[string]any{"method": "CARD"}, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Pay(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Order cannot be paid.", resp["error"])
}

func TestCancelRestocksExactly(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	musk := seedProduct(t, db, "White Musk", "89.90", 5)

	order := createOrder(t, h, e, 1,
		map[string]any{"product_id": rose.ID, "quantity": 3},
		map[string]any{"product_id": musk.ID, "quantity": 2},
	)
	require.Equal(t, uint(7), productStock(t, db, rose.ID))
	require.Equal(t, uint(3), productStock(t, db, musk.ID))

	c, rec := newCtx(t, e, http.MethodPost, "/orders/1/pay", map[string]any{"method": "CARD"}, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Pay(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// TO_SHIP is still cancellable; the successful payment flips to CANCELLED.
	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/cancel", nil, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Cancel(c))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, models.OrderCancelled, orderStatus(t, db, order.ID))
	require.Equal(t, uint(10), productStock(t, db, rose.ID))
	require.Equal(t, uint(5), productStock(t, db, musk.ID))

	var payment models.Payment
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&payment).Error)
	require.Equal(t, models.PaymentCancelled, payment.Status)

	// Cancelling again must not restock a second time.
	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/cancel", nil, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Cancel(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Order cannot be cancelled.", resp["error"])
	require.Equal(t, uint(10), productStock(t, db, rose.ID))
}

func TestShipGuards(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}
	ph := &PaymentHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	order := createOrder(t, h, e, 1, map[string]any{"product_id": rose.ID, "quantity": 1})

	// TO_PAY cannot ship.
	c, rec := newCtx(t, e, http.MethodPost, "/orders/1/ship", nil, 2, "admin")
	withParamID(c, order.ID)
	require.NoError(t, h.Ship(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Order cannot be shipped.", resp["error"])

	// Force to TO_SHIP without a payment record.
	require.NoError(t, db.Model(&models.Order{}).
		Where("id = ?", order.ID).Update("status", models.OrderToShip).Error)

	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/ship", nil, 2, "admin")
	withParamID(c, order.ID)
	require.NoError(t, h.Ship(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "No payment record.", resp["error"])

	// A pending card payment is not good enough.
	c, rec = newCtx(t, e, http.MethodPost, "/payments",
		map[string]any{"order_id": order.ID, "method": "CARD"}, 1, "user")
	require.NoError(t, ph.CreatePayment(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/ship", nil, 2, "admin")
	withParamID(c, order.ID)
	require.NoError(t, h.Ship(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Payment not successful.", resp["error"])
}

func TestShipCODWithPendingPayment(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}
	ph := &PaymentHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	order := createOrder(t, h, e, 1, map[string]any{"product_id": rose.ID, "quantity": 1})

	c, rec := newCtx(t, e, http.MethodPost, "/payments",
		map[string]any{"order_id": order.ID, "method": "COD"}, 1, "user")
	require.NoError(t, ph.CreatePayment(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	// COD orders skip the pay transition: move to TO_SHIP directly.
	require.NoError(t, db.Model(&models.Order{}).
		Where("id = ?", order.ID).Update("status", models.OrderToShip).Error)

	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/ship", nil, 2, "admin")
	withParamID(c, order.ID)
	require.NoError(t, h.Ship(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.OrderToReceive, orderStatus(t, db, order.ID))
}

func TestDeliverConfirmsCOD(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}
	ph := &PaymentHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	order := createOrder(t, h, e, 1, map[string]any{"product_id": rose.ID, "quantity": 1})

	c, rec := newCtx(t, e, http.MethodPost, "/payments",
		map[string]any{"order_id": order.ID, "method": "COD"}, 1, "user")
	require.NoError(t, ph.CreatePayment(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, db.Model(&models.Order{}).
		Where("id = ?", order.ID).Update("status", models.OrderToReceive).Error)

	// Payment stays PENDING until the hand-off.
	var payment models.Payment
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&payment).Error)
	require.Equal(t, models.PaymentPending, payment.Status)

	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/deliver", nil, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Deliver(c))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, models.OrderToRate, orderStatus(t, db, order.ID))
	require.NoError(t, db.Where("order_id = ?", order.ID).First(&payment).Error)
	require.Equal(t, models.PaymentSuccess, payment.Status)
	require.True(t, strings.HasPrefix(payment.TransactionID, "COD-"))
}

func TestFullLifecycle(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	order := createOrder(t, h, e, 1, map[string]any{"product_id": rose.ID, "quantity": 2})

	c, rec := newCtx(t, e, http.MethodPost, "/orders/1/pay", map[string]any{"method": "E_WALLET"}, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Pay(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.OrderToShip, orderStatus(t, db, order.ID))

	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/ship", nil, 2, "admin")
	withParamID(c, order.ID)
	require.NoError(t, h.Ship(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.OrderToReceive, orderStatus(t, db, order.ID))

	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/deliver", nil, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Deliver(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.OrderToRate, orderStatus(t, db, order.ID))

	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/complete", nil, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Complete(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.OrderCompleted, orderStatus(t, db, order.ID))

	// Terminal: no further transition is accepted.
	c, rec = newCtx(t, e, http.MethodPost, "/orders/1/cancel", nil, 1, "user")
	withParamID(c, order.ID)
	require.NoError(t, h.Cancel(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, uint(8), productStock(t, db, rose.ID))
}

func TestOrderOwnershipScoping(t *testing.T) {
	db := initTestDB(t)
	e := echo.New()
	h := &OrderHandler{DB: db}

	rose := seedProduct(t, db, "Rose Oud", "120.50", 10)
	order := createOrder(t, h, e, 1, map[string]any{"product_id": rose.ID, "quantity": 1})

	// Another buyer cannot see or act on the order.
	c, _ := newCtx(t, e, http.MethodGet, "/orders/1", nil, 2, "user")
	withParamID(c, order.ID)
	err := h.GetOrder(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, he.Code)

	c, _ = newCtx(t, e, http.MethodPost, "/orders/1/pay", map[string]any{"method": "CARD"}, 2, "user")
	withParamID(c, order.ID)
	err = h.Pay(c)
	he, ok = err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, he.Code)

	// An admin sees it.
	c, rec := newCtx(t, e, http.MethodGet, "/orders/1", nil, 2, "admin")
	withParamID(c, order.ID)
	require.NoError(t, h.GetOrder(c))
	require.Equal(t, http.StatusOK, rec.Code)

	// ListOrders is scoped per buyer.
	createOrder(t, h, e, 2, map[string]any{"product_id": rose.ID, "quantity": 1})

	c, rec = newCtx(t, e, http.MethodGet, "/orders", nil, 1, "user")
	require.NoError(t, h.ListOrders(c))
	var mine []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	require.Equal(t, uint(1), mine[0].UserID)

	c, rec = newCtx(t, e, http.MethodGet, "/orders", nil, 3, "admin")
	require.NoError(t, h.ListOrders(c))
	var all []models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
}
