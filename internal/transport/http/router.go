package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/gerainchan/perfume-shop/internal/handlers"
	"github.com/gerainchan/perfume-shop/internal/handlers/cart"
	"github.com/gerainchan/perfume-shop/internal/handlers/order"
	"github.com/gerainchan/perfume-shop/internal/service"
)

type Deps struct {
	DB             *gorm.DB
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	ReviewHandler  *handlers.ReviewHandler
	SearchHandler  *handlers.SearchHandler
	CartHandler    *cart.CartHandler
	OrderHandler   *order.OrderHandler
	PaymentHandler *order.PaymentHandler
	TokenService   *service.TokenService
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/search", d.SearchHandler.Search)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)
	products.GET("/:id/reviews", d.ReviewHandler.ListReviews)

	user := v1.Group("", d.TokenService.AutoRefreshMiddleware)

	user.GET("/cart", d.CartHandler.GetCart)
	user.POST("/cart", d.CartHandler.AddToCart)
	user.DELETE("/cart/:id", d.CartHandler.DeleteOneFromCart)
	user.DELETE("/cart/:id/all", d.CartHandler.DeleteAllFromCart)

	user.POST("/orders", d.OrderHandler.CreateOrder)
	user.GET("/orders", d.OrderHandler.ListOrders)
	user.GET("/orders/:id", d.OrderHandler.GetOrder)
	user.POST("/orders/:id/pay", d.OrderHandler.Pay)
	user.POST("/orders/:id/cancel", d.OrderHandler.Cancel)
	user.POST("/orders/:id/deliver", d.OrderHandler.Deliver)
	user.POST("/orders/:id/complete", d.OrderHandler.Complete)

	user.POST("/payments", d.PaymentHandler.CreatePayment)
	user.GET("/payments", d.PaymentHandler.ListPayments)

	user.POST("/products/:id/reviews", d.ReviewHandler.CreateReview)

	admin := v1.Group("/admin", d.TokenService.AutoRefreshMiddlewareAdmin)

	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)

	admin.POST("/orders/:id/ship", d.OrderHandler.Ship)

	admin.PATCH("/payments/:id", d.PaymentHandler.AdminUpdatePayment)
	admin.DELETE("/payments/:id", d.PaymentHandler.AdminDeletePayment)
}
