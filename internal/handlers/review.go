package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/gerainchan/perfume-shop/internal/models"
	"github.com/gerainchan/perfume-shop/internal/service"
)

type ReviewHandler struct {
	DB *gorm.DB
}

type reviewRequest struct {
	Rating  uint   `json:"rating"`
	Comment string `json:"comment"`
}

// CreateReview attaches a review to a product the caller has received. One
// review per user per product; repeat submissions update the existing one.
func (h *ReviewHandler) CreateReview(c echo.Context) error {
	userID, err := service.UserID(c)
	if err != nil {
		return err
	}

	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Rating must be between 1 and 5."})
	}

	var product models.Product
	if err := h.DB.First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var delivered int64
	err = h.DB.Model(&models.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND order_items.product_id = ? AND orders.status IN ?",
			userID, product.ID,
			[]models.OrderStatus{models.OrderToRate, models.OrderCompleted}).
		Count(&delivered).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if delivered == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "You can only review products you have received."})
	}

	var review models.Review
	err = h.DB.Where("user_id = ? AND product_id = ?", userID, product.ID).First(&review).Error
	switch {
	case err == nil:
		review.Rating = req.Rating
		review.Comment = req.Comment
		if err := h.DB.Save(&review).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, review)
	case errors.Is(err, gorm.ErrRecordNotFound):
		review = models.Review{
			UserID:    userID,
			ProductID: product.ID,
			Rating:    req.Rating,
			Comment:   req.Comment,
		}
		if err := h.DB.Create(&review).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, review)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *ReviewHandler) ListReviews(c echo.Context) error {
	productID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var reviews []models.Review
	err = h.DB.Where("product_id = ?", productID).
		Order("created_at DESC").
		Find(&reviews).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, reviews)
}
