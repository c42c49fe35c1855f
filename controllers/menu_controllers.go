package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/utils"
)

type MenuController struct {
	DB *gorm.DB
}

func NewMenuController(db *gorm.DB) *MenuController {
	return &MenuController{DB: db}
}

type menuItemRequest struct {
	CategoryID  uint    `json:"category_id" binding:"required"`
	Name        string  `json:"name" binding:"required,max=200"`
	Description string  `json:"description"`
	Price       float64 `json:"price" binding:"required,gt=0,lt=10000"`
	IsAvailable *bool   `json:"is_available"`
	IsFeatured  bool    `json:"is_featured"`
	Order       int     `json:"order" binding:"min=0"`
	ImageURL    *string `json:"image_url" binding:"omitempty,url,max=255"`
	Ingredients string  `json:"ingredients"`
	Calories    *int    `json:"calories" binding:"omitempty,min=0"`
}

// GetMenu is the public menu: every category with its available items.
func (mc *MenuController) GetMenu(c *gin.Context) {
	var categories []models.MenuCategory
	err := mc.DB.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Where("is_available = ?", true).Order("display_order ASC").Order("name ASC")
		}).
		Order("display_order ASC").Order("name ASC").
		Find(&categories).Error
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Menu", categories)
}

// GetFeaturedItems
func (mc *MenuController) GetFeaturedItems(c *gin.Context) {
	var items []models.MenuItem
	err := mc.DB.Where("is_featured = ? AND is_available = ?", true, true).
		Order("display_order ASC").Order("name ASC").
		Find(&items).Error
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Featured items", items)
}

// GetAllItems is the staff view, unavailable items included.
func (mc *MenuController) GetAllItems(c *gin.Context) {
	q := mc.DB.Order("category_id ASC").Order("display_order ASC").Order("name ASC")
	if catID := c.Query("category_id"); catID != "" {
		q = q.Where("category_id = ?", catID)
	}

	var items []models.MenuItem
	if err := q.Find(&items).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of menu items", items)
}

// CreateItem
func (mc *MenuController) CreateItem(c *gin.Context) {
	var body menuItemRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := mc.DB.First(&models.MenuCategory{}, body.CategoryID).Error; err != nil {
		respondLookupError(c, err, "category not found")
		return
	}

	item := models.MenuItem{
		CategoryID:  body.CategoryID,
		Name:        body.Name,
		Description: body.Description,
		Price:       body.Price,
		IsAvailable: true,
		IsFeatured:  body.IsFeatured,
		Order:       body.Order,
		ImageURL:    body.ImageURL,
		Ingredients: body.Ingredients,
		Calories:    body.Calories,
	}

	err := mc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		// A false bool is replaced by the column default on insert.
		if body.IsAvailable != nil && !*body.IsAvailable {
			item.IsAvailable = false
			return tx.Model(&item).Update("is_available", false).Error
		}
		return nil
	})
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Menu item created", item)
}

// GetItemByID
func (mc *MenuController) GetItemByID(c *gin.Context) {
	id, ok := parseID(c, "item_id")
	if !ok {
		return
	}

	var item models.MenuItem
	if err := mc.DB.First(&item, id).Error; err != nil {
		respondLookupError(c, err, "menu item not found")
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Menu item detail", item)
}

// UpdateItem
func (mc *MenuController) UpdateItem(c *gin.Context) {
	id, ok := parseID(c, "item_id")
	if !ok {
		return
	}

	var body menuItemRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var item models.MenuItem
	if err := mc.DB.First(&item, id).Error; err != nil {
		respondLookupError(c, err, "menu item not found")
		return
	}
	if err := mc.DB.First(&models.MenuCategory{}, body.CategoryID).Error; err != nil {
		respondLookupError(c, err, "category not found")
		return
	}

	changes := map[string]interface{}{
		"category_id":   body.CategoryID,
		"name":          body.Name,
		"description":   body.Description,
		"price":         body.Price,
		"is_featured":   body.IsFeatured,
		"display_order": body.Order,
		"image_url":     body.ImageURL,
		"ingredients":   body.Ingredients,
		"calories":      body.Calories,
	}
	if body.IsAvailable != nil {
		changes["is_available"] = *body.IsAvailable
	}

	if err := mc.DB.Model(&item).Updates(changes).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	if err := mc.DB.First(&item, id).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Menu item updated", item)
}

// DeleteItem
func (mc *MenuController) DeleteItem(c *gin.Context) {
	id, ok := parseID(c, "item_id")
	if !ok {
		return
	}

	res := mc.DB.Delete(&models.MenuItem{}, id)
	if res.Error != nil {
		utils.RespondError(c, http.StatusInternalServerError, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondLookupError(c, gorm.ErrRecordNotFound, "menu item not found")
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Menu item deleted", nil)
}
