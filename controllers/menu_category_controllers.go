package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/utils"
)

type MenuCategoryController struct {
	DB *gorm.DB
}

func NewMenuCategoryController(db *gorm.DB) *MenuCategoryController {
	return &MenuCategoryController{DB: db}
}

type categoryRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
	Order       int    `json:"order" binding:"min=0"`
}

// GetAllCategories
func (mcc *MenuCategoryController) GetAllCategories(c *gin.Context) {
	var categories []models.MenuCategory
	if err := mcc.DB.Order("display_order ASC").Order("name ASC").Find(&categories).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All menu categories", categories)
}

// CreateCategory
func (mcc *MenuCategoryController) CreateCategory(c *gin.Context) {
	var body categoryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	category := models.MenuCategory{
		Name:        body.Name,
		Description: body.Description,
		Order:       body.Order,
	}
	if err := mcc.DB.Create(&category).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Category created", category)
}

// UpdateCategory
func (mcc *MenuCategoryController) UpdateCategory(c *gin.Context) {
	id, ok := parseID(c, "cat_id")
	if !ok {
		return
	}

	var body categoryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var category models.MenuCategory
	if err := mcc.DB.First(&category, id).Error; err != nil {
		respondLookupError(c, err, "category not found")
		return
	}

	err := mcc.DB.Model(&category).Updates(map[string]interface{}{
		"name":          body.Name,
		"description":   body.Description,
		"display_order": body.Order,
	}).Error
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	if err := mcc.DB.First(&category, id).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Category updated", category)
}

// DeleteCategory removes the category with its items.
func (mcc *MenuCategoryController) DeleteCategory(c *gin.Context) {
	id, ok := parseID(c, "cat_id")
	if !ok {
		return
	}

	err := mcc.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.MenuCategory{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		// Foreign keys may be off on some SQLite setups; do not rely on the cascade.
		return tx.Where("category_id = ?", id).Delete(&models.MenuItem{}).Error
	})
	if err != nil {
		respondLookupError(c, err, "category not found")
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Category deleted", nil)
}

func respondLookupError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.RespondError(c, http.StatusNotFound, errors.New(notFound))
		return
	}
	utils.RespondError(c, http.StatusInternalServerError, err)
}
