package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/PaulD95-git/savouryheaven/middlewares"
	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/utils"
)

type UserController struct {
	DB     *gorm.DB
	Tokens *utils.TokenManager
}

func NewUserController(db *gorm.DB, tokens *utils.TokenManager) *UserController {
	return &UserController{DB: db, Tokens: tokens}
}

// Register signs up a customer. Staff accounts come from an admin.
func (uc *UserController) Register(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required,max=255"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	user, err := CreateUser(uc.DB, req.Name, req.Email, req.Password, models.RoleCustomer)
	if err != nil {
		respondCreateUserError(c, err)
		return
	}

	utils.Info(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("New user registered")
	utils.RespondJSON(c, http.StatusCreated, "User registered", gin.H{
		"user_id": user.ID,
	})
}

// Login user -> return JWT
func (uc *UserController) Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var user models.User
	if err := uc.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(input.Email))).First(&user).Error; err != nil {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}

	token, err := uc.Tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.Info(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("Login successful")
	utils.RespondJSON(c, http.StatusOK, "Login successful", gin.H{
		"token":     token,
		"user_role": user.Role,
	})
}

// GetProfile -> the signed-in user
func (uc *UserController) GetProfile(c *gin.Context) {
	userID := c.GetUint(middlewares.ContextUserID)

	var user models.User
	if err := uc.DB.First(&user, userID).Error; err != nil {
		respondLookupError(c, err, "user not found")
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Profile data retrieved successfully", user)
}

// UpdateProfile -> the signed-in user changes their name or email
func (uc *UserController) UpdateProfile(c *gin.Context) {
	userID := c.GetUint(middlewares.ContextUserID)

	var req struct {
		Name  string `json:"name" binding:"required,max=255"`
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	err := uc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", email, userID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errEmailTaken
		}

		user.Name = strings.TrimSpace(req.Name)
		user.Email = email
		return tx.Model(&user).Select("name", "email").Updates(&user).Error
	})
	switch {
	case errors.Is(err, errEmailTaken):
		utils.RespondError(c, http.StatusConflict, err)
		return
	case err != nil:
		respondLookupError(c, err, "user not found")
		return
	}

	utils.Info(logrus.Fields{"user_id": user.ID}).Info("Profile updated")
	utils.RespondJSON(c, http.StatusOK, "Profile updated", user)
}

// GetAllUsers -> admin only
func (uc *UserController) GetAllUsers(c *gin.Context) {
	var users []models.User
	if err := uc.DB.Order("id ASC").Find(&users).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All users", users)
}

// CreateStaffUser -> admin creates staff or admin accounts
func (uc *UserController) CreateStaffUser(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required,max=255"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8"`
		Role     string `json:"role" binding:"required,oneof=customer staff admin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	user, err := CreateUser(uc.DB, req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		respondCreateUserError(c, err)
		return
	}

	utils.Info(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("User created by admin")
	utils.RespondJSON(c, http.StatusCreated, "User created", user)
}

// DeleteUser drops the account and, with it, the user's reservations.
func (uc *UserController) DeleteUser(c *gin.Context) {
	id, ok := parseID(c, "user_id")
	if !ok {
		return
	}
	if id == c.GetUint(middlewares.ContextUserID) {
		utils.RespondError(c, http.StatusBadRequest, errors.New("cannot delete your own account"))
		return
	}

	err := uc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.Reservation{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		respondLookupError(c, err, "user not found")
		return
	}

	utils.Info(logrus.Fields{"user_id": id}).Info("User deleted")
	utils.RespondJSON(c, http.StatusOK, "User deleted", nil)
}

var errEmailTaken = errors.New("email is already registered")

// CreateUser hashes password and stores a new account.
func CreateUser(db *gorm.DB, name, email, password, role string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:     strings.TrimSpace(name),
		Email:    email,
		Password: string(hashed),
		Role:     role,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func respondCreateUserError(c *gin.Context, err error) {
	if errors.Is(err, errEmailTaken) {
		utils.RespondError(c, http.StatusConflict, err)
		return
	}
	utils.RespondError(c, http.StatusInternalServerError, err)
}
