package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/wardenops/warden/internal/config"
	"github.com/wardenops/warden/internal/logger"
	"github.com/wardenops/warden/internal/models"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type AuthService struct {
	DB     *gorm.DB
	secret []byte
}

func NewAuthService(db *gorm.DB, cfg config.Config) *AuthService {
	secret := cfg.JWTSecret
	if secret == "" {
		// Zero-config boot: tokens do not survive restarts without an
		// explicit WARDEN_JWT_SECRET.
		secret = fmt.Sprintf("warden-ephemeral-%d", time.Now().UnixNano())
		logger.Log().Warn("WARDEN_JWT_SECRET not set, sessions will not survive restart")
	}
	return &AuthService{DB: db, secret: []byte(secret)}
}

// EnsureAdmin creates the administrator account on first boot.
func (s *AuthService) EnsureAdmin(email, password string) error {
	var count int64
	if err := s.DB.Model(&models.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 || password == "" {
		return nil
	}

	user := models.User{Email: email, Name: "Administrator", Enabled: true}
	if err := user.SetPassword(password); err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := s.DB.Create(&user).Error; err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	logger.WithFields(map[string]interface{}{"email": email}).Info("administrator account created")
	return nil
}

// Login verifies credentials and issues a signed token.
func (s *AuthService) Login(email, password string) (string, error) {
	var user models.User
	if err := s.DB.Where("email = ? AND enabled = ?", email, true).First(&user).Error; err != nil {
		return "", ErrInvalidCredentials
	}
	if !user.CheckPassword(password) {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	user.LastLogin = &now
	s.DB.Save(&user)

	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a bearer token and returns the user id.
func (s *AuthService) VerifyToken(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("invalid claims")
	}
	sub, ok := claims["sub"].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid subject")
	}
	return uint(sub), nil
}

func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.DB.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
