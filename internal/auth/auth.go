package auth

import (
	"errors"
	"fmt"
	"strings"

	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/models"
	"interchat_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const userContextKey = "user"

type Claims struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	IsAnonymous bool   `json:"is_anonymous"`
	jwt.StandardClaims
}

func SetupRoutes(r *gin.Engine, userService *services.UserService, secret string) {
	auth := r.Group("/auth")
	{
		auth.GET("/user", AuthMiddleware(userService, secret), getUser)
	}
}

func AuthMiddleware(userService *services.UserService, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := zerolog.Ctx(c.Request.Context())

		var token string

		// Browsers cannot set headers on websocket upgrades, so the token rides in the query.
		if websocket.IsWebSocketUpgrade(c.Request) {
			token = c.Query("token")
		} else {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				apperrors.HandleError(c, apperrors.New401Error())
				return
			}

			bearerToken := strings.Split(authHeader, " ")
			if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
				apperrors.HandleError(c, apperrors.New401Error())
				return
			}
			token = bearerToken[1]
		}

		claims, err := VerifyToken(token, secret)
		if err != nil {
			log.Debug().Err(err).Msg("Rejected token")
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		user, err := userService.CreateOrUpdateUser(c.Request.Context(), claims.Subject, claims.Email, claims.Name, claims.IsAnonymous)
		if err != nil {
			apperrors.HandleError(c, apperrors.New500Error(err))
			return
		}

		c.Set(userContextKey, user)
		ctx := log.With().Str("user_id", user.ID.String()).Logger().WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CurrentUser returns the user stored by AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

func getUser(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		apperrors.HandleError(c, apperrors.New401Error())
		return
	}
	c.JSON(200, user)
}

// VerifyToken validates an HS256 token signed with the project secret.
func VerifyToken(tokenString, secret string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("token is required")
	}
	if secret == "" {
		return nil, errors.New("token secret is not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
