package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var errMalformedHeader = errors.New("invalid authorization header format")

// TokenFromRequest Authorization 헤더 → access_token 쿠키 → (allowQuery 면) token 쿼리 순으로 토큰 추출
//
// 브라우저 WebSocket 은 헤더를 붙일 수 없어서 업그레이드 요청에서만 쿼리를 허용한다.
func TokenFromRequest(c *fiber.Ctx, allowQuery bool) (string, error) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		// Bearer 토큰 파싱
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			return "", errMalformedHeader
		}
		return parts[1], nil
	}
	if token := c.Cookies("access_token"); token != "" {
		return token, nil
	}
	if allowQuery {
		return c.Query("token"), nil
	}
	return "", nil
}

// AuthMiddleware JWT 인증 미들웨어
func AuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return authenticate(jwtManager, false)
}

// WebSocketAuthMiddleware 업그레이드 요청용 인증 미들웨어 (token 쿼리 허용)
func WebSocketAuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return authenticate(jwtManager, true)
}

func authenticate(jwtManager *JWTManager, allowQuery bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := TokenFromRequest(c, allowQuery)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization token",
			})
		}

		// 토큰 검증
		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		// 사용자 정보를 컨텍스트에 저장
		c.Locals("userID", claims.UserID)
		c.Locals("username", claims.Username)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// GetClaimsFromContext 인증 미들웨어가 저장한 클레임
func GetClaimsFromContext(c *fiber.Ctx) (*Claims, bool) {
	claims, ok := c.Locals("claims").(*Claims)
	return claims, ok && claims != nil
}

// GetUserID 인증된 사용자 ID
func GetUserID(c *fiber.Ctx) (int64, bool) {
	userID, ok := c.Locals("userID").(int64)
	return userID, ok && userID > 0
}
