package middlewares

import (
	"strings"

	"gebeya/app/models/user"
	"gebeya/pkg/jwtauth"
	"gebeya/pkg/response"

	"github.com/gin-gonic/gin"
)

// 身份信息在 gin.Context 中的键
const (
	CtxIdentityID   = "identity_id"
	CtxIdentityRole = "identity_role"
)

// AuthJWT 校验 Authorization 头中的 Bearer 凭证
// 凭证不可用时立即拒绝，绝不带着未验证身份继续往下走
func AuthJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AbortWithReason(c, 401, "identity_rejected", "缺少 Authorization 头")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			response.AbortWithReason(c, 401, "identity_rejected", "凭证格式错误，应为 Bearer token")
			return
		}

		claims, err := jwtauth.ParseToken(tokenString)
		if err != nil {
			response.AbortWithReason(c, 401, "identity_rejected", "凭证校验失败")
			return
		}

		c.Set(CtxIdentityID, claims.Subject)
		c.Set(CtxIdentityRole, claims.Role)
		c.Next()
	}
}

// AuthAdmin 在 AuthJWT 之后使用，要求管理员角色
func AuthAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxIdentityRole) != string(user.RoleAdmin) {
			response.AbortWithReason(c, 403, "forbidden", "需要管理员权限")
			return
		}
		c.Next()
	}
}
