package middlewares

import (
	"creditnote/src/types"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

func apiSecret() []byte {
	return []byte(os.Getenv("SHOPIFY_API_SECRET"))
}

// AuthMiddleware verifies the embedded-app session token and scopes the
// request to the shop named in its dest claim. Every downstream handler
// reads the tenant from context, never from the request payload.
func AuthMiddleware(ctx *gin.Context) {
	bearerToken := ctx.Request.Header.Get("Authorization")
	if !strings.HasPrefix(bearerToken, "Bearer") {
		ctx.AbortWithStatus(401)
		return
	}
	parts := strings.Split(bearerToken, " ")
	if len(parts) < 2 || parts[1] == "" {
		ctx.AbortWithStatus(401)
		return
	}
	reqToken := parts[1]
	claims := &types.SessionClaims{}
	tkn, err := jwt.ParseWithClaims(reqToken, claims, func(t *jwt.Token) (any, error) {
		return apiSecret(), nil
	})
	if err != nil {
		log.Printf("token error: %s\n", err.Error())
		if err == jwt.ErrSignatureInvalid || err == jwt.ErrTokenMalformed {
			ctx.AbortWithStatus(401)
			return
		}
		ctx.AbortWithError(401, err)
		return
	}
	if !tkn.Valid {
		ctx.AbortWithStatus(401)
		return
	}

	shop := shopFromDest(claims.Dest)
	if shop == "" {
		log.Printf("token has no usable dest claim: %s\n", claims.Dest)
		ctx.AbortWithStatus(401)
		return
	}

	ctx.Set("shop", shop)
	ctx.Set("session_id", claims.Sid)
	ctx.Set("user_id", claims.Subject)
	if deviceId := ctx.Request.Header.Get("X-POS-Device-ID"); deviceId != "" {
		ctx.Set("device_id", deviceId)
	}
}

// shopFromDest extracts the myshopify domain from the dest claim, which
// arrives as https://{shop}.myshopify.com.
func shopFromDest(dest string) string {
	shop := strings.TrimPrefix(dest, "https://")
	shop = strings.TrimPrefix(shop, "http://")
	shop = strings.TrimSuffix(shop, "/")
	if !strings.HasSuffix(shop, ".myshopify.com") {
		return ""
	}
	return shop
}
