package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerline/internal/types"
)

func RequestIDMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	requestID := c.GetHeader(types.HeaderRequestID)
	if requestID == "" {
		requestID = types.GenerateUUID()
	}

	// no authentication layer; writes are attributed to the default user
	ctx = types.SetRequestID(ctx, requestID)
	ctx = types.SetUserID(ctx, types.DefaultUserID)

	c.Request = c.Request.WithContext(ctx)
	c.Header(types.HeaderRequestID, requestID)

	c.Next()
}
