package main

import (
	"creditnote/src/syncqueue"
	"creditnote/src/types"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

func syncHandlers(g *gin.RouterGroup, queue *syncqueue.Queue) *gin.RouterGroup {
	g.
		POST("/sync/queue", func(ctx *gin.Context) {
			var body types.EnqueueSyncRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			deviceId := ctx.GetString("device_id")
			if body.DeviceID != "" {
				deviceId = body.DeviceID
			}
			maxRetries := 0
			if body.MaxRetries != nil {
				maxRetries = *body.MaxRetries
			}
			item, err := queue.Enqueue(ctx, shop, types.SyncOperationType(body.OperationType), body.Payload, deviceId, maxRetries)
			if err != nil {
				log.Printf("Rejected sync operation: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": item})
		}).
		POST("/sync/queue/batch", func(ctx *gin.Context) {
			var body types.EnqueueSyncBatchRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			accepted := []any{}
			rejected := []gin.H{}
			for i, op := range body.Operations {
				deviceId := ctx.GetString("device_id")
				if op.DeviceID != "" {
					deviceId = op.DeviceID
				}
				maxRetries := 0
				if op.MaxRetries != nil {
					maxRetries = *op.MaxRetries
				}
				item, err := queue.Enqueue(ctx, shop, types.SyncOperationType(op.OperationType), op.Payload, deviceId, maxRetries)
				if err != nil {
					rejected = append(rejected, gin.H{"index": i, "error": err.Error()})
					continue
				}
				accepted = append(accepted, item)
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{
				"accepted": accepted,
				"rejected": rejected,
			}})
		}).
		POST("/sync/drain", func(ctx *gin.Context) {
			var body types.DrainSyncRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			result, err := queue.Drain(ctx, shop, body.Limit)
			if err != nil {
				log.Printf("Error draining sync queue for %s: %s\n", shop, err.Error())
				ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": result})
		}).
		GET("/sync/stats", func(ctx *gin.Context) {
			shop := ctx.GetString("shop")
			stats, err := queue.Stats(ctx, shop)
			if err != nil {
				log.Printf("Error retrieving sync stats for %s: %s\n", shop, err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": stats})
		})
	return g
}
