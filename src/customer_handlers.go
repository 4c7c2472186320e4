package main

import (
	"creditnote/src/engine"
	"creditnote/src/lib"
	"creditnote/src/types"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

func customerHandlers(g *gin.RouterGroup, eng *engine.Engine) *gin.RouterGroup {
	g.
		GET("/customers/:id/balance", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			if cached, err := lib.GetCachedCustomerBalance(shop, params.ID); err == nil && cached != nil {
				ctx.JSON(http.StatusOK, gin.H{"data": gin.H{"balance": cached, "cached": true}})
				return
			}
			balance, err := eng.Balance(ctx, shop, params.ID)
			if err != nil {
				log.Printf("Error computing balance for customer [%s]: %s\n", params.ID, err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			lib.CacheCustomerBalance(shop, params.ID, balance)
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{"balance": balance, "cached": false}})
		}).
		GET("/customers/:id/credit-notes", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			result, err := eng.List(ctx, shop, engine.ListFilters{
				CustomerID: params.ID,
				Statuses: []types.CreditNoteStatus{
					types.CREDIT_NOTE_ACTIVE,
					types.CREDIT_NOTE_PARTIALLY_USED,
				},
			})
			if err != nil {
				log.Printf("Error retrieving credit notes for customer [%s]: %s\n", params.ID, err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": result})
		})
	return g
}
