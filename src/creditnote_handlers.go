package main

import (
	"context"
	"creditnote/src/config"
	"creditnote/src/engine"
	"creditnote/src/lib"
	"creditnote/src/lib/mailer"
	"creditnote/src/types"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	awslib "creditnote/src/lib/aws"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/gosimple/slug"
	"github.com/redis/go-redis/v9"
)

func respondEngineError(ctx *gin.Context, err error) {
	var rej *engine.RejectionError
	switch {
	case engine.IsValidation(err):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case engine.IsNotFound(err):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Credit note not found"})
	case errors.As(err, &rej):
		body := gin.H{"error": rej.Reason}
		if rej.MaxAmount != nil {
			body["max_amount"] = rej.MaxAmount
		}
		ctx.JSON(http.StatusUnprocessableEntity, body)
	case errors.Is(err, engine.ErrConflict):
		ctx.JSON(http.StatusConflict, gin.H{"error": "The credit note was modified concurrently. Please retry."})
	default:
		log.Printf("Unexpected error: %s\n", err.Error())
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func parseStatuses(raw string) []types.CreditNoteStatus {
	if raw == "" {
		return nil
	}
	var statuses []types.CreditNoteStatus
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			statuses = append(statuses, types.CreditNoteStatus(s))
		}
	}
	return statuses
}

func creditNoteHandlers(g *gin.RouterGroup, eng *engine.Engine) *gin.RouterGroup {
	g.
		GET("/credit-notes", func(ctx *gin.Context) {
			var query types.ListCreditNotesQuery
			if err := ctx.ShouldBindQuery(&query); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			result, err := eng.List(ctx, shop, engine.ListFilters{
				CustomerID: query.CustomerID,
				Statuses:   parseStatuses(query.Status),
				Search:     query.Search,
				Offset:     query.Offset,
				Limit:      query.Limit,
			})
			if err != nil {
				log.Printf("Error retrieving credit notes: %s\n", err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": result})
		}).
		GET("/credit-notes/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			note, err := eng.FindByID(ctx, shop, params.ID)
			if err != nil {
				respondEngineError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": note})
		}).
		GET("/credit-notes/:id/code", func(ctx *gin.Context) {
			var query struct {
				ShareLink bool `form:"share_link"`
			}
			if err := ctx.ShouldBindQuery(&query); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			note, err := eng.FindByID(ctx, shop, params.ID)
			if err != nil {
				respondEngineError(ctx, err)
				return
			}
			filename := fmt.Sprintf("creditnote_%s", slug.Make(note.NoteNumber))
			var content string
			if rd := lib.GetRedisClient(); rd != nil {
				cached, err := rd.Get(context.Background(), filename).Result()
				if err == nil {
					content = cached
				} else if !errors.Is(err, redis.Nil) {
					log.Printf("Error reading from cache: %s\n", err.Error())
				}
			}
			if content == "" && note.QRCodeImage != nil {
				content = *note.QRCodeImage
			}
			if content != "" {
				if query.ShareLink {
					ctx.JSON(http.StatusOK, gin.H{"url": content})
					return
				}
				filepath, err := awslib.S3DownloadAsset(filename)
				if err == nil {
					ctx.FileAttachment(filepath, "creditnote.jpeg")
					return
				}
				if !errors.Is(err, awslib.ErrAssetNotFound) {
					log.Printf("Error downloading asset [%s] from S3 bucket: %s\n", filename, err.Error())
					ctx.Status(http.StatusBadRequest)
					return
				}
				// The bucket lost the object; fall through and re-render.
			}
			// No rendered image yet; produce one on demand.
			url, err := lib.NewQRCodeRenderer().Render(note)
			if err != nil {
				log.Printf("Error rendering code for note [%s]: %s\n", note.NoteNumber, err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"url": url})
		}).
		POST("/credit-notes", func(ctx *gin.Context) {
			var body types.CreateCreditNoteRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			input := engine.CreateInput{
				CustomerID:          body.CustomerID,
				Amount:              body.Amount,
				Currency:            body.Currency,
				Reason:              body.Reason,
				OriginalOrderID:     body.OriginalOrderID,
				OriginalOrderNumber: body.OriginalOrderNumber,
				CustomerName:        body.CustomerName,
				CustomerEmail:       body.CustomerEmail,
			}
			if deviceId := ctx.GetString("device_id"); deviceId != "" {
				input.DeviceID = &deviceId
			}
			if body.ExpiresAt != nil {
				expiresAt, err := time.Parse(config.TIME_PARSE_FORMAT, *body.ExpiresAt)
				if err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				input.ExpiresAt = &expiresAt
			}
			note, err := eng.Create(ctx, shop, input)
			if err != nil {
				respondEngineError(ctx, err)
				return
			}
			go mailer.SendCreditNoteIssued(note)
			if note.ExpiresAt != nil {
				// Mark the note expired right at its deadline; the periodic
				// sweep would only catch it on the next pass.
				if _, err := lib.CreateOneTimeCronJob(
					gocron.OneTimeJob(gocron.OneTimeJobStartDateTimes(*note.ExpiresAt)),
					gocron.NewTask(func() {
						if _, err := eng.ExpireSweep(context.Background()); err != nil {
							log.Printf("Error sweeping expired notes: %s\n", err.Error())
						}
					}),
				); err != nil {
					log.Printf("Error scheduling expiry for note [%s]: %s\n", note.NoteNumber, err.Error())
				}
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": note})
		}).
		POST("/credit-notes/validate", func(ctx *gin.Context) {
			var body types.ValidateCreditNoteRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			note, err := eng.FindByCode(ctx, shop, body.Code)
			if err != nil {
				respondEngineError(ctx, err)
				return
			}
			validation := engine.ValidateForRedemption(note, body.Amount)
			ctx.JSON(http.StatusOK, gin.H{"data": validation, "note": note})
		}).
		POST("/credit-notes/redeem", func(ctx *gin.Context) {
			var body types.RedeemCreditNoteRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			input := engine.RedeemInput{
				NoteID:      body.NoteID,
				Code:        body.Code,
				Amount:      body.Amount,
				OrderID:     body.OrderID,
				OrderNumber: body.OrderNumber,
				StaffID:     body.StaffID,
				DeviceID:    body.DeviceID,
				Metadata:    body.Metadata,
			}
			if input.DeviceID == nil {
				if deviceId := ctx.GetString("device_id"); deviceId != "" {
					input.DeviceID = &deviceId
				}
			}
			record, note, err := eng.Redeem(ctx, shop, input)
			if err != nil {
				respondEngineError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{
				"redemption": record,
				"note":       note,
			}})
		}).
		PATCH("/credit-notes/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.UpdateCreditNoteRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			input := engine.UpdateInput{
				Reason: body.Reason,
				Notes:  body.Notes,
			}
			if body.Status != nil {
				status := types.CreditNoteStatus(*body.Status)
				switch status {
				case types.CREDIT_NOTE_ACTIVE, types.CREDIT_NOTE_PARTIALLY_USED,
					types.CREDIT_NOTE_FULLY_USED, types.CREDIT_NOTE_EXPIRED:
					input.Status = &status
				default:
					ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
					return
				}
			}
			if body.ExpiresAt != nil {
				expiresAt, err := time.Parse(config.TIME_PARSE_FORMAT, *body.ExpiresAt)
				if err != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
					return
				}
				input.ExpiresAt = &expiresAt
			}
			note, err := eng.Update(ctx, shop, params.ID, input)
			if err != nil {
				respondEngineError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": note})
		}).
		DELETE("/credit-notes/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			shop := ctx.GetString("shop")
			if err := eng.Delete(ctx, shop, params.ID); err != nil {
				respondEngineError(ctx, err)
				return
			}
			ctx.Status(http.StatusNoContent)
		})
	return g
}
