package main

import (
	"creditnote/src/boot"
	"creditnote/src/config"
	"creditnote/src/engine"
	"creditnote/src/lib"
	"creditnote/src/middlewares"
	"creditnote/src/syncqueue"
	"log"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
)

const (
	apiPrefix string = "/api/v1"
)

var futureDateValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	datetime, err := time.Parse(config.TIME_PARSE_FORMAT, date)
	if err != nil {
		return false
	}
	return time.Now().Before(datetime)
}

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func main() {
	apiEnv := os.Getenv("API_ENV")

	d := boot.InitDb()

	gateway := lib.NewAdminGateway()
	eng := engine.New(d, gateway, engine.WithRenderer(lib.NewQRCodeRenderer()))
	queue := syncqueue.New(d, eng)

	go boot.InitScheduler(eng, queue)

	router := setupRouter()

	appHost := os.Getenv("APP_HOST")
	if apiEnv == "local" {
		router.Use(cors.Default())
	} else {
		cc := cors.DefaultConfig()
		cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "PATCH", "PUT", "DELETE", "HEAD")
		cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization", "X-POS-Device-ID")
		cc.AllowOriginFunc = func(origin string) bool {
			// Embedded admin and POS extensions load from Shopify domains.
			match, _ := regexp.MatchString(`(\w+.?)+\.myshopify\.com$`, origin)
			if match {
				return true
			}
			match, _ = regexp.MatchString(`\.shopify\.com$`, origin)
			if match {
				return true
			}
			if appHost != "" {
				match, _ = regexp.MatchString(appHost, origin)
			}
			return match
		}
		cc.AllowCredentials = true
		cc.AllowAllOrigins = false
		router.Use(cors.New(cc))
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("futuredate", futureDateValidatorFunc)
	}

	authorized := router.Group(apiPrefix)
	authorized.Use(middlewares.AuthMiddleware)
	{
		authorized = creditNoteHandlers(authorized, eng)
		authorized = customerHandlers(authorized, eng)
		authorized = syncHandlers(authorized, queue)
	}

	if err := router.Run(":9090"); err != nil {
		log.Fatalf("Failed to start server: %s", err)
	}
}
