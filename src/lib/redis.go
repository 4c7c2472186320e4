package lib

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var redisClient *redis.Client

func GetRedisClient() *redis.Client {
	if redisClient != nil {
		return redisClient
	}
	redisHost := os.Getenv("REDIS_HOST")
	opt, err := redis.ParseURL(redisHost)
	if err != nil {
		log.Printf("[redis] Error parsing connection string: %s\n", err.Error())
		return nil
	}
	rdb := redis.NewClient(opt)
	redisClient = rdb
	return rdb
}

// NewRedisClient Replace redis instance with custom client implementation
func NewRedisClient(c *redis.Client) *redis.Client {
	redisClient = c
	return redisClient
}

func balanceKey(shop, customerID string) string {
	return fmt.Sprintf("%s:balance:%s", shop, customerID)
}

// CacheCustomerBalance stores the customer's store-credit balance so the POS
// balance endpoint can answer without hitting the database.
func CacheCustomerBalance(shop, customerID string, balance decimal.Decimal) {
	rdb := GetRedisClient()
	if rdb == nil {
		return
	}
	if err := rdb.SetEx(context.Background(), balanceKey(shop, customerID), balance.StringFixed(2), time.Hour).Err(); err != nil {
		log.Printf("Failed to cache balance for customer [%s]: %s\n", customerID, err.Error())
	}
}

func GetCachedCustomerBalance(shop, customerID string) (*decimal.Decimal, error) {
	rdb := GetRedisClient()
	if rdb == nil {
		return nil, nil
	}
	val, err := rdb.Get(context.Background(), balanceKey(shop, customerID)).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	balance, err := decimal.NewFromString(val)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func InvalidateCustomerBalance(shop, customerID string) {
	rdb := GetRedisClient()
	if rdb == nil {
		return
	}
	if err := rdb.Del(context.Background(), balanceKey(shop, customerID)).Err(); err != nil {
		log.Printf("Failed to invalidate balance for customer [%s]: %s\n", customerID, err.Error())
	}
}
