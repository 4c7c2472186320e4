package boot

import (
	"context"
	"creditnote/src/config"
	"creditnote/src/db"
	"creditnote/src/engine"
	"creditnote/src/lib"
	"creditnote/src/models"
	"creditnote/src/syncqueue"
	"creditnote/src/types"
	"log"

	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.CreditNote{},
		&models.RedemptionRecord{},
		&models.SyncQueueItem{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

// InitScheduler registers the background jobs: the drain loop that replays
// queued offline operations, and the sweep that persists expired statuses.
func InitScheduler(eng *engine.Engine, queue *syncqueue.Queue) {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}

	if _, err := lib.CreateCronJob("sync-queue-drain", config.DrainInterval(), func() {
		DrainAllShops(queue)
	}); err != nil {
		log.Printf("Error registering drain job: %s\n", err.Error())
	}

	if _, err := lib.CreateCronJob("expire-sweep", config.ExpireSweepInterval(), func() {
		swept, err := eng.ExpireSweep(context.Background())
		if err != nil {
			log.Printf("Error sweeping expired notes: %s\n", err.Error())
			return
		}
		if swept > 0 {
			log.Printf("Marked %d notes expired\n", swept)
		}
	}); err != nil {
		log.Printf("Error registering expire sweep job: %s\n", err.Error())
	}

	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	err = sched.Shutdown()
	if err != nil {
		log.Println("An error has occurred while shutting stopping Scheduler. Check logs for info")
		return
	}
}

// DrainAllShops runs one drain pass for every shop that has eligible items.
func DrainAllShops(queue *syncqueue.Queue) {
	d := db.GetDb()
	var shops []string
	err := d.
		Model(&models.SyncQueueItem{}).
		Where(&models.SyncQueueItem{Status: types.SYNC_PENDING}).
		Distinct("shop").
		Pluck("shop", &shops).
		Error
	if err != nil {
		log.Printf("Error retrieving shops with pending items: %s\n", err.Error())
		return
	}
	for _, shop := range shops {
		result, err := queue.Drain(context.Background(), shop, syncqueue.DefaultDrainLimit)
		if err != nil {
			log.Printf("Error draining queue for %s: %s\n", shop, err.Error())
			continue
		}
		if result.Processed > 0 || result.Failed > 0 {
			log.Printf("Drained queue for %s: processed=%d failed=%d remaining=%d\n", shop, result.Processed, result.Failed, result.Remaining)
		}
	}
}
