package main

import (
	"context"
	"time"

	"github.com/sensive/blog/config"
	"github.com/sensive/blog/models"
	"github.com/sensive/blog/routes"
	"github.com/sensive/blog/store"
	"github.com/sensive/blog/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(&models.User{}, &models.Tag{}, &models.Post{}, &models.Comment{}, &models.PageView{}, &models.Feedback{})
	blogStore := store.NewBlogStore(db)

	rc := utils.GetRedis()
	pageViews := utils.NewPageViewCounter(rc, blogStore)
	flushCtx, stopFlush := context.WithCancel(context.Background())
	flushed := pageViews.Start(flushCtx, time.Duration(cfg.PageViewFlushSeconds)*time.Second)

	r := routes.SetupRouter(routes.Deps{Store: blogStore, Redis: rc, PageViews: pageViews})

	srv := utils.NewServer(":"+cfg.AppPort, r, utils.DefaultReadTimeout, utils.DefaultWriteTimeout)
	srv.OnShutdown(func() {
		stopFlush()
		<-flushed
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := srv.ListenAndServe(); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
