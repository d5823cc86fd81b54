package main

import (
	"context"
	"log/slog"
	"os"
	"pricewatch/lib/configutil"
	"pricewatch/lib/itemstore"
	"pricewatch/lib/notify"
	emailsink "pricewatch/lib/notify/email"
	"pricewatch/lib/notify/telegram"
	"pricewatch/lib/pricehistory"
	"pricewatch/lib/scrapers/trendyol"
	"pricewatch/lib/serviceutil"
	"pricewatch/lib/telemetry"
	"pricewatch/services/tracker"
	"time"
)

type Config struct {
	CheckIntervalMinutes int      `json:"check_interval_minutes"`
	AllowedSubscribers   []string `json:"allowed_subscribers"`
	// chat id for aggregate operational alerts, empty disables alerting
	AdminChatId string `json:"admin_chat_id"`
	// email address for operational alerts when smtp is configured,
	// takes precedence over admin_chat_id
	AdminEmail string `json:"admin_email"`

	UserAgent           string  `json:"user_agent"`
	FetchTimeoutSeconds int     `json:"fetch_timeout_seconds"`
	MinPrice            float64 `json:"min_price"`
	MaxPrice            float64 `json:"max_price"`
	PriceTolerance      float64 `json:"price_tolerance"`
	Workers             int     `json:"workers"`
	ErrorThreshold      int     `json:"error_threshold"`

	StorePath     string `json:"store_path"`
	HistoryDbPath string `json:"history_db_path"`

	TelegramToken string            `json:"telegram_token"`
	Smtp          emailsink.Options `json:"smtp"`
}

func main() {
	ctx := serviceutil.SignalContext()

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.StorePath == "" {
		config.StorePath = "tracked_products.json"
	}
	if len(config.AllowedSubscribers) == 0 {
		slog.Warn("no allowed subscribers configured, nothing will ever be tracked or polled")
	}

	t, err := telemetry.SetupFromEnv(ctx, "pricewatchd")
	if os.IsNotExist(err) {
		slog.Warn("no telemetry config found, running without exporters")
	} else if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	} else {
		defer t.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)
	}

	store := itemstore.Open(config.StorePath)

	var history *pricehistory.Store
	if config.HistoryDbPath != "" {
		h, err := pricehistory.Open(config.HistoryDbPath)
		if err != nil {
			serviceutil.Fatal("failed to open price history db", err)
		}
		history = &h
	}

	scraper := trendyol.NewClient(trendyol.ClientOptions{
		UserAgent: config.UserAgent,
		Timeout:   time.Duration(config.FetchTimeoutSeconds) * time.Second,
	})

	sink := telegram.NewSink(telegram.Options{Token: config.TelegramToken})

	var alertSink notify.Sink = sink
	admin := config.AdminChatId
	if config.Smtp.Host != "" && config.AdminEmail != "" {
		alertSink = emailsink.NewSink(config.Smtp)
		admin = config.AdminEmail
	}

	service := tracker.NewService(tracker.Options{
		Store:              store,
		Scraper:            scraper,
		Extractor:          trendyol.NewExtractor(config.MinPrice, config.MaxPrice),
		History:            history,
		Sink:               sink,
		AlertSink:          alertSink,
		Admin:              admin,
		AllowedSubscribers: config.AllowedSubscribers,
		Interval:           time.Duration(config.CheckIntervalMinutes) * time.Minute,
		Tolerance:          config.PriceTolerance,
		Workers:            config.Workers,
		ErrorThreshold:     config.ErrorThreshold,
	})

	service.Run(ctx)
}
