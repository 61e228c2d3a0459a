package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"campuspresence/internal/api"
	"campuspresence/internal/auth"
	"campuspresence/internal/config"
	"campuspresence/internal/feed"
	"campuspresence/internal/geocode"
	"campuspresence/internal/metrics"
	"campuspresence/internal/models"
	"campuspresence/internal/prefs"
	"campuspresence/internal/publisher"
	"campuspresence/internal/roster"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	cred, err := auth.ParseCredential(cfg.Auth.Token)
	if err != nil {
		log.Fatalf("credential parse: %v", err)
	}
	if cred.Expired(time.Now()) {
		log.Fatalf("credential for subject %s is expired", cred.SubjectID)
	}

	store, err := buildPrefsStore(cfg)
	if err != nil {
		log.Fatalf("prefs store: %v", err)
	}
	defer store.Close()

	areas := buildGeocodeCache(cfg)

	apiTimeout, _ := cfg.API.GetTimeout()
	client := api.NewClient(cfg.API.BaseURL, cred, apiTimeout)

	// Room feeds
	reconnectDelay, _ := cfg.Feed.GetReconnectDelay()
	snapshotCutoff, _ := cfg.Feed.GetSnapshotCutoff()
	feeds := feed.NewManager(feed.Config{
		ServerURL:      cfg.Feed.ServerURL,
		ReconnectDelay: reconnectDelay,
		SnapshotCutoff: snapshotCutoff,
	}, client)
	defer feeds.CloseAll()

	rooms := splitRooms(os.Getenv("FEED_ROOMS"))
	for _, room := range rooms {
		r := roster.NewRoster(room, roster.Config{Resolver: areas})
		if err := feeds.Open(room, cred, r); err != nil {
			log.Fatalf("open room %s: %v", room, err)
		}
	}

	// Background publisher, started when a location source is configured
	minInterval, _ := cfg.Publisher.GetMinInterval()
	pub := publisher.New(buildSource(cfg), client, store, areas, publisher.Config{MinInterval: minInterval})
	if mode, ok := publishMode(rooms); ok {
		if err := pub.Start(context.Background(), mode); err != nil {
			log.Printf("publisher not started: %v", err)
		}
	}
	defer func() {
		pub.Stop()
		pub.Wait()
	}()

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","agent":"%s","version":"%s"}`, cfg.Agent.Name, cfg.Agent.Version)
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Agent.Port),
		Handler: r,
	}
	go func() {
		log.Printf("starting %s on %s", cfg.Agent.Name, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

// buildPrefsStore selects the preference backend by driver name
func buildPrefsStore(cfg *config.Config) (prefs.Store, error) {
	switch cfg.Prefs.Driver {
	case "memory":
		return prefs.NewMemoryStore(), nil
	case "nats":
		return prefs.NewKVStore(prefs.KVConfig{
			ServerURL:  cfg.Prefs.NATSURL,
			BucketName: cfg.Prefs.Bucket,
			Embedded:   cfg.Prefs.Embedded,
			DataDir:    cfg.Prefs.DataDir,
		})
	case "redis":
		return prefs.NewRedisStore(cfg.Prefs.RedisAddr), nil
	default:
		return nil, fmt.Errorf("unknown prefs driver %q", cfg.Prefs.Driver)
	}
}

func buildGeocodeCache(cfg *config.Config) *geocode.Cache {
	timeout, _ := cfg.Geocode.GetTimeout()
	ttl, _ := cfg.Geocode.GetTTL()
	resolver := geocode.NewHTTPResolver(cfg.Geocode.ResolverURL, timeout)
	return geocode.NewCache(resolver, geocode.CacheConfig{
		Capacity:  cfg.Geocode.Capacity,
		TTL:       ttl,
		Precision: cfg.Geocode.Precision,
	})
}

// buildSource returns the device location source. Without real positioning
// hardware the agent samples a fixed point configured via SOURCE_LAT and
// SOURCE_LON.
func buildSource(cfg *config.Config) publisher.Source {
	lat, errLat := strconv.ParseFloat(os.Getenv("SOURCE_LAT"), 64)
	lon, errLon := strconv.ParseFloat(os.Getenv("SOURCE_LON"), 64)
	interval, _ := cfg.Publisher.GetDesiredInterval()

	return &publisher.FuncSource{
		Interval: interval,
		Sample: func(ctx context.Context) (models.Fix, error) {
			if errLat != nil || errLon != nil {
				return models.Fix{}, publisher.ErrPermissionDenied
			}
			return models.Fix{Lat: lat, Lon: lon, Timestamp: time.Now().UTC()}, nil
		},
	}
}

// publishMode maps PUBLISH_MODE to a publisher mode. An unset or "off" value
// leaves the publisher stopped until the subject opts in.
func publishMode(rooms []string) (publisher.Mode, bool) {
	switch os.Getenv("PUBLISH_MODE") {
	case "global":
		return publisher.GlobalMode(rooms), true
	case "room":
		if len(rooms) > 0 {
			return publisher.RoomMode(rooms[0]), true
		}
	}
	return publisher.Mode{}, false
}

func splitRooms(value string) []string {
	var rooms []string
	for _, room := range strings.Split(value, ",") {
		if room = strings.TrimSpace(room); room != "" {
			rooms = append(rooms, room)
		}
	}
	return rooms
}
