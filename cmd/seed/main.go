package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"eventcart/internal/api"
	"eventcart/internal/config"
	"eventcart/internal/logger"
	"eventcart/internal/models"
	"eventcart/internal/search"
	"eventcart/internal/service"

	"github.com/shopspring/decimal"
)

var (
	eventCount  = flag.Int("events", 20, "Number of events to generate")
	withCoupons = flag.Bool("coupons", true, "Also create sample coupons")
	dryRun      = flag.Bool("dry-run", false, "Show what would be generated without making changes")
	seed        = flag.Int64("seed", 0, "Random seed (0 = current time)")
)

var (
	cities  = []string{"Córdoba", "Buenos Aires", "Rosario", "Mendoza", "La Plata"}
	artists = []string{"Rock Night", "Jazz Session", "Tango Show", "Stand Up", "Opera Gala", "Derby", "Tech Summit"}
	types   = []models.EventType{
		models.EventTypeConcert, models.EventTypeTheater, models.EventTypeFestival,
		models.EventTypeSport, models.EventTypeConference, models.EventTypeOther,
	}
)

// EventGenerator строит случайные события с зонами
type EventGenerator struct {
	rnd *rand.Rand
	now time.Time
}

func NewEventGenerator(seed int64, now time.Time) *EventGenerator {
	return &EventGenerator{rnd: rand.New(rand.NewSource(seed)), now: now}
}

func (g *EventGenerator) Event(n int) *models.EventRequest {
	available := models.FlexibleBool(true)
	return &models.EventRequest{
		Name:                 fmt.Sprintf("%s #%d", artists[g.rnd.Intn(len(artists))], n),
		City:                 cities[g.rnd.Intn(len(cities))],
		Address:              fmt.Sprintf("Av. Principal %d", g.rnd.Intn(2000)+1),
		EventDate:            g.now.Add(time.Duration(g.rnd.Intn(180)+1) * 24 * time.Hour).Truncate(time.Hour),
		Type:                 types[g.rnd.Intn(len(types))],
		AvailableForPurchase: &available,
		Localities:           g.localities(),
	}
}

// localities: от одной до трёх зон, ближние дороже
func (g *EventGenerator) localities() []models.LocalityRequest {
	names := []string{"VIP", "PLATEA", "GENERAL"}
	count := g.rnd.Intn(len(names)) + 1
	names = names[len(names)-count:]

	out := make([]models.LocalityRequest, 0, count)
	for i, name := range names {
		base := int64(2000 * (count - i))
		price := decimal.NewFromInt(base + int64(g.rnd.Intn(1000)))
		out = append(out, models.LocalityRequest{
			Name:          name,
			Price:         &price,
			TotalCapacity: g.rnd.Intn(901) + 100,
		})
	}
	return out
}

func (g *EventGenerator) Coupons() []*models.CouponRequest {
	pct := func(v int64) *decimal.Decimal { d := decimal.NewFromInt(v); return &d }
	expires := g.now.Add(90 * 24 * time.Hour)
	return []*models.CouponRequest{
		{Name: "WELCOME10", DiscountPercent: pct(10), ExpiresAt: expires},
		{Name: "BIG25", DiscountPercent: pct(25), ExpiresAt: expires, MinPurchaseAmount: pct(10000)},
		{Name: "FREEPASS", DiscountPercent: pct(100), ExpiresAt: g.now.Add(7 * 24 * time.Hour)},
	}
}

func main() {
	flag.Parse()

	cfg := config.MustLoad()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	slog.Info("Starting event generator...", "events", *eventCount)

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	gen := NewEventGenerator(*seed, time.Now().UTC())

	if *dryRun {
		for i := 1; i <= *eventCount; i++ {
			e := gen.Event(i)
			slog.Info("[DRY RUN] Would create event",
				"name", e.Name, "city", e.City, "type", e.Type, "localities", len(e.Localities))
		}
		return
	}

	store, _, err := api.OpenStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	defer store.Close()

	deps := service.Deps{Store: store}
	if cfg.Elasticsearch.Enabled {
		es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			logger.Fatal("Failed to connect to Elasticsearch", "error", err)
		}
		deps.Index = es
	}
	services := service.NewServices(deps)

	ctx := context.Background()
	created := 0
	for i := 1; i <= *eventCount; i++ {
		event, err := services.Events.Create(ctx, gen.Event(i))
		if err != nil {
			slog.Error("Failed to create event", "n", i, "error", err)
			continue
		}
		created++
		slog.Debug("Created event", "event_id", event.ID, "name", event.Name)
	}

	if *withCoupons {
		for _, c := range gen.Coupons() {
			if _, err := services.Coupons.Create(ctx, c); err != nil {
				slog.Warn("Skipping coupon", "coupon", c.Name, "error", err)
			}
		}
	}

	slog.Info("Generation completed successfully!", "events_created", created)
}
