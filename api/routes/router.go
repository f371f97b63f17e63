package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/barter-backend/api/controllers"
	"github.com/angelmondragon/barter-backend/api/middleware"
	"github.com/angelmondragon/barter-backend/internal/friends"
	"github.com/angelmondragon/barter-backend/internal/items"
	"github.com/angelmondragon/barter-backend/internal/ledger"
	"github.com/angelmondragon/barter-backend/internal/trades"
	"github.com/angelmondragon/barter-backend/internal/users"
	"github.com/angelmondragon/barter-backend/pkg/config"
	"github.com/angelmondragon/barter-backend/pkg/logger"
	"github.com/angelmondragon/barter-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/barter-backend/pkg/redis"
)

// Deps carries everything the HTTP surface needs. Idempotency may be nil
// when Redis is not configured.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
	Idempotency pkgredis.IdempotencyStore
	Readiness   []controllers.ReadinessCheck

	Users   users.Service
	Items   items.Service
	Trades  trades.Service
	Friends friends.Service
	Ledger  ledger.Service
}

func NewRouter(d Deps) http.Handler {
	logg := d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(d.HTTPMetrics),
		middleware.CORS(d.Config.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(d.Config))
		r.Get("/ready", controllers.HealthReady(d.Config, logg, d.Readiness...))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/users", controllers.ListUsers(d.Users, logg))
	r.Get("/users/{userId}", controllers.GetUser(d.Users, logg))
	r.Post("/signup", controllers.Signup(d.Users, logg))
	r.Post("/signin", controllers.Signin(d.Users, logg))

	r.With(middleware.Idempotency(d.Idempotency, middleware.DefaultIdempotencyTTL, logg)).
		Post("/item", controllers.ListItem(d.Items, logg))
	r.Get("/item", controllers.ListItems(d.Items, logg))
	r.Get("/item/{itemId}", controllers.GetItem(d.Items, logg))
	r.Put("/item/{itemId}", controllers.UpdateItem(d.Items, logg))
	r.Delete("/item/{itemId}", controllers.DeleteItem(d.Items, logg))
	r.Get("/item/otherItems/{userId}", controllers.ListOtherItems(d.Items, logg))
	r.Get("/items/random", controllers.ListRandomItems(d.Items, logg))
	r.Get("/owns/{userId}", controllers.ListOwnedItems(d.Items, logg))
	r.Get("/owns/{userId}/{itemId}", controllers.GetOwnedItem(d.Items, logg))
	r.Get("/categories", controllers.ListCategories(d.Items, logg))

	r.With(middleware.Idempotency(d.Idempotency, middleware.DefaultIdempotencyTTL, logg)).
		Post("/postpartnership", controllers.ProposeTrade(d.Trades, logg))
	r.With(middleware.Idempotency(d.Idempotency, middleware.CriticalIdempotencyTTL, logg)).
		Post("/acceptTrade/{postId}", controllers.AcceptTrade(d.Trades, logg))
	r.Delete("/post/{postId}", controllers.CancelTrade(d.Trades, logg))
	r.Get("/posts", controllers.ListPosts(d.Trades, logg))
	r.Get("/posts/{postId}", controllers.GetPost(d.Trades, logg))
	r.Get("/posts/{postId}/state", controllers.TradeState(d.Trades, logg))
	r.Get("/fullPost", controllers.ListFullPosts(d.Trades, logg))
	r.Get("/fullPost/{limit}", controllers.ListFullPosts(d.Trades, logg))
	r.Get("/user-posts/{userId}", controllers.ListUserPosts(d.Trades, logg))
	r.Get("/requested-posts/{userId}", controllers.ListRequestedPosts(d.Trades, logg))
	r.Get("/transactions/{userId}", controllers.ListUserTransactions(d.Ledger, logg))

	r.Post("/addFriend", controllers.AddFriend(d.Friends, logg))
	r.Put("/updateFriend/{friendId}", controllers.UpdateFriend(d.Friends, logg))
	r.Get("/getFriends/{userId}", controllers.GetFriends(d.Friends, logg))
	r.Get("/incomingFriendRequests/{userId}", controllers.IncomingFriendRequests(d.Friends, logg))
	r.Get("/friends/{userId}", controllers.FriendCandidates(d.Friends, logg))

	return r
}
