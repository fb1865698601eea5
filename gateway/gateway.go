// Package gateway serves the read-only REST feed consumed by marketplace
// front-ends: live listings and per-asset lookups. It exposes protocol
// state only; metadata resolution and rendering live with the client.
package gateway

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"novamarket/core"
	"novamarket/core/genesis"
	"novamarket/crypto"
	"novamarket/native/market"
)

type Gateway struct {
	node *core.Node
}

func New(node *core.Node) *Gateway {
	return &Gateway{node: node}
}

// Router builds the chi router with the feed endpoints mounted.
func (g *Gateway) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", g.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/listings", g.listListings)
		r.Get("/listings/{asset}", g.getListing)
	})
	return r
}

func (g *Gateway) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           g.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

// requestID tags every response with a unique identifier for log
// correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

type listingResponse struct {
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	CreatedAt uint64 `json:"createdAt"`
}

func (g *Gateway) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) listListings(w http.ResponseWriter, _ *http.Request) {
	listings, err := g.node.Listings()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	out := make([]*listingResponse, 0, len(listings))
	for _, listing := range listings {
		out = append(out, toListingResponse(listing))
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) getListing(w http.ResponseWriter, r *http.Request) {
	asset, err := genesis.ParseAssetID(chi.URLParam(r, "asset"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid asset id"})
		return
	}
	listing, err := g.node.Listing(asset)
	if err != nil {
		if market.IsStateConflict(err) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "listing not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(listing))
}

func toListingResponse(listing *market.Listing) *listingResponse {
	if listing == nil {
		return nil
	}
	address := ""
	if derived, err := market.VerifyListingAddress(listing.Asset, listing.Bump); err == nil {
		address = crypto.NewAddress(crypto.NovaPrefix, derived[:]).String()
	}
	price := "0"
	if listing.Price != nil {
		price = listing.Price.String()
	}
	return &listingResponse{
		Address:   address,
		Owner:     crypto.NewAddress(crypto.NovaPrefix, listing.Owner[:]).String(),
		Asset:     hex.EncodeToString(listing.Asset[:]),
		Price:     price,
		CreatedAt: listing.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
