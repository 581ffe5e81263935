package controllers

import (
	"net/http"

	"github.com/angelmondragon/stockledger-backend/api/middleware"
	"github.com/angelmondragon/stockledger-backend/api/responses"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
)

type capabilities struct {
	Role            enums.Role          `json:"role"`
	CanSellTo       []enums.Role        `json:"can_sell_to"`
	CanBuyFrom      []enums.Role        `json:"can_buy_from"`
	HasInventory    bool                `json:"has_inventory"`
	HasRawMaterials bool                `json:"has_raw_materials"`
	IncomingBucket  enums.StockBucket   `json:"incoming_bucket"`
	Buckets         []enums.StockBucket `json:"buckets"`
}

var tradingRoles = []enums.Role{
	enums.RoleManufacturer,
	enums.RoleDistributor,
	enums.RoleRetailer,
	enums.RoleBuyer,
}

// Capabilities describes what the caller's role may trade and hold, so
// clients can hide actions the ledger would refuse.
func Capabilities() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := middleware.RoleFromContext(r.Context())
		out := capabilities{
			Role:            role,
			CanSellTo:       []enums.Role{},
			CanBuyFrom:      []enums.Role{},
			HasInventory:    role.HasInventory(),
			HasRawMaterials: role.HasRawMaterials(),
			IncomingBucket:  role.IncomingBucket(),
			Buckets:         []enums.StockBucket{},
		}
		for _, other := range tradingRoles {
			if role.CanSellTo(other) {
				out.CanSellTo = append(out.CanSellTo, other)
			}
			if role.CanBuyFrom(other) {
				out.CanBuyFrom = append(out.CanBuyFrom, other)
			}
		}
		if out.HasInventory {
			out.Buckets = append(out.Buckets, enums.StockBucketInventory)
		}
		if out.HasRawMaterials {
			out.Buckets = append(out.Buckets, enums.StockBucketRawMaterial)
		}
		responses.WriteSuccess(w, out)
	}
}
