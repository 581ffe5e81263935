package enums

import "fmt"

// Role is the supply-chain tier a user trades as.
type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleDistributor  Role = "distributor"
	RoleRetailer     Role = "retailer"
	RoleBuyer        Role = "buyer"
)

// RoleWalkInCustomer labels the counterparty of a direct sale. It is not an
// account role and never passes IsValid.
const RoleWalkInCustomer Role = "walk-in-customer"

var validRoles = []Role{
	RoleManufacturer,
	RoleDistributor,
	RoleRetailer,
	RoleBuyer,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known account role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}

// CanSellTo reports whether r may sell to buyer.
//
//	manufacturer -> distributor, retailer, buyer
//	distributor  -> retailer, buyer
//	retailer     -> buyer
//	buyer        -> nobody
func (r Role) CanSellTo(buyer Role) bool {
	switch r {
	case RoleManufacturer:
		return buyer == RoleDistributor || buyer == RoleRetailer || buyer == RoleBuyer
	case RoleDistributor:
		return buyer == RoleRetailer || buyer == RoleBuyer
	case RoleRetailer:
		return buyer == RoleBuyer
	case RoleBuyer:
		return false
	}
	return false
}

// CanBuyFrom reports whether r may purchase from seller.
//
//	manufacturer <- manufacturer, distributor
//	distributor  <- manufacturer
//	retailer     <- manufacturer, distributor
//	buyer        <- manufacturer, distributor, retailer
func (r Role) CanBuyFrom(seller Role) bool {
	switch r {
	case RoleManufacturer:
		return seller == RoleManufacturer || seller == RoleDistributor
	case RoleDistributor:
		return seller == RoleManufacturer
	case RoleRetailer:
		return seller == RoleManufacturer || seller == RoleDistributor
	case RoleBuyer:
		return seller == RoleManufacturer || seller == RoleDistributor || seller == RoleRetailer
	}
	return false
}

// HasInventory reports whether the role holds resaleable stock.
func (r Role) HasInventory() bool {
	switch r {
	case RoleManufacturer, RoleDistributor, RoleRetailer:
		return true
	case RoleBuyer:
		return false
	}
	return false
}

// HasRawMaterials reports whether the role keeps a RAW_MATERIAL bucket.
func (r Role) HasRawMaterials() bool {
	return r == RoleManufacturer
}

// IncomingBucket is the bucket purchased goods land in for this role.
func (r Role) IncomingBucket() StockBucket {
	if r == RoleManufacturer {
		return StockBucketRawMaterial
	}
	return StockBucketInventory
}
