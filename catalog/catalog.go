// Package catalog maps purchasable entitlements to their price in the
// network's base unit. Catalogs are immutable once built and safe for
// concurrent use.
package catalog

import (
	"fmt"
	"math/big"
	"math/bits"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// EntitlementKind is a purchasable in-game entitlement.
type EntitlementKind int

const (
	VoucherRegular EntitlementKind = iota + 1
	VoucherPlus
	VoucherPremium
	VoucherGolden

	PokeBall
	GreatBall
	UltraBall
	RogueBall
	MasterBall
	LuxuryBall
)

// Family groups entitlement kinds that share a purchase flow.
type Family string

const (
	FamilyVoucher    Family = "voucher"
	FamilyConsumable Family = "consumable"
)

var kindNames = map[EntitlementKind]string{
	VoucherRegular: "VOUCHER_REGULAR",
	VoucherPlus:    "VOUCHER_PLUS",
	VoucherPremium: "VOUCHER_PREMIUM",
	VoucherGolden:  "VOUCHER_GOLDEN",
	PokeBall:       "POKE_BALL",
	GreatBall:      "GREAT_BALL",
	UltraBall:      "ULTRA_BALL",
	RogueBall:      "ROGUE_BALL",
	MasterBall:     "MASTER_BALL",
	LuxuryBall:     "LUXURY_BALL",
}

func (k EntitlementKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EntitlementKind(%d)", int(k))
}

// Valid reports whether k is a known kind.
func (k EntitlementKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func (k EntitlementKind) Family() Family {
	if k >= VoucherRegular && k <= VoucherGolden {
		return FamilyVoucher
	}
	return FamilyConsumable
}

// ParseKind resolves a kind from its name, case-insensitively.
func ParseKind(name string) (EntitlementKind, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for k, n := range kindNames {
		if n == upper {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown entitlement kind %q", name)
}

// Kinds returns every known kind in declaration order.
func Kinds() []EntitlementKind {
	kinds := make([]EntitlementKind, 0, len(kindNames))
	for k := range kindNames {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Lamport prices, 1 SOL = 1,000,000,000 lamports.
var defaultPrices = map[EntitlementKind]uint64{
	VoucherRegular: 50_000_000,
	VoucherPlus:    300_000_000,
	VoucherPremium: 500_000_000,
	VoucherGolden:  1_000_000_000,

	PokeBall:   50_000_000,
	GreatBall:  100_000_000,
	UltraBall:  200_000_000,
	RogueBall:  300_000_000,
	MasterBall: 1_000_000_000,
	LuxuryBall: 150_000_000,
}

// Catalog is an immutable price table.
type Catalog struct {
	prices map[EntitlementKind]uint64
}

var defaultCatalog = &Catalog{prices: defaultPrices}

// Default returns the built-in lamport price table.
func Default() *Catalog {
	return defaultCatalog
}

// PriceOf returns the default price of kind in base units.
func PriceOf(kind EntitlementKind) uint64 {
	return defaultCatalog.PriceOf(kind)
}

// New builds a catalog from the default table with the given overrides applied.
func New(overrides map[EntitlementKind]uint64) (*Catalog, error) {
	prices := make(map[EntitlementKind]uint64, len(defaultPrices))
	for k, p := range defaultPrices {
		prices[k] = p
	}
	for k, p := range overrides {
		if !k.Valid() {
			return nil, fmt.Errorf("unknown entitlement kind %d", int(k))
		}
		if p == 0 {
			return nil, fmt.Errorf("price of %s must be greater than 0", k)
		}
		prices[k] = p
	}
	return &Catalog{prices: prices}, nil
}

// FromNames builds a catalog from overrides keyed by kind name, as found in config files.
func FromNames(overrides map[string]uint64) (*Catalog, error) {
	byKind := make(map[EntitlementKind]uint64, len(overrides))
	for name, p := range overrides {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		byKind[k] = p
	}
	return New(byKind)
}

// PriceOf returns the price of kind in base units. An unmapped kind is a
// programming error and panics.
func (c *Catalog) PriceOf(kind EntitlementKind) uint64 {
	p, ok := c.prices[kind]
	if !ok {
		panic(fmt.Sprintf("catalog: no price for %s", kind))
	}
	return p
}

// DisplayPrice converts the price of kind to whole tokens.
func (c *Catalog) DisplayPrice(kind EntitlementKind, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(c.PriceOf(kind)), -decimals)
}

// Quote is a price locked at request time.
type Quote struct {
	Kind      EntitlementKind
	Quantity  int
	UnitPrice uint64
	Total     uint64
}

// Quote prices quantity units of kind. It fails for quantity < 1 or when the
// total does not fit in 64 bits.
func (c *Catalog) Quote(kind EntitlementKind, quantity int) (Quote, error) {
	if quantity < 1 {
		return Quote{}, fmt.Errorf("quantity %d is below 1", quantity)
	}
	unit := c.PriceOf(kind)
	hi, total := bits.Mul64(unit, uint64(quantity))
	if hi != 0 {
		return Quote{}, fmt.Errorf("total price of %d x %s overflows", quantity, kind)
	}
	return Quote{Kind: kind, Quantity: quantity, UnitPrice: unit, Total: total}, nil
}
