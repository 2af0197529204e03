package cftc

// DefaultMarkets are the commodity markets tracked by the positioning dashboard,
// named exactly as in the Market_and_Exchange_Names column.
var DefaultMarkets = []string{
	"WHEAT-SRW - CHICAGO BOARD OF TRADE",
	"WHEAT-HRW - CHICAGO BOARD OF TRADE",
	"CORN - CHICAGO BOARD OF TRADE",
	"SOYBEANS - CHICAGO BOARD OF TRADE",
	"SOYBEAN OIL - CHICAGO BOARD OF TRADE",
	"SOYBEAN MEAL - CHICAGO BOARD OF TRADE",
	"OATS - CHICAGO BOARD OF TRADE",
	"ROUGH RICE - CHICAGO BOARD OF TRADE",
	"NAT GAS NYME - NEW YORK MERCANTILE EXCHANGE",
	"NY HARBOR ULSD - NEW YORK MERCANTILE EXCHANGE",
	"GASOLINE RBOB - NEW YORK MERCANTILE EXCHANGE",
	"CRUDE OIL, LIGHT SWEET-WTI - ICE FUTURES EUROPE",
	"WTI FINANCIAL CRUDE OIL - NEW YORK MERCANTILE EXCHANGE",
	"BRENT LAST DAY - NEW YORK MERCANTILE EXCHANGE",
	"GOLD - COMMODITY EXCHANGE INC.",
	"SILVER - COMMODITY EXCHANGE INC.",
	"PLATINUM - NEW YORK MERCANTILE EXCHANGE",
	"PALLADIUM - NEW YORK MERCANTILE EXCHANGE",
	"SUGAR NO. 11 - ICE FUTURES U.S.",
	"COFFEE C - ICE FUTURES U.S.",
	"COCOA - ICE FUTURES U.S.",
	"COTTON NO. 2 - ICE FUTURES U.S.",
	"FRZN CONCENTRATED ORANGE JUICE - ICE FUTURES U.S.",
	"LEAN HOGS - CHICAGO MERCANTILE EXCHANGE",
	"LIVE CATTLE - CHICAGO MERCANTILE EXCHANGE",
	"FEEDER CATTLE - CHICAGO MERCANTILE EXCHANGE",
	"MILK, Class III - CHICAGO MERCANTILE EXCHANGE",
	"LUMBER - CHICAGO MERCANTILE EXCHANGE",
	"CANOLA - ICE FUTURES U.S.",
	"ALUMINUM - COMMODITY EXCHANGE INC.",
	"COPPER- #1 - COMMODITY EXCHANGE INC.",
}

// MarketSet returns a lookup set for markets. An empty list selects DefaultMarkets.
func MarketSet(markets []string) map[string]struct{} {
	if len(markets) == 0 {
		markets = DefaultMarkets
	}
	set := make(map[string]struct{}, len(markets))
	for _, m := range markets {
		set[m] = struct{}{}
	}
	return set
}
