package resolver

import "strings"

// Canonical names the primary asset among tokens that share a symbol.
type Canonical struct {
	Name   string `yaml:"name" json:"name"`
	Symbol string `yaml:"symbol" json:"symbol"`
}

// Config is the resolver's lookup data. A Resolver keeps its own copy.
type Config struct {
	// Aliases maps a lower-cased input to the display name searched first.
	Aliases map[string]string
	// Canonical predicates are tried in order.
	Canonical []Canonical
	// Blacklist keywords mark derivative tokens (wrapped, bridged, pegged).
	Blacklist []string
	// KnownNames maps an upper-cased symbol to its expected token name.
	KnownNames map[string]string

	NameLimit    int
	SymbolLimit  int
	ListingLimit int
}

func DefaultConfig() Config {
	return Config{
		Aliases: map[string]string{
			"btc":     "Bitcoin",
			"bitcoin": "Bitcoin",
			"eth":     "Ethereum",
			"ether":   "Ethereum",
			"doge":    "Dogecoin",
			"avax":    "Avalanche",
			"sol":     "Solana",
			"matic":   "Polygon",
			"pol":     "Polygon",
			"bnb":     "BNB",
			"xrp":     "XRP",
			"ada":     "Cardano",
			"dot":     "Polkadot",
			"link":    "Chainlink",
			"ltc":     "Litecoin",
			"uni":     "Uniswap",
			"atom":    "Cosmos",
			"trx":     "TRON",
			"shib":    "Shiba Inu",
			"wif":     "dogwifhat",
		},
		Canonical: []Canonical{
			{Name: "Bitcoin", Symbol: "BTC"},
			{Name: "Ethereum", Symbol: "ETH"},
			{Name: "Dogecoin", Symbol: "DOGE"},
			{Name: "Avalanche", Symbol: "AVAX"},
			{Name: "Solana", Symbol: "SOL"},
			{Name: "Polygon", Symbol: "MATIC"},
		},
		Blacklist: []string{
			"wrapped",
			"bridged",
			"peg",
			"wormhole",
			"binance-peg",
			"staked",
			"synthetic",
		},
		KnownNames: map[string]string{
			"BTC":   "Bitcoin",
			"ETH":   "Ethereum",
			"DOGE":  "Dogecoin",
			"AVAX":  "Avalanche",
			"SOL":   "Solana",
			"MATIC": "Polygon",
			"ADA":   "Cardano",
			"DOT":   "Polkadot",
			"LINK":  "Chainlink",
			"LTC":   "Litecoin",
			"UNI":   "Uniswap",
			"ATOM":  "Cosmos",
			"SHIB":  "Shiba Inu",
			"WIF":   "dogwifhat",
		},
		NameLimit:    5,
		SymbolLimit:  10,
		ListingLimit: 50,
	}
}

// Merge overlays o on c. Map entries in o replace entries in c; canonical pairs and blacklist
// keywords are appended when not already present. Non-zero limits in o win.
func (c Config) Merge(o Config) Config {
	out := c.clone()
	for k, v := range o.Aliases {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.TrimSpace(v) != "" {
			out.Aliases[k] = strings.TrimSpace(v)
		}
	}
	for k, v := range o.KnownNames {
		if k = strings.ToUpper(strings.TrimSpace(k)); k != "" && strings.TrimSpace(v) != "" {
			out.KnownNames[k] = strings.TrimSpace(v)
		}
	}
	for _, pair := range o.Canonical {
		if strings.TrimSpace(pair.Name) == "" || strings.TrimSpace(pair.Symbol) == "" {
			continue
		}
		if !containsCanonical(out.Canonical, pair) {
			out.Canonical = append(out.Canonical, pair)
		}
	}
	for _, kw := range o.Blacklist {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && !containsFold(out.Blacklist, kw) {
			out.Blacklist = append(out.Blacklist, kw)
		}
	}
	if o.NameLimit > 0 {
		out.NameLimit = o.NameLimit
	}
	if o.SymbolLimit > 0 {
		out.SymbolLimit = o.SymbolLimit
	}
	if o.ListingLimit > 0 {
		out.ListingLimit = o.ListingLimit
	}
	return out
}

func (c Config) clone() Config {
	out := c
	out.Aliases = make(map[string]string, len(c.Aliases))
	for k, v := range c.Aliases {
		out.Aliases[strings.ToLower(k)] = v
	}
	out.KnownNames = make(map[string]string, len(c.KnownNames))
	for k, v := range c.KnownNames {
		out.KnownNames[strings.ToUpper(k)] = v
	}
	out.Canonical = append([]Canonical(nil), c.Canonical...)
	out.Blacklist = append([]string(nil), c.Blacklist...)
	return out
}

func containsCanonical(items []Canonical, pair Canonical) bool {
	for _, item := range items {
		if strings.EqualFold(item.Name, pair.Name) && strings.EqualFold(item.Symbol, pair.Symbol) {
			return true
		}
	}
	return false
}

func containsFold(items []string, value string) bool {
	for _, item := range items {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
