package escrow

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NativeAsset is the sentinel symbol for the platform's native value unit.
const NativeAsset = "native"

// Asset describes one value unit sessions may be denominated in.
type Asset struct {
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	// TokenAddress identifies a fungible token; empty for the native asset.
	TokenAddress string `yaml:"token_address"`
}

// AssetRegistry is the set of assets the engine accepts at session creation.
type AssetRegistry struct {
	assets map[string]Asset
}

// NewAssetRegistry builds a registry from the given assets. The native
// sentinel is always present.
func NewAssetRegistry(assets ...Asset) *AssetRegistry {
	r := &AssetRegistry{assets: map[string]Asset{
		NativeAsset: {Symbol: NativeAsset, Decimals: 18},
	}}
	for _, a := range assets {
		symbol := strings.ToLower(strings.TrimSpace(a.Symbol))
		if symbol == "" {
			continue
		}
		a.Symbol = symbol
		r.assets[symbol] = a
	}
	return r
}

// LoadAssetRegistry reads a YAML asset list from path.
func LoadAssetRegistry(path string) (*AssetRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read asset registry: %w", err)
	}
	var doc struct {
		Assets []Asset `yaml:"assets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse asset registry: %w", err)
	}
	for _, a := range doc.Assets {
		if strings.TrimSpace(a.Symbol) == "" {
			return nil, fmt.Errorf("asset registry: entry without symbol")
		}
	}
	return NewAssetRegistry(doc.Assets...), nil
}

// Supported reports whether the symbol may be used for new sessions.
func (r *AssetRegistry) Supported(symbol string) bool {
	if r == nil {
		return symbol == NativeAsset
	}
	_, ok := r.assets[strings.ToLower(strings.TrimSpace(symbol))]
	return ok
}

// Get returns the asset for symbol.
func (r *AssetRegistry) Get(symbol string) (Asset, bool) {
	if r == nil {
		return Asset{}, false
	}
	a, ok := r.assets[strings.ToLower(strings.TrimSpace(symbol))]
	return a, ok
}

// Symbols lists the registered asset symbols.
func (r *AssetRegistry) Symbols() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.assets))
	for s := range r.assets {
		out = append(out, s)
	}
	return out
}
