// Package types contains shared type definitions used across multiple packages
package types

import (
	"sort"
	"strconv"
	"strings"
)

// ChainID is an EIP-155 chain identifier.
type ChainID = uint64

// Networks the bundled adapters know about
const (
	ChainEthereum  ChainID = 1
	ChainOptimism  ChainID = 10
	ChainBSC       ChainID = 56
	ChainGnosis    ChainID = 100
	ChainPolygon   ChainID = 137
	ChainFantom    ChainID = 250
	ChainZkSync    ChainID = 324
	ChainBase      ChainID = 8453
	ChainArbitrum  ChainID = 42161
	ChainAvalanche ChainID = 43114
	ChainLinea     ChainID = 59144
	ChainScroll    ChainID = 534352
)

// NativeTokenAddress is the placeholder most aggregators accept for the gas token.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

var chainNames = map[ChainID]string{
	ChainEthereum:  "ethereum",
	ChainOptimism:  "optimism",
	ChainBSC:       "bsc",
	ChainGnosis:    "gnosis",
	ChainPolygon:   "polygon",
	ChainFantom:    "fantom",
	ChainZkSync:    "zksync",
	ChainBase:      "base",
	ChainArbitrum:  "arbitrum",
	ChainAvalanche: "avalanche",
	ChainLinea:     "linea",
	ChainScroll:    "scroll",
}

// ChainName returns a short network name, or the numeric id for unknown chains.
func ChainName(id ChainID) string {
	if name, ok := chainNames[id]; ok {
		return name
	}
	return strconv.FormatUint(id, 10)
}

// ChainSet is an immutable chain allow-list.
type ChainSet map[ChainID]struct{}

// NewChainSet builds a ChainSet from ids.
func NewChainSet(ids ...ChainID) ChainSet {
	s := make(ChainSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set.
func (s ChainSet) Contains(id ChainID) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the members in ascending order.
func (s ChainSet) IDs() []ChainID {
	ids := make([]ChainID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// wrappedNative holds the canonical wrapped gas token per network.
var wrappedNative = map[ChainID]string{
	ChainEthereum: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
	ChainOptimism: "0x4200000000000000000000000000000000000006",
	ChainBase:     "0x4200000000000000000000000000000000000006",
	ChainArbitrum: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
	ChainPolygon:  "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270",
	ChainBSC:      "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c",
}

// IsNative reports whether token is the native gas token placeholder.
func IsNative(token string) bool {
	return strings.EqualFold(token, NativeTokenAddress)
}

// WrappedNative returns the wrapped gas token for id.
func WrappedNative(id ChainID) (string, bool) {
	addr, ok := wrappedNative[id]
	return addr, ok
}
