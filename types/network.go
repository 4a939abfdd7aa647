package types

// Network represents supported blockchain networks
type Network string

const (
	// Solana Networks
	NetworkSolanaMainnet  Network = "solana-mainnet"
	NetworkSolanaDevnet   Network = "solana-devnet" // testnet
	NetworkSolanaLocalnet Network = "solana-localnet"

	// EVM Networks
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy" // testnet
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia" // testnet

	// Cosmos Networks
	NetworkCosmosHub     Network = "cosmoshub-4"
	NetworkCosmosTestnet Network = "theta-testnet-001"
)

// ChainFamily classifies a network into a blockchain family.
type ChainFamily string

const (
	ChainEVM    ChainFamily = "evm"
	ChainSolana ChainFamily = "solana"
	ChainCosmos ChainFamily = "cosmos"
)

// Networks lists every network the library can dial.
func Networks() []Network {
	return []Network{
		NetworkSolanaMainnet, NetworkSolanaDevnet, NetworkSolanaLocalnet,
		NetworkPolygon, NetworkPolygonAmoy, NetworkBase, NetworkBaseSepolia,
		NetworkCosmosHub, NetworkCosmosTestnet,
	}
}

// Helper functions for network classification
func (n Network) IsEVM() bool {
	return n == NetworkPolygon || n == NetworkPolygonAmoy || n == NetworkBaseSepolia || n == NetworkBase
}

func (n Network) IsSolana() bool {
	return n == NetworkSolanaMainnet || n == NetworkSolanaDevnet || n == NetworkSolanaLocalnet
}

func (n Network) IsCosmos() bool {
	return n == NetworkCosmosHub || n == NetworkCosmosTestnet
}

func (n Network) IsTestnet() bool {
	return n == NetworkPolygonAmoy || n == NetworkBaseSepolia || n == NetworkSolanaDevnet ||
		n == NetworkSolanaLocalnet || n == NetworkCosmosTestnet
}

// Family returns the chain family, or "" for an unknown network.
func (n Network) Family() ChainFamily {
	switch {
	case n.IsSolana():
		return ChainSolana
	case n.IsEVM():
		return ChainEVM
	case n.IsCosmos():
		return ChainCosmos
	default:
		return ""
	}
}

// Decimals is the number of base units per whole native token, as a power of ten.
// Lamports for Solana, wei for EVM, uatom for the Cosmos hub.
func (n Network) Decimals() int32 {
	switch n.Family() {
	case ChainSolana:
		return 9
	case ChainEVM:
		return 18
	case ChainCosmos:
		return 6
	default:
		return 0
	}
}

// Symbol is the ticker of the native token.
func (n Network) Symbol() string {
	switch {
	case n.IsSolana():
		return "SOL"
	case n == NetworkPolygon || n == NetworkPolygonAmoy:
		return "POL"
	case n.IsEVM():
		return "ETH"
	case n.IsCosmos():
		return "ATOM"
	default:
		return ""
	}
}

func (n Network) String() string {
	return string(n)
}
