// Package command provides typed builders and parsers for the HSM's
// object-lifecycle and signing operations — the "one struct per command"
// layer the protocol core treats as an opaque payload.
package command

// Algorithm identifies an asymmetric key algorithm or signing scheme.
type Algorithm uint8

const (
	AlgorithmEC_P256      Algorithm = 12
	AlgorithmEC_Secp256k1 Algorithm = 15
	AlgorithmEd25519      Algorithm = 46
)

// Capability is a single bit in a 64-bit capability bitmask.
type Capability uint64

const (
	CapabilityGetOpaque           Capability = 1 << 0
	CapabilityPutOpaque           Capability = 1 << 1
	CapabilityPutAuthKey          Capability = 1 << 2
	CapabilityPutAsymmetricKey    Capability = 1 << 3
	CapabilityGenerateAsymmetric  Capability = 1 << 4
	CapabilityAsymmetricSignEcdsa Capability = 1 << 7
	CapabilityAsymmetricSignEddsa Capability = 1 << 8
	CapabilityExportWrapped       Capability = 1 << 12
	CapabilityImportWrapped       Capability = 1 << 13
	CapabilityPutWrapKey          Capability = 1 << 14
	CapabilityGetRandomness       Capability = 1 << 19
)

// Domain is a single bit in a 16-bit domain bitmask (1-16).
type Domain uint16

const (
	Domain1 Domain = 1 << iota
	Domain2
	Domain3
	Domain4
	Domain5
	Domain6
	Domain7
	Domain8
	Domain9
	Domain10
	Domain11
	Domain12
	Domain13
	Domain14
	Domain15
	Domain16
)

// ObjectType identifies the class of object stored on the device.
type ObjectType uint8

const (
	ObjectTypeOpaque            ObjectType = 0x01
	ObjectTypeAuthenticationKey ObjectType = 0x02
	ObjectTypeAsymmetricKey     ObjectType = 0x03
	ObjectTypeWrapKey           ObjectType = 0x04
)

// ListObjectParamTag identifies a TLV filter field in a ListObjects request.
type ListObjectParamTag uint8

const (
	ListObjectParamID     ListObjectParamTag = 0x01
	ListObjectParamType   ListObjectParamTag = 0x02
	ListObjectParamDomain ListObjectParamTag = 0x03
	ListObjectParamLabel  ListObjectParamTag = 0x05
)

// LabelLength is the fixed, zero-padded label size on the wire.
const LabelLength = 40
