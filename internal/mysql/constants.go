package mysql

// Protocol constants. Values are defined by the MySQL client/server
// protocol; only the subset the emulator speaks is listed.

const (
	protocolVersion = 10
	serverVersion   = "8.0.32-fauxcloud"

	// utf8_general_ci, the charset every packet advertises.
	charsetUTF8 = 0x21

	authPluginName = "mysql_native_password"

	statusAutocommit uint16 = 0x0002
)

// Client/server capability flags exchanged during handshake.
const (
	CapabilityLongPassword uint32 = 1 << iota
	CapabilityFoundRows
	CapabilityLongFlag
	CapabilityConnectWithDB
	CapabilityNoSchema
	CapabilityCompress
	CapabilityODBC
	CapabilityLocalFiles
	CapabilityIgnoreSpace
	CapabilityProtocol41
	CapabilityInteractive
	CapabilitySSL
	CapabilityIgnoreSigpipe
	CapabilityTransactions
	CapabilityReserved
	CapabilitySecureConnection
	CapabilityMultiStatements
	CapabilityMultiResults
	CapabilityPSMultiResults
	CapabilityPluginAuth
	CapabilityConnectAttrs
	CapabilityPluginAuthLenencClientData
)

// serverCapabilities is what the handshake advertises. DEPRECATE_EOF is
// deliberately absent, result sets always close with EOF packets.
const serverCapabilities = CapabilityLongPassword |
	CapabilityFoundRows |
	CapabilityLongFlag |
	CapabilityConnectWithDB |
	CapabilityProtocol41 |
	CapabilityTransactions |
	CapabilitySecureConnection |
	CapabilityPluginAuth |
	CapabilityPluginAuthLenencClientData

// Command bytes, first byte of every ready-state packet.
const (
	ComQuit        byte = 0x01
	ComInitDB      byte = 0x02
	ComQuery       byte = 0x03
	ComPing        byte = 0x0e
	ComStmtPrepare byte = 0x16
	ComStmtExecute byte = 0x17
	ComStmtClose   byte = 0x19
)

// Column type codes used in column definitions, bound parameters and
// binary rows.
const (
	TypeDecimal    byte = 0x00
	TypeTiny       byte = 0x01
	TypeShort      byte = 0x02
	TypeLong       byte = 0x03
	TypeFloat      byte = 0x04
	TypeDouble     byte = 0x05
	TypeNull       byte = 0x06
	TypeTimestamp  byte = 0x07
	TypeLongLong   byte = 0x08
	TypeInt24      byte = 0x09
	TypeDate       byte = 0x0a
	TypeTime       byte = 0x0b
	TypeDateTime   byte = 0x0c
	TypeYear       byte = 0x0d
	TypeVarchar    byte = 0x0f
	TypeBit        byte = 0x10
	TypeJSON       byte = 0xf5
	TypeNewDecimal byte = 0xf6
	TypeEnum       byte = 0xf7
	TypeSet        byte = 0xf8
	TypeTinyBlob   byte = 0xf9
	TypeMediumBlob byte = 0xfa
	TypeLongBlob   byte = 0xfb
	TypeBlob       byte = 0xfc
	TypeVarString  byte = 0xfd
	TypeString     byte = 0xfe
	TypeGeometry   byte = 0xff
)

// Column definition flags.
const (
	flagNotNull  uint16 = 0x0001
	flagUnsigned uint16 = 0x0020
	flagBinary   uint16 = 0x0080
)

// paramUnsignedFlag is set on the flag byte that accompanies each bound
// parameter's type byte.
const paramUnsignedFlag byte = 0x80

// Error codes surfaced in ERR packets.
const (
	ERUnknownError    uint16 = 1105
	ERNoDB            uint16 = 1046
	ERUnknownTable    uint16 = 1051
	ERUnknownComError uint16 = 1047
	ERUnknownStmt     uint16 = 1243
	ERSyntaxError     uint16 = 1064
)

const sqlStateGeneral = "HY000"
