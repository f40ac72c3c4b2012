package model

// Role is the closed set of actor roles known to the ledger. Role claims are
// verified upstream (the identity subsystem); the ledger trusts them and only
// re-checks ownership.
type Role string

const (
	RoleProducer  Role = "producer"
	RoleCertifier Role = "certifier"
	RoleBuyer     Role = "buyer"
	RoleAuditor   Role = "auditor"
)

// Capability names a single ledger operation that a role may or may not hold.
type Capability int

const (
	CapSubmitBatch Capability = iota
	CapVerifyBatch
	CapApproveBatch
	CapRejectBatch
	CapMintCredit
	CapTransferCredit
	CapRetireCredit
	CapPurchaseCredit
	CapViewAllTransactions
	CapUpdateTransaction
)

// capabilities is the single source of truth for role → operation access.
// Handlers gate every mutating route through Role.Can instead of comparing
// role strings inline.
var capabilities = map[Role]map[Capability]bool{
	RoleProducer: {
		CapSubmitBatch:    true,
		CapTransferCredit: true, // producers sell their minted credits
	},
	RoleCertifier: {
		CapVerifyBatch:         true,
		CapApproveBatch:        true,
		CapRejectBatch:         true,
		CapMintCredit:          true,
		CapViewAllTransactions: true,
		CapUpdateTransaction:   true,
	},
	RoleBuyer: {
		CapTransferCredit: true,
		CapRetireCredit:   true,
		CapPurchaseCredit: true,
	},
	RoleAuditor: {
		CapViewAllTransactions: true,
		CapUpdateTransaction:   true,
	},
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleProducer, RoleCertifier, RoleBuyer, RoleAuditor:
		return true
	}
	return false
}

// Can reports whether the role holds the given capability.
func (r Role) Can(c Capability) bool {
	return capabilities[r][c]
}
