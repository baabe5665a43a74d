package account

// Resolver maps packet receiver bytes to a usable local account.
type Resolver struct {
	Burn Address
}

func NewResolver(burn Address) Resolver {
	if burn.IsZero() {
		burn = BurnAddress
	}
	return Resolver{Burn: burn}
}

// Resolve never fails. Bytes of the wrong width and the zero identifier both
// resolve to the burn sentinel with valid=false, so callers always report the
// substitution.
func (r Resolver) Resolve(raw []byte) (addr Address, valid bool) {
	burn := r.Burn
	if burn.IsZero() {
		burn = BurnAddress
	}
	if len(raw) != AddressLength {
		return burn, false
	}
	addr = BytesToAddress(raw)
	if addr.IsZero() {
		return burn, false
	}
	return addr, true
}
