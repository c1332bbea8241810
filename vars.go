package socks5d

import (
	"expvar"
	"fmt"
)

// getVarInt returns the *expvar.Int registered at the given dotted path,
// creating it on first use. Mirrors the teacher's vars.go helper, which
// keys every counter under a stable "<package>.<component>.<id>.<metric>"
// name so repeated calls from different goroutines share one variable.
func getVarInt(component, id, name string) *expvar.Int {
	full := fmt.Sprintf("socks5d.%s.%s.%s", component, id, name)
	if v := expvar.Get(full); v != nil {
		return v.(*expvar.Int)
	}
	return expvar.NewInt(full)
}
