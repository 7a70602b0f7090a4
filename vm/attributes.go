package vm

import (
	"math/bits"
	"strings"
)

// Attributes are the evaluation flags of a symbol.
type Attributes uint32

const (
	HoldFirst Attributes = 1 << iota
	HoldRest
	HoldAllComplete
	DeepHoldAll
	Flat
	Orderless
	Listable
	SequenceHold
	Protected
	ThreadLocal
	NumericFunction
	ReadProtected
)

// HoldAll holds every argument.
const HoldAll = HoldFirst | HoldRest

var attributeNames = []struct {
	attr Attributes
	name string
}{
	{HoldAllComplete, "HoldAllComplete"},
	{HoldAll, "HoldAll"},
	{HoldFirst, "HoldFirst"},
	{HoldRest, "HoldRest"},
	{DeepHoldAll, "DeepHoldAll"},
	{Flat, "Associative"},
	{Orderless, "Symmetric"},
	{Listable, "Listable"},
	{SequenceHold, "SequenceHold"},
	{Protected, "Protected"},
	{ThreadLocal, "ThreadLocal"},
	{NumericFunction, "NumericFunction"},
	{ReadProtected, "ReadProtected"},
}

// aliases accepted by ParseAttribute in addition to the canonical names.
var attributeAliases = map[string]Attributes{
	"Flat":      Flat,
	"Orderless": Orderless,
}

// ParseAttribute maps an attribute name to its flag.
func ParseAttribute(name string) (Attributes, bool) {
	for _, an := range attributeNames {
		if an.name == name {
			return an.attr, true
		}
	}
	a, ok := attributeAliases[name]
	return a, ok
}

// Names returns the canonical names of the set flags. HoldAll is reported
// instead of HoldFirst and HoldRest when both are set.
func (a Attributes) Names() []string {
	names := make([]string, 0, bits.OnesCount32(uint32(a)))
	rest := a
	for _, an := range attributeNames {
		if rest&an.attr == an.attr && an.attr != 0 {
			names = append(names, an.name)
			rest &^= an.attr
		}
	}
	return names
}

func (a Attributes) String() string {
	return "{" + strings.Join(a.Names(), ", ") + "}"
}
